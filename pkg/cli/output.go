package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/executor"
	"github.com/asimalsarhani/portal-runner/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %sportal-runner%s %s\n", color(colorBold), color(colorReset), Version)
	fmt.Println(strings.Repeat("─", 60))
}

// Live progress callbacks

func onStateChange(from, to core.FlowState) {
	switch to {
	case core.StateNavigating, core.StateAuthenticating, core.StateAwaitingVerification, core.StatePostAction:
		fmt.Printf("  %s▸%s %s\n", color(colorCyan), color(colorReset), to)
	}
}

func onAttemptEnd(rec core.AttemptRecord, willRetry bool) {
	dur := formatDuration(rec.Duration.Milliseconds())
	if rec.Succeeded() {
		fmt.Printf("  %s✓%s attempt %d verified %s(%s)%s\n",
			color(colorGreen), color(colorReset), rec.Index, color(colorGray), dur, color(colorReset))
		return
	}
	fmt.Printf("  %s✗%s attempt %d failed %s(%s)%s\n",
		color(colorRed), color(colorReset), rec.Index, color(colorGray), dur, color(colorReset))
	fmt.Printf("    %s╰─%s %s\n", color(colorGray), color(colorReset), rec.Reason())
	if willRetry {
		fmt.Printf("    %sretrying%s\n", color(colorYellow), color(colorReset))
	}
}

func onPostAction(rep core.PostActionReport) {
	dur := formatDuration(rep.Result.Duration.Milliseconds())
	if rep.Result.Success() {
		fmt.Printf("    %s✓%s %s %s(%s)%s\n", color(colorGreen), color(colorReset), rep.Name, color(colorGray), dur, color(colorReset))
		return
	}
	symbol, c := "⚠", colorYellow
	if rep.Required {
		symbol, c = "✗", colorRed
	}
	fmt.Printf("    %s%s%s %s (%s)\n", color(c), symbol, color(colorReset), rep.Name, dur)
	fmt.Printf("      %s╰─%s %s %s\n", color(colorGray), color(colorReset), rep.Result.Status, rep.Result.Message)
}

func printSummary(result *executor.RunResult, cfg config.RunConfig) {
	width := 60
	fmt.Println()
	fmt.Println(strings.Repeat("═", width))

	if result.Succeeded() {
		fmt.Printf("  %s✓ SUCCESS%s  login verified on attempt %d/%d\n",
			color(colorGreen), color(colorReset), len(result.Attempts), cfg.MaxAttempts)
	} else {
		fmt.Printf("  %s✗ FAILED%s  after %d attempt(s)\n", color(colorRed), color(colorReset), len(result.Attempts))
		if result.ErrorText != "" {
			fmt.Printf("  %s\n", result.ErrorText)
		}
	}
	fmt.Println(strings.Repeat("─", width))

	fmt.Printf("  %-14s %s\n", "Run", result.RunID)
	fmt.Printf("  %-14s %s\n", "Duration", formatDuration(result.Duration.Milliseconds()))
	for _, p := range result.Evidence.Screenshots() {
		fmt.Printf("  %-14s %s\n", "Screenshot", p)
	}
	switch {
	case result.Notified:
		fmt.Printf("  %-14s sent to %s\n", "Notification", cfg.Notify.Recipient)
	case result.NotifyError != "":
		fmt.Printf("  %-14s %sfailed: %s%s\n", "Notification", color(colorRed), result.NotifyError, color(colorReset))
	}
	if cfg.OutputDir != "" {
		fmt.Printf("  %-14s %s\n", "Report", filepath.Join(cfg.OutputDir, report.FileName))
	}
	fmt.Println(strings.Repeat("═", width))
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
