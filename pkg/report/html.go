package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file
	EmbedAssets bool   // Embed screenshots as base64 (makes file larger but portable)
	Title       string // Report title (default: "Portal Run Report")
}

// GenerateHTML renders reportDir/report.json as HTML.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	r, err := Read(reportDir)
	if err != nil {
		return err
	}

	if cfg.Title == "" {
		cfg.Title = "Portal Run Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	html, err := renderHTML(buildHTMLData(r, reportDir, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0644); err != nil { //#nosec G306 -- report is meant to be shared
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title       string
	GeneratedAt string
	Report      *Report
	Duration    string
	StatusClass string
	Attempts    []AttemptHTMLData
	Screenshots []template.URL
}

// AttemptHTMLData contains attempt data formatted for HTML.
type AttemptHTMLData struct {
	core.AttemptRecord
	Passed      bool
	Reason      string
	DurationStr string
	Screenshot  template.URL
}

func buildHTMLData(r *Report, reportDir string, cfg HTMLConfig) HTMLData {
	data := HTMLData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format(time.RFC1123),
		Report:      r,
		Duration:    formatDuration(r.Duration),
		StatusClass: string(r.Status),
	}

	for _, a := range r.Attempts {
		item := AttemptHTMLData{
			AttemptRecord: a,
			Passed:        a.Succeeded(),
			Reason:        a.Reason(),
			DurationStr:   formatDuration(a.Duration.Milliseconds()),
		}
		if a.Snapshot != "" {
			item.Screenshot = imageSource(a.Snapshot, reportDir, cfg.EmbedAssets)
		}
		data.Attempts = append(data.Attempts, item)
	}

	for _, p := range r.Evidence.Screenshots {
		data.Screenshots = append(data.Screenshots, imageSource(p, reportDir, cfg.EmbedAssets))
	}
	return data
}

// imageSource returns a data URI or a path relative to the report.
func imageSource(path, reportDir string, embed bool) template.URL {
	if embed {
		if src := loadAsBase64(path); src != "" {
			return template.URL(src) //#nosec G203 -- data URI built from a local file
		}
	}
	if rel, err := filepath.Rel(reportDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		path = rel
	}
	return template.URL(filepath.ToSlash(path)) //#nosec G203 -- local artifact path
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path) //#nosec G304 -- artifact path from the report
	if err != nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := "image/png"
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #111827; }
        .passed { color: #059669; }
        .failed { color: #dc2626; }
        .running { color: #2563eb; }
        table { border-collapse: collapse; margin: 1rem 0; }
        td, th { border: 1px solid #e5e7eb; padding: 0.4rem 0.8rem; text-align: left; vertical-align: top; }
        img { max-width: 480px; border: 1px solid #e5e7eb; }
        pre { background: #f9fafb; padding: 1rem; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <p class="{{.StatusClass}}"><strong>{{.Report.Status}}</strong> ({{.Report.State}}) in {{.Duration}}</p>
    <table>
        <tr><th>Portal</th><td>{{.Report.Portal.Name}}</td></tr>
        <tr><th>URL</th><td>{{.Report.Portal.URL}}</td></tr>
        <tr><th>Run</th><td>{{.Report.RunID}}</td></tr>
        <tr><th>Driver</th><td>{{.Report.Runner.Driver}}</td></tr>
        {{if .Report.ErrorText}}<tr><th>Error</th><td class="failed">{{.Report.ErrorText}}</td></tr>{{end}}
        {{if .Report.NotifyError}}<tr><th>Notification</th><td>{{.Report.NotifyError}}</td></tr>{{end}}
    </table>

    <h2>Attempts</h2>
    <table>
        <tr><th>#</th><th>Reached</th><th>Result</th><th>Duration</th><th>URL</th><th>Screenshot</th></tr>
        {{range .Attempts}}
        <tr>
            <td>{{.Index}}</td>
            <td>{{.Reached}}</td>
            <td class="{{if .Passed}}passed{{else}}failed{{end}}">{{if .Passed}}verified{{else}}{{.Reason}}{{end}}</td>
            <td>{{.DurationStr}}</td>
            <td>{{.URL}}</td>
            <td>{{if .Screenshot}}<img src="{{.Screenshot}}" alt="attempt {{.Index}}">{{end}}</td>
        </tr>
        {{end}}
    </table>

    {{if .Report.PostActions}}
    <h2>Post-login actions</h2>
    <table>
        <tr><th>Step</th><th>Required</th><th>Status</th><th>Message</th></tr>
        {{range .Report.PostActions}}
        <tr><td>{{.Name}}</td><td>{{.Required}}</td><td>{{.Result.Status}}</td><td>{{.Result.Message}}</td></tr>
        {{end}}
    </table>
    {{end}}

    <h2>Evidence</h2>
    {{if .Report.Evidence.Summary}}<pre>{{.Report.Evidence.Summary}}</pre>{{end}}
    {{range .Screenshots}}<img src="{{.}}" alt="evidence">{{end}}

    <p><small>Generated {{.GeneratedAt}}</small></p>
</body>
</html>
`
