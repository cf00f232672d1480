// Package config handles configuration for portal-runner.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/notify"
)

// Drivers.
const (
	DriverPlaywright = "playwright"
	DriverMock       = "mock"
)

// DefaultUserAgent is sent by the browser unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

// Timeouts bounds every wait point of a run.
type Timeouts struct {
	Page         time.Duration // Navigation and page-ready wait
	Element      time.Duration // Default per-target resolve budget
	Verify       time.Duration // Verification race budget
	PostAction   time.Duration // Per post-action resolve budget
	PollInterval time.Duration
}

// Viewport is the browser window size.
type Viewport struct {
	Width  int
	Height int
}

// RunConfig is built once before a run and passed by value into the flow
// controller. Nothing reads configuration from the environment after that.
type RunConfig struct {
	URL      string
	Username string
	Password string

	Notify notify.EmailConfig

	Headless    bool
	MaxAttempts int
	RetryDelay  time.Duration
	Timeouts    Timeouts
	Viewport    Viewport
	UserAgent   string

	OutputDir  string
	PortalFile string
	Keywords   []string
	Driver     string
	LogFile    string
}

// Default returns the default run configuration.
func Default() RunConfig {
	return RunConfig{
		Notify: notify.EmailConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Headless:    true,
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
		Timeouts: Timeouts{
			Page:         90 * time.Second,
			Element:      30 * time.Second,
			Verify:       120 * time.Second,
			PostAction:   30 * time.Second,
			PollInterval: 250 * time.Millisecond,
		},
		Viewport:  Viewport{Width: 1920, Height: 1080},
		UserAgent: DefaultUserAgent,
		OutputDir: ".",
		Keywords:  append([]string(nil), flow.DefaultKeywords...),
		Driver:    DriverPlaywright,
	}
}

// Validate checks required fields and value ranges.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return core.ErrMissingRequired.WithMessage("target URL is required (--url or SAP_URL)")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid URL %q", c.URL))
	}
	if c.MaxAttempts < 1 {
		return core.ErrInvalidConfig.WithMessage("max retries must be at least 1")
	}
	if c.RetryDelay < 0 {
		return core.ErrInvalidConfig.WithMessage("retry delay must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"page timeout":        c.Timeouts.Page,
		"element timeout":     c.Timeouts.Element,
		"verify timeout":      c.Timeouts.Verify,
		"post-action timeout": c.Timeouts.PostAction,
		"poll interval":       c.Timeouts.PollInterval,
	} {
		if d <= 0 {
			return core.ErrInvalidConfig.WithMessage(name + " must be positive")
		}
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return core.ErrInvalidConfig.WithMessage("viewport must be positive")
	}
	switch c.Driver {
	case DriverPlaywright, DriverMock:
	default:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown driver %q", c.Driver))
	}
	if c.Notify.Sender != "" && !strings.Contains(c.Notify.Sender, "@") {
		return core.ErrInvalidConfig.WithMessage("sender email must contain @")
	}
	if c.Notify.Recipient != "" && !strings.Contains(c.Notify.Recipient, "@") {
		return core.ErrInvalidConfig.WithMessage("recipient email must contain @")
	}
	return nil
}

// Warnings lists issues that do not block a run.
func (c RunConfig) Warnings() []string {
	var warnings []string
	if c.Username == "" {
		warnings = append(warnings, "username is not set (SAP_USERNAME)")
	}
	if c.Password == "" {
		warnings = append(warnings, "password is not set (SAP_PASSWORD)")
	}
	if !c.Notify.Enabled() {
		warnings = append(warnings, "email notification disabled: sender, recipient and email password are all required")
	}
	return warnings
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadPortal loads a portal definition file, or the built-in portal when path
// is empty.
func LoadPortal(path string) (*flow.Portal, error) {
	if path == "" {
		return flow.DefaultPortal(), nil
	}
	return flow.ParsePortalFile(path)
}

// LoadPortalFromDir looks for portal.yaml or portal.yml in the directory and
// falls back to the built-in portal.
func LoadPortalFromDir(dir string) (*flow.Portal, error) {
	for _, name := range []string{"portal.yaml", "portal.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadPortal(path)
		}
	}
	return flow.DefaultPortal(), nil
}
