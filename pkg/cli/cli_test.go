package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
)

// parseRun parses a run command line and returns the resulting config.
func parseRun(t *testing.T, args ...string) config.RunConfig {
	t.Helper()
	var cfg config.RunConfig
	app := &cli.App{
		Name:  "portal-runner",
		Flags: GlobalFlags,
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: runFlags,
			Action: func(c *cli.Context) error {
				cfg = configFromContext(c)
				return nil
			},
		}},
	}
	argv := append([]string{"portal-runner"}, args...)
	if err := app.Run(argv); err != nil {
		t.Fatalf("app.Run(%v) error = %v", argv, err)
	}
	return cfg
}

func TestConfigFromContext_Defaults(t *testing.T) {
	cfg := parseRun(t, "run")
	want := config.Default()

	if cfg.MaxAttempts != want.MaxAttempts || cfg.RetryDelay != want.RetryDelay {
		t.Errorf("retry = %d/%v", cfg.MaxAttempts, cfg.RetryDelay)
	}
	if cfg.Timeouts != want.Timeouts {
		t.Errorf("timeouts = %+v, want %+v", cfg.Timeouts, want.Timeouts)
	}
	if !cfg.Headless || cfg.Driver != config.DriverPlaywright {
		t.Errorf("headless = %v, driver = %s", cfg.Headless, cfg.Driver)
	}
	if cfg.Notify.Host != "smtp.gmail.com" || cfg.Notify.Port != 587 {
		t.Errorf("smtp = %s:%d", cfg.Notify.Host, cfg.Notify.Port)
	}
	if cfg.Keywords != nil {
		t.Errorf("keywords should come from the portal, got %v", cfg.Keywords)
	}
}

func TestConfigFromContext_Flags(t *testing.T) {
	cfg := parseRun(t, "--driver", "mock", "run",
		"--url", "https://portal.test",
		"--username", "alice",
		"--headless=false",
		"--max-retries", "5",
		"--retry-delay", "2s",
		"--verify-timeout", "45s",
		"--keyword", "denied", "--keyword", "locked",
		"--output", "out",
	)

	if cfg.URL != "https://portal.test" || cfg.Username != "alice" {
		t.Errorf("target = %q %q", cfg.URL, cfg.Username)
	}
	if cfg.Headless {
		t.Error("expected headed browser")
	}
	if cfg.MaxAttempts != 5 || cfg.RetryDelay != 2*time.Second || cfg.Timeouts.Verify != 45*time.Second {
		t.Errorf("retry/timeout = %d %v %v", cfg.MaxAttempts, cfg.RetryDelay, cfg.Timeouts.Verify)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[1] != "locked" {
		t.Errorf("keywords = %v", cfg.Keywords)
	}
	if cfg.Driver != config.DriverMock || cfg.OutputDir != "out" {
		t.Errorf("driver = %s, output = %s", cfg.Driver, cfg.OutputDir)
	}
}

func TestConfigFromContext_Env(t *testing.T) {
	t.Setenv("SAP_URL", "https://env.test/login")
	t.Setenv("SAP_USERNAME", "bob")
	t.Setenv("SAP_PASSWORD", "pw")
	t.Setenv("SENDER_EMAIL", "bot@example.com")
	t.Setenv("RECIPIENT_EMAIL", "ops@example.com")
	t.Setenv("EMAIL_PASSWORD", "app-secret")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("PORTAL_MAX_RETRIES", "7")

	cfg := parseRun(t, "run")

	if cfg.URL != "https://env.test/login" || cfg.Username != "bob" || cfg.Password != "pw" {
		t.Errorf("credentials from env = %q %q", cfg.URL, cfg.Username)
	}
	if !cfg.Notify.Enabled() || cfg.Notify.Port != 2525 {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.MaxAttempts != 7 {
		t.Errorf("max attempts = %d", cfg.MaxAttempts)
	}

	// Flags win over the environment
	if cfg := parseRun(t, "run", "--username", "carol"); cfg.Username != "carol" {
		t.Errorf("username = %q, want flag value", cfg.Username)
	}
}

func TestExecuteRun_MockDriver(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.URL = "https://portal.test/login"
	cfg.Driver = config.DriverMock
	cfg.OutputDir = dir
	cfg.RetryDelay = 0
	cfg.Timeouts = config.Timeouts{
		Page:         time.Second,
		Element:      time.Second,
		Verify:       3 * time.Second,
		PostAction:   time.Second,
		PollInterval: 10 * time.Millisecond,
	}

	portal := flow.DefaultPortal()
	portal.PostActions = []flow.Step{portal.PostActions[1], portal.PostActions[3]}
	for i := range portal.PostActions {
		portal.PostActions[i].WaitFor = nil
	}

	result, err := executeRun(context.Background(), cfg, portal, true)
	if err != nil {
		t.Fatalf("executeRun() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("state = %s: %s", result.State, result.ErrorText)
	}
	if len(result.PostActions) != 2 {
		t.Errorf("post actions = %d", len(result.PostActions))
	}
	if d := result.Attempts[0].Duration; d > 5*time.Second {
		t.Errorf("attempt took %v, login frame should be found at once", d)
	}
	for _, name := range []string{"report.json", "report.html"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestCreateProvisioner(t *testing.T) {
	for _, driver := range []string{config.DriverPlaywright, config.DriverMock} {
		cfg := config.Default()
		cfg.Driver = driver
		if p, err := createProvisioner(cfg, flow.DefaultPortal()); err != nil || p == nil {
			t.Errorf("%s: provisioner = %v, err = %v", driver, p, err)
		}
	}
	cfg := config.Default()
	cfg.Driver = "selenium"
	if _, err := createProvisioner(cfg, flow.DefaultPortal()); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestValidateCommand(t *testing.T) {
	var exitCode int
	oldExiter := cli.OsExiter
	cli.OsExiter = func(code int) { exitCode = code }
	defer func() { cli.OsExiter = oldExiter }()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	content := `
name: careers
targets:
  username: id=username
  password: id=password
  submit: id=signIn
  success: css=.main
  error: css=.login-error
`
	if err := os.WriteFile(good, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("name: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := newApp().Run([]string{"portal-runner", "--no-ansi", "validate", good}); err != nil {
		t.Errorf("validate good: %v", err)
	}
	if err := newApp().Run([]string{"portal-runner", "--no-ansi", "validate"}); err != nil {
		t.Errorf("validate built-in: %v", err)
	}

	exitCode = 0
	_ = newApp().Run([]string{"portal-runner", "--no-ansi", "validate", bad})
	if exitCode != 1 {
		t.Errorf("validate bad: exit code = %d, want 1", exitCode)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1500, "1.5s"},
		{65000, "1m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.ms); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestNewApp_FlagsDoNotCollide(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"version", []string{"--version"}},
		{"run help", []string{"--driver", "mock", "run", "--help"}},
		{"validate help", []string{"validate", "--help"}},
		{"install help", []string{"install", "--help"}},
		{"verbose", []string{"--verbose", "--no-ansi", "validate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("app panicked: %v", r)
				}
			}()
			argv := append([]string{"portal-runner"}, tt.args...)
			if err := newApp().Run(argv); err != nil {
				t.Errorf("Run(%v) error = %v", argv, err)
			}
		})
	}
}
