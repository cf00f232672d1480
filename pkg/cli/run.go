package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/driver/mock"
	"github.com/asimalsarhani/portal-runner/pkg/driver/playwright"
	"github.com/asimalsarhani/portal-runner/pkg/evidence"
	"github.com/asimalsarhani/portal-runner/pkg/executor"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
	"github.com/asimalsarhani/portal-runner/pkg/notify"
	"github.com/asimalsarhani/portal-runner/pkg/report"
)

var defaults = config.Default()

var runFlags = []cli.Flag{
	// Target and credentials
	&cli.StringFlag{
		Name:    "url",
		Usage:   "Login page URL",
		EnvVars: []string{"SAP_URL"},
	},
	&cli.StringFlag{
		Name:    "username",
		Aliases: []string{"u"},
		Usage:   "Login username",
		EnvVars: []string{"SAP_USERNAME"},
	},
	&cli.StringFlag{
		Name:    "password",
		Usage:   "Login password",
		EnvVars: []string{"SAP_PASSWORD"},
	},

	// Notification
	&cli.StringFlag{
		Name:    "sender",
		Usage:   "Sender email address (notification is disabled unless sender, recipient and email password are set)",
		EnvVars: []string{"SENDER_EMAIL"},
	},
	&cli.StringFlag{
		Name:    "recipient",
		Usage:   "Recipient email address",
		EnvVars: []string{"RECIPIENT_EMAIL"},
	},
	&cli.StringFlag{
		Name:    "email-password",
		Usage:   "SMTP password for the sender",
		EnvVars: []string{"EMAIL_PASSWORD"},
	},
	&cli.StringFlag{
		Name:    "smtp-host",
		Value:   defaults.Notify.Host,
		EnvVars: []string{"SMTP_HOST"},
	},
	&cli.IntFlag{
		Name:    "smtp-port",
		Value:   defaults.Notify.Port,
		EnvVars: []string{"SMTP_PORT"},
	},

	// Browser
	&cli.BoolFlag{
		Name:    "headless",
		Usage:   "Run the browser without a window (--headless=false to watch it)",
		Value:   defaults.Headless,
		EnvVars: []string{"PORTAL_HEADLESS"},
	},
	&cli.StringFlag{
		Name:    "user-agent",
		Value:   defaults.UserAgent,
		EnvVars: []string{"PORTAL_USER_AGENT"},
	},

	// Retry and timeouts
	&cli.IntFlag{
		Name:    "max-retries",
		Usage:   "Login attempts before giving up",
		Value:   defaults.MaxAttempts,
		EnvVars: []string{"PORTAL_MAX_RETRIES"},
	},
	&cli.DurationFlag{
		Name:    "retry-delay",
		Value:   defaults.RetryDelay,
		EnvVars: []string{"PORTAL_RETRY_DELAY"},
	},
	&cli.DurationFlag{
		Name:    "page-timeout",
		Usage:   "Navigation and login form wait",
		Value:   defaults.Timeouts.Page,
		EnvVars: []string{"PORTAL_PAGE_TIMEOUT"},
	},
	&cli.DurationFlag{
		Name:    "element-timeout",
		Usage:   "Default wait for a login control",
		Value:   defaults.Timeouts.Element,
		EnvVars: []string{"PORTAL_ELEMENT_TIMEOUT"},
	},
	&cli.DurationFlag{
		Name:    "verify-timeout",
		Usage:   "Wait for the success or error marker after submit",
		Value:   defaults.Timeouts.Verify,
		EnvVars: []string{"PORTAL_VERIFY_TIMEOUT"},
	},
	&cli.DurationFlag{
		Name:    "post-action-timeout",
		Value:   defaults.Timeouts.PostAction,
		EnvVars: []string{"PORTAL_POST_ACTION_TIMEOUT"},
	},
	&cli.DurationFlag{
		Name:    "poll-interval",
		Value:   defaults.Timeouts.PollInterval,
		EnvVars: []string{"PORTAL_POLL_INTERVAL"},
	},

	// Portal and output
	&cli.StringFlag{
		Name:    "portal",
		Usage:   "Portal definition file (default: ./portal.yaml, else the built-in portal)",
		EnvVars: []string{"PORTAL_FILE"},
	},
	&cli.StringSliceFlag{
		Name:    "keyword",
		Usage:   "Negative keyword scanned in page text (repeatable, overrides the portal's)",
		EnvVars: []string{"PORTAL_KEYWORDS"},
	},
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Directory for screenshots, snippets and report.json",
		Value:   defaults.OutputDir,
		EnvVars: []string{"PORTAL_OUTPUT"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Log file (default: <output>/portal-runner.log)",
		EnvVars: []string{"PORTAL_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:  "html",
		Usage: "Also write report.html",
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Log into the portal and report the result",
	Description: `Opens a fresh browser session, logs in with retries, verifies the login,
runs the portal's post-login actions and sends the result by email.

Exit code is 0 when the login was verified, 1 otherwise.

Examples:
  portal-runner run
  portal-runner run --url https://portal.example.com --username me --max-retries 5
  portal-runner --driver mock run --url https://portal.test`,
	Flags:  runFlags,
	Action: runPortal,
}

// configFromContext builds the run configuration from flags. Env bindings
// are resolved by the flag parser.
func configFromContext(c *cli.Context) config.RunConfig {
	cfg := config.Default()
	cfg.URL = c.String("url")
	cfg.Username = c.String("username")
	cfg.Password = c.String("password")
	cfg.Notify = notify.EmailConfig{
		Sender:    c.String("sender"),
		Recipient: c.String("recipient"),
		Secret:    c.String("email-password"),
		Host:      c.String("smtp-host"),
		Port:      c.Int("smtp-port"),
	}
	cfg.Headless = c.Bool("headless")
	cfg.UserAgent = c.String("user-agent")
	cfg.MaxAttempts = c.Int("max-retries")
	cfg.RetryDelay = c.Duration("retry-delay")
	cfg.Timeouts = config.Timeouts{
		Page:         c.Duration("page-timeout"),
		Element:      c.Duration("element-timeout"),
		Verify:       c.Duration("verify-timeout"),
		PostAction:   c.Duration("post-action-timeout"),
		PollInterval: c.Duration("poll-interval"),
	}
	cfg.PortalFile = c.String("portal")
	cfg.OutputDir = c.String("output")
	cfg.LogFile = c.String("log-file")
	cfg.Driver = c.String("driver")
	cfg.Keywords = nil
	if kws := c.StringSlice("keyword"); len(kws) > 0 {
		cfg.Keywords = kws
	}
	return cfg
}

func runPortal(c *cli.Context) error {
	cfg := configFromContext(c)

	var portal *flow.Portal
	var err error
	if cfg.PortalFile != "" {
		portal, err = config.LoadPortal(cfg.PortalFile)
	} else {
		portal, err = config.LoadPortalFromDir(".")
	}
	if err != nil {
		return fmt.Errorf("failed to load portal: %w", err)
	}
	if cfg.URL == "" {
		cfg.URL = portal.URL
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = portal.Keywords
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	printBanner()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.OutputDir, "portal-runner.log")
	}
	if err := logger.Init(logPath); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	logger.SetVerbose(c.Bool("verbose"))

	for _, w := range cfg.Warnings() {
		logger.Warn("%s", w)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeRun(ctx, cfg, portal, c.Bool("html"))
	if result != nil {
		printSummary(result, cfg)
	}
	if err != nil {
		return err
	}
	if code := result.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// executeRun wires the collaborators and drives one run.
func executeRun(ctx context.Context, cfg config.RunConfig, portal *flow.Portal, html bool) (*executor.RunResult, error) {
	logger.Info("=== Run started ===")
	logger.Info("Portal: %s", portal.Name)
	logger.Info("Output directory: %s", cfg.OutputDir)
	logger.Info("Driver: %s", cfg.Driver)

	sink, err := evidence.NewSink(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	provisioner, err := createProvisioner(cfg, portal)
	if err != nil {
		return nil, err
	}

	ctrl := executor.New(provisioner, sink, createNotifier(cfg.Notify), cfg, portal)
	ctrl.RunnerVersion = Version
	ctrl.Hooks = executor.Hooks{
		OnState:      onStateChange,
		OnAttemptEnd: onAttemptEnd,
		OnPostAction: onPostAction,
	}

	start := time.Now()
	result, err := ctrl.Run(ctx)
	if result != nil {
		logger.Named("run").Info("run finished",
			zap.String("run_id", result.RunID),
			zap.Stringer("state", result.State),
			zap.Int("attempts", len(result.Attempts)),
			zap.Bool("notified", result.Notified),
			zap.Duration("duration", time.Since(start)),
		)
	}
	if err != nil {
		return result, err
	}

	if html {
		if err := report.GenerateHTML(cfg.OutputDir, report.HTMLConfig{EmbedAssets: true}); err != nil {
			logger.Warn("html report: %v", err)
		}
	}
	return result, nil
}

func createProvisioner(cfg config.RunConfig, portal *flow.Portal) (core.Provisioner, error) {
	switch cfg.Driver {
	case config.DriverPlaywright:
		return playwright.NewProvisioner(playwright.Options{
			DriverDir:   config.GetDriversDir("playwright"),
			ProfileRoot: config.GetProfilesDir(),
		}), nil
	case config.DriverMock:
		return mock.NewProvisioner(demoPage(portal)), nil
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown driver %q", cfg.Driver))
}

func createNotifier(cfg notify.EmailConfig) notify.Notifier {
	email, err := notify.NewEmail(cfg)
	if err != nil {
		if !errors.Is(err, core.ErrNotifyDisabled) {
			logger.Warn("email notification unavailable: %v", err)
		}
		return notify.Nop{}
	}
	return email
}

// demoPage scripts a mock page on which the portal's login succeeds, for
// dry runs of a portal definition without a browser.
func demoPage(p *flow.Portal) *mock.Page {
	page := mock.NewPage()
	first := func(t *flow.Target) string { return t.Candidates()[0].String() }

	// The form lives in the portal's frame when it declares one
	form := page.Set
	submit := first(p.Submit)
	if p.Frame != nil {
		frame := first(p.Frame)
		page.Set(frame, mock.Node{})
		form = func(loc string, n mock.Node) *mock.Page { return page.SetIn(frame, loc, n) }
		submit = mock.InFrame(frame, submit)
	}
	form(first(p.Username), mock.Node{})
	form(first(p.Password), mock.Node{})
	form(first(p.Submit), mock.Node{})
	page.Set(first(p.Success), mock.Node{Trigger: submit, AppearAfter: 500 * time.Millisecond})
	for _, s := range p.PostActions {
		if s.Target != nil {
			page.Set(first(s.Target), mock.Node{})
		}
		if s.WaitFor != nil {
			page.Set(first(s.WaitFor), mock.Node{})
		}
	}
	page.SetBodyText("Welcome")
	return page
}
