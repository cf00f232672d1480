// Package playwright implements core.Provisioner on a real Chromium browser
// driven through playwright-go.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	pw "github.com/playwright-community/playwright-go"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
)

// DefaultTimeout is the driver timeout in ms when the session config sets none.
const DefaultTimeout = 30000

// hideWebdriver masks the automation flag some portals check before
// rendering the login form.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// Options configures the provisioner.
type Options struct {
	DriverDir   string // Playwright driver directory, empty for the library default
	ProfileRoot string // Parent of the per-session profile directories, empty for os.TempDir
}

// Provisioner launches one persistent Chromium context per session, each in a
// fresh profile directory that is removed on Close.
type Provisioner struct {
	opts Options

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(opts Options) *Provisioner {
	return &Provisioner{opts: opts, sessions: make(map[*Session]struct{})}
}

// Install downloads the Playwright driver and Chromium into driverDir.
func Install(driverDir string, verbose bool) error {
	err := pw.Install(&pw.RunOptions{
		DriverDirectory: driverDir,
		Browsers:        []string{"chromium"},
		Verbose:         verbose,
	})
	if err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}
	return nil
}

// Open implements core.Provisioner.
func (p *Provisioner) Open(ctx context.Context, cfg core.SessionConfig) (core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile, owned, err := p.profileDir(cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{profile: profile, ownsProfile: owned}

	if err := s.launch(p.opts, cfg); err != nil {
		if cerr := s.close(); cerr != nil {
			logger.Debug("cleanup after failed launch: %v", cerr)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = s.close()
		return nil, err
	}

	p.mu.Lock()
	p.sessions[s] = struct{}{}
	p.mu.Unlock()
	logger.Info("browser session started (headless=%v, profile %s)", cfg.Headless, profile)
	return s, nil
}

// Close implements core.Provisioner. It is safe to call more than once.
func (p *Provisioner) Close(session core.Session) error {
	s, ok := session.(*Session)
	if !ok {
		return fmt.Errorf("playwright: foreign session %T", session)
	}
	p.mu.Lock()
	_, live := p.sessions[s]
	delete(p.sessions, s)
	p.mu.Unlock()
	if !live {
		return nil
	}
	return s.close()
}

func (p *Provisioner) profileDir(cfg core.SessionConfig) (string, bool, error) {
	if cfg.ProfileDir != "" {
		if err := os.MkdirAll(cfg.ProfileDir, 0o700); err != nil {
			return "", false, core.ErrFilesystem.WithCause(err)
		}
		return cfg.ProfileDir, false, nil
	}
	if p.opts.ProfileRoot != "" {
		if err := os.MkdirAll(p.opts.ProfileRoot, 0o700); err != nil {
			return "", false, core.ErrFilesystem.WithCause(err)
		}
	}
	dir, err := os.MkdirTemp(p.opts.ProfileRoot, "profile-*")
	if err != nil {
		return "", false, core.ErrFilesystem.WithCause(err)
	}
	return dir, true, nil
}

// Session is one persistent browser context with its page.
type Session struct {
	profile     string
	ownsProfile bool

	pw      *pw.Playwright
	context pw.BrowserContext
	page    *Page
}

// Page implements core.Session.
func (s *Session) Page() core.Page { return s.page }

// ProfileDir returns the browser profile directory.
func (s *Session) ProfileDir() string { return s.profile }

func (s *Session) launch(opts Options, cfg core.SessionConfig) error {
	run, err := pw.Run(&pw.RunOptions{DriverDirectory: opts.DriverDir, Browsers: []string{"chromium"}})
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	s.pw = run

	launch := launchOptions(cfg)
	bctx, err := run.Chromium.LaunchPersistentContext(s.profile, launch)
	if err != nil {
		return fmt.Errorf("launch chromium: %w", err)
	}
	s.context = bctx

	timeout := float64(cfg.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bctx.SetDefaultTimeout(timeout)

	if err := bctx.AddInitScript(pw.Script{Content: pw.String(hideWebdriver)}); err != nil {
		return fmt.Errorf("install init script: %w", err)
	}

	var page pw.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	s.page = &Page{page: page, context: bctx, timeout: timeout}
	return nil
}

func (s *Session) close() error {
	var errs []error
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	if s.ownsProfile {
		if err := os.RemoveAll(s.profile); err != nil {
			errs = append(errs, fmt.Errorf("remove profile: %w", err))
		}
	}
	return errors.Join(errs...)
}

// launchArgs are passed to Chromium for every session.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
}

func launchOptions(cfg core.SessionConfig) pw.BrowserTypeLaunchPersistentContextOptions {
	opts := pw.BrowserTypeLaunchPersistentContextOptions{
		Headless:          pw.Bool(cfg.Headless),
		Args:              append([]string(nil), launchArgs...),
		IgnoreHttpsErrors: pw.Bool(true),
	}
	if cfg.UserAgent != "" {
		opts.UserAgent = pw.String(cfg.UserAgent)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts.Viewport = &pw.Size{Width: cfg.Width, Height: cfg.Height}
	}
	return opts
}
