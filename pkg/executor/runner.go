// Package executor runs the login flow state machine: navigate, authenticate,
// verify, post-login actions, with whole-flow retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asimalsarhani/portal-runner/pkg/action"
	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/evidence"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
	"github.com/asimalsarhani/portal-runner/pkg/notify"
	"github.com/asimalsarhani/portal-runner/pkg/report"
	"github.com/asimalsarhani/portal-runner/pkg/resolver"
	"github.com/asimalsarhani/portal-runner/pkg/verify"
)

// EvidenceSink writes run artifacts.
type EvidenceSink interface {
	Capture(ctx context.Context, session core.Session) (core.EvidenceBundle, error)
	Diagnose(page core.Page, attempt int, tag string) (shot, snippet string, err error)
}

// Hooks are optional live progress callbacks.
type Hooks struct {
	OnState      func(from, to core.FlowState)
	OnAttemptEnd func(rec core.AttemptRecord, willRetry bool)
	OnPostAction func(rep core.PostActionReport)
}

// ErrAlreadyRun is returned when Run is called twice on one Controller.
var ErrAlreadyRun = errors.New("controller already ran; terminal states are final")

// Controller owns the flow state and the browser session for one run.
type Controller struct {
	provisioner core.Provisioner
	sink        EvidenceSink
	notifier    notify.Notifier
	cfg         config.RunConfig
	portal      *flow.Portal

	// Set before Run
	Hooks         Hooks
	RunnerVersion string

	mu    sync.Mutex
	state core.FlowState
	ran   bool
}

// New creates a Controller. cfg is copied; a nil notifier disables notification.
func New(provisioner core.Provisioner, sink EvidenceSink, notifier notify.Notifier, cfg config.RunConfig, portal *flow.Portal) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if portal == nil {
		portal = flow.DefaultPortal()
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = portal.Keywords
	}
	return &Controller{
		provisioner: provisioner,
		sink:        sink,
		notifier:    notifier,
		cfg:         cfg,
		portal:      portal,
		state:       core.StateInit,
	}
}

// State returns the current flow state.
func (c *Controller) State() core.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves the state machine. An edge the machine does not allow is
// a programming error.
func (c *Controller) transition(next core.FlowState) {
	c.mu.Lock()
	prev := c.state
	if !prev.CanTransition(next) {
		c.mu.Unlock()
		panic(fmt.Sprintf("executor: invalid transition %s -> %s", prev, next))
	}
	c.state = next
	c.mu.Unlock()

	logger.Debug("state %s -> %s", prev, next)
	if c.Hooks.OnState != nil {
		c.Hooks.OnState(prev, next)
	}
}

// RunResult contains the outcome of a run.
type RunResult struct {
	RunID       string
	URL         string
	State       core.FlowState
	Attempts    []core.AttemptRecord
	PostActions []core.PostActionReport
	Evidence    core.EvidenceBundle
	ErrorText   string
	Notified    bool
	NotifyError string
	StartTime   time.Time
	Duration    time.Duration
}

// Succeeded returns true if the run ended in Succeeded.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.State == core.StateSucceeded
}

// ExitCode returns the process exit code: 0 on Succeeded, 1 otherwise.
func (r *RunResult) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	return 1
}

// Run drives the flow to a terminal state, then captures evidence, notifies
// and writes the report. A non-nil error means a hard failure (session could
// not start, artifacts could not be written); the returned result, if any,
// holds what happened up to that point.
func (c *Controller) Run(ctx context.Context) (*RunResult, error) {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	c.ran = true
	c.mu.Unlock()

	result := &RunResult{
		RunID:     uuid.NewString(),
		URL:       c.cfg.URL,
		StartTime: time.Now(),
	}
	if result.URL == "" {
		result.URL = c.portal.URL
	}
	logger.Info("run %s: %s (%s), up to %d attempts", result.RunID, c.portal.Name, result.URL, c.cfg.MaxAttempts)

	session, err := c.provisioner.Open(ctx, core.SessionConfig{
		Headless:  c.cfg.Headless,
		Width:     c.cfg.Viewport.Width,
		Height:    c.cfg.Viewport.Height,
		UserAgent: c.cfg.UserAgent,
		Timeout:   int(c.cfg.Timeouts.Element.Milliseconds()),
	})
	if err != nil {
		c.transition(core.StateFailed)
		result.State = core.StateFailed
		result.ErrorText = err.Error()
		return result, core.ErrSessionStart.WithCause(err)
	}
	defer func() {
		if err := c.provisioner.Close(session); err != nil {
			logger.Warn("closing browser session: %v", err)
		}
	}()

	page := session.Page()
	run := &attemptRunner{
		c:           c,
		page:        page,
		actions:     action.New(action.Options{}),
		url:         result.URL,
		resolveOpts: resolver.Options{DefaultTimeout: c.cfg.Timeouts.Element, PollInterval: c.cfg.Timeouts.PollInterval},
		raceOpts:    verify.Options{PollInterval: c.cfg.Timeouts.PollInterval, Keywords: c.cfg.Keywords},
	}
	run.top = resolver.New(page, run.resolveOpts)
	run.bind(page, page)

	verified, err := c.login(ctx, run, result)
	if err != nil {
		c.finish(result)
		return result, err
	}

	if verified {
		c.transition(core.StatePostAction)
		if run.postActions(ctx, result) {
			c.transition(core.StateSucceeded)
		} else {
			c.transition(core.StateFailed)
		}
	}
	c.finish(result)

	result.Evidence = c.collectEvidence(ctx, session, result)
	c.dispatch(ctx, result)

	if err := c.writeReport(result); err != nil {
		return result, err
	}
	return result, nil
}

// login runs attempts until one is verified or the budget is spent. Returns
// a hard error only for unwritable diagnostics.
func (c *Controller) login(ctx context.Context, run *attemptRunner, result *RunResult) (bool, error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if !c.pause(ctx, attempt) {
				c.transition(core.StateFailed)
				return false, nil
			}
			if err := run.page.ClearCookies(); err != nil {
				logger.Warn("attempt %d: clearing cookies failed: %v", attempt, err)
			}
		}

		rec, err := run.attempt(ctx, attempt)
		result.Attempts = append(result.Attempts, rec)
		if err != nil {
			c.transition(core.StateFailed)
			return false, err
		}

		willRetry := !rec.Succeeded() && attempt < c.cfg.MaxAttempts && ctx.Err() == nil
		if c.Hooks.OnAttemptEnd != nil {
			c.Hooks.OnAttemptEnd(rec, willRetry)
		}
		if rec.Succeeded() {
			logger.Info("attempt %d: login verified", attempt)
			return true, nil
		}

		logger.Warn("attempt %d/%d failed: %s (url %s)", attempt, c.cfg.MaxAttempts, rec.Reason(), rec.URL)
		if willRetry {
			c.transition(core.StateInit)
			continue
		}
		c.transition(core.StateFailed)
		return false, nil
	}
	c.transition(core.StateFailed)
	return false, nil
}

// pause waits the fixed delay between attempts.
func (c *Controller) pause(ctx context.Context, attempt int) bool {
	if c.cfg.RetryDelay <= 0 {
		return ctx.Err() == nil
	}
	logger.Info("retrying in %v (attempt %d/%d)", c.cfg.RetryDelay, attempt, c.cfg.MaxAttempts)
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		logger.Warn("run cancelled before attempt %d", attempt)
		return false
	case <-timer.C:
		return true
	}
}

func (c *Controller) finish(result *RunResult) {
	result.State = c.State()
	result.Duration = time.Since(result.StartTime)
	if result.State != core.StateSucceeded && result.ErrorText == "" {
		result.ErrorText = failureText(result)
	}
}

// failureText is the captured error of the last failed attempt, or the
// first required post-action failure.
func failureText(result *RunResult) string {
	for _, p := range result.PostActions {
		if p.Required && !p.Result.Success() {
			return p.Name + ": " + p.Result.Message
		}
	}
	if n := len(result.Attempts); n > 0 {
		last := result.Attempts[n-1]
		if last.Outcome != nil && last.Outcome.Text != "" {
			return last.Outcome.Text
		}
		return last.Reason()
	}
	return ""
}

// collectEvidence captures a final screenshot on success. On failure the
// attempt screenshots are the evidence.
func (c *Controller) collectEvidence(ctx context.Context, session core.Session, result *RunResult) core.EvidenceBundle {
	n := len(result.Attempts)
	if result.State != core.StateSucceeded {
		return evidence.NewBundle(fmt.Sprintf("Login failed after %d attempt(s): %s", n, result.ErrorText), result.Attempts)
	}

	headline := fmt.Sprintf("Login succeeded on attempt %d of %d", n, c.cfg.MaxAttempts)
	for _, w := range postActionWarnings(result) {
		headline += "\nwarning: " + w
	}
	captured, err := c.sink.Capture(ctx, session)
	if err != nil {
		logger.Error("final screenshot failed: %v", err)
		return evidence.NewBundle(headline, result.Attempts[n-1:])
	}
	return evidence.NewBundle(headline, result.Attempts[n-1:], captured.Screenshots()...)
}

func (c *Controller) dispatch(ctx context.Context, result *RunResult) {
	outcome := notify.Outcome{
		RunID:     result.RunID,
		Portal:    c.portal.Name,
		URL:       result.URL,
		Succeeded: result.Succeeded(),
		State:     result.State,
		Attempts:  len(result.Attempts),
		ErrorText: result.ErrorText,
		Warnings:  postActionWarnings(result),
	}
	if err := c.notifier.Notify(ctx, result.Evidence, outcome); err != nil {
		logger.Error("notification failed: %v", err)
		result.NotifyError = err.Error()
		return
	}
	result.Notified = true
}

func (c *Controller) writeReport(result *RunResult) error {
	if c.cfg.OutputDir == "" {
		return nil
	}
	rep := &report.Report{
		RunID:     result.RunID,
		Status:    report.StatusOf(result.State),
		State:     result.State,
		StartTime: result.StartTime,
		EndTime:   result.StartTime.Add(result.Duration),
		Duration:  result.Duration.Milliseconds(),
		Portal: report.PortalInfo{
			Name:       c.portal.Name,
			URL:        result.URL,
			SourcePath: c.portal.SourcePath,
		},
		Runner: report.RunnerInfo{
			Version:     c.RunnerVersion,
			Driver:      c.cfg.Driver,
			MaxAttempts: c.cfg.MaxAttempts,
			Headless:    c.cfg.Headless,
		},
		Attempts:    result.Attempts,
		PostActions: result.PostActions,
		Evidence:    report.EvidenceOf(result.Evidence),
		ErrorText:   result.ErrorText,
		Notified:    result.Notified,
		NotifyError: result.NotifyError,
	}
	if err := report.Write(c.cfg.OutputDir, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func postActionWarnings(result *RunResult) []string {
	var warnings []string
	for _, p := range result.PostActions {
		if !p.Result.Success() {
			warnings = append(warnings, fmt.Sprintf("%s: %s %s", p.Name, p.Result.Status, p.Result.Message))
		}
	}
	return warnings
}
