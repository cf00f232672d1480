package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/action"
	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
	"github.com/asimalsarhani/portal-runner/pkg/resolver"
	"github.com/asimalsarhani/portal-runner/pkg/verify"
)

// attemptRunner holds the per-session collaborators shared by all attempts.
// resolver and race follow the scope of the login form; top always searches
// the top-level document.
type attemptRunner struct {
	c       *Controller
	page    core.Page
	top     *resolver.Resolver
	actions *action.Executor
	url     string

	resolveOpts resolver.Options
	raceOpts    verify.Options
	resolver    *resolver.Resolver
	race        *verify.Race
}

// bind points form lookups at form and the verification race at markers.
func (r *attemptRunner) bind(form, markers core.Page) {
	r.resolver = resolver.New(form, r.resolveOpts)
	r.race = verify.New(markers, r.raceOpts)
}

// enterFrame scopes the attempt to the portal's login iframe. A page
// without the frame keeps the top-level document.
func (r *attemptRunner) enterFrame(ctx context.Context) {
	frame := r.c.portal.Frame
	if frame == nil {
		r.bind(r.page, r.page)
		return
	}
	found, ok := r.top.Resolve(ctx, frame, 0, resolver.Present)
	if !ok {
		logger.Info("no %s found, proceeding in the main document", frame.Name())
		r.bind(r.page, r.page)
		return
	}
	logger.Info("switched into %s (%s)", frame.Name(), found.Locator)
	inner := r.page.Frame(found.Locator)
	r.bind(inner, &framed{Page: r.page, frame: inner, loc: found.Locator})
}

// attempt runs one navigate/authenticate/verify pass. The returned error is
// non-nil only when diagnostics could not be written.
func (r *attemptRunner) attempt(ctx context.Context, index int) (core.AttemptRecord, error) {
	rec := core.AttemptRecord{Index: index, StartTime: time.Now()}
	logger.Info("attempt %d/%d: opening %s", index, r.c.cfg.MaxAttempts, r.url)

	failed, outcome := r.login(ctx, &rec)
	rec.Duration = time.Since(rec.StartTime)
	rec.URL = r.page.URL()

	if failed == nil && outcome.IsSuccess() {
		rec.Outcome = &outcome
		return rec, nil
	}

	tag := outcome.Tag()
	if failed != nil {
		rec.Failed = failed
		tag = failed.Status.String()
	} else {
		rec.Outcome = &outcome
	}

	shot, snippet, err := r.c.sink.Diagnose(r.page, index, tag)
	rec.Snapshot, rec.Snippet = shot, snippet
	if rec.Failed != nil {
		rec.Failed.Snapshot = shot
	}
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// login returns the failed step, or the verification outcome when every
// step succeeded.
func (r *attemptRunner) login(ctx context.Context, rec *core.AttemptRecord) (*core.StepResult, core.Outcome) {
	cfg := r.c.cfg
	p := r.c.portal

	r.c.transition(core.StateNavigating)
	rec.Reached = core.StateNavigating
	if res := r.navigate(ctx); !res.Success() {
		return &res, core.Outcome{}
	}
	r.enterFrame(ctx)

	// The username field doubles as the page-ready signal
	user, ok := r.resolver.Resolve(ctx, p.Username, cfg.Timeouts.Page, resolver.Visible)
	if !ok {
		res := notFound(p.Username, "login form did not appear")
		return &res, core.Outcome{}
	}

	r.c.transition(core.StateAuthenticating)
	rec.Reached = core.StateAuthenticating

	if res := r.actions.Execute(ctx, flow.Type(cfg.Username), user); !res.Success() {
		return &res, core.Outcome{}
	}
	if res := r.step(ctx, p.Password, flow.Type(cfg.Password)); !res.Success() {
		return &res, core.Outcome{}
	}
	if res := r.step(ctx, p.Submit, flow.Click()); !res.Success() {
		return &res, core.Outcome{}
	}

	r.c.transition(core.StateAwaitingVerification)
	rec.Reached = core.StateAwaitingVerification

	return nil, r.race.Await(ctx, p.Success, p.Failure, cfg.Timeouts.Verify)
}

func (r *attemptRunner) navigate(ctx context.Context) core.StepResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.c.cfg.Timeouts.Page)
	defer cancel()

	res := core.SuccessResult("navigated to " + r.url)
	if err := r.page.Navigate(ctx, r.url); err != nil {
		status := core.StatusInteractionError
		cause := core.ErrInteraction.WithCause(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, core.ErrTimeout) {
			status = core.StatusTimeout
			cause = core.ErrTimeout.WithCause(err)
		}
		res = core.FailureResult(status, cause, "navigation failed")
	}
	res.Action = "navigate"
	res.Duration = time.Since(start)
	return res
}

// step resolves an interactable target and performs a on it.
func (r *attemptRunner) step(ctx context.Context, target *flow.Target, a flow.Action) core.StepResult {
	resolved, ok := r.resolver.Resolve(ctx, target, 0, resolver.Interactable)
	if !ok {
		return notFound(target, fmt.Sprintf("%s not found", target.Name()))
	}
	return r.actions.Execute(ctx, a, resolved)
}

func notFound(target *flow.Target, msg string) core.StepResult {
	res := core.FailureResult(core.StatusNotFound, core.ErrElementNotFound.WithDetails(map[string]interface{}{
		"target": target.Describe(),
	}), msg)
	res.Target = target.Name()
	return res
}

// postActions runs the post-login steps in order. They are best-effort: a
// failure is recorded and the next step runs. Returns false when a required
// step failed.
func (r *attemptRunner) postActions(ctx context.Context, result *RunResult) bool {
	r.bind(r.page, r.page)
	ok := true
	for _, s := range r.c.portal.PostActions {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, skipping remaining post-login actions")
			break
		}
		rep := core.PostActionReport{Name: s.Describe(), Required: s.Required, Result: r.postAction(ctx, s)}
		result.PostActions = append(result.PostActions, rep)
		if r.c.Hooks.OnPostAction != nil {
			r.c.Hooks.OnPostAction(rep)
		}

		if rep.Result.Success() {
			logger.Info("post action %q: %s", rep.Name, rep.Result.Message)
			continue
		}
		if s.Required {
			logger.Error("required post action %q failed: %s", rep.Name, rep.Result.Message)
			ok = false
			break
		}
		logger.Warn("post action %q failed, continuing: %s %s", rep.Name, rep.Result.Status, rep.Result.Message)
	}
	return ok
}

func (r *attemptRunner) postAction(ctx context.Context, s flow.Step) core.StepResult {
	var resolved *resolver.Resolved
	if s.Action.Kind.NeedsTarget() {
		timeout := s.Target.Timeout()
		if timeout <= 0 {
			timeout = r.c.cfg.Timeouts.PostAction
		}
		found, ok := r.resolver.Resolve(ctx, s.Target, timeout, resolver.Interactable)
		if !ok {
			return notFound(s.Target, fmt.Sprintf("%s not found", s.Target.Name()))
		}
		resolved = found
	}

	res := r.actions.Execute(ctx, s.Action, resolved)
	if !res.Success() || s.WaitFor == nil {
		return res
	}

	// Presence only: document-level markers such as <title> are never visible
	if _, ok := r.resolver.Resolve(ctx, s.WaitFor, 0, resolver.Present); !ok {
		wait := core.FailureResult(core.StatusTimeout, core.ErrTimeout.WithMessage(s.WaitFor.Name()+" did not appear"),
			fmt.Sprintf("%s, but %s did not appear", res.Message, s.WaitFor.Name()))
		wait.Action, wait.Target, wait.Locator, wait.Duration = res.Action, res.Target, res.Locator, res.Duration
		return wait
	}
	return res
}
