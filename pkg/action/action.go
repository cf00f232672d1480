// Package action performs single logical actions on resolved elements.
//
// Every driver fault is normalized into a core.StepResult; nothing raised by
// the driver escapes Execute.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
	"github.com/asimalsarhani/portal-runner/pkg/resolver"
)

// Options configures an Executor.
type Options struct {
	// SkipImplicitScroll disables the scroll before type and click.
	SkipImplicitScroll bool
}

// Executor runs actions against resolved elements.
type Executor struct {
	opts Options
}

// New creates an Executor.
func New(opts Options) *Executor {
	return &Executor{opts: opts}
}

// Execute performs a against the resolved element. wait_stable ignores the
// element and may be called with nil.
func (x *Executor) Execute(ctx context.Context, a flow.Action, res *resolver.Resolved) (result core.StepResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = core.FailureResult(core.StatusInteractionError,
				core.ErrInteraction.WithCause(fmt.Errorf("panic: %v", r)), "driver panicked during "+a.Describe())
		}
		result.Action = a.Describe()
		if res != nil {
			if res.Target != nil {
				result.Target = res.Target.Name()
			}
			if !res.Locator.IsZero() {
				result.Locator = res.Locator.String()
			}
		}
		result.Duration = time.Since(start)
	}()

	if a.Kind == flow.ActionWaitStable {
		return waitStable(ctx, a.Duration)
	}
	if !a.Kind.IsValid() {
		return core.FailureResult(core.StatusInteractionError,
			core.ErrInteraction.WithMessage(fmt.Sprintf("unknown action %q", a.Kind)), "")
	}
	if res == nil || res.Element == nil {
		return core.FailureResult(core.StatusNotFound, core.ErrElementNotFound, "no element to "+string(a.Kind))
	}
	if err := ctx.Err(); err != nil {
		return core.FailureResult(core.StatusTimeout, core.ErrTimeout.WithCause(err), "")
	}

	el := res.Element
	if a.Kind.Mutating() && !x.opts.SkipImplicitScroll {
		if err := el.ScrollIntoView(); err != nil {
			logger.Debug("implicit scroll before %s failed: %v", a.Kind, err)
		}
	}

	switch a.Kind {
	case flow.ActionScrollIntoView:
		if err := el.ScrollIntoView(); err != nil {
			return failure(err, "scroll into view failed")
		}
		return core.SuccessResult("scrolled into view")

	case flow.ActionType:
		if err := el.Clear(); err != nil {
			return failure(err, "clear failed")
		}
		if err := el.Fill(a.Text); err != nil {
			return failure(err, "type failed")
		}
		return core.SuccessResult(fmt.Sprintf("typed %d chars", len(a.Text)))

	case flow.ActionClick:
		return click(el)
	}

	return core.FailureResult(core.StatusInteractionError,
		core.ErrInteraction.WithMessage(fmt.Sprintf("action %q not supported", a.Kind)), "")
}

// click tries the native click, then the forced click.
func click(el core.Element) core.StepResult {
	nativeErr := el.Click()
	if nativeErr == nil {
		return core.SuccessResult("clicked")
	}
	logger.Debug("native click failed, forcing: %v", nativeErr)

	forceErr := el.ForceClick()
	if forceErr == nil {
		return core.SuccessResult("clicked (forced)")
	}

	joined := errors.Join(nativeErr, forceErr)
	if isTimeout(nativeErr) && isTimeout(forceErr) {
		return core.FailureResult(core.StatusTimeout, core.ErrTimeout.WithCause(joined), "click timed out")
	}
	return core.FailureResult(core.StatusInteractionError,
		core.ErrInteraction.WithCause(joined), "native and forced click both failed")
}

func waitStable(ctx context.Context, d time.Duration) core.StepResult {
	if d <= 0 {
		return core.SuccessResult("nothing to wait for")
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return core.FailureResult(core.StatusTimeout, core.ErrTimeout.WithCause(ctx.Err()), "wait interrupted")
	case <-timer.C:
		return core.SuccessResult(fmt.Sprintf("waited %v", d))
	}
}

// failure maps a driver fault to the step taxonomy.
func failure(err error, msg string) core.StepResult {
	if isTimeout(err) {
		return core.FailureResult(core.StatusTimeout, core.ErrTimeout.WithCause(err), msg)
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) && execErr.Category == core.ErrCategoryInteraction {
		return core.FailureResult(core.StatusInteractionError, execErr, msg)
	}
	return core.FailureResult(core.StatusInteractionError, core.ErrInteraction.WithCause(err), msg)
}

func isTimeout(err error) bool {
	return errors.Is(err, core.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
