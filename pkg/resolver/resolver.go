// Package resolver finds page elements for logical targets.
//
// A target carries an ordered list of locator candidates. The resolver polls
// each candidate for a slice of the overall budget and returns the first one
// whose element satisfies the caller's readiness predicate. Not finding an
// element is a reported outcome, never an error.
package resolver

import (
	"context"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
)

// Default resolver timings.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultMaxSlice     = 2 * time.Second
)

// Predicate reports whether an element is ready for the caller.
// An error means the element went away or could not be inspected; the
// resolver treats it as "not ready yet".
type Predicate func(core.Element) (bool, error)

// Present accepts any element attached to the DOM.
func Present(core.Element) (bool, error) { return true, nil }

// Visible accepts elements that are rendered and visible.
func Visible(e core.Element) (bool, error) { return e.IsVisible() }

// Interactable accepts visible, enabled elements.
func Interactable(e core.Element) (bool, error) {
	visible, err := e.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	return e.IsEnabled()
}

// Options configures a Resolver.
type Options struct {
	DefaultTimeout time.Duration // Used when neither caller nor target sets one
	PollInterval   time.Duration
	MaxSlice       time.Duration // Upper bound on one candidate's slice per pass
}

// Resolved is the element found for a target.
type Resolved struct {
	Target         *flow.Target
	Locator        flow.Locator // Candidate that matched
	CandidateIndex int
	Element        core.Element
	Matches        int // Number of elements the candidate matched
}

// Resolver polls a page for targets.
type Resolver struct {
	page core.Page
	opts Options
}

// New creates a Resolver over page.
func New(page core.Page, opts Options) *Resolver {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxSlice <= 0 {
		opts.MaxSlice = DefaultMaxSlice
	}
	return &Resolver{page: page, opts: opts}
}

// Resolve finds the first candidate of target whose element satisfies ready.
// timeout <= 0 falls back to the target's timeout, then the resolver default.
// Each candidate is polled for its slice in declaration order; passes repeat
// until the total budget is spent. Returns false if nothing matched.
func (r *Resolver) Resolve(ctx context.Context, target *flow.Target, timeout time.Duration, ready Predicate) (*Resolved, bool) {
	if ready == nil {
		ready = Present
	}
	timeout = r.effectiveTimeout(target, timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	candidates := target.Candidates()
	slice := r.sliceFor(timeout, len(candidates))

	for pass := 1; ; pass++ {
		for i, loc := range candidates {
			remaining := time.Until(deadline)
			if remaining <= 0 || ctx.Err() != nil {
				logger.Debug("%s not found within %v (%d passes)", target.Describe(), timeout, pass)
				return nil, false
			}
			budget := slice
			if remaining < budget {
				budget = remaining
			}
			if res := r.pollCandidate(ctx, loc, budget, ready); res != nil {
				res.Target = target
				res.CandidateIndex = i
				logger.Debug("%s resolved via %s (candidate %d, pass %d)", target.Name(), loc, i+1, pass)
				return res, true
			}
		}
	}
}

// Find is a single non-blocking check of every candidate in order.
func (r *Resolver) Find(target *flow.Target, ready Predicate) (*Resolved, bool) {
	if ready == nil {
		ready = Present
	}
	for i, loc := range target.Candidates() {
		if res := r.check(loc, ready); res != nil {
			res.Target = target
			res.CandidateIndex = i
			return res, true
		}
	}
	return nil, false
}

func (r *Resolver) effectiveTimeout(target *flow.Target, timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if target.Timeout() > 0 {
		return target.Timeout()
	}
	return r.opts.DefaultTimeout
}

// sliceFor splits the budget evenly across candidates, bounded by MaxSlice
// and never shorter than one poll interval.
func (r *Resolver) sliceFor(timeout time.Duration, n int) time.Duration {
	if n <= 0 {
		return timeout
	}
	slice := timeout / time.Duration(n)
	if slice > r.opts.MaxSlice {
		slice = r.opts.MaxSlice
	}
	if slice < r.opts.PollInterval {
		slice = r.opts.PollInterval
	}
	return slice
}

// pollCandidate polls one locator until it satisfies ready or budget expires.
func (r *Resolver) pollCandidate(ctx context.Context, loc flow.Locator, budget time.Duration, ready Predicate) *Resolved {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for {
		if res := r.check(loc, ready); res != nil {
			return res
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.opts.PollInterval):
		}
	}
}

// check queries loc once and picks the first element, in document order, that
// satisfies ready. More than one match is logged as ambiguous.
func (r *Resolver) check(loc flow.Locator, ready Predicate) *Resolved {
	elems, err := r.page.Query(loc)
	if err != nil {
		logger.Debug("query %s failed: %v", loc, err)
		return nil
	}

	for idx, e := range elems {
		ok, err := ready(e)
		if err != nil || !ok {
			continue
		}
		if len(elems) > 1 {
			logger.Warn("ambiguous locator %s: %d matches, using match %d in document order", loc, len(elems), idx+1)
		}
		return &Resolved{Locator: loc, Element: e, Matches: len(elems)}
	}
	return nil
}
