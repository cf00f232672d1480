// Package verify decides whether a state-changing action worked by racing a
// success marker against an error marker within one shared budget.
package verify

import (
	"context"
	"strings"
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/logger"
	"github.com/asimalsarhani/portal-runner/pkg/resolver"
)

// Default race timings.
const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Options configures a Race.
type Options struct {
	PollInterval time.Duration
	// Keywords are scanned in the page text as a secondary error signal,
	// case-insensitively. Empty disables the scan.
	Keywords []string
}

// Race waits for the first of the success marker, the error marker or a
// negative keyword.
type Race struct {
	page     core.Page
	finder   *resolver.Resolver
	interval time.Duration
	keywords []string
}

// New creates a Race over page.
func New(page core.Page, opts Options) *Race {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	keywords := make([]string, 0, len(opts.Keywords))
	for _, k := range opts.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Race{
		page:     page,
		finder:   resolver.New(page, resolver.Options{PollInterval: opts.PollInterval}),
		interval: opts.PollInterval,
		keywords: keywords,
	}
}

// signal is what the polling loop saw when it woke up.
type signal int

const (
	signalNone signal = iota
	signalSuccess
	signalError
	signalKeyword
)

func (s signal) String() string {
	switch s {
	case signalSuccess:
		return "success marker"
	case signalError:
		return "error marker"
	case signalKeyword:
		return "negative keyword"
	default:
		return "nothing"
	}
}

// Await polls both markers and the page text until one of them shows up or
// timeout expires. The wake-up only says that something appeared, so the
// page is checked again before classifying. If the signal is gone by then
// the outcome is Ambiguous.
func (r *Race) Await(ctx context.Context, success, failure *flow.Target, timeout time.Duration) core.Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	for {
		if s := r.observe(success, failure); s != signalNone {
			logger.Debug("verification woke up on %s after %v", s, time.Since(start).Round(time.Millisecond))
			outcome := r.classify(success, failure)
			logger.Info("verification outcome: %s", describe(outcome))
			return outcome
		}

		select {
		case <-ctx.Done():
			logger.Info("verification timed out after %v: neither %s nor %s appeared", timeout, success.Name(), failure.Name())
			return core.Outcome{Kind: core.OutcomeTimedOut}
		case <-time.After(r.interval):
		}
	}
}

// observe is the cheap wake-up check. Success is checked first.
func (r *Race) observe(success, failure *flow.Target) signal {
	if _, ok := r.finder.Find(success, resolver.Visible); ok {
		return signalSuccess
	}
	if _, ok := r.finder.Find(failure, resolver.Visible); ok {
		return signalError
	}
	if kw := r.scanKeywords(); kw != "" {
		return signalKeyword
	}
	return signalNone
}

// classify re-checks the page after a wake-up.
func (r *Race) classify(success, failure *flow.Target) core.Outcome {
	if _, ok := r.finder.Find(success, resolver.Visible); ok {
		return core.Outcome{Kind: core.OutcomeSuccess}
	}
	if res, ok := r.finder.Find(failure, resolver.Visible); ok {
		text, err := res.Element.Text()
		if err != nil {
			logger.Debug("could not read %s text: %v", failure.Name(), err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			text = failure.Name()
		}
		return core.Outcome{Kind: core.OutcomeErrorDetected, Text: text}
	}
	if kw := r.scanKeywords(); kw != "" {
		return core.Outcome{Kind: core.OutcomeErrorDetected, Keyword: kw}
	}
	return core.Outcome{Kind: core.OutcomeAmbiguous}
}

// scanKeywords returns the first negative keyword found in the page text.
func (r *Race) scanKeywords() string {
	if len(r.keywords) == 0 {
		return ""
	}
	text, err := r.page.Text()
	if err != nil {
		logger.Debug("could not read page text: %v", err)
		return ""
	}
	text = strings.ToLower(text)
	for _, k := range r.keywords {
		if strings.Contains(text, k) {
			return k
		}
	}
	return ""
}

func describe(o core.Outcome) string {
	switch {
	case o.Text != "":
		return o.Kind.String() + " (" + o.Text + ")"
	case o.Keyword != "":
		return o.Kind.String() + " (keyword " + o.Keyword + ")"
	default:
		return o.Kind.String()
	}
}
