// Package notify sends the result of a run to the operator.
package notify

import (
	"context"

	"github.com/asimalsarhani/portal-runner/pkg/core"
)

// Outcome is what the notifier reports about a finished run.
type Outcome struct {
	RunID     string
	Portal    string
	URL       string
	Succeeded bool
	State     core.FlowState
	Attempts  int
	ErrorText string   // Captured error text of the last failed attempt
	Warnings  []string // Best-effort post-action failures
}

// Status returns SUCCESS or FAILED.
func (o Outcome) Status() string {
	if o.Succeeded {
		return "SUCCESS"
	}
	return "FAILED"
}

// Notifier dispatches the evidence of a run. Called at most once per run;
// errors are logged by the caller and never change the run result.
type Notifier interface {
	Notify(ctx context.Context, bundle core.EvidenceBundle, outcome Outcome) error
}

// Nop is a Notifier that does nothing. Used when notification is disabled.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, core.EvidenceBundle, Outcome) error { return nil }
