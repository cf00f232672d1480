// Package report writes the JSON record of a run.
//
// Layout in the output directory:
//   - report.json: run summary with the full attempt history
//   - report.html: optional human-readable rendering with embedded screenshots
//   - attempt-NN-<tag>.png/.html, evidence-NN.png: artifacts referenced by path
package report

import (
	"time"

	"github.com/asimalsarhani/portal-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the run status.
type Status string

// Status values.
const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// StatusOf maps a flow state to a report status.
func StatusOf(state core.FlowState) Status {
	switch state {
	case core.StateSucceeded:
		return StatusPassed
	case core.StateFailed:
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Report is the content of report.json.
type Report struct {
	Version   string         `json:"version"`
	RunID     string         `json:"runId"`
	Status    Status         `json:"status"`
	State     core.FlowState `json:"state"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  int64          `json:"duration"` // milliseconds

	Portal PortalInfo `json:"portal"`
	Runner RunnerInfo `json:"runner"`

	Attempts    []core.AttemptRecord    `json:"attempts"`
	PostActions []core.PostActionReport `json:"postActions,omitempty"`
	Evidence    Evidence                `json:"evidence"`

	ErrorText   string `json:"error,omitempty"`
	Notified    bool   `json:"notified"`
	NotifyError string `json:"notifyError,omitempty"`
}

// PortalInfo identifies the portal that was driven.
type PortalInfo struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	SourcePath string `json:"sourcePath,omitempty"` // Empty for the built-in portal
}

// RunnerInfo contains portal-runner information.
type RunnerInfo struct {
	Version     string `json:"version"`
	Driver      string `json:"driver"` // playwright, mock
	MaxAttempts int    `json:"maxAttempts"`
	Headless    bool   `json:"headless"`
}

// Evidence is the serialized evidence bundle.
type Evidence struct {
	Screenshots []string `json:"screenshots"`
	Summary     string   `json:"summary"`
}

// EvidenceOf converts a bundle.
func EvidenceOf(b core.EvidenceBundle) Evidence {
	return Evidence{Screenshots: b.Screenshots(), Summary: b.Summary()}
}

// Passed returns true if the run succeeded.
func (r *Report) Passed() bool {
	return r.Status == StatusPassed
}
