package core

import (
	"time"
)

// StepResult captures the outcome of one Step Executor invocation.
// Never silently discarded; the flow controller always inspects it.
type StepResult struct {
	Status   StepStatus    `json:"status"`
	Action   string        `json:"action,omitempty"`
	Target   string        `json:"target,omitempty"`
	Locator  string        `json:"locator,omitempty"` // Candidate that resolved the target
	Message  string        `json:"message,omitempty"` // Human-readable explanation
	Error    error         `json:"-"`
	Duration time.Duration `json:"duration"`

	// Diagnostic payload: captured page snapshot reference, if any
	Snapshot string `json:"snapshot,omitempty"`
}

// Success returns true if the step succeeded
func (r StepResult) Success() bool {
	return r.Status.IsSuccess()
}

// ErrorText returns the error message or empty string
func (r StepResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// SuccessResult creates a successful StepResult
func SuccessResult(msg string) StepResult {
	return StepResult{Status: StatusSuccess, Message: msg}
}

// FailureResult creates a failed StepResult with the given status
func FailureResult(status StepStatus, err error, msg string) StepResult {
	return StepResult{Status: status, Error: err, Message: msg}
}

// AttemptRecord is the record of one retry attempt.
// Created by the flow controller and never mutated after the attempt ends.
type AttemptRecord struct {
	Index     int           `json:"attempt"`          // 1-based
	Reached   FlowState     `json:"reached"`          // Furthest state reached in this attempt
	Failed    *StepResult   `json:"failed,omitempty"` // Step that failed, nil on success
	Outcome   *Outcome      `json:"outcome,omitempty"`
	Snapshot  string        `json:"snapshot,omitempty"` // Diagnostic screenshot path
	Snippet   string        `json:"snippet,omitempty"`  // Diagnostic page content path
	URL       string        `json:"url,omitempty"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded returns true if the attempt reached verified login
func (a AttemptRecord) Succeeded() bool {
	return a.Failed == nil && (a.Outcome == nil || a.Outcome.IsSuccess())
}

// Reason returns a one-line description of why the attempt failed.
func (a AttemptRecord) Reason() string {
	if a.Outcome != nil && !a.Outcome.IsSuccess() {
		switch {
		case a.Outcome.Text != "":
			return a.Outcome.Kind.String() + ": " + a.Outcome.Text
		case a.Outcome.Keyword != "":
			return a.Outcome.Kind.String() + ": page mentions \"" + a.Outcome.Keyword + "\""
		default:
			return a.Outcome.Kind.String()
		}
	}
	if a.Failed != nil {
		msg := a.Failed.Message
		if msg == "" {
			msg = a.Failed.ErrorText()
		}
		return a.Failed.Status.String() + ": " + msg
	}
	return ""
}

// PostActionReport is the best-effort outcome of one post-login step.
type PostActionReport struct {
	Name     string     `json:"name"`
	Required bool       `json:"required"`
	Result   StepResult `json:"result"`
}
