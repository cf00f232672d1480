package core

import "fmt"

// StepStatus is the outcome of a single Step Executor invocation.
type StepStatus int

const (
	StatusSuccess          StepStatus = iota // Action performed
	StatusNotFound                           // Target never appeared
	StatusTimeout                            // Target appeared too late or the driver timed out
	StatusInteractionError                   // Target found but could not be acted on
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusTimeout:
		return "timeout"
	case StatusInteractionError:
		return "interaction_error"
	default:
		return "unknown"
	}
}

// IsSuccess returns true if the step succeeded
func (s StepStatus) IsSuccess() bool {
	return s == StatusSuccess
}

// FlowState is the state of the login flow state machine.
// Only the flow controller mutates it.
type FlowState int

const (
	StateInit FlowState = iota
	StateNavigating
	StateAuthenticating
	StateAwaitingVerification
	StatePostAction
	StateSucceeded
	StateFailed
)

// String returns the string representation of FlowState
func (s FlowState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNavigating:
		return "navigating"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StatePostAction:
		return "post_action"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Succeeded and Failed
func (s FlowState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether the state machine allows moving from s to next.
// Transitions only go forward, except the retry edge back to Init.
func (s FlowState) CanTransition(next FlowState) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StateInit:
		return s == StateNavigating || s == StateAuthenticating || s == StateAwaitingVerification
	case StateFailed:
		return true
	case StateSucceeded:
		return s == StatePostAction
	default:
		return next == s+1
	}
}

// OutcomeKind classifies the result of a verification race.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeErrorDetected
	OutcomeAmbiguous
	OutcomeTimedOut
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeErrorDetected:
		return "error_detected"
	case OutcomeAmbiguous:
		return "ambiguous"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of waiting for a success or error signal.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Text    string      `json:"text,omitempty"`    // Error text captured from the page
	Keyword string      `json:"keyword,omitempty"` // Negative keyword that matched, if any
}

// IsSuccess returns true if the race observed the success signal.
// Ambiguous is a failure.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// Tag returns a short file-name friendly label for the outcome.
func (o Outcome) Tag() string {
	return o.Kind.String()
}

// MarshalText encodes the status by name.
func (s StepStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *StepStatus) UnmarshalText(b []byte) error {
	for v := StatusSuccess; v <= StatusInteractionError; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown step status %q", b)
}

// MarshalText encodes the state by name.
func (s FlowState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *FlowState) UnmarshalText(b []byte) error {
	for v := StateInit; v <= StateFailed; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown flow state %q", b)
}

// MarshalText encodes the outcome kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes an outcome kind name.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for v := OutcomeSuccess; v <= OutcomeTimedOut; v++ {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}
