package core

import (
	"fmt"
)

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone         ErrorCategory = iota // No error
	ErrCategoryNotFound                          // Element never appeared
	ErrCategoryTimeout                           // Operation timed out
	ErrCategoryInteraction                       // Element found but could not be acted on
	ErrCategoryVerification                      // Page signaled failure or could not be classified
	ErrCategoryConfig                            // Invalid configuration, missing required field
	ErrCategoryEnvironment                       // Browser could not start, filesystem not writable
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryInteraction:
		return "interaction"
	case ErrCategoryVerification:
		return "verification"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError with the same code, so copies made by
// WithCause/WithMessage still compare equal to the predefined errors.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryNotFound,
		Code:     "element_not_found",
		Message:  "element not found",
	}

	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}

	ErrInteraction = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "interaction_failed",
		Message:  "element could not be acted on",
	}
	ErrStaleElement = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "stale_element",
		Message:  "element is no longer attached to the page",
	}
	ErrNotInteractable = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "not_interactable",
		Message:  "element is not interactable",
	}

	ErrErrorDetected = &ExecutionError{
		Category: ErrCategoryVerification,
		Code:     "error_detected",
		Message:  "page reported an error",
	}
	ErrAmbiguous = &ExecutionError{
		Category: ErrCategoryVerification,
		Code:     "ambiguous",
		Message:  "neither success nor error marker could be confirmed",
	}

	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}

	ErrSessionStart = &ExecutionError{
		Category: ErrCategoryEnvironment,
		Code:     "session_start_failed",
		Message:  "could not start browser session",
	}
	ErrFilesystem = &ExecutionError{
		Category: ErrCategoryEnvironment,
		Code:     "filesystem",
		Message:  "could not write artifact",
	}
	ErrNotifyDisabled = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "notify_disabled",
		Message:  "notification is not configured",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
