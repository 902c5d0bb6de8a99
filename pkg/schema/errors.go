package schema

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
	ErrCodeExpression     = "EXPRESSION_ERROR"
	ErrCodeTrace          = "TRACE_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeCancelled      = "CANCELLED"
)

// DojoError is the structured error type for all engine operations.
type DojoError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Node    string         `json:"node,omitempty"`
	Cause   error          `json:"-"`
}

func (e *DojoError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DojoError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DojoError.
func NewError(code, message string) *DojoError {
	return &DojoError{Code: code, Message: message}
}

// NewErrorf creates a new DojoError with a formatted message.
func NewErrorf(code, format string, args ...any) *DojoError {
	return &DojoError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the name of the node that produced the error.
func (e *DojoError) WithNode(node string) *DojoError {
	e.Node = node
	return e
}

// WithCause attaches an underlying cause.
func (e *DojoError) WithCause(err error) *DojoError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DojoError) WithDetails(details map[string]any) *DojoError {
	e.Details = details
	return e
}

// IsRetryable classifies whether an execute-phase error should be retried.
// Context cancellation means the run is shutting down and is never retried.
// Typed validation and misconfiguration errors are programming errors, not
// transient failures. Everything else is retryable and the retry policy
// bounds the attempts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var de *DojoError
	if errors.As(err, &de) {
		switch de.Code {
		case ErrCodeValidation, ErrCodeNotFound, ErrCodeConflict, ErrCodeCancelled:
			return false
		}
	}
	return true
}
