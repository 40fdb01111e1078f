package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Diagnostic error codes
const (
	ErrConfiguration  ErrorCode = "CONFIGURATION"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrAccess         ErrorCode = "ACCESS"
	ErrResource       ErrorCode = "RESOURCE"
	ErrInitialization ErrorCode = "INITIALIZATION"
	ErrEvaluation     ErrorCode = "EVALUATION"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// Lifecycle error codes
const (
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrDisposed       ErrorCode = "DISPOSED"
	ErrStageOrder     ErrorCode = "STAGE_ORDER"
)

// Error represents a structured diagnostic error with code, origin, and
// remediation metadata. Every failure surfaced by the engine is carried in
// this shape: never discarded silently, always either returned or logged.
type Error struct {
	Code          ErrorCode     `json:"code"`
	Message       string        `json:"message"`
	Component     Component     `json:"component,omitempty"`
	Operation     string        `json:"operation,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
	Suggestions   []string      `json:"suggestions,omitempty"`
	Retryable     bool          `json:"retryable"`
	Cause         error         `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	scope := ""
	if e.Component != "" {
		scope = string(e.Component)
		if e.Operation != "" {
			scope += "/" + e.Operation
		}
		scope += ": "
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s%s: %v", e.Code, scope, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s%s", e.Code, scope, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now()}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithComponent records which component raised the error.
func (e *Error) WithComponent(c Component) *Error {
	e.Component = c
	return e
}

// WithOperation records the operation that was running.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithExecutionTime records how long the operation ran before failing.
func (e *Error) WithExecutionTime(d time.Duration) *Error {
	e.ExecutionTime = d
	return e
}

// WithSuggestions attaches remediation suggestions.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from an error chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}
