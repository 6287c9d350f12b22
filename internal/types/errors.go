package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for cypherguard errors.
type ErrorCode string

// Execution error codes. These form the taxonomy returned to callers of
// run_query and get_schema.
const (
	POLICY_VIOLATION   ErrorCode = "POLICY_VIOLATION"
	TIMEOUT_EXCEEDED   ErrorCode = "TIMEOUT_EXCEEDED"
	ENGINE_ERROR       ErrorCode = "ENGINE_ERROR"
	RESOURCE_EXHAUSTED ErrorCode = "RESOURCE_EXHAUSTED"
	INVALID_REQUEST    ErrorCode = "INVALID_REQUEST"
	SHAPING_FAILED     ErrorCode = "SHAPING_FAILED"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Telemetry error codes
const (
	TELEMETRY_EXPORTER_FAILED ErrorCode = "TELEMETRY_EXPORTER_FAILED"
	TELEMETRY_SHUTDOWN_FAILED ErrorCode = "TELEMETRY_SHUTDOWN_FAILED"
)

// Error represents a structured error with error code, message, and optional cause.
// Details carries machine-readable context such as elapsed time for timeouts or
// the engine status code for engine failures.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]any
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// WithDetail attaches a key/value pair to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewError creates a new non-retryable Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable Error with the given code and message.
// Use this for conditions a caller may clear by backing off, such as pool exhaustion.
func NewRetryableError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable Error that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err carries a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// HasCode reports whether err's chain contains an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}
