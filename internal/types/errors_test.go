package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "simple error without cause",
			err:  NewError(POLICY_VIOLATION, "mutating query rejected"),
			contains: []string{
				"[POLICY_VIOLATION]",
				"mutating query rejected",
			},
		},
		{
			name: "error with cause",
			err:  WrapError(ENGINE_ERROR, "query execution failed", errors.New("Neo.ClientError.Statement.SyntaxError")),
			contains: []string{
				"[ENGINE_ERROR]",
				"query execution failed",
				"SyntaxError",
			},
		},
		{
			name: "retryable error",
			err:  NewRetryableError(RESOURCE_EXHAUSTED, "connection pool exhausted"),
			contains: []string{
				"[RESOURCE_EXHAUSTED]",
				"connection pool exhausted",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errMsg := tt.err.Error()
			for _, substring := range tt.contains {
				if !strings.Contains(errMsg, substring) {
					t.Errorf("Error() = %v, want to contain %v", errMsg, substring)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := WrapError(ENGINE_ERROR, "connectivity lost", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not find the wrapped cause")
	}
	if NewError(INVALID_REQUEST, "empty").Unwrap() != nil {
		t.Error("Unwrap() on error without cause should be nil")
	}
}

func TestError_Is(t *testing.T) {
	baseErr := NewError(TIMEOUT_EXCEEDED, "query timed out")
	sameCodeErr := NewError(TIMEOUT_EXCEEDED, "different message")
	differentCodeErr := NewError(ENGINE_ERROR, "engine failed")
	standardErr := errors.New("standard error")

	tests := []struct {
		name   string
		err    *Error
		target error
		want   bool
	}{
		{"same error code matches", baseErr, sameCodeErr, true},
		{"different error code does not match", baseErr, differentCodeErr, false},
		{"standard error does not match", baseErr, standardErr, false},
		{"wrapped error with same code matches", WrapError(TIMEOUT_EXCEEDED, "wrapped", standardErr), baseErr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Is(tt.target); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRetryableError(t *testing.T) {
	err := NewRetryableError(RESOURCE_EXHAUSTED, "no free connection")

	if !err.Retryable {
		t.Error("Retryable = false, want true")
	}
	if !IsRetryable(fmt.Errorf("outer: %w", err)) {
		t.Error("IsRetryable() should see through fmt wrapping")
	}
	if IsRetryable(NewError(POLICY_VIOLATION, "never retried")) {
		t.Error("POLICY_VIOLATION must not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("run_query: %w", NewError(POLICY_VIOLATION, "write rejected"))

	if got := CodeOf(wrapped); got != POLICY_VIOLATION {
		t.Errorf("CodeOf() = %v, want %v", got, POLICY_VIOLATION)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %v, want empty", got)
	}
	if !HasCode(wrapped, POLICY_VIOLATION) {
		t.Error("HasCode() = false, want true")
	}
	if HasCode(wrapped, ENGINE_ERROR) {
		t.Error("HasCode() matched the wrong code")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := NewError(TIMEOUT_EXCEEDED, "query exceeded 2s").
		WithDetail("elapsed", 2*time.Second).
		WithDetail("timeout", 2*time.Second)

	if len(err.Details) != 2 {
		t.Fatalf("Details has %d entries, want 2", len(err.Details))
	}
	if err.Details["elapsed"] != 2*time.Second {
		t.Errorf("Details[elapsed] = %v", err.Details["elapsed"])
	}
}
