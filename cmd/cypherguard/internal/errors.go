package internal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Exit code constants for the CLI
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitError indicates a general error
	ExitError = 1
	// ExitPolicyViolation indicates the query was rejected as mutating
	ExitPolicyViolation = 2
	// ExitTimeout indicates the operation timed out
	ExitTimeout = 3
	// ExitCancelled indicates the operation was cancelled
	ExitCancelled = 4
	// ExitInvalidRequest indicates malformed arguments
	ExitInvalidRequest = 5
	// ExitConfigError indicates a configuration error
	ExitConfigError = 10
	// ExitResourceExhausted indicates no connection could be acquired
	ExitResourceExhausted = 11
	// ExitDatabaseError indicates the database failed the query
	ExitDatabaseError = 12
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
	}
}

// HandleError prints err to the command's error output and returns the
// exit code for it.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil && verboseFlagSet(cmd) {
			cmd.PrintErrln("Cause:", cliErr.Cause)
		}
		return cliErr.Code
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		cmd.PrintErrln("Error:", typed.Error())
		if verboseFlagSet(cmd) && len(typed.Details) > 0 {
			cmd.PrintErrln("Details:")
			for _, k := range slices.Sorted(maps.Keys(typed.Details)) {
				cmd.PrintErrf("  %s: %v\n", k, typed.Details[k])
			}
		}
		return ExitCodeFor(typed.Code)
	}

	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	cmd.PrintErrln("Error:", err)
	return ExitError
}

// ExitCodeFor maps an error code to a CLI exit code.
func ExitCodeFor(code types.ErrorCode) int {
	switch code {
	case types.POLICY_VIOLATION:
		return ExitPolicyViolation
	case types.TIMEOUT_EXCEEDED:
		return ExitTimeout
	case types.INVALID_REQUEST:
		return ExitInvalidRequest
	case types.RESOURCE_EXHAUSTED:
		return ExitResourceExhausted
	case types.ENGINE_ERROR:
		return ExitDatabaseError
	case types.CONFIG_LOAD_FAILED, types.CONFIG_VALIDATION_FAILED:
		return ExitConfigError
	default:
		return ExitError
	}
}

func verboseFlagSet(cmd *cobra.Command) bool {
	verboseFlag := cmd.Flag("verbose")
	return verboseFlag != nil && verboseFlag.Changed
}

// IsVerbose checks if verbose mode is enabled via environment variable or flag
// This is used for panic recovery to determine if stack traces should be shown
func IsVerbose() bool {
	if os.Getenv("CYPHERGUARD_VERBOSE") != "" {
		return true
	}

	for _, arg := range os.Args {
		if arg == "-v" || arg == "--verbose" {
			return true
		}
	}

	return false
}
