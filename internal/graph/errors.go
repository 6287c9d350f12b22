package graph

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = types.NewError(types.ENGINE_ERROR, "connection pool is closed")

// ErrReadPlanRequired is returned when a statement that must be read-only is
// planned, or observed, as a write.
var ErrReadPlanRequired = types.NewError(types.POLICY_VIOLATION, "statement is not read-only")

// mapDriverError converts a driver error into the engine error taxonomy.
// The engine's message is passed through unchanged as the cause.
func mapDriverError(message string, err error) error {
	if err == nil {
		return nil
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}

	// Cancellation is reported by the caller, which knows whether a deadline
	// or an explicit abort triggered it.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	wrapped := types.WrapError(types.ENGINE_ERROR, message, err)

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		wrapped.WithDetail("neo4j_code", neoErr.Code)
		wrapped.WithDetail("classification", neoErr.Classification())
		return wrapped
	}
	if neo4j.IsConnectivityError(err) {
		wrapped.WithDetail("classification", "Connectivity")
		return wrapped
	}
	if neo4j.IsUsageError(err) {
		wrapped.WithDetail("classification", "Usage")
	}
	return wrapped
}
