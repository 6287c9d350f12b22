package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/cypherguard/internal/cypher"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// DefaultAbortGrace bounds how long a timed-out execution waits for its
// aborted transaction to wind down before returning.
const DefaultAbortGrace = 2 * time.Second

// Request is one query submitted for execution. Params are copied when the
// request is accepted.
type Request struct {
	Text   string
	Params map[string]any
	// Timeout of zero selects Limits.Timeout.
	Timeout time.Duration
}

// Outcome is a successful execution. Rows are bounded by Limits.MaxRows;
// Available counts every row the server produced.
type Outcome struct {
	RequestID      string
	Classification cypher.Classification
	Mode           graph.AccessMode
	Keys           []string
	Rows           []graph.Record
	Available      int
	Capped         bool
	Summary        graph.Summary
	Elapsed        time.Duration
}

// execution is one pass through the pipeline. consume runs while the
// connection handle is still held.
type execution struct {
	op      string
	req     Request
	limits  Limits
	policy  Policy
	consume func(ctx context.Context, out *Outcome) error
}

type runResult struct {
	res *graph.Result
	err error
}

// Execute classifies req, enforces policy, and runs it on a pooled handle
// bounded by the resolved timeout. On timeout the transaction is aborted
// and no rows are returned. The handle is released on every path.
func (e *Engine) Execute(ctx context.Context, req Request, limits Limits, policy Policy) (*Outcome, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return e.execute(ctx, execution{op: OpExecute, req: req, limits: limits, policy: policy})
}

func (e *Engine) execute(ctx context.Context, x execution) (out *Outcome, err error) {
	start := time.Now()
	requestID := uuid.NewString()
	ctx = observability.ContextWithRequestID(ctx, requestID)

	analysis := cypher.Analyze(x.req.Text)
	class := analysis.Classification

	ctx, span := e.tracer.Start(ctx, observability.SpanExecute, trace.WithAttributes(
		observability.ExecutionAttributes(requestID, x.op, class.String(), len(analysis.Statements))...,
	))
	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(observability.ErrorAttributes(err)...)
			e.logFailure(ctx, x.op, class, elapsed, err)
		} else {
			span.SetAttributes(observability.AttrRows.Int(len(out.Rows)), observability.AttrAvailable.Int(out.Available))
			e.logger.Debug(ctx, "query finished",
				"operation", x.op,
				"classification", class.String(),
				"rows", len(out.Rows),
				"available", out.Available,
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
		span.End()
		e.metrics.RecordQuery(ctx, x.op, class.String(), elapsed, err)
	}()

	timeout, err := x.limits.Clamp(x.req.Timeout)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttrTimeoutMs.Int64(timeout.Milliseconds()))

	e.logger.Debug(ctx, "query accepted",
		"operation", x.op,
		"classification", class.String(),
		"reason", analysis.Reason,
		"timeout_ms", timeout.Milliseconds(),
		"param_keys", slices.Sorted(maps.Keys(x.req.Params)),
	)

	if strings.TrimSpace(x.req.Text) == "" {
		return nil, types.NewError(types.INVALID_REQUEST, "query text is empty")
	}

	if class == cypher.Mutating && x.policy.ReadOnlyEnforced {
		return nil, types.NewError(types.POLICY_VIOLATION,
			fmt.Sprintf("mutating query rejected in read-only mode: %s", analysis.Reason)).
			WithDetail("classification", class.String())
	}

	if e.limiter != nil && !e.limiter.Allow() {
		return nil, types.NewRetryableError(types.RESOURCE_EXHAUSTED, "execution rate limit exceeded")
	}

	mode := graph.AccessModeRead
	if class == cypher.Mutating {
		mode = graph.AccessModeWrite
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, acquireError(err)
	}

	handedOff := false
	defer func() {
		if !handedOff {
			conn.Release()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = types.NewError(types.ENGINE_ERROR, fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	stmt := graph.Statement{
		Cypher:          x.req.Text,
		Params:          maps.Clone(x.req.Params),
		Mode:            mode,
		Timeout:         timeout,
		MaxRows:         x.limits.MaxRows,
		RequireReadPlan: mode == graph.AccessModeRead && x.policy.ReadOnlyEnforced && x.policy.ExplainCheck,
		Metadata: map[string]any{
			"app":        "cypherguard",
			"operation":  x.op,
			"request_id": requestID,
		},
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	done := make(chan runResult, 1)
	runStart := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: types.NewError(types.ENGINE_ERROR, fmt.Sprintf("connection panicked: %v", r))}
			}
		}()
		res, err := conn.Run(runCtx, stmt)
		done <- runResult{res: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, runError(r.err, timeout, time.Since(runStart))
		}
		res := r.res
		if res == nil {
			res = &graph.Result{}
		}
		out = &Outcome{
			RequestID:      requestID,
			Classification: class,
			Mode:           mode,
			Keys:           res.Keys,
			Rows:           res.Records,
			Available:      max(res.Available, len(res.Records)),
			Capped:         res.Capped,
			Summary:        res.Summary,
			Elapsed:        time.Since(start),
		}
		if x.consume != nil {
			if err := consumeGuarded(ctx, x.consume, out); err != nil {
				return nil, err
			}
		}
		return out, nil

	case <-timer.C:
		handedOff = e.abort(ctx, conn, cancelRun, done)
		return nil, timeoutError(timeout, time.Since(runStart))

	case <-ctx.Done():
		handedOff = e.abort(ctx, conn, cancelRun, done)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout, time.Since(runStart))
		}
		return nil, fmt.Errorf("query cancelled: %w", ctx.Err())
	}
}

// consumeGuarded runs fn, turning a panic into SHAPING_FAILED.
func consumeGuarded(ctx context.Context, fn func(context.Context, *Outcome) error, out *Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.SHAPING_FAILED, fmt.Sprintf("response shaping panicked: %v", r))
		}
	}()
	return fn(ctx, out)
}

// abort cancels the run, asks the handle to roll back, and waits up to the
// grace period for the worker. If the worker is still running afterwards
// the handle is released by the worker when it returns, and abort reports
// true.
func (e *Engine) abort(ctx context.Context, conn graph.Conn, cancelRun context.CancelFunc, done <-chan runResult) bool {
	cancelRun()

	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.abortGrace())
	defer cancel()

	if err := conn.Abort(abortCtx); err != nil {
		e.logger.Warn(ctx, "abort failed", "error", err)
	}

	select {
	case <-done:
		return false
	default:
	}

	select {
	case <-done:
		return false
	case <-abortCtx.Done():
		e.logger.Warn(ctx, "aborted query still running after grace period, release deferred")
		go func() {
			<-done
			conn.Release()
		}()
		return true
	}
}

func (e *Engine) abortGrace() time.Duration {
	if e.grace > 0 {
		return e.grace
	}
	return DefaultAbortGrace
}

func (e *Engine) logFailure(ctx context.Context, op string, class cypher.Classification, elapsed time.Duration, err error) {
	args := []any{
		"operation", op,
		"classification", class.String(),
		"code", string(types.CodeOf(err)),
		"elapsed_ms", elapsed.Milliseconds(),
		"error", err.Error(),
	}
	switch types.CodeOf(err) {
	case types.POLICY_VIOLATION, types.INVALID_REQUEST:
		e.logger.Info(ctx, "query rejected", args...)
	case types.TIMEOUT_EXCEEDED, types.RESOURCE_EXHAUSTED:
		e.logger.Warn(ctx, "query did not complete", args...)
	default:
		e.logger.Error(ctx, "query failed", args...)
	}
}

func timeoutError(timeout, elapsed time.Duration) error {
	return types.NewError(types.TIMEOUT_EXCEEDED,
		fmt.Sprintf("query exceeded timeout of %s", timeout)).
		WithDetail("timeout_ms", timeout.Milliseconds()).
		WithDetail("elapsed_ms", elapsed.Milliseconds())
}

// runError maps a failed run into the error taxonomy. Server-side
// transaction timeouts count as TIMEOUT_EXCEEDED.
func runError(err error, timeout, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) || isServerTimeout(err) {
		return timeoutError(timeout, elapsed)
	}
	if types.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("query cancelled: %w", err)
	}
	return types.WrapError(types.ENGINE_ERROR, "query failed", err)
}

func isServerTimeout(err error) bool {
	var typed *types.Error
	if !errors.As(err, &typed) {
		return false
	}
	code, _ := typed.Details["neo4j_code"].(string)
	return strings.Contains(code, "TransactionTimedOut")
}

func acquireError(err error) error {
	if types.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	return types.WrapError(types.ENGINE_ERROR, "acquiring connection", err)
}
