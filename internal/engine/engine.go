// Package engine runs Cypher queries for untrusted callers. Every execution
// is classified, checked against the read-only policy, bounded by a timeout
// with active abort, and shaped to a response size budget before the
// connection handle is released.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/cypherguard/internal/cypher"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
	"github.com/zero-day-ai/cypherguard/internal/schema"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Operation names used in logs, spans and metrics.
const (
	OpExecute      = "execute"
	OpRunQuery     = "run_query"
	OpWriteQuery   = "write_query"
	OpGetSchema    = "get_schema"
	OpSchemaSample = "schema_sample"
)

// Engine executes requests against a connection pool. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	pool    graph.Pool
	limits  Limits
	policy  Policy
	limiter *rate.Limiter
	grace   time.Duration

	samplerConcurrency int
	coalesce           bool
	inspector          schema.Inspector

	logger  *observability.TracedLogger
	tracer  trace.Tracer
	metrics *observability.EngineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits sets the limits applied to run_query, write_query and get_schema.
func WithLimits(l Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithPolicy sets the execution policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithRateLimit admits at most perSecond executions per second with the
// given burst. Requests over the limit fail with RESOURCE_EXHAUSTED.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Engine) {
		if perSecond > 0 && burst > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithAbortGrace bounds how long a timed-out execution waits for the
// aborted transaction to stop before returning.
func WithAbortGrace(d time.Duration) Option {
	return func(e *Engine) {
		e.grace = d
	}
}

// WithSamplerConcurrency bounds parallel schema sampling queries.
func WithSamplerConcurrency(n int) Option {
	return func(e *Engine) {
		e.samplerConcurrency = n
	}
}

// WithCoalescing shares one sampling battery between concurrent get_schema
// calls with the same sample size.
func WithCoalescing(enabled bool) Option {
	return func(e *Engine) {
		e.coalesce = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *observability.TracedLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an Engine over pool.
func New(pool graph.Pool, opts ...Option) (*Engine, error) {
	if pool == nil {
		return nil, types.NewError(types.INVALID_REQUEST, "engine requires a connection pool")
	}
	e := &Engine{
		pool:               pool,
		limits:             DefaultLimits(),
		policy:             DefaultPolicy(),
		samplerConcurrency: schema.DefaultConcurrency,
		logger:             observability.NewDiscardLogger("engine"),
		tracer:             observability.Tracer(),
		metrics:            observability.NewNoopEngineMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.limits.Validate(); err != nil {
		return nil, fmt.Errorf("engine limits: %w", err)
	}

	var inspector schema.Inspector = schema.NewSampler(
		schema.RunnerFunc(e.runSample),
		schema.WithConcurrency(e.samplerConcurrency),
		schema.WithLogger(e.logger.Slog()),
	)
	if e.coalesce {
		inspector = schema.NewCoalescer(inspector)
	}
	e.inspector = inspector

	return e, nil
}

// Limits returns the configured limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Policy returns the configured policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Classify returns the classification of text with a per-statement
// explanation. It does not contact the database.
func (e *Engine) Classify(text string) cypher.Analysis {
	return cypher.Analyze(text)
}

// Health reports the health of the underlying pool. A reachable pool with
// every handle in use is degraded, since new requests will wait for one.
func (e *Engine) Health(ctx context.Context) types.HealthStatus {
	status := e.pool.Health(ctx)
	if !status.IsHealthy() {
		return status
	}
	if stats := e.pool.Stats(); stats.Size > 0 && stats.InUse >= stats.Size {
		return types.Degraded(fmt.Sprintf("all %d connections in use", stats.Size))
	}
	return status
}

// Stats returns a snapshot of pool usage.
func (e *Engine) Stats() graph.PoolStats {
	return e.pool.Stats()
}
