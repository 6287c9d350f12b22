package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/config"
	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// backend is the engine and everything it depends on, built from the
// loaded configuration.
type backend struct {
	logger  *observability.TracedLogger
	pool    graph.Pool
	engine  *engine.Engine
	monitor *observability.HealthMonitor
	metrics *observability.MetricsProvider
	tracing *sdktrace.TracerProvider
	closers []io.Closer
}

// openPool connects to the configured database. Tests replace it.
var openPool = func(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (graph.Pool, error) {
	pool, err := graph.NewNeo4jPool(cfg.GraphConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := pool.Connect(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

// openBackend initializes logging, telemetry and the connection pool, and
// builds the engine over them. Close must be called on success.
func openBackend(ctx context.Context, cfg *config.Config, stderr io.Writer) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	logOut, err := b.logOutput(cfg.Logging.Output, stderr)
	if err != nil {
		return nil, err
	}
	handler, err := observability.NewHandler(cfg.Logging, logOut)
	if err != nil {
		return nil, internal.WrapError(internal.ExitConfigError, "invalid logging configuration", err)
	}
	b.logger = observability.NewTracedLogger(handler, "cypherguard")

	b.tracing, err = observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	b.metrics, err = observability.InitMetrics(ctx, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	engineMetrics, err := observability.NewEngineMetrics(b.metrics.Meter(observability.InstrumentationName))
	if err != nil {
		return nil, err
	}

	b.pool, err = openPool(ctx, cfg.Neo4j, b.logger.Slog())
	if err != nil {
		return nil, internal.WrapError(internal.ExitDatabaseError,
			fmt.Sprintf("cannot connect to %s", cfg.Neo4j.URI), err)
	}

	opts := append(cfg.EngineOptions(),
		engine.WithLogger(b.logger),
		engine.WithTracer(b.tracing.Tracer(observability.InstrumentationName)),
		engine.WithMetrics(engineMetrics),
	)
	b.engine, err = engine.New(b.pool, opts...)
	if err != nil {
		return nil, err
	}

	b.monitor = observability.NewHealthMonitor(engineMetrics, b.logger,
		observability.WithCheckTimeout(cfg.Neo4j.ConnectionTimeout))
	b.monitor.Register("neo4j", b.engine)

	b.logger.Debug(ctx, "backend ready",
		"uri", cfg.Neo4j.URI,
		"database", cfg.Neo4j.Database,
		"read_only", cfg.Policy.ReadOnly,
	)
	return b, nil
}

func (b *backend) logOutput(output string, stderr io.Writer) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, internal.WrapError(internal.ExitConfigError, "cannot open log file", err)
	}
	b.closers = append(b.closers, f)
	return f, nil
}

// Close releases the pool and flushes telemetry.
func (b *backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if b.pool != nil {
		errs = append(errs, b.pool.Close(ctx))
	}
	if b.metrics != nil {
		errs = append(errs, b.metrics.Shutdown(ctx))
	}
	errs = append(errs, observability.ShutdownTracing(ctx, b.tracing))
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
