// Package observability provides logging, tracing, metrics and health
// monitoring for cypherguard.
//
// # Logging
//
// TracedLogger wraps log/slog. Every record carries the component name, the
// request ID placed on the context by ContextWithRequestID, and the trace and
// span IDs of the active OpenTelemetry span. Values under sensitive keys
// (password, token, params, ...) are redacted at info level and above; query
// parameters only appear in debug output.
//
//	handler, _ := NewHandler(LoggingConfig{Level: "info", Format: "json"}, os.Stderr)
//	logger := NewTracedLogger(handler, "engine")
//	logger.Info(ctx, "query finished", "rows", 12)
//
// # Tracing
//
// InitTracing installs a global tracer provider exporting over OTLP/gRPC, or
// a provider that records nothing when tracing is disabled:
//
//	tp, err := InitTracing(ctx, TracingConfig{
//	    Enabled:     true,
//	    Provider:    "otlp",
//	    Endpoint:    "localhost:4317",
//	    SampleRate:  1.0,
//	})
//	if err != nil {
//	    return err
//	}
//	defer ShutdownTracing(ctx, tp)
//
// # Metrics
//
// InitMetrics returns a MetricsProvider. With the prometheus provider its
// Handler serves the scrape endpoint; ServeMetrics mounts it on /metrics.
// EngineMetrics holds the cypherguard.* instruments recorded per execution.
//
// # Health
//
// HealthMonitor polls registered HealthCheckers, records the
// cypherguard.health.status gauge and logs state transitions.
package observability
