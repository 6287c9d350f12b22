package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Metric names.
const (
	MetricQueries            = "cypherguard.queries"
	MetricQueryDuration      = "cypherguard.query.duration"
	MetricQueryTimeouts      = "cypherguard.query.timeouts"
	MetricPolicyViolations   = "cypherguard.policy.violations"
	MetricResponsesTruncated = "cypherguard.responses.truncated"
	MetricPoolExhausted      = "cypherguard.pool.exhausted"
	MetricSchemaInspections  = "cypherguard.schema.inspections"
	MetricHealthStatus       = "cypherguard.health.status"
)

// OutcomeOK labels successful executions; failures are labelled with their
// error code.
const OutcomeOK = "ok"

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := types.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "unknown"
}

// MetricsProvider is an initialized meter provider. Handler is non-nil when
// the provider exposes a scrape endpoint.
type MetricsProvider struct {
	metric.MeterProvider
	Handler  http.Handler
	shutdown func(context.Context) error
}

// Shutdown flushes and stops the provider.
func (p *MetricsProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	if err := p.shutdown(ctx); err != nil {
		return types.WrapError(types.TELEMETRY_SHUTDOWN_FAILED, "failed to shutdown meter provider", err)
	}
	return nil
}

// InitMetrics initializes a meter provider based on the configuration.
//
// For "prometheus" the exporter registers into a private registry and
// Handler serves it in the Prometheus text format. "noop" and a disabled
// configuration return a provider that records nothing.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{MeterProvider: noop.NewMeterProvider()}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "invalid metrics config", err)
	}

	switch strings.ToLower(cfg.Provider) {
	case "prometheus":
		return initPrometheusProvider()
	case "noop":
		return &MetricsProvider{MeterProvider: noop.NewMeterProvider()}, nil
	default:
		return nil, types.NewError(types.TELEMETRY_EXPORTER_FAILED, fmt.Sprintf("unsupported metrics provider: %s", cfg.Provider))
	}
}

func initPrometheusProvider() (*MetricsProvider, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "failed to create prometheus exporter", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	return &MetricsProvider{
		MeterProvider: provider,
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown:      provider.Shutdown,
	}, nil
}

// ServeMetrics serves handler on /metrics at port until ctx is done.
func ServeMetrics(ctx context.Context, port int, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// EngineMetrics holds the instruments recorded by the execution engine and
// the health monitor. All methods are safe for concurrent use.
type EngineMetrics struct {
	queries          metric.Int64Counter
	duration         metric.Float64Histogram
	timeouts         metric.Int64Counter
	policyViolations metric.Int64Counter
	truncated        metric.Int64Counter
	poolExhausted    metric.Int64Counter
	inspections      metric.Int64Counter
	health           metric.Float64Gauge
}

// NewEngineMetrics creates the instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.queries, err = meter.Int64Counter(MetricQueries,
		metric.WithDescription("Queries executed, by classification and outcome"))
	collect(err)
	m.duration, err = meter.Float64Histogram(MetricQueryDuration,
		metric.WithDescription("Query execution time"), metric.WithUnit("ms"))
	collect(err)
	m.timeouts, err = meter.Int64Counter(MetricQueryTimeouts,
		metric.WithDescription("Queries aborted at their deadline"))
	collect(err)
	m.policyViolations, err = meter.Int64Counter(MetricPolicyViolations,
		metric.WithDescription("Queries rejected by the read-only policy"))
	collect(err)
	m.truncated, err = meter.Int64Counter(MetricResponsesTruncated,
		metric.WithDescription("Responses truncated to the size budget"))
	collect(err)
	m.poolExhausted, err = meter.Int64Counter(MetricPoolExhausted,
		metric.WithDescription("Requests that found no free connection"))
	collect(err)
	m.inspections, err = meter.Int64Counter(MetricSchemaInspections,
		metric.WithDescription("Schema inspections, by outcome"))
	collect(err)
	m.health, err = meter.Float64Gauge(MetricHealthStatus,
		metric.WithDescription("1 when a component is healthy, 0 otherwise"))
	collect(err)

	if len(errs) > 0 {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "failed to register instruments", errors.Join(errs...))
	}
	return m, nil
}

// NewNoopEngineMetrics returns instruments that record nothing.
func NewNoopEngineMetrics() *EngineMetrics {
	m, _ := NewEngineMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
	return m
}

// RecordQuery records one finished execution.
func (m *EngineMetrics) RecordQuery(ctx context.Context, operation, classification string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		AttrOperation.String(operation),
		AttrClassification.String(classification),
		AttrOutcome.String(Outcome(err)),
	)
	m.queries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

	switch types.CodeOf(err) {
	case types.TIMEOUT_EXCEEDED:
		m.timeouts.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation)))
	case types.POLICY_VIOLATION:
		m.policyViolations.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation)))
	case types.RESOURCE_EXHAUSTED:
		m.poolExhausted.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation)))
	}
}

// RecordTruncation records a response cut to fit its budget.
func (m *EngineMetrics) RecordTruncation(ctx context.Context) {
	m.truncated.Add(ctx, 1)
}

// RecordInspection records one schema inspection.
func (m *EngineMetrics) RecordInspection(ctx context.Context, sampleSize int, err error) {
	m.inspections.Add(ctx, 1, metric.WithAttributes(
		AttrSampleSize.Int(sampleSize),
		AttrOutcome.String(Outcome(err)),
	))
}

// RecordHealth records the health of component.
func (m *EngineMetrics) RecordHealth(ctx context.Context, component string, healthy bool, state string) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.health.Record(ctx, value, metric.WithAttributes(
		AttrComponent.String(component),
		AttrHealthState.String(state),
	))
}
