package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

func newTestMetrics(t *testing.T) (*EngineMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewEngineMetrics(provider.Meter(InstrumentationName))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInitMetrics_Disabled(t *testing.T) {
	p, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p.Handler)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitMetrics_Prometheus(t *testing.T) {
	p, err := InitMetrics(context.Background(), MetricsConfig{Enabled: true, Provider: "prometheus", Port: 9464})
	require.NoError(t, err)
	require.NotNil(t, p.Handler)
	defer func() { assert.NoError(t, p.Shutdown(context.Background())) }()

	m, err := NewEngineMetrics(p.Meter(InstrumentationName))
	require.NoError(t, err)
	m.RecordQuery(context.Background(), "run_query", "read_only", 5*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cypherguard_queries")
}

func TestInitMetrics_InvalidProvider(t *testing.T) {
	_, err := InitMetrics(context.Background(), MetricsConfig{Enabled: true, Provider: "statsd", Port: 1})
	require.Error(t, err)
	assert.Equal(t, types.TELEMETRY_EXPORTER_FAILED, types.CodeOf(err))
}

func TestEngineMetrics_RecordQuery(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordQuery(ctx, "run_query", "read_only", time.Millisecond, nil)
	m.RecordQuery(ctx, "run_query", "read_only", time.Second, types.NewError(types.TIMEOUT_EXCEEDED, "deadline"))
	m.RecordQuery(ctx, "run_query", "mutating", 0, types.NewError(types.POLICY_VIOLATION, "write"))
	m.RecordQuery(ctx, "run_query", "read_only", 0, types.NewRetryableError(types.RESOURCE_EXHAUSTED, "busy"))
	m.RecordTruncation(ctx)

	got := collect(t, reader)
	assert.Equal(t, int64(4), sumOf(t, got[MetricQueries]))
	assert.Equal(t, int64(1), sumOf(t, got[MetricQueryTimeouts]))
	assert.Equal(t, int64(1), sumOf(t, got[MetricPolicyViolations]))
	assert.Equal(t, int64(1), sumOf(t, got[MetricPoolExhausted]))
	assert.Equal(t, int64(1), sumOf(t, got[MetricResponsesTruncated]))

	hist, ok := got[MetricQueryDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)
}

func TestEngineMetrics_Inspection(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordInspection(context.Background(), 10, nil)
	m.RecordInspection(context.Background(), 10, types.NewError(types.ENGINE_ERROR, "down"))

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got[MetricSchemaInspections]))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, "timeout_exceeded", Outcome(types.NewError(types.TIMEOUT_EXCEEDED, "x")))
	assert.Equal(t, "unknown", Outcome(io.EOF))
}

func TestNewNoopEngineMetrics(t *testing.T) {
	m := NewNoopEngineMetrics()
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.RecordQuery(context.Background(), "run_query", "read_only", time.Second, nil)
		m.RecordHealth(context.Background(), "neo4j", true, "healthy")
	})
}

func TestServeMetrics_StopsOnCancel(t *testing.T) {
	p, err := InitMetrics(context.Background(), MetricsConfig{Enabled: true, Provider: "prometheus", Port: 9464})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(ctx, 0, p.Handler) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMetrics did not return after cancel")
	}
}
