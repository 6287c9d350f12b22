package observability

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// switchableChecker reports whatever status was last stored.
type switchableChecker struct {
	mu     sync.Mutex
	status types.HealthStatus
	calls  atomic.Int32
}

func (c *switchableChecker) set(s types.HealthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

func (c *switchableChecker) Health(ctx context.Context) types.HealthStatus {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func TestHealthMonitor_RegisterAndCheckAll(t *testing.T) {
	m := NewHealthMonitor(nil, nil)
	m.Register("neo4j", HealthCheckerFunc(func(context.Context) types.HealthStatus {
		return types.Healthy("ok")
	}))
	m.Register("pool", HealthCheckerFunc(func(context.Context) types.HealthStatus {
		return types.Degraded("45/50 in use")
	}))

	results := m.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["neo4j"].IsHealthy())
	assert.Equal(t, types.HealthStateDegraded, results["pool"].State)
	assert.Equal(t, []string{"neo4j", "pool"}, m.Components())
}

func TestHealthMonitor_CheckUnknown(t *testing.T) {
	m := NewHealthMonitor(nil, nil)
	_, err := m.Check(context.Background(), "missing")
	assert.ErrorContains(t, err, "not registered")
}

func TestHealthMonitor_Last(t *testing.T) {
	m := NewHealthMonitor(nil, nil)
	m.Register("neo4j", &switchableChecker{status: types.Degraded("all 4 connections in use")})

	_, ok := m.Last("neo4j")
	assert.False(t, ok, "no observation before the first check")
	_, ok = m.Last("missing")
	assert.False(t, ok)

	before := time.Now()
	_, err := m.Check(context.Background(), "neo4j")
	require.NoError(t, err)

	obs, ok := m.Last("neo4j")
	require.True(t, ok)
	assert.Equal(t, types.HealthStateDegraded, obs.Status.State)
	assert.False(t, obs.CheckedAt.Before(before))
}

func TestHealthMonitor_CheckTimeout(t *testing.T) {
	m := NewHealthMonitor(nil, nil, WithCheckTimeout(10*time.Millisecond))
	m.Register("neo4j", HealthCheckerFunc(func(ctx context.Context) types.HealthStatus {
		<-ctx.Done()
		return types.Healthy("late")
	}))

	status, err := m.Check(context.Background(), "neo4j")
	require.NoError(t, err)
	assert.Equal(t, types.HealthStateUnhealthy, status.State)
	assert.Contains(t, status.Message, "check exceeded 10ms")
}

func TestHealthMonitor_StateChangeLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewTracedLogger(NewJSONHandler(buf, slog.LevelDebug), "health")
	m := NewHealthMonitor(nil, logger)

	checker := &switchableChecker{status: types.Healthy("ok")}
	m.Register("neo4j", checker)

	ctx := context.Background()
	_, err := m.Check(ctx, "neo4j")
	require.NoError(t, err)
	_, err = m.Check(ctx, "neo4j")
	require.NoError(t, err)

	checker.set(types.Unhealthy("connection refused"))
	_, err = m.Check(ctx, "neo4j")
	require.NoError(t, err)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "component health recovered", entries[0]["msg"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "component health degraded", entries[1]["msg"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "neo4j", entries[1]["checked_component"])
}

func TestHealthMonitor_GaugeMetrics(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	m := NewHealthMonitor(metrics, nil)
	m.Register("neo4j", &switchableChecker{status: types.Healthy("ok")})

	_, err := m.Check(context.Background(), "neo4j")
	require.NoError(t, err)

	got := collect(t, reader)
	gauge, ok := got[MetricHealthStatus].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 1.0, gauge.DataPoints[0].Value)
}

func TestHealthMonitor_Watch(t *testing.T) {
	m := NewHealthMonitor(nil, nil)
	checker := &switchableChecker{status: types.Healthy("ok")}
	m.Register("neo4j", checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestHealthMonitor_ConcurrentAccess(t *testing.T) {
	m := NewHealthMonitor(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"a", "b", "c"}[i%3]
			m.Register(name, &switchableChecker{status: types.Healthy("")})
			m.CheckAll(context.Background())
			_, _ = m.Check(context.Background(), name)
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Components(), 3)
}
