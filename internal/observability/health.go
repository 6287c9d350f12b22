package observability

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// DefaultCheckTimeout bounds a single component check.
const DefaultCheckTimeout = 5 * time.Second

// HealthChecker is implemented by anything the monitor can probe. The engine
// and the graph pools satisfy it.
type HealthChecker interface {
	Health(ctx context.Context) types.HealthStatus
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) types.HealthStatus

// Health calls f.
func (f HealthCheckerFunc) Health(ctx context.Context) types.HealthStatus {
	return f(ctx)
}

// Observation is the last status recorded for a component.
type Observation struct {
	Status    types.HealthStatus `json:"status" yaml:"status"`
	CheckedAt time.Time          `json:"checked_at" yaml:"checked_at"`
}

type probe struct {
	checker HealthChecker
	last    Observation
	checked bool
}

// HealthMonitor probes registered components, records a health gauge per
// component and logs state transitions. It is safe for concurrent use.
type HealthMonitor struct {
	metrics *EngineMetrics
	logger  *TracedLogger
	timeout time.Duration

	mu     sync.Mutex
	probes map[string]*probe
}

// HealthOption configures a HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithCheckTimeout sets the per-component check timeout. A checker that
// overruns it sees its context cancelled.
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthMonitor) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHealthMonitor creates a monitor. Nil metrics or logger are replaced by
// no-op versions.
func NewHealthMonitor(metrics *EngineMetrics, logger *TracedLogger, opts ...HealthOption) *HealthMonitor {
	if metrics == nil {
		metrics = NewNoopEngineMetrics()
	}
	if logger == nil {
		logger = NewDiscardLogger("health")
	}
	h := &HealthMonitor{
		metrics: metrics,
		logger:  logger,
		timeout: DefaultCheckTimeout,
		probes:  make(map[string]*probe),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a component, replacing any component with the same name.
func (h *HealthMonitor) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = &probe{checker: checker}
}

// Components returns the registered component names in sorted order.
func (h *HealthMonitor) Components() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.probes))
}

// Last returns the most recent observation for name without probing it.
// ok is false when the component is unknown or has not been checked yet.
func (h *HealthMonitor) Last(name string) (obs Observation, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, exists := h.probes[name]
	if !exists || !p.checked {
		return Observation{}, false
	}
	return p.last, true
}

// Check probes a single component.
func (h *HealthMonitor) Check(ctx context.Context, name string) (types.HealthStatus, error) {
	h.mu.Lock()
	p, exists := h.probes[name]
	h.mu.Unlock()
	if !exists {
		return types.HealthStatus{}, fmt.Errorf("component %q is not registered", name)
	}
	return h.probe(ctx, name, p), nil
}

// CheckAll probes every registered component concurrently.
func (h *HealthMonitor) CheckAll(ctx context.Context) map[string]types.HealthStatus {
	h.mu.Lock()
	snapshot := maps.Clone(h.probes)
	h.mu.Unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]types.HealthStatus, len(snapshot))
	)
	for name, p := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := h.probe(ctx, name, p)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Watch probes all components every interval until ctx is done.
func (h *HealthMonitor) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

func (h *HealthMonitor) probe(ctx context.Context, name string, p *probe) types.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	status := p.checker.Health(checkCtx)
	if status.IsHealthy() && ctx.Err() == nil && checkCtx.Err() != nil {
		status = types.Unhealthy(fmt.Sprintf("check exceeded %s", h.timeout))
	}
	cancel()

	h.mu.Lock()
	previous, seen := p.last.Status.State, p.checked
	p.last = Observation{Status: status, CheckedAt: time.Now()}
	p.checked = true
	h.mu.Unlock()

	h.metrics.RecordHealth(ctx, name, status.IsHealthy(), string(status.State))

	// The first observation counts as a transition from unhealthy.
	if !seen {
		previous = types.HealthStateUnhealthy
	}
	if previous != status.State {
		h.logTransition(ctx, name, previous, status)
	}
	return status
}

// logTransition logs a drop from healthy at error level, a return to healthy
// at info level, and anything else at warn level.
func (h *HealthMonitor) logTransition(ctx context.Context, component string, previous types.HealthState, status types.HealthStatus) {
	args := []any{
		"checked_component", component,
		"previous_state", string(previous),
		"current_state", string(status.State),
		"message", status.Message,
	}
	switch {
	case previous == types.HealthStateHealthy:
		h.logger.Error(ctx, "component health degraded", args...)
	case status.State == types.HealthStateHealthy:
		h.logger.Info(ctx, "component health recovered", args...)
	default:
		h.logger.Warn(ctx, "component health state changed", args...)
	}
}
