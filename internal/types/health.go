package types

import (
	"fmt"
	"time"
)

// HealthState is the coarse health of a component.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// IsValid reports whether s is one of the defined states.
func (s HealthState) IsValid() bool {
	switch s {
	case HealthStateHealthy, HealthStateDegraded, HealthStateUnhealthy:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler, rejecting unknown
// states.
func (s *HealthState) UnmarshalText(text []byte) error {
	state := HealthState(text)
	if !state.IsValid() {
		return fmt.Errorf("invalid health state: %q", text)
	}
	*s = state
	return nil
}

// HealthStatus reports the state of a component at a point in time.
type HealthStatus struct {
	State     HealthState `json:"state" yaml:"state"`
	Message   string      `json:"message,omitempty" yaml:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at" yaml:"checked_at"`
}

// NewHealthStatus creates a HealthStatus stamped with the current time.
func NewHealthStatus(state HealthState, message string) HealthStatus {
	return HealthStatus{
		State:     state,
		Message:   message,
		CheckedAt: time.Now(),
	}
}

// Healthy creates a new HealthStatus with HealthStateHealthy state.
func Healthy(message string) HealthStatus {
	return NewHealthStatus(HealthStateHealthy, message)
}

// Degraded creates a new HealthStatus with HealthStateDegraded state.
func Degraded(message string) HealthStatus {
	return NewHealthStatus(HealthStateDegraded, message)
}

// Unhealthy creates a new HealthStatus with HealthStateUnhealthy state.
func Unhealthy(message string) HealthStatus {
	return NewHealthStatus(HealthStateUnhealthy, message)
}

// IsHealthy returns true if the health state is healthy.
func (h HealthStatus) IsHealthy() bool {
	return h.State == HealthStateHealthy
}
