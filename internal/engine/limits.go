package engine

import (
	"fmt"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Limits bounds a single execution. All fields must be positive.
type Limits struct {
	// Timeout applies when a request names none.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxTimeout caps the timeout a request may ask for.
	MaxTimeout time.Duration `json:"max_timeout" yaml:"max_timeout"`
	// ResponseBudget is the serialized size, in bytes, a response may reach.
	ResponseBudget int `json:"response_budget" yaml:"response_budget"`
	// SampleSize is the default number of instances sampled per label and
	// relationship type.
	SampleSize int `json:"sample_size" yaml:"sample_size"`
	// MaxSampleSize caps the sample size a request may ask for.
	MaxSampleSize int `json:"max_sample_size" yaml:"max_sample_size"`
	// MaxRows bounds how many records are materialized per statement.
	MaxRows int `json:"max_rows" yaml:"max_rows"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Timeout:        30 * time.Second,
		MaxTimeout:     2 * time.Minute,
		ResponseBudget: 32 * 1024,
		SampleSize:     100,
		MaxSampleSize:  1000,
		MaxRows:        10000,
	}
}

// Validate checks that every limit is positive and that defaults do not
// exceed their ceilings.
func (l Limits) Validate() error {
	switch {
	case l.Timeout <= 0:
		return invalidLimit("timeout", l.Timeout)
	case l.MaxTimeout <= 0:
		return invalidLimit("max timeout", l.MaxTimeout)
	case l.ResponseBudget <= 0:
		return invalidLimit("response budget", l.ResponseBudget)
	case l.SampleSize <= 0:
		return invalidLimit("sample size", l.SampleSize)
	case l.MaxSampleSize <= 0:
		return invalidLimit("max sample size", l.MaxSampleSize)
	case l.MaxRows <= 0:
		return invalidLimit("max rows", l.MaxRows)
	case l.Timeout > l.MaxTimeout:
		return types.NewError(types.INVALID_REQUEST,
			fmt.Sprintf("timeout %s exceeds max timeout %s", l.Timeout, l.MaxTimeout))
	case l.SampleSize > l.MaxSampleSize:
		return types.NewError(types.INVALID_REQUEST,
			fmt.Sprintf("sample size %d exceeds max sample size %d", l.SampleSize, l.MaxSampleSize))
	}
	return nil
}

func invalidLimit(name string, value any) error {
	return types.NewError(types.INVALID_REQUEST, fmt.Sprintf("%s must be positive, got %v", name, value))
}

// Clamp resolves a requested timeout. Zero selects the default; values
// above the ceiling are lowered to it; negative values are rejected.
func (l Limits) Clamp(requested time.Duration) (time.Duration, error) {
	switch {
	case requested < 0:
		return 0, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("timeout must be positive, got %s", requested))
	case requested == 0:
		return min(l.Timeout, l.MaxTimeout), nil
	default:
		return min(requested, l.MaxTimeout), nil
	}
}

// ClampSampleSize resolves a requested sample size the way Clamp resolves
// timeouts.
func (l Limits) ClampSampleSize(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("sample size must be positive, got %d", requested))
	case requested == 0:
		return min(l.SampleSize, l.MaxSampleSize), nil
	default:
		return min(requested, l.MaxSampleSize), nil
	}
}

// Policy decides which classified queries may run.
type Policy struct {
	// ReadOnlyEnforced rejects Mutating queries before they reach the engine.
	ReadOnlyEnforced bool `json:"read_only_enforced" yaml:"read_only_enforced"`
	// ExplainCheck asks the server to plan read-only queries first and
	// rejects plans that write. Only applies under ReadOnlyEnforced.
	ExplainCheck bool `json:"explain_check" yaml:"explain_check"`
}

// DefaultPolicy enforces read-only execution.
func DefaultPolicy() Policy {
	return Policy{ReadOnlyEnforced: true}
}
