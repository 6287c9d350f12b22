package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

func TestDefaultLimits_Valid(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())
	assert.True(t, DefaultPolicy().ReadOnlyEnforced)
	assert.False(t, DefaultPolicy().ExplainCheck)
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
	}{
		{name: "zero timeout", mutate: func(l *Limits) { l.Timeout = 0 }},
		{name: "negative max timeout", mutate: func(l *Limits) { l.MaxTimeout = -time.Second }},
		{name: "zero budget", mutate: func(l *Limits) { l.ResponseBudget = 0 }},
		{name: "zero sample size", mutate: func(l *Limits) { l.SampleSize = 0 }},
		{name: "zero max sample size", mutate: func(l *Limits) { l.MaxSampleSize = 0 }},
		{name: "zero max rows", mutate: func(l *Limits) { l.MaxRows = 0 }},
		{name: "timeout above ceiling", mutate: func(l *Limits) { l.Timeout = 3 * time.Minute }},
		{name: "sample size above ceiling", mutate: func(l *Limits) { l.SampleSize = 5000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			err := l.Validate()
			require.Error(t, err)
			assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))
		})
	}
}

func TestLimits_Clamp(t *testing.T) {
	l := DefaultLimits()

	got, err := l.Clamp(0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, got)

	got, err = l.Clamp(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got)

	got, err = l.Clamp(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, got)

	_, err = l.Clamp(-time.Millisecond)
	assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))
}

func TestLimits_ClampSampleSize(t *testing.T) {
	l := DefaultLimits()

	got, err := l.ClampSampleSize(0)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	got, err = l.ClampSampleSize(25)
	require.NoError(t, err)
	assert.Equal(t, 25, got)

	got, err = l.ClampSampleSize(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, 1000, got)

	_, err = l.ClampSampleSize(-1)
	assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))
}
