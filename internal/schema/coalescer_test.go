package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedInspector struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedInspector) Inspect(ctx context.Context, sampleSize int) (*Summary, error) {
	g.calls.Add(1)
	<-g.release
	return &Summary{Sampling: Sampling{SampleSize: sampleSize}}, nil
}

func TestCoalescer_SharesInFlightInspection(t *testing.T) {
	inner := &gatedInspector{release: make(chan struct{})}
	c := NewCoalescer(inner)

	var wg sync.WaitGroup
	results := make([]*Summary, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Inspect(context.Background(), 10)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, s := range results[1:] {
		assert.Same(t, results[0], s)
	}
}

func TestCoalescer_DoesNotCache(t *testing.T) {
	inner := &gatedInspector{release: make(chan struct{})}
	close(inner.release)
	c := NewCoalescer(inner)

	_, err := c.Inspect(context.Background(), 10)
	require.NoError(t, err)
	_, err = c.Inspect(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCoalescer_DistinctSampleSizes(t *testing.T) {
	inner := &gatedInspector{release: make(chan struct{})}
	close(inner.release)
	c := NewCoalescer(inner)

	a, err := c.Inspect(context.Background(), 5)
	require.NoError(t, err)
	b, err := c.Inspect(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, 5, a.Sampling.SampleSize)
	assert.Equal(t, 50, b.Sampling.SampleSize)
}

func TestCoalescer_CallerCancellation(t *testing.T) {
	inner := &gatedInspector{release: make(chan struct{})}
	defer close(inner.release)
	c := NewCoalescer(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Inspect(ctx, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
