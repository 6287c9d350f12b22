package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

func TestMockPool_AcquireRelease(t *testing.T) {
	pool := NewMockPool(2)
	ctx := context.Background()

	c1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	c2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InUse())

	c1.Release()
	c1.Release() // idempotent
	assert.Equal(t, 1, pool.InUse())

	c2.Release()
	stats := pool.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, int64(2), stats.Acquired)
	assert.Equal(t, int64(2), stats.Released)
}

func TestMockPool_Exhausted(t *testing.T) {
	pool := NewMockPool(1)
	pool.SetAcquireTimeout(20 * time.Millisecond)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	_, err = pool.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.RESOURCE_EXHAUSTED))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, int64(1), pool.Stats().Exhausted)
}

func TestMockPool_WaiterGetsReleasedHandle(t *testing.T) {
	pool := NewMockPool(1)
	pool.SetAcquireTimeout(time.Second)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		held.Release()
	}()

	next, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	next.Release()
}

func TestMockConn_Run(t *testing.T) {
	pool := NewMockPool(1)
	pool.SetResult(NewResult(
		NewRecord("n", int64(1)),
		NewRecord("n", int64(2)),
		NewRecord("n", int64(3)),
	))

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	res, err := conn.Run(context.Background(), Statement{Cypher: "UNWIND [1,2,3] AS n RETURN n", MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 3, res.Available)
	assert.True(t, res.Capped)

	calls := pool.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "UNWIND [1,2,3] AS n RETURN n", calls[0].Statement.Cypher)
}

func TestMockConn_AbortCancelsRun(t *testing.T) {
	pool := NewMockPool(1)
	started := make(chan struct{})
	pool.SetHandler(func(ctx context.Context, stmt Statement) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Run(context.Background(), Statement{Cypher: "CALL apoc.util.sleep(10000)"})
		errCh <- err
	}()

	<-started
	require.NoError(t, conn.Abort(context.Background()))

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Abort")
	}
	assert.Equal(t, int64(1), pool.AbortCount())
}

func TestMockPool_Closed(t *testing.T) {
	pool := NewMockPool(1)
	require.NoError(t, pool.Close(context.Background()))

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.False(t, pool.Health(context.Background()).IsHealthy())
}
