package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// MockCall represents a recorded statement run on a mock handle.
type MockCall struct {
	Statement Statement
	Timestamp time.Time
}

// MockHandler produces the result for a statement. Handlers that block must
// honor ctx so that aborts are observable.
type MockHandler func(ctx context.Context, stmt Statement) (*Result, error)

// MockPool is a Pool for tests. It bounds outstanding handles like the real
// pool, records every statement and tracks acquire/release/abort counts.
type MockPool struct {
	mu sync.Mutex

	size           int
	inUse          int
	acquired       int64
	released       int64
	exhausted      int64
	aborts         int64
	calls          []MockCall
	handler        MockHandler
	acquireErr     error
	acquireTimeout time.Duration
	health         types.HealthStatus
	closed         bool
	freed          chan struct{}
}

// NewMockPool creates a mock pool with the given number of handles.
func NewMockPool(size int) *MockPool {
	if size <= 0 {
		size = 1
	}
	return &MockPool{
		size:           size,
		acquireTimeout: 100 * time.Millisecond,
		health:         types.Healthy("mock graph pool"),
		freed:          make(chan struct{}, size),
		handler: func(ctx context.Context, stmt Statement) (*Result, error) {
			return &Result{Keys: []string{}, Records: []Record{}}, nil
		},
	}
}

// SetHandler configures how statements are answered.
func (m *MockPool) SetHandler(h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// SetResult configures every statement to return result.
func (m *MockPool) SetResult(result *Result) {
	m.SetHandler(func(ctx context.Context, stmt Statement) (*Result, error) {
		return result, nil
	})
}

// SetAcquireError configures Acquire to fail.
func (m *MockPool) SetAcquireError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
}

// SetAcquireTimeout configures how long Acquire waits for a free handle.
func (m *MockPool) SetAcquireTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireTimeout = d
}

// SetHealthStatus configures what Health() should return.
func (m *MockPool) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = status
}

// Acquire hands out a handle, failing with RESOURCE_EXHAUSTED when all are in
// use for longer than the acquire timeout.
func (m *MockPool) Acquire(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	deadline := time.NewTimer(m.acquireTimeout)
	m.mu.Unlock()
	defer deadline.Stop()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if m.acquireErr != nil {
			err := m.acquireErr
			m.mu.Unlock()
			return nil, err
		}
		if m.inUse < m.size {
			m.inUse++
			m.acquired++
			m.mu.Unlock()
			return &MockConn{pool: m}, nil
		}
		m.mu.Unlock()

		select {
		case <-m.freed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			m.mu.Lock()
			m.exhausted++
			m.mu.Unlock()
			return nil, types.NewRetryableError(types.RESOURCE_EXHAUSTED,
				fmt.Sprintf("all %d mock connections in use", m.size))
		}
	}
}

// Stats returns a snapshot of pool usage.
func (m *MockPool) Stats() PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return PoolStats{
		Size:      m.size,
		InUse:     m.inUse,
		Acquired:  m.acquired,
		Released:  m.released,
		Exhausted: m.exhausted,
	}
}

// Health returns the configured health status.
func (m *MockPool) Health(ctx context.Context) types.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.Unhealthy("pool closed")
	}
	return m.health
}

// Close marks the pool closed.
func (m *MockPool) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetCalls returns all recorded statements.
func (m *MockPool) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of statements run.
func (m *MockPool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// AbortCount returns how many times Abort was issued on a handle.
func (m *MockPool) AbortCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// InUse returns the number of handles currently acquired.
func (m *MockPool) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse
}

func (m *MockPool) release() {
	m.mu.Lock()
	m.inUse--
	m.released++
	m.mu.Unlock()

	select {
	case m.freed <- struct{}{}:
	default:
	}
}

// MockConn is the handle returned by MockPool.
type MockConn struct {
	pool *MockPool

	mu          sync.Mutex
	cancel      context.CancelFunc
	aborted     bool
	releaseOnce sync.Once
}

// Run records the statement and delegates to the pool's handler.
func (c *MockConn) Run(ctx context.Context, stmt Statement) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return nil, context.Canceled
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.pool.mu.Lock()
	c.pool.calls = append(c.pool.calls, MockCall{Statement: stmt, Timestamp: time.Now()})
	handler := c.pool.handler
	c.pool.mu.Unlock()

	result, err := handler(runCtx, stmt)
	if err != nil {
		return nil, err
	}
	if runCtx.Err() != nil {
		return nil, runCtx.Err()
	}
	return applyRowCap(result, stmt.MaxRows), nil
}

// Abort cancels the running handler.
func (c *MockConn) Abort(ctx context.Context) error {
	c.mu.Lock()
	c.aborted = true
	cancel := c.cancel
	c.mu.Unlock()

	c.pool.mu.Lock()
	c.pool.aborts++
	c.pool.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Release returns the handle to the mock pool. Idempotent.
func (c *MockConn) Release() {
	c.releaseOnce.Do(c.pool.release)
}

// applyRowCap mimics the real handle: records beyond maxRows are counted
// but not returned.
func applyRowCap(result *Result, maxRows int) *Result {
	if result == nil {
		return &Result{}
	}
	out := *result
	if out.Available < len(out.Records) {
		out.Available = len(out.Records)
	}
	if maxRows > 0 && len(out.Records) > maxRows {
		out.Records = out.Records[:maxRows]
		out.Capped = true
	}
	return &out
}

// NewRecord builds a Record from alternating key/value arguments.
func NewRecord(kv ...any) Record {
	rec := Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Keys = append(rec.Keys, kv[i].(string))
		rec.Values = append(rec.Values, kv[i+1])
	}
	return rec
}

// NewResult builds a Result from records, taking keys from the first one.
func NewResult(records ...Record) *Result {
	r := &Result{Records: records, Available: len(records), Keys: []string{}}
	if len(records) > 0 {
		r.Keys = records[0].Keys
	}
	return r
}
