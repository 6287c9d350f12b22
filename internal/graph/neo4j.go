package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/semaphore"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Neo4jPool implements Pool on top of the Neo4j driver. The driver keeps its
// own socket pool; Neo4jPool bounds the number of handles outstanding so that
// exhaustion surfaces as RESOURCE_EXHAUSTED instead of an unbounded wait.
type Neo4jPool struct {
	config Config
	driver neo4j.DriverWithContext
	slots  *semaphore.Weighted
	logger *slog.Logger

	inUse     atomic.Int64
	acquired  atomic.Int64
	released  atomic.Int64
	exhausted atomic.Int64
	closed    atomic.Bool
}

// NewNeo4jPool creates a pool with the given configuration.
// The pool must be connected via Connect() before use.
func NewNeo4jPool(cfg Config, logger *slog.Logger) (*Neo4jPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Neo4jPool{
		config: cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConnectionPoolSize)),
		logger: logger.With("component", "graph.pool"),
	}, nil
}

// Connect creates the driver and verifies connectivity.
// Uses exponential backoff for connection retries.
func (p *Neo4jPool) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(p.config.Username, p.config.Password, "")
	if p.config.Password == "" {
		auth = neo4j.NoAuth()
	}

	driverConfig := func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = p.config.MaxConnectionPoolSize
		c.ConnectionAcquisitionTimeout = p.config.AcquireTimeout
		c.SocketConnectTimeout = p.config.ConnectionTimeout
		c.MaxConnectionLifetime = p.config.MaxConnectionLifetime
		if p.config.FetchSize > 0 {
			c.FetchSize = p.config.FetchSize
		}
		if p.config.UserAgent != "" {
			c.UserAgent = p.config.UserAgent
		}
	}

	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(p.config.URI, auth, driverConfig)
		if err == nil {
			verifyCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
			err = driver.VerifyConnectivity(verifyCtx)
			cancel()
			if err == nil {
				p.driver = driver
				p.logger.Info("connected to neo4j", "uri", p.config.URI, "database", p.config.Database)
				return nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		if ctx.Err() != nil {
			return types.WrapError(types.ENGINE_ERROR, "connection attempt cancelled", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > p.config.ConnectionTimeout {
			delay = p.config.ConnectionTimeout
		}
		p.logger.Warn("neo4j connection attempt failed", "attempt", attempt+1, "retry_in", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.WrapError(types.ENGINE_ERROR, "connection attempt cancelled", ctx.Err())
		}
	}

	return types.WrapError(types.ENGINE_ERROR,
		fmt.Sprintf("failed to connect after %d attempts", maxRetries), lastErr)
}

// Acquire reserves a handle, waiting at most AcquireTimeout.
func (p *Neo4jPool) Acquire(ctx context.Context) (Conn, error) {
	if p.closed.Load() || p.driver == nil {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()

	if err := p.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.exhausted.Add(1)
		return nil, types.NewRetryableError(types.RESOURCE_EXHAUSTED,
			fmt.Sprintf("no connection available within %s", p.config.AcquireTimeout)).
			WithDetail("pool_size", p.config.MaxConnectionPoolSize)
	}

	p.inUse.Add(1)
	p.acquired.Add(1)

	return &neo4jConn{pool: p}, nil
}

// Stats returns a snapshot of pool usage.
func (p *Neo4jPool) Stats() PoolStats {
	return PoolStats{
		Size:      p.config.MaxConnectionPoolSize,
		InUse:     int(p.inUse.Load()),
		Acquired:  p.acquired.Load(),
		Released:  p.released.Load(),
		Exhausted: p.exhausted.Load(),
	}
}

// Health returns the current health status of the Neo4j connection.
func (p *Neo4jPool) Health(ctx context.Context) types.HealthStatus {
	if p.driver == nil || p.closed.Load() {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}

	stats := p.Stats()
	if stats.InUse >= stats.Size {
		return types.Degraded(fmt.Sprintf("all %d connections in use", stats.Size))
	}
	return types.Healthy("connected to Neo4j")
}

// Close releases all resources and closes the driver.
func (p *Neo4jPool) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) || p.driver == nil {
		return nil
	}
	if err := p.driver.Close(ctx); err != nil {
		return types.WrapError(types.ENGINE_ERROR, "failed to close driver", err)
	}
	return nil
}

func (p *Neo4jPool) release() {
	p.inUse.Add(-1)
	p.released.Add(1)
	p.slots.Release(1)
}

// neo4jConn is a single-use handle. Run owns the session and transaction;
// Abort only cancels Run's context, which makes the driver drop the in-flight
// request and Run roll the transaction back before returning.
type neo4jConn struct {
	pool *Neo4jPool

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
	done    chan struct{}

	releaseOnce sync.Once
}

// Run executes stmt in one explicit transaction.
func (c *neo4jConn) Run(ctx context.Context, stmt Statement) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return nil, context.Canceled
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	defer close(done)

	mode := neo4j.AccessModeRead
	if stmt.Mode == AccessModeWrite {
		mode = neo4j.AccessModeWrite
	}

	session := c.pool.driver.NewSession(runCtx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.pool.config.Database,
		FetchSize:    c.pool.config.FetchSize,
	})
	defer func() {
		closeCtx, closeCancel := c.graceContext(ctx)
		defer closeCancel()
		_ = session.Close(closeCtx)
	}()

	var txOpts []func(*neo4j.TransactionConfig)
	if stmt.Timeout > 0 {
		txOpts = append(txOpts, neo4j.WithTxTimeout(stmt.Timeout))
	}
	if len(stmt.Metadata) > 0 {
		txOpts = append(txOpts, neo4j.WithTxMetadata(stmt.Metadata))
	}

	tx, err := session.BeginTransaction(runCtx, txOpts...)
	if err != nil {
		return nil, mapDriverError("failed to begin transaction", err)
	}

	result, err := c.runInTx(runCtx, tx, stmt)
	if err != nil || stmt.Mode == AccessModeRead {
		// Read statements never commit, so a misclassified write cannot persist.
		rbCtx, rbCancel := c.graceContext(ctx)
		defer rbCancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && err == nil {
			c.pool.logger.Debug("rollback of read transaction failed", "error", rbErr)
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := tx.Commit(runCtx); err != nil {
		return nil, mapDriverError("failed to commit transaction", err)
	}
	return result, nil
}

func (c *neo4jConn) runInTx(ctx context.Context, tx neo4j.ExplicitTransaction, stmt Statement) (*Result, error) {
	if stmt.RequireReadPlan {
		qt, err := explain(ctx, tx, stmt)
		if err != nil {
			return nil, err
		}
		if qt != QueryTypeReadOnly {
			return nil, types.WrapError(types.POLICY_VIOLATION,
				fmt.Sprintf("planner reports query type %q", qt), ErrReadPlanRequired).
				WithDetail("query_type", string(qt))
		}
	}

	res, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, mapDriverError("query execution failed", err)
	}

	keys, err := res.Keys()
	if err != nil {
		return nil, mapDriverError("failed to read result columns", err)
	}

	out := &Result{Keys: keys, Records: make([]Record, 0, minInt(stmt.MaxRows, 64))}
	for res.Next(ctx) {
		out.Available++
		if stmt.MaxRows > 0 && len(out.Records) >= stmt.MaxRows {
			out.Capped = true
			continue
		}
		out.Records = append(out.Records, convertRecord(res.Record()))
	}
	if err := res.Err(); err != nil {
		return nil, mapDriverError("failed to stream results", err)
	}

	summary, err := res.Consume(ctx)
	if err != nil {
		return nil, mapDriverError("failed to consume result summary", err)
	}
	out.Summary = convertSummary(summary)

	if stmt.Mode == AccessModeRead && out.Summary.Counters.ContainsUpdates() {
		return nil, types.WrapError(types.POLICY_VIOLATION,
			"read statement performed updates; rolled back", ErrReadPlanRequired)
	}
	return out, nil
}

// explain plans the statement inside tx and returns the planner's query type.
func explain(ctx context.Context, tx neo4j.ExplicitTransaction, stmt Statement) (QueryType, error) {
	cypher := strings.TrimSpace(stmt.Cypher)
	res, err := tx.Run(ctx, "EXPLAIN "+cypher, stmt.Params)
	if err != nil {
		return QueryTypeUnknown, mapDriverError("failed to explain query", err)
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return QueryTypeUnknown, mapDriverError("failed to explain query", err)
	}
	return convertStatementType(summary.StatementType()), nil
}

// Abort cancels the in-flight run and waits up to the grace period for the
// rollback to complete.
func (c *neo4jConn) Abort(ctx context.Context) error {
	c.mu.Lock()
	c.aborted = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	graceCtx, graceCancel := c.graceContext(ctx)
	defer graceCancel()

	select {
	case <-done:
		return nil
	case <-graceCtx.Done():
		return errors.New("transaction rollback did not complete within grace period")
	}
}

// Release returns the handle's slot to the pool.
func (c *neo4jConn) Release() {
	c.releaseOnce.Do(c.pool.release)
}

// graceContext returns a context that survives cancellation of parent for
// the configured abort grace, for cleanup work after a cancelled run.
func (c *neo4jConn) graceContext(parent context.Context) (context.Context, context.CancelFunc) {
	grace := c.pool.config.AbortGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(parent), grace)
}

func minInt(a, b int) int {
	if a <= 0 || a > b {
		return b
	}
	return a
}
