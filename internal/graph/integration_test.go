//go:build integration
// +build integration

package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// setupNeo4j starts a Neo4j container and returns a connected pool.
func setupNeo4j(t *testing.T, ctx context.Context) *Neo4jPool {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithDeadline(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Neo4j container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.URI = fmt.Sprintf("bolt://%s:%s", host, port.Port())
	cfg.Password = ""
	cfg.MaxConnectionPoolSize = 2
	cfg.AcquireTimeout = 500 * time.Millisecond

	pool, err := NewNeo4jPool(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Connect(ctx))
	t.Cleanup(func() {
		_ = pool.Close(context.Background())
	})
	return pool
}

func run(t *testing.T, ctx context.Context, pool Pool, stmt Statement) (*Result, error) {
	t.Helper()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	return conn.Run(ctx, stmt)
}

func TestNeo4jPool_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupNeo4j(t, ctx)

	assert.True(t, pool.Health(ctx).IsHealthy())

	t.Run("write commits", func(t *testing.T) {
		res, err := run(t, ctx, pool, Statement{
			Cypher: "CREATE (:Person {name: $name})-[:KNOWS]->(:Person {name: 'Bob'})",
			Params: map[string]any{"name": "Alice"},
			Mode:   AccessModeWrite,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Summary.Counters.NodesCreated)
		assert.Equal(t, 1, res.Summary.Counters.RelationshipsCreated)
	})

	t.Run("read returns linked path", func(t *testing.T) {
		res, err := run(t, ctx, pool, Statement{
			Cypher: "MATCH p=(:Person)-[:KNOWS]->(:Person) RETURN p",
			Mode:   AccessModeRead,
		})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		p := res.Records[0].Values[0].(*Path)
		require.Len(t, p.Relationships, 1)
		assert.Same(t, p.Nodes[0], p.Relationships[0].Start)
		assert.Equal(t, QueryTypeReadOnly, res.Summary.QueryType)
	})

	t.Run("read mode never persists writes", func(t *testing.T) {
		_, err := run(t, ctx, pool, Statement{
			Cypher: "MATCH (n:Person) SET n.flag = true RETURN n",
			Mode:   AccessModeRead,
		})
		require.Error(t, err)

		res, err := run(t, ctx, pool, Statement{
			Cypher: "MATCH (n:Person) WHERE n.flag IS NOT NULL RETURN count(n) AS c",
			Mode:   AccessModeRead,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Records[0].Values[0])
	})

	t.Run("explain check rejects write plans", func(t *testing.T) {
		_, err := run(t, ctx, pool, Statement{
			Cypher:          "MERGE (n:Person {name: 'Carol'})",
			Mode:            AccessModeRead,
			RequireReadPlan: true,
		})
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.POLICY_VIOLATION))
	})

	t.Run("max rows caps materialization", func(t *testing.T) {
		res, err := run(t, ctx, pool, Statement{
			Cypher:  "UNWIND range(1, 10) AS i RETURN i",
			Mode:    AccessModeRead,
			MaxRows: 3,
		})
		require.NoError(t, err)
		assert.Len(t, res.Records, 3)
		assert.Equal(t, 10, res.Available)
		assert.True(t, res.Capped)
	})

	t.Run("syntax error is an engine error", func(t *testing.T) {
		_, err := run(t, ctx, pool, Statement{Cypher: "MATC (n) RETURN n", Mode: AccessModeRead})
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.ENGINE_ERROR))
	})

	t.Run("exhaustion", func(t *testing.T) {
		c1, err := pool.Acquire(ctx)
		require.NoError(t, err)
		defer c1.Release()
		c2, err := pool.Acquire(ctx)
		require.NoError(t, err)
		defer c2.Release()

		_, err = pool.Acquire(ctx)
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.RESOURCE_EXHAUSTED))
	})

	t.Run("abort stops a long running statement", func(t *testing.T) {
		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		defer conn.Release()

		errCh := make(chan error, 1)
		go func() {
			_, err := conn.Run(ctx, Statement{
				Cypher: "UNWIND range(1, 100000000) AS i WITH i WHERE i < 0 RETURN count(i)",
				Mode:   AccessModeRead,
			})
			errCh <- err
		}()

		time.Sleep(200 * time.Millisecond)
		require.NoError(t, conn.Abort(ctx))

		select {
		case err := <-errCh:
			assert.Error(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("run did not return after abort")
		}
	})
}
