package graph

import (
	"context"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// AccessMode selects how a statement's transaction is opened and finished.
type AccessMode int

const (
	// AccessModeRead runs on a read session and always ends in rollback.
	AccessModeRead AccessMode = iota
	// AccessModeWrite runs on a write session and commits on success.
	AccessModeWrite
)

// String returns "read" or "write".
func (m AccessMode) String() string {
	if m == AccessModeWrite {
		return "write"
	}
	return "read"
}

// Statement is a single query submitted to a connection handle.
type Statement struct {
	Cypher string
	Params map[string]any
	Mode   AccessMode

	// Timeout is forwarded to the server as the transaction timeout.
	// Zero leaves the server default in place.
	Timeout time.Duration

	// MaxRows bounds how many records are materialized. Records beyond
	// the cap are counted but not kept. Zero means unbounded.
	MaxRows int

	// RequireReadPlan makes the handle EXPLAIN the statement inside the same
	// transaction first and reject plans that are not read-only.
	RequireReadPlan bool

	// Metadata is attached to the transaction for server-side query listing.
	Metadata map[string]any
}

// Record is one result row. Keys and Values are parallel slices.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value for key.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// AsMap returns the record as a column name to value map.
func (r Record) AsMap() map[string]any {
	m := make(map[string]any, len(r.Keys))
	for i, k := range r.Keys {
		m[k] = r.Values[i]
	}
	return m
}

// Result is the materialized outcome of a Statement.
type Result struct {
	Keys    []string
	Records []Record

	// Available is the number of records the server produced, including
	// those dropped because of MaxRows.
	Available int

	// Capped is true when Available exceeds len(Records).
	Capped bool

	Summary Summary
}

// QueryType is the planner's classification of a statement.
type QueryType string

const (
	QueryTypeUnknown     QueryType = ""
	QueryTypeReadOnly    QueryType = "r"
	QueryTypeReadWrite   QueryType = "rw"
	QueryTypeWriteOnly   QueryType = "w"
	QueryTypeSchemaWrite QueryType = "s"
)

// Summary provides metadata about query execution.
type Summary struct {
	QueryType            QueryType     `json:"query_type,omitempty"`
	Counters             Counters      `json:"counters"`
	ResultAvailableAfter time.Duration `json:"result_available_after"`
	ResultConsumedAfter  time.Duration `json:"result_consumed_after"`
	Database             string        `json:"database,omitempty"`
}

// Counters reports the updates a statement performed.
type Counters struct {
	NodesCreated         int `json:"nodes_created,omitempty"`
	NodesDeleted         int `json:"nodes_deleted,omitempty"`
	RelationshipsCreated int `json:"relationships_created,omitempty"`
	RelationshipsDeleted int `json:"relationships_deleted,omitempty"`
	PropertiesSet        int `json:"properties_set,omitempty"`
	LabelsAdded          int `json:"labels_added,omitempty"`
	LabelsRemoved        int `json:"labels_removed,omitempty"`
	IndexesAdded         int `json:"indexes_added,omitempty"`
	IndexesRemoved       int `json:"indexes_removed,omitempty"`
	ConstraintsAdded     int `json:"constraints_added,omitempty"`
	ConstraintsRemoved   int `json:"constraints_removed,omitempty"`
	SystemUpdates        int `json:"system_updates,omitempty"`
}

// ContainsUpdates reports whether any counter is non-zero.
func (c Counters) ContainsUpdates() bool {
	return c != Counters{}
}

// Pool hands out connection handles. Implementations must be safe for
// concurrent use; the number of handles outstanding at once is bounded.
type Pool interface {
	// Acquire blocks until a handle is free, the acquisition timeout elapses
	// (RESOURCE_EXHAUSTED) or ctx is done.
	Acquire(ctx context.Context) (Conn, error)

	// Stats returns a snapshot of pool usage.
	Stats() PoolStats

	// Health returns the current health status of the graph connection.
	Health(ctx context.Context) types.HealthStatus

	// Close releases all resources held by the pool.
	Close(ctx context.Context) error
}

// Conn is a handle that runs exactly one bounded transaction.
type Conn interface {
	// Run executes the statement in its own transaction. Cancelling ctx
	// aborts the transaction on the server.
	Run(ctx context.Context, stmt Statement) (*Result, error)

	// Abort actively rolls back the in-flight transaction, if any.
	// Safe to call from another goroutine while Run is blocked.
	Abort(ctx context.Context) error

	// Release returns the handle to its pool. Idempotent.
	Release()
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size      int   `json:"size"`
	InUse     int   `json:"in_use"`
	Acquired  int64 `json:"acquired"`
	Released  int64 `json:"released"`
	Exhausted int64 `json:"exhausted"`
}

// Config contains configuration options for the Neo4j connection pool.
type Config struct {
	// URI is the connection URI for the graph database.
	//   - "bolt://host:port" for unencrypted connections
	//   - "bolt+s://host:port" for TLS encrypted connections
	//   - "neo4j://" or "neo4j+s://" for routing
	URI string

	Username string
	Password string

	// Database name to connect to. Empty string uses the default database.
	Database string

	// MaxConnectionPoolSize limits the number of handles and driver connections.
	MaxConnectionPoolSize int

	// AcquireTimeout is how long Acquire waits for a free handle before
	// failing with RESOURCE_EXHAUSTED.
	AcquireTimeout time.Duration

	// ConnectionTimeout bounds socket connects and the initial connectivity check.
	ConnectionTimeout time.Duration

	// MaxConnectionLifetime recycles driver connections older than this.
	MaxConnectionLifetime time.Duration

	// FetchSize is the number of records pulled per batch. Zero uses the driver default.
	FetchSize int

	// AbortGrace bounds the rollback issued after a cancelled run.
	AbortGrace time.Duration

	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:                   "bolt://localhost:7687",
		Username:              "neo4j",
		Password:              "password",
		Database:              "neo4j",
		MaxConnectionPoolSize: 50,
		AcquireTimeout:        5 * time.Second,
		ConnectionTimeout:     30 * time.Second,
		MaxConnectionLifetime: time.Hour,
		FetchSize:             1000,
		AbortGrace:            2 * time.Second,
		UserAgent:             "cypherguard",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.URI == "" {
		return types.NewError(types.INVALID_REQUEST, "URI cannot be empty")
	}
	if c.Username == "" {
		return types.NewError(types.INVALID_REQUEST, "Username cannot be empty")
	}
	if c.MaxConnectionPoolSize <= 0 {
		return types.NewError(types.INVALID_REQUEST, "MaxConnectionPoolSize must be positive")
	}
	if c.AcquireTimeout <= 0 {
		return types.NewError(types.INVALID_REQUEST, "AcquireTimeout must be positive")
	}
	if c.ConnectionTimeout <= 0 {
		return types.NewError(types.INVALID_REQUEST, "ConnectionTimeout must be positive")
	}
	return nil
}
