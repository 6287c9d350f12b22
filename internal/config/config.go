package config

import (
	"time"

	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
)

// Config is the root configuration for cypherguard.
type Config struct {
	Neo4j   Neo4jConfig                 `mapstructure:"neo4j" yaml:"neo4j"`
	Limits  LimitsConfig                `mapstructure:"limits" yaml:"limits"`
	Policy  PolicyConfig                `mapstructure:"policy" yaml:"policy"`
	Schema  SchemaConfig                `mapstructure:"schema" yaml:"schema"`
	Logging observability.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Metrics observability.MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// Neo4jConfig contains the database connection settings.
type Neo4jConfig struct {
	// URI is a bolt://, bolt+s://, neo4j:// or neo4j+s:// address.
	URI      string `mapstructure:"uri" yaml:"uri" validate:"required,url"`
	Username string `mapstructure:"username" yaml:"username" validate:"required"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// Database is empty for the server's default database.
	Database string `mapstructure:"database" yaml:"database"`

	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size" validate:"min=1,max=1000"`
	AcquireTimeout        time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout" validate:"min=1ms"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1ms"`
	MaxConnectionLifetime time.Duration `mapstructure:"max_connection_lifetime" yaml:"max_connection_lifetime" validate:"min=0"`
	FetchSize             int           `mapstructure:"fetch_size" yaml:"fetch_size" validate:"min=0"`
	AbortGrace            time.Duration `mapstructure:"abort_grace" yaml:"abort_grace" validate:"min=1ms"`
}

// LimitsConfig bounds individual executions.
type LimitsConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1ms"`
	MaxTimeout time.Duration `mapstructure:"max_timeout" yaml:"max_timeout" validate:"min=1ms"`

	// ResponseBudget is the serialized response size in bytes.
	ResponseBudget int `mapstructure:"response_budget" yaml:"response_budget" validate:"min=64"`
	MaxRows        int `mapstructure:"max_rows" yaml:"max_rows" validate:"min=1"`
}

// PolicyConfig decides which queries may run and how fast.
type PolicyConfig struct {
	ReadOnly     bool `mapstructure:"read_only" yaml:"read_only"`
	ExplainCheck bool `mapstructure:"explain_check" yaml:"explain_check"`

	// RateLimit is executions per second; zero disables admission control.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"min=0"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst" validate:"min=0"`
}

// SchemaConfig controls get_schema sampling.
type SchemaConfig struct {
	SampleSize    int  `mapstructure:"sample_size" yaml:"sample_size" validate:"min=1"`
	MaxSampleSize int  `mapstructure:"max_sample_size" yaml:"max_sample_size" validate:"min=1"`
	Concurrency   int  `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=64"`
	Coalesce      bool `mapstructure:"coalesce" yaml:"coalesce"`
}

// GraphConfig converts the connection settings for graph.NewNeo4jPool.
func (c Neo4jConfig) GraphConfig() graph.Config {
	cfg := graph.DefaultConfig()
	cfg.URI = c.URI
	cfg.Username = c.Username
	cfg.Password = c.Password
	cfg.Database = c.Database
	cfg.MaxConnectionPoolSize = c.MaxConnectionPoolSize
	cfg.AcquireTimeout = c.AcquireTimeout
	cfg.ConnectionTimeout = c.ConnectionTimeout
	cfg.MaxConnectionLifetime = c.MaxConnectionLifetime
	cfg.FetchSize = c.FetchSize
	cfg.AbortGrace = c.AbortGrace
	return cfg
}

// EngineLimits combines the limits and schema sections.
func (c *Config) EngineLimits() engine.Limits {
	return engine.Limits{
		Timeout:        c.Limits.Timeout,
		MaxTimeout:     c.Limits.MaxTimeout,
		ResponseBudget: c.Limits.ResponseBudget,
		SampleSize:     c.Schema.SampleSize,
		MaxSampleSize:  c.Schema.MaxSampleSize,
		MaxRows:        c.Limits.MaxRows,
	}
}

// EnginePolicy returns the execution policy.
func (c *Config) EnginePolicy() engine.Policy {
	return engine.Policy{
		ReadOnlyEnforced: c.Policy.ReadOnly,
		ExplainCheck:     c.Policy.ExplainCheck,
	}
}

// EngineOptions returns the engine options the configuration implies.
// Logger, tracer and metrics are supplied by the caller.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithLimits(c.EngineLimits()),
		engine.WithPolicy(c.EnginePolicy()),
		engine.WithRateLimit(c.Policy.RateLimit, c.Policy.RateBurst),
		engine.WithAbortGrace(c.Neo4j.AbortGrace),
		engine.WithSamplerConcurrency(c.Schema.Concurrency),
		engine.WithCoalescing(c.Schema.Coalesce),
	}
}
