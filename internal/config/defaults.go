package config

import (
	"github.com/spf13/viper"

	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
)

// DefaultConfig returns a Config with sensible default values. Read-only
// enforcement is on.
func DefaultConfig() *Config {
	conn := graph.DefaultConfig()
	limits := engine.DefaultLimits()

	return &Config{
		Neo4j: Neo4jConfig{
			URI:                   conn.URI,
			Username:              conn.Username,
			Password:              conn.Password,
			Database:              conn.Database,
			MaxConnectionPoolSize: conn.MaxConnectionPoolSize,
			AcquireTimeout:        conn.AcquireTimeout,
			ConnectionTimeout:     conn.ConnectionTimeout,
			MaxConnectionLifetime: conn.MaxConnectionLifetime,
			FetchSize:             conn.FetchSize,
			AbortGrace:            conn.AbortGrace,
		},
		Limits: LimitsConfig{
			Timeout:        limits.Timeout,
			MaxTimeout:     limits.MaxTimeout,
			ResponseBudget: limits.ResponseBudget,
			MaxRows:        limits.MaxRows,
		},
		Policy: PolicyConfig{
			ReadOnly:     true,
			ExplainCheck: false,
		},
		Schema: SchemaConfig{
			SampleSize:    limits.SampleSize,
			MaxSampleSize: limits.MaxSampleSize,
			Concurrency:   4,
			Coalesce:      true,
		},
		Logging: observability.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Tracing: observability.TracingConfig{
			Enabled:     false,
			Provider:    "otlp",
			ServiceName: "cypherguard",
			SampleRate:  1.0,
		},
		Metrics: observability.MetricsConfig{
			Enabled:  false,
			Provider: "prometheus",
			Port:     9464,
		},
	}
}

// setDefaults registers every default with v so that partial files and
// environment-only setups resolve to a complete configuration.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.username", d.Neo4j.Username)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)
	v.SetDefault("neo4j.max_connection_pool_size", d.Neo4j.MaxConnectionPoolSize)
	v.SetDefault("neo4j.acquire_timeout", d.Neo4j.AcquireTimeout)
	v.SetDefault("neo4j.connection_timeout", d.Neo4j.ConnectionTimeout)
	v.SetDefault("neo4j.max_connection_lifetime", d.Neo4j.MaxConnectionLifetime)
	v.SetDefault("neo4j.fetch_size", d.Neo4j.FetchSize)
	v.SetDefault("neo4j.abort_grace", d.Neo4j.AbortGrace)

	v.SetDefault("limits.timeout", d.Limits.Timeout)
	v.SetDefault("limits.max_timeout", d.Limits.MaxTimeout)
	v.SetDefault("limits.response_budget", d.Limits.ResponseBudget)
	v.SetDefault("limits.max_rows", d.Limits.MaxRows)

	v.SetDefault("policy.read_only", d.Policy.ReadOnly)
	v.SetDefault("policy.explain_check", d.Policy.ExplainCheck)
	v.SetDefault("policy.rate_limit", d.Policy.RateLimit)
	v.SetDefault("policy.rate_burst", d.Policy.RateBurst)

	v.SetDefault("schema.sample_size", d.Schema.SampleSize)
	v.SetDefault("schema.max_sample_size", d.Schema.MaxSampleSize)
	v.SetDefault("schema.concurrency", d.Schema.Concurrency)
	v.SetDefault("schema.coalesce", d.Schema.Coalesce)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.provider", d.Tracing.Provider)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure_mode", d.Tracing.InsecureMode)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.provider", d.Metrics.Provider)
	v.SetDefault("metrics.port", d.Metrics.Port)
}
