package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// EnvPrefix prefixes the environment variables that override any key,
// e.g. CYPHERGUARD_LIMITS_MAX_ROWS for limits.max_rows.
const EnvPrefix = "CYPHERGUARD"

// BytesPerToken converts NEO4J_RESPONSE_TOKEN_LIMIT into a byte budget.
const BytesPerToken = 4

// Environment variables understood for compatibility with existing Neo4j
// tool deployments.
const (
	EnvNeo4jURI           = "NEO4J_URI"
	EnvNeo4jUsername      = "NEO4J_USERNAME"
	EnvNeo4jPassword      = "NEO4J_PASSWORD"
	EnvNeo4jDatabase      = "NEO4J_DATABASE"
	EnvReadOnly           = "NEO4J_READ_ONLY"
	EnvReadTimeout        = "NEO4J_READ_TIMEOUT"
	EnvResponseTokenLimit = "NEO4J_RESPONSE_TOKEN_LIMIT"
	EnvSchemaSampleSize   = "NEO4J_SCHEMA_SAMPLE_SIZE"
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load reads the YAML file at path, applies defaults for missing keys,
// interpolates ${VAR} references, applies environment overrides and
// validates the result. The file must exist.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, fmt.Sprintf("failed to read config file %s", path), err)
	}
	return l.finish(v)
}

// LoadWithDefaults behaves like Load, but a missing file yields the
// defaults with environment overrides applied.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return l.Load(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, fmt.Sprintf("failed to stat config file %s", path), err)
		}
	}
	return l.finish(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("neo4j.uri", EnvNeo4jURI)
	_ = v.BindEnv("neo4j.username", EnvNeo4jUsername)
	_ = v.BindEnv("neo4j.password", EnvNeo4jPassword)
	_ = v.BindEnv("neo4j.database", EnvNeo4jDatabase)
	_ = v.BindEnv("policy.read_only", EnvReadOnly)
	_ = v.BindEnv("schema.sample_size", EnvSchemaSampleSize)
	return v
}

func (l *viperConfigLoader) finish(v *viper.Viper) (*Config, error) {
	// Interpolate over the merged settings, then decode the result.
	resolved := viper.New()
	settings, _ := interpolateEnvVars(v.AllSettings()).(map[string]interface{})
	if err := resolved.MergeConfigMap(settings); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to merge configuration", err)
	}

	var cfg Config
	if err := resolved.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to unmarshal config", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides handles the variables whose values need converting
// before they fit the configuration.
func applyEnvOverrides(cfg *Config) error {
	if raw := os.Getenv(EnvReadTimeout); raw != "" {
		timeout, err := parseTimeout(raw)
		if err != nil {
			return types.WrapError(types.CONFIG_LOAD_FAILED, fmt.Sprintf("invalid %s", EnvReadTimeout), err)
		}
		cfg.Limits.Timeout = timeout
		if cfg.Limits.MaxTimeout < timeout {
			cfg.Limits.MaxTimeout = timeout
		}
	}

	if raw := os.Getenv(EnvResponseTokenLimit); raw != "" {
		tokens, err := strconv.Atoi(raw)
		if err != nil || tokens <= 0 {
			return types.NewError(types.CONFIG_LOAD_FAILED,
				fmt.Sprintf("invalid %s: %q is not a positive integer", EnvResponseTokenLimit, raw))
		}
		cfg.Limits.ResponseBudget = tokens * BytesPerToken
	}
	return nil
}

// parseTimeout accepts a Go duration ("45s") or a number of seconds ("45").
func parseTimeout(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", raw)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// interpolateEnvVars recursively interpolates environment variables in the config map.
// Supports ${VAR_NAME} syntax.
func interpolateEnvVars(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		for key, value := range v {
			result[key] = interpolateEnvVars(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, value := range v {
			result[i] = interpolateEnvVars(value)
		}
		return result
	case string:
		return interpolateString(v)
	default:
		return v
	}
}

// interpolateString replaces ${VAR_NAME} with environment variable values.
// Unset variables are left as written.
func interpolateString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}
