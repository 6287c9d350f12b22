package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zero-day-ai/cypherguard/internal/types"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance. Field paths in
// messages use the configuration keys, e.g. "neo4j.max_connection_pool_size".
func NewValidator() ConfigValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &validatorImpl{validate: v}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	var messages []string

	if err := v.validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validation error", err)
		}
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
	}

	if err := cfg.EngineLimits().Validate(); err != nil {
		messages = append(messages, "limits: "+err.Error())
	}
	if cfg.Policy.RateLimit > 0 && cfg.Policy.RateBurst < 1 {
		messages = append(messages, "policy.rate_burst must be at least 1 when policy.rate_limit is set")
	}
	if !cfg.Policy.ReadOnly && cfg.Policy.ExplainCheck {
		messages = append(messages, "policy.explain_check requires policy.read_only")
	}
	if err := cfg.Logging.Validate(); err != nil {
		messages = append(messages, "logging: "+err.Error())
	}
	if err := cfg.Tracing.Validate(); err != nil {
		messages = append(messages, "tracing: "+err.Error())
	}
	if err := cfg.Metrics.Validate(); err != nil {
		messages = append(messages, "metrics: "+err.Error())
	}

	if len(messages) > 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - ")))
	}
	return nil
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", fieldPath, e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath drops the root struct name from a validator namespace.
// Example: "Config.neo4j.uri" -> "neo4j.uri"
func formatFieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}
