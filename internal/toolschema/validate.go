package toolschema

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// ValidationError represents a schema validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks decoded JSON arguments against schema. Errors are
// returned in field order so that messages are stable.
func Validate(schema JSONSchema, data map[string]any) []ValidationError {
	var errors []ValidationError

	if schema.Type != "object" {
		return []ValidationError{{Message: fmt.Sprintf("root type must be object, got %s", schema.Type)}}
	}

	for _, field := range schema.Required {
		if _, exists := data[field]; !exists {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "required field is missing",
			})
		}
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := data[name]
		fieldSchema, hasSchema := schema.Properties[name]
		if !hasSchema {
			if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
				errors = append(errors, ValidationError{
					Field:   name,
					Message: "additional property not allowed",
				})
			}
			continue
		}
		// Explicit null is the same as an omitted optional field.
		if value == nil {
			continue
		}
		errors = append(errors, validateField(name, fieldSchema, value)...)
	}

	return errors
}

func validateField(fieldPath string, schema SchemaField, value any) []ValidationError {
	actualType := jsonType(value)
	if schema.Type != "" && !typeCompatible(schema.Type, actualType, value) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("expected type %s, got %s", schema.Type, actualType),
		}}
	}

	var errors []ValidationError
	switch val := value.(type) {
	case string:
		length := utf8.RuneCountInString(val)
		if schema.MinLength != nil && length < *schema.MinLength {
			errors = append(errors, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("string length must be at least %d", *schema.MinLength),
			})
		}
		if schema.MaxLength != nil && length > *schema.MaxLength {
			errors = append(errors, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("string length must be at most %d", *schema.MaxLength),
			})
		}
	case int64, float64:
		num := toFloat(val)
		if schema.Minimum != nil && num < *schema.Minimum {
			errors = append(errors, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("value must be at least %v", *schema.Minimum),
				Value:   val,
			})
		}
	}
	return errors
}

// typeCompatible accepts integers where a number is expected, and whole
// floats where an integer is expected.
func typeCompatible(expected, actual string, value any) bool {
	switch {
	case expected == actual:
		return true
	case expected == "number" && actual == "integer":
		return true
	case expected == "integer" && actual == "number":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// jsonType names the JSON type of a value produced by DecodeArguments.
func jsonType(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64:
		return "integer"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
