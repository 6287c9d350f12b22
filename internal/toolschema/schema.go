// Package toolschema describes the operations cypherguard exposes to agent
// callers as JSON Schema tool definitions, validates call arguments against
// them and dispatches validated calls to the engine.
package toolschema

// JSONSchema represents a JSON Schema for validation compatible with draft-07
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]SchemaField `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// SchemaField represents a field within a schema
type SchemaField struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
}

// NewObjectSchema creates an object schema that rejects unknown properties.
func NewObjectSchema(properties map[string]SchemaField, required []string) JSONSchema {
	closed := false
	return JSONSchema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

// NewStringField creates a new string field with the given description
func NewStringField(description string) SchemaField {
	return SchemaField{Type: "string", Description: description}
}

// NewIntegerField creates a new integer field with the given description
func NewIntegerField(description string) SchemaField {
	return SchemaField{Type: "integer", Description: description}
}

// NewNumberField creates a new number field with the given description
func NewNumberField(description string) SchemaField {
	return SchemaField{Type: "number", Description: description}
}

// NewObjectField creates a free-form object field.
func NewObjectField(description string) SchemaField {
	return SchemaField{Type: "object", Description: description}
}

// WithMin adds minimum constraint to numeric fields
func (f SchemaField) WithMin(min float64) SchemaField {
	f.Minimum = &min
	return f
}

// WithMinLength adds minimum length constraint to string fields
func (f SchemaField) WithMinLength(length int) SchemaField {
	f.MinLength = &length
	return f
}

// WithMaxLength adds maximum length constraint to string fields
func (f SchemaField) WithMaxLength(length int) SchemaField {
	f.MaxLength = &length
	return f
}

// WithDefault sets the default value for the field
func (f SchemaField) WithDefault(value any) SchemaField {
	f.Default = value
	return f
}
