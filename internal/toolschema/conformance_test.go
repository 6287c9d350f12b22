package toolschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zero-day-ai/cypherguard/internal/engine"
)

// compileDraft7 checks s against the draft-07 meta-schema and compiles it.
func compileDraft7(t *testing.T, s JSONSchema) *gojsonschema.Schema {
	t.Helper()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	loader := gojsonschema.NewSchemaLoader()
	loader.Validate = true
	loader.Draft = gojsonschema.Draft7

	compiled, err := loader.Compile(gojsonschema.NewBytesLoader(data))
	require.NoError(t, err, "schema: %s", data)
	return compiled
}

func TestCatalog_InputSchemasAreDraft7(t *testing.T) {
	for _, tool := range Catalog(engine.DefaultLimits(), engine.Policy{}) {
		t.Run(tool.Name, func(t *testing.T) {
			compileDraft7(t, tool.InputSchema)
		})
	}
}

// The hand-written validator must agree with a reference implementation on
// every document agents are likely to send.
func TestValidate_AgreesWithGoJSONSchema(t *testing.T) {
	tools := map[string]Tool{}
	for _, tool := range Catalog(engine.DefaultLimits(), engine.Policy{}) {
		tools[tool.Name] = tool
	}

	tests := []struct {
		tool  string
		doc   string
		valid bool
	}{
		{ToolRunQuery, `{"query": "MATCH (n) RETURN n"}`, true},
		{ToolRunQuery, `{"query": "RETURN $x", "params": {"x": [1, "a"]}, "timeout_seconds": 2.5}`, true},
		{ToolRunQuery, `{"query": "RETURN 1", "timeout_seconds": 3}`, true},
		{ToolRunQuery, `{}`, false},
		{ToolRunQuery, `{"query": ""}`, false},
		{ToolRunQuery, `{"query": 42}`, false},
		{ToolRunQuery, `{"query": "RETURN 1", "params": [1, 2]}`, false},
		{ToolRunQuery, `{"query": "RETURN 1", "timeout_seconds": 0}`, false},
		{ToolRunQuery, `{"query": "RETURN 1", "timeout_seconds": "5"}`, false},
		{ToolRunQuery, `{"query": "RETURN 1", "database": "system"}`, false},
		{ToolWriteQuery, `{"query": "CREATE (n)"}`, true},
		{ToolGetSchema, `{}`, true},
		{ToolGetSchema, `{"sample_size": 25}`, true},
		{ToolGetSchema, `{"sample_size": 0}`, false},
		{ToolGetSchema, `{"sample_size": 2.5}`, false},
		{ToolGetSchema, `{"sample_size": "10"}`, false},
	}

	compiled := map[string]*gojsonschema.Schema{}
	for name, tool := range tools {
		compiled[name] = compileDraft7(t, tool.InputSchema)
	}

	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.doc, func(t *testing.T) {
			ref, err := compiled[tt.tool].Validate(gojsonschema.NewStringLoader(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ref.Valid(), "reference: %v", ref.Errors())

			args, err := DecodeArguments([]byte(tt.doc))
			require.NoError(t, err)
			errs := Validate(tools[tt.tool].InputSchema, args)
			assert.Equal(t, tt.valid, len(errs) == 0, "validate: %v", errs)
		})
	}
}
