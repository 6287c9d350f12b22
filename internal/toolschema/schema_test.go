package toolschema

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/schema"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

func TestNewObjectSchema(t *testing.T) {
	s := NewObjectSchema(map[string]SchemaField{
		"query": NewStringField("Cypher"),
	}, []string{"query"})

	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"query"}, s.Required)
	require.NotNil(t, s.AdditionalProperties)
	assert.False(t, *s.AdditionalProperties)
}

func TestSchemaJSONSerialization(t *testing.T) {
	s := NewObjectSchema(map[string]SchemaField{
		"n": NewIntegerField("count").WithMin(1).WithDefault(10),
		"q": NewStringField("text").WithMinLength(1).WithMaxLength(5),
	}, []string{"q"})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["additionalProperties"])

	props := decoded["properties"].(map[string]any)
	n := props["n"].(map[string]any)
	assert.Equal(t, "integer", n["type"])
	assert.Equal(t, float64(1), n["minimum"])
	assert.Equal(t, float64(10), n["default"])

	q := props["q"].(map[string]any)
	assert.Equal(t, float64(1), q["minLength"])
	assert.Equal(t, float64(5), q["maxLength"])
}

func TestValidate(t *testing.T) {
	s := NewObjectSchema(map[string]SchemaField{
		"query":   NewStringField("").WithMinLength(1).WithMaxLength(10),
		"params":  NewObjectField(""),
		"timeout": NewNumberField("").WithMin(0.5),
		"size":    NewIntegerField("").WithMin(1),
	}, []string{"query"})

	tests := []struct {
		name   string
		data   map[string]any
		fields []string
	}{
		{name: "valid", data: map[string]any{"query": "RETURN 1", "params": map[string]any{}, "timeout": 1.5, "size": int64(3)}},
		{name: "integer where number expected", data: map[string]any{"query": "x", "timeout": int64(2)}},
		{name: "whole float where integer expected", data: map[string]any{"query": "x", "size": float64(4)}},
		{name: "null optional", data: map[string]any{"query": "x", "params": nil}},
		{name: "missing required", data: map[string]any{}, fields: []string{"query"}},
		{name: "wrong type", data: map[string]any{"query": 5.0}, fields: []string{"query"}},
		{name: "empty string", data: map[string]any{"query": ""}, fields: []string{"query"}},
		{name: "too long", data: map[string]any{"query": "MATCH (n) RETURN n"}, fields: []string{"query"}},
		{name: "below minimum", data: map[string]any{"query": "x", "timeout": 0.1}, fields: []string{"timeout"}},
		{name: "fractional integer", data: map[string]any{"query": "x", "size": 1.5}, fields: []string{"size"}},
		{name: "params not an object", data: map[string]any{"query": "x", "params": []any{1.0}}, fields: []string{"params"}},
		{name: "unknown field", data: map[string]any{"query": "x", "database": "system"}, fields: []string{"database"}},
		{
			name:   "several errors in field order",
			data:   map[string]any{"query": "", "size": int64(0), "extra": true},
			fields: []string{"extra", "query", "size"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(s, tt.data)
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			if len(tt.fields) == 0 {
				assert.Empty(t, errs)
			} else {
				assert.Equal(t, tt.fields, fields)
			}
		})
	}
}

func TestValidationErrorMessages(t *testing.T) {
	assert.Equal(t, "query: required field is missing",
		ValidationError{Field: "query", Message: "required field is missing"}.Error())
	assert.Equal(t, "size: value must be at least 1 (value: 0)",
		ValidationError{Field: "size", Message: "value must be at least 1", Value: 0}.Error())
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments([]byte(`{"query": "RETURN $n", "params": {"n": 3, "f": 2.5, "list": [1, 2]}}`))
	require.NoError(t, err)

	params := args["params"].(map[string]any)
	assert.Equal(t, int64(3), params["n"])
	assert.Equal(t, 2.5, params["f"])
	assert.Equal(t, []any{int64(1), int64(2)}, params["list"])

	args, err = DecodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	for _, bad := range []string{`[1, 2]`, `{"query":`, `{} {}`, `"text"`} {
		_, err := DecodeArguments([]byte(bad))
		assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err), bad)
	}
}

func TestCatalog(t *testing.T) {
	limits := engine.DefaultLimits()

	readOnly := Catalog(limits, engine.DefaultPolicy())
	names := make([]string, len(readOnly))
	for i, tool := range readOnly {
		names[i] = tool.Name
		assert.True(t, tool.ReadOnly)
	}
	assert.Equal(t, []string{ToolRunQuery, ToolGetSchema}, names)

	open := Catalog(limits, engine.Policy{})
	require.Len(t, open, 3)
	assert.Equal(t, ToolWriteQuery, open[2].Name)
	assert.False(t, open[2].ReadOnly)
	assert.Equal(t, []string{"query"}, open[2].InputSchema.Required)
}

// recordingExecutor captures the arguments of the last call.
type recordingExecutor struct {
	limits engine.Limits
	policy engine.Policy

	text       string
	params     map[string]any
	timeout    *time.Duration
	sampleSize *int
	err        error
}

func (r *recordingExecutor) RunQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*engine.QueryResponse, error) {
	r.text, r.params, r.timeout = text, params, timeout
	if r.err != nil {
		return nil, r.err
	}
	return &engine.QueryResponse{Keys: []string{}}, nil
}

func (r *recordingExecutor) WriteQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*engine.QueryResponse, error) {
	if r.policy.ReadOnlyEnforced {
		return nil, types.NewError(types.POLICY_VIOLATION, "write_query is disabled in read-only mode")
	}
	return r.RunQuery(ctx, text, params, timeout)
}

func (r *recordingExecutor) GetSchema(ctx context.Context, sampleSize *int) (*schema.Summary, error) {
	r.sampleSize = sampleSize
	return &schema.Summary{}, nil
}

func (r *recordingExecutor) Limits() engine.Limits { return r.limits }
func (r *recordingExecutor) Policy() engine.Policy { return r.policy }

func TestDispatcher_Call(t *testing.T) {
	exec := &recordingExecutor{limits: engine.DefaultLimits(), policy: engine.DefaultPolicy()}
	d := NewDispatcher(exec)

	out, err := d.CallJSON(context.Background(), ToolRunQuery,
		[]byte(`{"query": "MATCH (n) WHERE n.age > $age RETURN n", "params": {"age": 30}, "timeout_seconds": 1.5}`))
	require.NoError(t, err)
	assert.IsType(t, &engine.QueryResponse{}, out)
	assert.Equal(t, "MATCH (n) WHERE n.age > $age RETURN n", exec.text)
	assert.Equal(t, map[string]any{"age": int64(30)}, exec.params)
	require.NotNil(t, exec.timeout)
	assert.Equal(t, 1500*time.Millisecond, *exec.timeout)

	_, err = d.Call(context.Background(), ToolRunQuery, map[string]any{"query": "RETURN 1"})
	require.NoError(t, err)
	assert.Nil(t, exec.timeout)
	assert.Nil(t, exec.params)

	out, err = d.CallJSON(context.Background(), ToolGetSchema, []byte(`{"sample_size": 25}`))
	require.NoError(t, err)
	assert.IsType(t, &schema.Summary{}, out)
	require.NotNil(t, exec.sampleSize)
	assert.Equal(t, 25, *exec.sampleSize)

	_, err = d.CallJSON(context.Background(), ToolGetSchema, nil)
	require.NoError(t, err)
	assert.Nil(t, exec.sampleSize)
}

func TestDispatcher_LargeTimeoutIsCapped(t *testing.T) {
	limits := engine.DefaultLimits()
	exec := &recordingExecutor{limits: limits, policy: engine.DefaultPolicy()}
	d := NewDispatcher(exec)

	for _, raw := range []string{`1e10`, `1e300`, `9223372036854775807`} {
		_, err := d.CallJSON(context.Background(), ToolRunQuery,
			[]byte(`{"query": "RETURN 1", "timeout_seconds": `+raw+`}`))
		require.NoError(t, err, raw)
		require.NotNil(t, exec.timeout, raw)
		assert.Equal(t, limits.MaxTimeout, *exec.timeout, raw)
	}

	_, err := d.CallJSON(context.Background(), ToolRunQuery, []byte(`{"query": "RETURN 1", "timeout_seconds": 2}`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, *exec.timeout)
}

func TestDispatcher_Rejections(t *testing.T) {
	exec := &recordingExecutor{limits: engine.DefaultLimits(), policy: engine.DefaultPolicy()}
	d := NewDispatcher(exec)

	_, err := d.Call(context.Background(), "drop_database", nil)
	assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))

	_, err = d.Call(context.Background(), ToolRunQuery, map[string]any{"query": "RETURN 1", "database": "system"})
	require.Error(t, err)
	assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))
	assert.Contains(t, err.Error(), "additional property not allowed")

	_, err = d.Call(context.Background(), ToolGetSchema, map[string]any{"sample_size": int64(0)})
	assert.Equal(t, types.INVALID_REQUEST, types.CodeOf(err))

	out, err := d.Call(context.Background(), ToolWriteQuery, map[string]any{"query": "CREATE (n)"})
	assert.Nil(t, out)
	assert.Equal(t, types.POLICY_VIOLATION, types.CodeOf(err))

	exec.err = types.NewError(types.ENGINE_ERROR, "boom")
	out, err = d.Call(context.Background(), ToolRunQuery, map[string]any{"query": "RETURN 1"})
	assert.Nil(t, out)
	assert.Equal(t, types.ENGINE_ERROR, types.CodeOf(err))
}

func TestDispatcher_Tools(t *testing.T) {
	exec := &recordingExecutor{limits: engine.DefaultLimits(), policy: engine.DefaultPolicy()}
	assert.Len(t, NewDispatcher(exec).Tools(), 2)

	exec.policy = engine.Policy{}
	assert.Len(t, NewDispatcher(exec).Tools(), 3)
}

func TestDispatcher_WithEngine(t *testing.T) {
	pool := graph.NewMockPool(1)
	pool.SetResult(graph.NewResult(graph.NewRecord("n", int64(42))))
	e, err := engine.New(pool)
	require.NoError(t, err)

	d := NewDispatcher(e)
	out, err := d.CallJSON(context.Background(), ToolRunQuery, []byte(`{"query": "RETURN $n AS n", "params": {"n": 42}}`))
	require.NoError(t, err)

	resp := out.(*engine.QueryResponse)
	assert.Equal(t, []map[string]any{{"n": int64(42)}}, resp.Rows)
	assert.Equal(t, int64(42), pool.GetCalls()[0].Statement.Params["n"])

	_, err = d.CallJSON(context.Background(), ToolRunQuery, []byte(`{"query": "MATCH (n) DELETE n"}`))
	assert.Equal(t, types.POLICY_VIOLATION, types.CodeOf(err))
	assert.Equal(t, 1, pool.CallCount())
}
