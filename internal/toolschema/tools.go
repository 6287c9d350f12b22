package toolschema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/schema"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Tool names.
const (
	ToolRunQuery   = engine.OpRunQuery
	ToolWriteQuery = engine.OpWriteQuery
	ToolGetSchema  = engine.OpGetSchema
)

// MaxQueryLength bounds the query argument in characters.
const MaxQueryLength = 100_000

// Tool is an operation as advertised to an agent.
type Tool struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	InputSchema JSONSchema `json:"inputSchema" yaml:"input_schema"`
	ReadOnly    bool       `json:"readOnly" yaml:"read_only"`
}

// Executor runs validated calls. *engine.Engine implements it.
type Executor interface {
	RunQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*engine.QueryResponse, error)
	WriteQuery(ctx context.Context, text string, params map[string]any, timeout *time.Duration) (*engine.QueryResponse, error)
	GetSchema(ctx context.Context, sampleSize *int) (*schema.Summary, error)
	Limits() engine.Limits
	Policy() engine.Policy
}

// Catalog returns the tool definitions for the given limits and policy.
// write_query is listed only when read-only enforcement is off.
func Catalog(limits engine.Limits, policy engine.Policy) []Tool {
	tools := []Tool{
		{
			Name: ToolRunQuery,
			Description: fmt.Sprintf("Run a read-only Cypher query. Queries that could modify the graph are rejected "+
				"without reaching the database. Responses larger than %d bytes are truncated and marked.",
				limits.ResponseBudget),
			InputSchema: queryInput(limits),
			ReadOnly:    true,
		},
		{
			Name: ToolGetSchema,
			Description: fmt.Sprintf("Describe node labels, relationship types and their properties by sampling "+
				"up to sample_size instances of each (default %d, at most %d).",
				limits.SampleSize, limits.MaxSampleSize),
			InputSchema: NewObjectSchema(map[string]SchemaField{
				"sample_size": NewIntegerField("Instances sampled per label and relationship type").
					WithMin(1).
					WithDefault(limits.SampleSize),
			}, nil),
			ReadOnly: true,
		},
	}

	if !policy.ReadOnlyEnforced {
		tools = append(tools, Tool{
			Name:        ToolWriteQuery,
			Description: "Run a Cypher query in a write transaction and report the update counters.",
			InputSchema: queryInput(limits),
		})
	}
	return tools
}

func queryInput(limits engine.Limits) JSONSchema {
	return NewObjectSchema(map[string]SchemaField{
		"query": NewStringField("Cypher query text").
			WithMinLength(1).
			WithMaxLength(MaxQueryLength),
		"params": NewObjectField("Query parameters, referenced as $name"),
		"timeout_seconds": NewNumberField(fmt.Sprintf("Execution timeout; capped at %s", limits.MaxTimeout)).
			WithMin(0.001).
			WithDefault(limits.Timeout.Seconds()),
	}, []string{"query"})
}

// Dispatcher validates tool calls and runs them on an Executor.
type Dispatcher struct {
	exec  Executor
	tools map[string]Tool
}

// NewDispatcher creates a Dispatcher over exec.
func NewDispatcher(exec Executor) *Dispatcher {
	limits := exec.Limits()
	tools := map[string]Tool{}
	// write_query stays callable so that read-only mode reports a policy
	// violation rather than an unknown tool.
	for _, t := range Catalog(limits, engine.Policy{}) {
		tools[t.Name] = t
	}
	return &Dispatcher{exec: exec, tools: tools}
}

// Tools returns the advertised tools.
func (d *Dispatcher) Tools() []Tool {
	return Catalog(d.exec.Limits(), d.exec.Policy())
}

// CallJSON decodes raw arguments and calls the named tool.
func (d *Dispatcher) CallJSON(ctx context.Context, name string, raw []byte) (any, error) {
	args, err := DecodeArguments(raw)
	if err != nil {
		return nil, err
	}
	return d.Call(ctx, name, args)
}

// Call validates args against the tool's input schema and runs it.
// Validation failures are INVALID_REQUEST with the field errors attached.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := d.tools[name]
	if !ok {
		return nil, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("unknown tool %q", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	// Policy is checked before argument shape so that a disabled write
	// tool is reported as such.
	if name == ToolWriteQuery && d.exec.Policy().ReadOnlyEnforced {
		return result(d.exec.WriteQuery(ctx, stringArg(args, "query"), nil, nil))
	}

	if errs := Validate(tool.InputSchema, args); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, types.NewError(types.INVALID_REQUEST,
			fmt.Sprintf("invalid arguments for %s: %s", name, strings.Join(msgs, "; "))).
			WithDetail("errors", errs)
	}

	limits := d.exec.Limits()
	switch name {
	case ToolRunQuery:
		params, _ := args["params"].(map[string]any)
		return result(d.exec.RunQuery(ctx, stringArg(args, "query"), params,
			durationArg(args, "timeout_seconds", limits.MaxTimeout)))
	case ToolWriteQuery:
		params, _ := args["params"].(map[string]any)
		return result(d.exec.WriteQuery(ctx, stringArg(args, "query"), params,
			durationArg(args, "timeout_seconds", limits.MaxTimeout)))
	default:
		var sampleSize *int
		if n, ok := args["sample_size"].(int64); ok {
			v := int(min(n, math.MaxInt32))
			sampleSize = &v
		} else if f, ok := args["sample_size"].(float64); ok {
			v := int(min(f, math.MaxInt32))
			sampleSize = &v
		}
		return result(d.exec.GetSchema(ctx, sampleSize))
	}
}

// result keeps a failed call from returning a typed nil.
func result[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// durationArg reads a number of seconds, capped at limit so that the
// conversion cannot overflow. The engine clamps to the same limit.
func durationArg(args map[string]any, key string, limit time.Duration) *time.Duration {
	var seconds float64
	switch v := args[key].(type) {
	case int64:
		seconds = float64(v)
	case float64:
		seconds = v
	default:
		return nil
	}
	if limit > 0 && seconds > limit.Seconds() {
		d := limit
		return &d
	}
	d := time.Duration(seconds * float64(time.Second))
	return &d
}

// DecodeArguments parses a JSON object of tool arguments. Integral numbers
// decode as int64 and other numbers as float64, so that query parameters
// keep their Cypher type. Empty input is an empty object.
func DecodeArguments(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	v, err := DecodeValue(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, types.NewError(types.INVALID_REQUEST, "arguments must be a JSON object")
	}
	return obj, nil
}

// DecodeValue parses a single JSON value with the number handling of
// DecodeArguments.
func DecodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, types.WrapError(types.INVALID_REQUEST, "arguments are not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, types.NewError(types.INVALID_REQUEST, "arguments contain trailing data")
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	}
	return v
}
