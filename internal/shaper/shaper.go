// Package shaper turns query records into a size-bounded, JSON-ready
// response. Graph entities that occur more than once in a row, including
// through cycles, are emitted once and referenced by element ID afterwards.
package shaper

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

// Keys used for graph entities in shaped rows. Entity properties live under
// KeyProperties so a stored property can never shadow these keys.
const (
	KeyID            = "_id"
	KeyProperties    = "_properties"
	KeyRef           = "_ref"
	KeyLabels        = "_labels"
	KeyType          = "_type"
	KeyStart         = "_start"
	KeyEnd           = "_end"
	KeyRelationships = "_relationships"
	KeyPathNodes     = "nodes"
	KeyPathRels      = "relationships"
)

// maxDepth bounds nesting of plain maps and lists. Self-referencing maps
// cannot be serialized and fail instead of recursing forever.
const maxDepth = 64

// Marker describes rows dropped by truncation.
type Marker struct {
	Omitted   int    `json:"omitted" yaml:"omitted"`
	Returned  int    `json:"returned" yaml:"returned"`
	Available int    `json:"available" yaml:"available"`
	Message   string `json:"message" yaml:"message"`
}

// Shaped is the result of shaping rows against a budget.
type Shaped struct {
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`

	// Included is len(Rows); Total is how many rows were offered.
	Included int `json:"included"`
	Total    int `json:"total"`

	Marker *Marker `json:"marker,omitempty"`

	// Size is the estimated serialized size of Rows in bytes.
	Size int `json:"size"`
}

// Shape converts records into rows and keeps the longest prefix whose
// serialized size fits budget. Truncation is never an error; malformed
// values fail with SHAPING_FAILED.
func Shape(records []graph.Record, budget int) (*Shaped, error) {
	if budget <= 0 {
		return nil, types.NewError(types.INVALID_REQUEST, fmt.Sprintf("response budget must be positive, got %d", budget))
	}

	rows := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		row, err := convertRecord(rec)
		if err != nil {
			return nil, types.WrapError(types.SHAPING_FAILED, fmt.Sprintf("row %d could not be shaped", i), err).
				WithDetail("row", i)
		}
		rows = append(rows, row)
	}
	return fit(rows, budget)
}

// ShapeRows applies the budget to rows that are already shaped. Applying it
// to the Rows of a previous Shape with the same budget returns them
// unchanged.
func ShapeRows(rows []map[string]any, budget int) (*Shaped, error) {
	return Shape(recordsOf(rows), budget)
}

// Extend accounts for rows the engine produced but never materialized.
// When available exceeds Total the response is marked truncated.
func (s *Shaped) Extend(available int) {
	if available <= s.Total {
		return
	}
	s.Total = available
	s.Truncated = true
	s.Marker = newMarker(s.Included, available)
}

// Estimate returns the serialized size of v in bytes.
func Estimate(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, types.WrapError(types.SHAPING_FAILED, "value could not be serialized", err)
	}
	return len(data), nil
}

func fit(rows []map[string]any, budget int) (*Shaped, error) {
	out := &Shaped{Rows: make([]map[string]any, 0, len(rows)), Total: len(rows), Size: 2}

	for i, row := range rows {
		size, err := Estimate(row)
		if err != nil {
			return nil, types.WrapError(types.SHAPING_FAILED, fmt.Sprintf("row %d could not be serialized", i), err).
				WithDetail("row", i)
		}
		if len(out.Rows) > 0 {
			size++ // separator
		}
		if out.Size+size > budget {
			out.Truncated = true
			break
		}
		out.Size += size
		out.Rows = append(out.Rows, row)
	}

	out.Included = len(out.Rows)
	if out.Truncated {
		out.Marker = newMarker(out.Included, out.Total)
	}
	return out, nil
}

func newMarker(returned, available int) *Marker {
	return &Marker{
		Omitted:   available - returned,
		Returned:  returned,
		Available: available,
		Message: fmt.Sprintf("response truncated: %d of %d rows returned, %d omitted to fit the size budget",
			returned, available, available-returned),
	}
}

func recordsOf(rows []map[string]any) []graph.Record {
	records := make([]graph.Record, len(rows))
	for i, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := graph.Record{Keys: keys, Values: make([]any, len(keys))}
		for j, k := range keys {
			rec.Values[j] = row[k]
		}
		records[i] = rec
	}
	return records
}

// rowConverter holds the per-row entity table. Each entity is embedded on
// its first sighting and referenced on every later one.
type rowConverter struct {
	seenNodes map[string]bool
	seenRels  map[string]bool
}

func convertRecord(rec graph.Record) (map[string]any, error) {
	c := &rowConverter{seenNodes: map[string]bool{}, seenRels: map[string]bool{}}
	row := make(map[string]any, len(rec.Keys))
	for i, key := range rec.Keys {
		var v any
		if i < len(rec.Values) {
			v = rec.Values[i]
		}
		converted, err := c.value(v, 0)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		row[key] = converted
	}
	return row, nil
}

func ref(id string) map[string]any {
	return map[string]any{KeyRef: id}
}

func (c *rowConverter) value(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, []byte:
		return val, nil
	case float32:
		return checkFloat(float64(val))
	case float64:
		return checkFloat(val)
	case *graph.Node:
		return c.node(val, depth)
	case *graph.Relationship:
		return c.relationship(val, depth)
	case *graph.Path:
		return c.path(val, depth)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := c.value(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case map[string]any:
		return c.mapValue(val, depth)
	case json.Marshaler, encoding.TextMarshaler:
		return val, nil
	}
	return c.reflected(v, depth)
}

// reflected handles typed slices and string-keyed maps.
func (c *rowConverter) reflected(v any, depth int) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			converted, err := c.value(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return c.mapValue(m, depth)
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return c.value(rv.Elem().Interface(), depth+1)
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func checkFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	return f, nil
}

func (c *rowConverter) mapValue(m map[string]any, depth int) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for _, k := range sortedKeys(m) {
		converted, err := c.value(m[k], depth+1)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}

func (c *rowConverter) node(n *graph.Node, depth int) (any, error) {
	if n == nil {
		return nil, nil
	}
	if c.seenNodes[n.ElementID] {
		return ref(n.ElementID), nil
	}
	c.seenNodes[n.ElementID] = true

	labels := make([]any, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = l
	}
	out := map[string]any{KeyID: n.ElementID, KeyLabels: labels}
	if err := c.properties(out, n.Props, depth); err != nil {
		return nil, err
	}

	if len(n.Relationships) > 0 {
		rels := make([]any, 0, len(n.Relationships))
		for _, r := range n.Relationships {
			converted, err := c.relationship(r, depth)
			if err != nil {
				return nil, err
			}
			rels = append(rels, converted)
		}
		out[KeyRelationships] = rels
	}
	return out, nil
}

func (c *rowConverter) relationship(r *graph.Relationship, depth int) (any, error) {
	if r == nil {
		return nil, nil
	}
	if c.seenRels[r.ElementID] {
		return ref(r.ElementID), nil
	}
	c.seenRels[r.ElementID] = true

	out := map[string]any{KeyID: r.ElementID, KeyType: r.Type}
	if err := c.properties(out, r.Props, depth); err != nil {
		return nil, err
	}

	start, err := c.endpoint(r.Start, r.StartElementID, depth)
	if err != nil {
		return nil, err
	}
	end, err := c.endpoint(r.End, r.EndElementID, depth)
	if err != nil {
		return nil, err
	}
	out[KeyStart] = start
	out[KeyEnd] = end
	return out, nil
}

// properties stores the converted props under KeyProperties. Entities
// without properties get no key.
func (c *rowConverter) properties(out, props map[string]any, depth int) error {
	if len(props) == 0 {
		return nil
	}
	converted, err := c.mapValue(props, depth)
	if err != nil {
		return err
	}
	out[KeyProperties] = converted
	return nil
}

// endpoint embeds a linked node, or references it by ID when the node is
// not part of the row. Entity links do not count towards maxDepth since the
// entity table already bounds them.
func (c *rowConverter) endpoint(n *graph.Node, id string, depth int) (any, error) {
	if n == nil {
		return ref(id), nil
	}
	return c.node(n, depth)
}

func (c *rowConverter) path(p *graph.Path, depth int) (any, error) {
	if p == nil {
		return nil, nil
	}
	nodes := make([]any, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		converted, err := c.node(n, depth+1)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, converted)
	}
	rels := make([]any, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		converted, err := c.relationship(r, depth+1)
		if err != nil {
			return nil, err
		}
		rels = append(rels, converted)
	}
	return map[string]any{KeyPathNodes: nodes, KeyPathRels: rels}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
