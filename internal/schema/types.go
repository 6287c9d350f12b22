// Package schema derives a structural summary of a graph by sampling: node
// labels with their property signatures, relationship types with their
// endpoint label pairs, and whether any sample hit its size bound.
package schema

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/zero-day-ai/cypherguard/internal/graph"
)

// PropertyType is the tag of an observed property value.
type PropertyType string

const (
	TypeNull          PropertyType = "NULL"
	TypeBoolean       PropertyType = "BOOLEAN"
	TypeInteger       PropertyType = "INTEGER"
	TypeFloat         PropertyType = "FLOAT"
	TypeString        PropertyType = "STRING"
	TypeList          PropertyType = "LIST"
	TypeMap           PropertyType = "MAP"
	TypeBytes         PropertyType = "BYTES"
	TypeDate          PropertyType = "DATE"
	TypeTime          PropertyType = "ZONED TIME"
	TypeLocalTime     PropertyType = "LOCAL TIME"
	TypeDateTime      PropertyType = "ZONED DATETIME"
	TypeLocalDateTime PropertyType = "LOCAL DATETIME"
	TypeDuration      PropertyType = "DURATION"
	TypePoint         PropertyType = "POINT"
	TypeNode          PropertyType = "NODE"
	TypeRelationship  PropertyType = "RELATIONSHIP"
	TypePath          PropertyType = "PATH"
	TypeAny           PropertyType = "ANY"
)

// TypeOf returns the tag for a value as produced by the graph package.
func TypeOf(v any) PropertyType {
	switch val := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeFloat
	case string:
		return TypeString
	case []byte:
		return TypeBytes
	case []any:
		return TypeList
	case map[string]any:
		return TypeMap
	case graph.Temporal:
		return PropertyType(val.Kind)
	case time.Time:
		return TypeDateTime
	case graph.Point:
		return TypePoint
	case *graph.Node:
		return TypeNode
	case *graph.Relationship:
		return TypeRelationship
	case *graph.Path:
		return TypePath
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeList
	case reflect.Map:
		return TypeMap
	}
	return TypeAny
}

// TypeSet is the union of types observed for one property.
type TypeSet map[PropertyType]struct{}

// Add records t.
func (s TypeSet) Add(t PropertyType) {
	s[t] = struct{}{}
}

// Sorted returns the members in lexical order.
func (s TypeSet) Sorted() []PropertyType {
	out := make([]PropertyType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the union, e.g. "INTEGER|STRING".
func (s TypeSet) String() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, t := range sorted {
		parts[i] = string(t)
	}
	return strings.Join(parts, "|")
}

// Property is the inferred signature of one property key.
type Property struct {
	Name  string         `json:"name" yaml:"name"`
	Types []PropertyType `json:"types" yaml:"types"`

	// Type is Types joined with "|".
	Type string `json:"type" yaml:"type"`

	// Nullable is true when at least one sampled instance lacks the key.
	Nullable bool `json:"nullable" yaml:"nullable"`

	// Observed is how many sampled instances carry the key.
	Observed int `json:"observed" yaml:"observed"`
}

// Connection is a relationship type seen from one label towards another.
type Connection struct {
	Type  string `json:"type" yaml:"type"`
	Label string `json:"label" yaml:"label"`
}

// Label summarizes the sampled nodes carrying one label.
type Label struct {
	Name       string       `json:"name" yaml:"name"`
	Sampled    int          `json:"sampled" yaml:"sampled"`
	Truncated  bool         `json:"truncated" yaml:"truncated"`
	Properties []Property   `json:"properties" yaml:"properties"`
	Outgoing   []Connection `json:"outgoing,omitempty" yaml:"outgoing,omitempty"`
	Incoming   []Connection `json:"incoming,omitempty" yaml:"incoming,omitempty"`
}

// Endpoint is an observed (start label, end label) pair. An unlabelled node
// is reported with an empty label.
type Endpoint struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// RelationshipType summarizes the sampled relationships of one type.
type RelationshipType struct {
	Name       string     `json:"name" yaml:"name"`
	Sampled    int        `json:"sampled" yaml:"sampled"`
	Truncated  bool       `json:"truncated" yaml:"truncated"`
	Endpoints  []Endpoint `json:"endpoints" yaml:"endpoints"`
	Properties []Property `json:"properties" yaml:"properties"`
}

// Sampling describes how the summary was produced.
type Sampling struct {
	SampleSize int `json:"sample_size" yaml:"sample_size"`

	// Truncated is true when any label or relationship type had more
	// instances than SampleSize, so the population may be larger than what
	// was inspected.
	Truncated bool `json:"truncated" yaml:"truncated"`

	Queries   int   `json:"queries" yaml:"queries"`
	ElapsedMs int64 `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// Summary is the sampled schema of a graph.
type Summary struct {
	Labels            []Label            `json:"labels" yaml:"labels"`
	RelationshipTypes []RelationshipType `json:"relationship_types" yaml:"relationship_types"`
	Sampling          Sampling           `json:"sampling" yaml:"sampling"`
}

// Label returns the label summary with the given name.
func (s *Summary) Label(name string) (*Label, bool) {
	for i := range s.Labels {
		if s.Labels[i].Name == name {
			return &s.Labels[i], true
		}
	}
	return nil, false
}

// RelationshipType returns the relationship type summary with the given name.
func (s *Summary) RelationshipType(name string) (*RelationshipType, bool) {
	for i := range s.RelationshipTypes {
		if s.RelationshipTypes[i].Name == name {
			return &s.RelationshipTypes[i], true
		}
	}
	return nil, false
}

// Property returns the property with the given name.
func (l *Label) Property(name string) (*Property, bool) {
	return findProperty(l.Properties, name)
}

// Property returns the property with the given name.
func (r *RelationshipType) Property(name string) (*Property, bool) {
	return findProperty(r.Properties, name)
}

func findProperty(props []Property, name string) (*Property, bool) {
	for i := range props {
		if props[i].Name == name {
			return &props[i], true
		}
	}
	return nil, false
}

// signature accumulates property observations across sampled instances.
type signature struct {
	instances int
	observed  map[string]int
	types     map[string]TypeSet
}

func newSignature() *signature {
	return &signature{observed: map[string]int{}, types: map[string]TypeSet{}}
}

// add records one instance's properties. A key holding null counts as
// missing.
func (s *signature) add(props map[string]any) {
	s.instances++
	for k, v := range props {
		if v == nil {
			continue
		}
		s.observed[k]++
		set, ok := s.types[k]
		if !ok {
			set = TypeSet{}
			s.types[k] = set
		}
		set.Add(TypeOf(v))
	}
}

func (s *signature) properties() []Property {
	out := make([]Property, 0, len(s.types))
	for name, set := range s.types {
		out = append(out, Property{
			Name:     name,
			Types:    set.Sorted(),
			Type:     set.String(),
			Nullable: s.observed[name] < s.instances,
			Observed: s.observed[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
