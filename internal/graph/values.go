package graph

import "encoding/json"

// TemporalKind names the Cypher temporal type a Temporal value came from.
type TemporalKind string

const (
	TemporalDate          TemporalKind = "DATE"
	TemporalTime          TemporalKind = "ZONED TIME"
	TemporalLocalTime     TemporalKind = "LOCAL TIME"
	TemporalDateTime      TemporalKind = "ZONED DATETIME"
	TemporalLocalDateTime TemporalKind = "LOCAL DATETIME"
	TemporalDuration      TemporalKind = "DURATION"
)

// Temporal is a date, time or duration rendered as an ISO 8601 string. It
// serializes as the bare string and keeps its kind for schema inference.
type Temporal struct {
	Kind  TemporalKind
	Value string
}

// String returns the ISO 8601 form.
func (t Temporal) String() string {
	return t.Value
}

// MarshalJSON encodes the value as a JSON string.
func (t Temporal) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

// MarshalYAML encodes the value as a YAML string.
func (t Temporal) MarshalYAML() (any, error) {
	return t.Value, nil
}

// Point is a spatial point. Z is nil for 2D points.
type Point struct {
	SRID int64
	X    float64
	Y    float64
	Z    *float64
}

func (p Point) asMap() map[string]any {
	m := map[string]any{"srid": p.SRID, "x": p.X, "y": p.Y}
	if p.Z != nil {
		m["z"] = *p.Z
	}
	return m
}

// MarshalJSON encodes the point as {"srid":..,"x":..,"y":..[,"z":..]}.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.asMap())
}

// MarshalYAML encodes the point as a mapping.
func (p Point) MarshalYAML() (any, error) {
	return p.asMap(), nil
}
