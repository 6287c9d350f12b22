package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// convertRecord converts a driver record into a Record, interning graph
// entities by element ID so that nodes and relationships returned in the
// same row are linked to each other.
func convertRecord(rec *neo4j.Record) Record {
	table := newEntityTable()
	values := make([]any, len(rec.Values))
	for i, v := range rec.Values {
		values[i] = convertValue(v, table)
	}
	table.link()

	return Record{
		Keys:   rec.Keys,
		Values: values,
	}
}

// convertValue maps driver values to plain Go values and the graph model.
// Temporal values become ISO 8601 strings tagged with their kind.
func convertValue(v any, table *entityTable) any {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return val
	case dbtype.Node:
		return table.node(val.ElementId, val.Labels, convertProps(val.Props, table))
	case dbtype.Relationship:
		return table.relationship(val.ElementId, val.Type, val.StartElementId, val.EndElementId,
			convertProps(val.Props, table))
	case dbtype.Path:
		p := &Path{
			Nodes:         make([]*Node, 0, len(val.Nodes)),
			Relationships: make([]*Relationship, 0, len(val.Relationships)),
		}
		for _, n := range val.Nodes {
			p.Nodes = append(p.Nodes, convertValue(n, table).(*Node))
		}
		for _, r := range val.Relationships {
			p.Relationships = append(p.Relationships, convertValue(r, table).(*Relationship))
		}
		return p
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item, table)
		}
		return out
	case map[string]any:
		return convertProps(val, table)
	case time.Time:
		return Temporal{Kind: TemporalDateTime, Value: val.Format(time.RFC3339Nano)}
	case dbtype.Date:
		return Temporal{Kind: TemporalDate, Value: val.Time().Format("2006-01-02")}
	case dbtype.LocalDateTime:
		return Temporal{Kind: TemporalLocalDateTime, Value: val.Time().Format("2006-01-02T15:04:05.999999999")}
	case dbtype.LocalTime:
		return Temporal{Kind: TemporalLocalTime, Value: val.Time().Format("15:04:05.999999999")}
	case dbtype.Time:
		return Temporal{Kind: TemporalTime, Value: val.Time().Format("15:04:05.999999999Z07:00")}
	case dbtype.Duration:
		return Temporal{Kind: TemporalDuration, Value: val.String()}
	case dbtype.Point2D:
		return Point{SRID: int64(val.SpatialRefId), X: val.X, Y: val.Y}
	case dbtype.Point3D:
		z := val.Z
		return Point{SRID: int64(val.SpatialRefId), X: val.X, Y: val.Y, Z: &z}
	default:
		return val
	}
}

func convertProps(props map[string]any, table *entityTable) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = convertValue(v, table)
	}
	return out
}

// convertSummary extracts counters and planner metadata from a driver summary.
func convertSummary(summary neo4j.ResultSummary) Summary {
	if summary == nil {
		return Summary{}
	}

	s := Summary{
		QueryType:            convertStatementType(summary.StatementType()),
		ResultAvailableAfter: summary.ResultAvailableAfter(),
		ResultConsumedAfter:  summary.ResultConsumedAfter(),
	}
	if db := summary.Database(); db != nil {
		s.Database = db.Name()
	}
	if c := summary.Counters(); c != nil {
		s.Counters = Counters{
			NodesCreated:         c.NodesCreated(),
			NodesDeleted:         c.NodesDeleted(),
			RelationshipsCreated: c.RelationshipsCreated(),
			RelationshipsDeleted: c.RelationshipsDeleted(),
			PropertiesSet:        c.PropertiesSet(),
			LabelsAdded:          c.LabelsAdded(),
			LabelsRemoved:        c.LabelsRemoved(),
			IndexesAdded:         c.IndexesAdded(),
			IndexesRemoved:       c.IndexesRemoved(),
			ConstraintsAdded:     c.ConstraintsAdded(),
			ConstraintsRemoved:   c.ConstraintsRemoved(),
			SystemUpdates:        c.SystemUpdates(),
		}
	}
	return s
}

func convertStatementType(t neo4j.StatementType) QueryType {
	switch t {
	case neo4j.StatementTypeReadOnly:
		return QueryTypeReadOnly
	case neo4j.StatementTypeReadWrite:
		return QueryTypeReadWrite
	case neo4j.StatementTypeWriteOnly:
		return QueryTypeWriteOnly
	case neo4j.StatementTypeSchemaWrite:
		return QueryTypeSchemaWrite
	default:
		return QueryTypeUnknown
	}
}
