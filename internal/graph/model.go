package graph

import "sort"

// Node is a graph node as returned in a record. Relationships links to the
// relationships touching this node that were returned in the same record,
// so a Node and a Relationship may reference each other.
type Node struct {
	ElementID     string
	Labels        []string
	Props         map[string]any
	Relationships []*Relationship
}

// Relationship is a graph relationship as returned in a record. Start and End
// are set when the endpoint nodes were returned in the same record.
type Relationship struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Start          *Node
	End            *Node
	Props          map[string]any
}

// Path is an alternating sequence of nodes and relationships.
type Path struct {
	Nodes         []*Node
	Relationships []*Relationship
}

// entityTable interns entities by element ID within one record so repeated
// occurrences share a pointer and links can be resolved.
type entityTable struct {
	nodes map[string]*Node
	rels  map[string]*Relationship
}

func newEntityTable() *entityTable {
	return &entityTable{
		nodes: make(map[string]*Node),
		rels:  make(map[string]*Relationship),
	}
}

func (t *entityTable) node(id string, labels []string, props map[string]any) *Node {
	if n, ok := t.nodes[id]; ok {
		return n
	}
	n := &Node{ElementID: id, Labels: labels, Props: props}
	t.nodes[id] = n
	return n
}

func (t *entityTable) relationship(id, relType, startID, endID string, props map[string]any) *Relationship {
	if r, ok := t.rels[id]; ok {
		return r
	}
	r := &Relationship{
		ElementID:      id,
		Type:           relType,
		StartElementID: startID,
		EndElementID:   endID,
		Props:          props,
	}
	t.rels[id] = r
	return r
}

// link connects every interned relationship to its interned endpoints.
func (t *entityTable) link() {
	ids := make([]string, 0, len(t.rels))
	for id := range t.rels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := t.rels[id]
		if r.Start == nil {
			if n, ok := t.nodes[r.StartElementID]; ok {
				r.Start = n
				n.Relationships = appendRel(n.Relationships, r)
			}
		}
		if r.End == nil {
			if n, ok := t.nodes[r.EndElementID]; ok {
				r.End = n
				n.Relationships = appendRel(n.Relationships, r)
			}
		}
	}
}

func appendRel(rels []*Relationship, r *Relationship) []*Relationship {
	for _, existing := range rels {
		if existing == r {
			return rels
		}
	}
	return append(rels, r)
}
