// Package storage implements the SQLite-backed graph storage engine.
//
// The engine maps the property graph onto a normalized relational schema:
// nodes and relationships carry their property maps as canonical JSON blobs,
// labels and relationship types are interned to integer surrogates, and
// adjacency is answered from indexes on (source_id, type) and
// (target_id, type). Full-text search rides on an FTS5 virtual table when the
// driver provides it; vector index descriptors and raw vectors persist in
// their own tables so approximate indexes can be rebuilt after reopen.
//
// All mutations run inside SQLite transactions under a single-writer mutex.
// The Engine interface is implemented both by *Store (auto-commit per call)
// and *Tx (explicit transaction), so callers hold one surface regardless of
// transactional context.
package storage

import (
	"regexp"
)

// Node is a persisted graph node.
type Node struct {
	ID         int64
	Labels     []string
	Properties map[string]any
	CreatedAt  float64
}

// NodeID implements value.NodeRef.
func (n *Node) NodeID() int64 { return n.ID }

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Relationship is a persisted directed, typed edge.
type Relationship struct {
	ID         int64
	SourceID   int64
	TargetID   int64
	Type       string
	Properties map[string]any
}

// RelID implements value.RelRef.
func (r *Relationship) RelID() int64 { return r.ID }

// Direction selects which incident relationships Neighbors traverses.
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirIn:
		return "in"
	default:
		return "both"
	}
}

// Neighbor pairs a relationship with the node on its far end.
type Neighbor struct {
	Rel  *Relationship
	Node *Node
}

// UpdateMode selects how a property patch applies.
type UpdateMode int

const (
	// UpdateMerge overlays the patch onto existing properties; a null patch
	// value removes the key.
	UpdateMerge UpdateMode = iota
	// UpdateReplace discards existing properties and installs the patch.
	UpdateReplace
)

// IndexKind discriminates index descriptors.
type IndexKind string

const (
	IndexProperty IndexKind = "property"
	IndexFulltext IndexKind = "fulltext"
	IndexVector   IndexKind = "vector"
)

// IndexDescriptor describes a named index.
type IndexDescriptor struct {
	Name     string
	Kind     IndexKind
	Label    string
	Property string
}

// ConstraintKind discriminates constraint descriptors.
type ConstraintKind string

const (
	ConstraintUnique ConstraintKind = "unique"
	ConstraintExists ConstraintKind = "exists"
	ConstraintType   ConstraintKind = "type"
)

// ConstraintDescriptor describes a constraint on (label, property).
type ConstraintDescriptor struct {
	ID        int64
	Kind      ConstraintKind
	Label     string
	Property  string
	ValueKind string
}

// VectorIndexDescriptor is the durable metadata for a vector index.
type VectorIndexDescriptor struct {
	Name    string
	Dim     int
	Metric  string
	Method  string
	Options map[string]any
}

// VectorEntry is one stored embedding row. Vector is nil when raw vectors
// were not opted in at upsert time.
type VectorEntry struct {
	NodeID int64
	Vector []float32
}

// TextHit is one full-text search result.
type TextHit struct {
	NodeID int64
	Score  float64
}

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s is admissible as a label or relationship type.
func ValidName(s string) bool {
	return nameRe.MatchString(s)
}

// Engine is the graph operation surface shared by *Store (each call commits
// on its own) and *Tx (calls accumulate until Commit).
type Engine interface {
	CreateNode(labels []string, properties map[string]any) (*Node, error)
	GetNode(id int64) (*Node, error)
	UpdateNodeProperties(id int64, patch map[string]any, mode UpdateMode) (*Node, error)
	AddLabels(id int64, labels []string) (*Node, error)
	RemoveLabels(id int64, labels []string) (*Node, error)
	DeleteNode(id int64, detach bool) error

	CreateRelationship(sourceID, targetID int64, relType string, properties map[string]any) (*Relationship, error)
	GetRelationship(id int64) (*Relationship, error)
	UpdateRelationshipProperties(id int64, patch map[string]any, mode UpdateMode) (*Relationship, error)
	DeleteRelationship(id int64) error

	MatchNodes(labels []string, properties map[string]any) ([]*Node, error)
	MatchRelationships(relType string, properties map[string]any) ([]*Relationship, error)
	Neighbors(nodeID int64, dir Direction, relType string) ([]Neighbor, error)

	NodeCount() (int64, error)
	RelationshipCount() (int64, error)
	AllLabels() ([]string, error)
	AllRelationshipTypes() ([]string, error)
}
