package graph

import (
	"strings"
	"time"
)

// NodeType classifies extracted entities
type NodeType string

const (
	NodeTypePolicy    NodeType = "policy"
	NodeTypeAuthority NodeType = "authority"
	NodeTypeRegion    NodeType = "region"
	NodeTypeConcept   NodeType = "concept"
	NodeTypeProject   NodeType = "project"
)

// NodeTypes lists the allowed entity vocabulary in prompt order
var NodeTypes = []NodeType{
	NodeTypePolicy,
	NodeTypeAuthority,
	NodeTypeRegion,
	NodeTypeConcept,
	NodeTypeProject,
}

// ParseNodeType maps a raw extraction type onto the vocabulary.
// Returns false for anything outside it.
func ParseNodeType(s string) (NodeType, bool) {
	t := NodeType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range NodeTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// RelationType classifies directed edges between nodes
type RelationType string

const (
	RelationIssuedBy   RelationType = "issued_by"
	RelationAppliesTo  RelationType = "applies_to"
	RelationReferences RelationType = "references"
	RelationAffects    RelationType = "affects"
	RelationReplaces   RelationType = "replaces"
	RelationAmends     RelationType = "amends"
	RelationRelatesTo  RelationType = "relates_to"
)

// RelationTypes lists the allowed relation vocabulary in prompt order
var RelationTypes = []RelationType{
	RelationIssuedBy,
	RelationAppliesTo,
	RelationReferences,
	RelationAffects,
	RelationReplaces,
	RelationAmends,
	RelationRelatesTo,
}

// ParseRelationType maps a raw extraction type onto the vocabulary
func ParseRelationType(s string) (RelationType, bool) {
	t := RelationType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RelationTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// Node is a typed, labeled concept in the knowledge graph. The id is a
// deterministic function of (type, normalized label); the label keeps the
// first-seen original spelling for display.
type Node struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Type       NodeType          `json:"type"`
	Provenance []string          `json:"provenance,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Edge is a typed directed connection between two nodes, unique per
// (source, target, relation_type)
type Edge struct {
	SourceID   string            `json:"source"`
	TargetID   string            `json:"target"`
	Relation   RelationType      `json:"relation_type"`
	Provenance []string          `json:"provenance,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Key returns the identity triple of the edge
func (e Edge) Key() string {
	return e.SourceID + "|" + e.TargetID + "|" + string(e.Relation)
}

// Entity is a per-document extraction candidate; never persisted directly
type Entity struct {
	Label       string   `json:"label"`
	Type        NodeType `json:"type"`
	Description string   `json:"description,omitempty"`
}

// Relation is a per-document relation candidate between entity labels of
// the same extraction result
type Relation struct {
	SourceLabel string       `json:"source"`
	TargetLabel string       `json:"target"`
	Type        RelationType `json:"type"`
}

// ExtractionResult is the transient output of one extraction call
type ExtractionResult struct {
	Entities  []Entity
	Relations []Relation
}

// Empty reports whether the result carries nothing usable
func (r ExtractionResult) Empty() bool {
	return len(r.Entities) == 0 && len(r.Relations) == 0
}

// Snapshot is the persisted graph state. Nodes are unique by id, edges by
// (source, target, relation_type), and every edge endpoint references a
// node in the same snapshot.
type Snapshot struct {
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmptySnapshot returns the defined empty sentinel
func EmptySnapshot() *Snapshot {
	return &Snapshot{Nodes: []Node{}, Edges: []Edge{}}
}

// IsEmpty reports whether the snapshot holds no nodes
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Nodes) == 0
}

// NodeByID returns the node with the given id, or false
func (s *Snapshot) NodeByID(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// ProvenanceSet collects every document id that contributed a node
func (s *Snapshot) ProvenanceSet() map[string]bool {
	seen := make(map[string]bool)
	for _, n := range s.Nodes {
		for _, doc := range n.Provenance {
			seen[doc] = true
		}
	}
	return seen
}
