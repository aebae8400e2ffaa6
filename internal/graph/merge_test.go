package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrom(t *testing.T, results ...DocumentResult) *Snapshot {
	t.Helper()
	return NewBuilder().Build(results)
}

func TestMerge_UnionEqualsCombinedBuild(t *testing.T) {
	batchA := docResult("doc-a",
		[]Entity{
			{Label: "Clean Water Act", Type: NodeTypePolicy},
			{Label: "EPA", Type: NodeTypeAuthority},
		},
		[]Relation{{SourceLabel: "Clean Water Act", TargetLabel: "EPA", Type: RelationIssuedBy}},
	)
	batchB := docResult("doc-b",
		[]Entity{
			{Label: "EPA", Type: NodeTypeAuthority},
			{Label: "Great Lakes", Type: NodeTypeRegion},
		},
		[]Relation{{SourceLabel: "EPA", TargetLabel: "Great Lakes", Type: RelationAffects}},
	)

	merged := Merge(buildFrom(t, batchA), buildFrom(t, batchB))
	combined := buildFrom(t, batchA, batchB)

	assert.Equal(t, combined.Nodes, merged.Nodes)
	assert.Equal(t, combined.Edges, merged.Edges)
}

func TestMerge_Idempotent(t *testing.T) {
	snapshot := buildFrom(t, docResult("doc-1",
		[]Entity{
			{Label: "Noise Ordinance", Type: NodeTypePolicy},
			{Label: "City Council", Type: NodeTypeAuthority},
		},
		[]Relation{{SourceLabel: "Noise Ordinance", TargetLabel: "City Council", Type: RelationIssuedBy}},
	))

	merged := Merge(snapshot, snapshot)
	assert.Equal(t, snapshot.Nodes, merged.Nodes)
	assert.Equal(t, snapshot.Edges, merged.Edges)
	assert.Equal(t, snapshot.NodeCount, merged.NodeCount)
	assert.Equal(t, snapshot.EdgeCount, merged.EdgeCount)
}

func TestMerge_BaseWinsLabelAndPropertyConflicts(t *testing.T) {
	base := buildFrom(t, docResult("doc-1",
		[]Entity{{Label: "Green Belt", Type: NodeTypeConcept, Description: "original"}}, nil))
	delta := buildFrom(t, docResult("doc-2",
		[]Entity{{Label: "GREEN BELT", Type: NodeTypeConcept, Description: "rewritten"}}, nil))

	merged := Merge(base, delta)
	require.Equal(t, 1, merged.NodeCount)
	assert.Equal(t, "Green Belt", merged.Nodes[0].Label)
	assert.Equal(t, "original", merged.Nodes[0].Properties["description"])
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, merged.Nodes[0].Provenance)
}

func TestRepair_MergesLegacySuffixDuplicates(t *testing.T) {
	// A snapshot persisted before suffix stripping existed: the same policy
	// stored twice, once with the raw file name as label.
	legacy := &Snapshot{
		Nodes: []Node{
			{ID: "policy:legacy1", Label: "Zoning Regulation 2021.pdf", Type: NodeTypePolicy, Provenance: []string{"doc-1"}},
			{ID: NodeID(NodeTypePolicy, "Zoning Regulation 2021"), Label: "Zoning Regulation 2021", Type: NodeTypePolicy, Provenance: []string{"doc-2"}},
			{ID: NodeID(NodeTypeRegion, "Harbor District"), Label: "Harbor District", Type: NodeTypeRegion, Provenance: []string{"doc-1"}},
		},
		Edges: []Edge{
			{SourceID: "policy:legacy1", TargetID: NodeID(NodeTypeRegion, "Harbor District"), Relation: RelationAppliesTo, Provenance: []string{"doc-1"}},
			{SourceID: NodeID(NodeTypePolicy, "Zoning Regulation 2021"), TargetID: NodeID(NodeTypeRegion, "Harbor District"), Relation: RelationAppliesTo, Provenance: []string{"doc-2"}},
		},
	}
	Canonicalize(legacy)

	repaired, removed := Repair(legacy)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, repaired.NodeCount)
	require.Equal(t, 1, repaired.EdgeCount)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, repaired.Edges[0].Provenance)
	assert.True(t, Validate(repaired))

	survivor, ok := repaired.NodeByID(NodeID(NodeTypePolicy, "Zoning Regulation 2021"))
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, survivor.Provenance)
}

func TestRepair_DropsEdgesCollapsedIntoSelfLoops(t *testing.T) {
	legacy := &Snapshot{
		Nodes: []Node{
			{ID: "concept:old", Label: "Density Bonus.pdf", Type: NodeTypeConcept},
			{ID: NodeID(NodeTypeConcept, "Density Bonus"), Label: "Density Bonus", Type: NodeTypeConcept},
		},
		Edges: []Edge{
			{SourceID: "concept:old", TargetID: NodeID(NodeTypeConcept, "Density Bonus"), Relation: RelationRelatesTo},
		},
	}
	Canonicalize(legacy)

	repaired, removed := Repair(legacy)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, repaired.EdgeCount)
}

func TestValidate_RejectsDanglingEdge(t *testing.T) {
	s := &Snapshot{
		Nodes: []Node{{ID: NodeID(NodeTypePolicy, "A"), Label: "A", Type: NodeTypePolicy}},
		Edges: []Edge{{SourceID: NodeID(NodeTypePolicy, "A"), TargetID: "missing", Relation: RelationReferences}},
	}
	Canonicalize(s)
	assert.False(t, Validate(s))
}
