package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-graph/internal/graph"
	perrors "policy-graph/pkg/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshotFrom(docID string, entities []graph.Entity, relations []graph.Relation) *graph.Snapshot {
	return graph.NewBuilder().Build([]graph.DocumentResult{
		{DocID: docID, Result: graph.ExtractionResult{Entities: entities, Relations: relations}},
	})
}

func TestSQLiteStore_LoadEmptySentinel(t *testing.T) {
	s := newTestStore(t)

	snapshot, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.Equal(t, 0, snapshot.NodeCount)
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	candidate := snapshotFrom("doc-1",
		[]graph.Entity{
			{Label: "Clean Air Act", Type: graph.NodeTypePolicy},
			{Label: "EPA", Type: graph.NodeTypeAuthority},
		},
		[]graph.Relation{{SourceLabel: "Clean Air Act", TargetLabel: "EPA", Type: graph.RelationIssuedBy}},
	)

	saved, err := s.Save(ctx, candidate, false)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.NodeCount)
	assert.Equal(t, 1, saved.EdgeCount)
	assert.False(t, saved.CreatedAt.IsZero())

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Nodes, loaded.Nodes)
	assert.Equal(t, saved.Edges, loaded.Edges)
}

func TestSQLiteStore_FullSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, snapshotFrom("doc-1",
		[]graph.Entity{{Label: "Old Policy", Type: graph.NodeTypePolicy}}, nil), false)
	require.NoError(t, err)

	saved, err := s.Save(ctx, snapshotFrom("doc-2",
		[]graph.Entity{{Label: "New Policy", Type: graph.NodeTypePolicy}}, nil), false)
	require.NoError(t, err)

	assert.Equal(t, 1, saved.NodeCount)
	assert.Equal(t, "New Policy", saved.Nodes[0].Label)
}

func TestSQLiteStore_IncrementalSaveMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, snapshotFrom("doc-1",
		[]graph.Entity{{Label: "Clean Air Act", Type: graph.NodeTypePolicy}}, nil), false)
	require.NoError(t, err)

	second, err := s.Save(ctx, snapshotFrom("doc-2",
		[]graph.Entity{
			{Label: "Clean Air Act", Type: graph.NodeTypePolicy},
			{Label: "EPA", Type: graph.NodeTypeAuthority},
		}, nil), true)
	require.NoError(t, err)

	assert.Equal(t, 2, second.NodeCount)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "incremental keeps creation time")
	assert.True(t, graph.Validate(second))

	node, ok := second.NodeByID(graph.NodeID(graph.NodeTypePolicy, "Clean Air Act"))
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, node.Provenance)
}

func TestSQLiteStore_IncrementalSaveIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	candidate := snapshotFrom("doc-1",
		[]graph.Entity{
			{Label: "Zoning Code", Type: graph.NodeTypePolicy},
			{Label: "Planning Board", Type: graph.NodeTypeAuthority},
		},
		[]graph.Relation{{SourceLabel: "Zoning Code", TargetLabel: "Planning Board", Type: graph.RelationIssuedBy}},
	)

	first, err := s.Save(ctx, candidate, true)
	require.NoError(t, err)
	second, err := s.Save(ctx, candidate, true)
	require.NoError(t, err)

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestSQLiteStore_ConcurrentSaveRejected(t *testing.T) {
	s := newTestStore(t)

	s.building.Store(true)
	defer s.building.Store(false)

	_, err := s.Save(context.Background(), graph.EmptySnapshot(), false)
	require.Error(t, err)
	var busy *perrors.ErrConcurrentBuild
	assert.ErrorAs(t, err, &busy)

	_, err = s.RepairDuplicates(context.Background())
	assert.ErrorAs(t, err, &busy)

	err = s.Clear(context.Background())
	assert.ErrorAs(t, err, &busy, "clear is a write and respects the guard")
}

func TestSQLiteStore_RepairDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Persist a snapshot carrying a pre-normalization duplicate directly,
	// bypassing the builder that would have merged it.
	legacy := &graph.Snapshot{
		Nodes: []graph.Node{
			{ID: "policy:legacy", Label: "Water Directive.pdf", Type: graph.NodeTypePolicy, Provenance: []string{"doc-1"}},
			{ID: graph.NodeID(graph.NodeTypePolicy, "Water Directive"), Label: "Water Directive", Type: graph.NodeTypePolicy, Provenance: []string{"doc-2"}},
		},
		Edges: []graph.Edge{},
	}
	graph.Canonicalize(legacy)
	require.NoError(t, s.persist(ctx, legacy))

	removed, err := s.RepairDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NodeCount)
	assert.True(t, graph.Validate(loaded))
}

func TestSQLiteStore_RepairNoopOnCleanSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, snapshotFrom("doc-1",
		[]graph.Entity{{Label: "Clean Policy", Type: graph.NodeTypePolicy}}, nil), false)
	require.NoError(t, err)

	removed, err := s.RepairDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSQLiteStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, snapshotFrom("doc-1",
		[]graph.Entity{{Label: "Anything", Type: graph.NodeTypeConcept}}, nil), false)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.IsEmpty())
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NodeCount)

	saved, err := s.Save(ctx, snapshotFrom("doc-1",
		[]graph.Entity{
			{Label: "A", Type: graph.NodeTypeConcept},
			{Label: "B", Type: graph.NodeTypeConcept},
		},
		[]graph.Relation{{SourceLabel: "A", TargetLabel: "B", Type: graph.RelationRelatesTo}},
	), false)
	require.NoError(t, err)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.NodeCount, stats.NodeCount)
	assert.Equal(t, saved.EdgeCount, stats.EdgeCount)
	assert.False(t, stats.UpdatedAt.IsZero())
}

func TestSQLiteStore_StatsToleratesMalformedTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO knowledge_graph (graph_data, node_count, edge_count, created_at, updated_at)
	VALUES ('{"nodes":[],"edges":[]}', 5, 2, 'not-a-time', 'also-not-a-time')`)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err, "malformed timestamps degrade to zero values, not errors")
	assert.Equal(t, 5, stats.NodeCount)
	assert.Equal(t, 2, stats.EdgeCount)
	assert.True(t, stats.CreatedAt.IsZero())
	assert.True(t, stats.UpdatedAt.IsZero())
}
