package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-graph/internal/graph"
	"policy-graph/internal/source"
	"policy-graph/internal/store"
	perrors "policy-graph/pkg/errors"
)

// fakeSource serves canned documents and records content fetches
type fakeSource struct {
	mu       sync.Mutex
	docs     []source.Document
	content  map[string]string
	listErr  error
	fetchErr map[string]error
	fetched  []string
}

func (f *fakeSource) ListDocuments(_ context.Context) ([]source.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.docs, nil
}

func (f *fakeSource) DocumentContent(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return "", err
	}
	return f.content[id], nil
}

// fakeExtractor maps document text to a fixed extraction result
type fakeExtractor struct {
	results map[string]graph.ExtractionResult
	issues  map[string][]error
}

func (f *fakeExtractor) Extract(_ context.Context, _, text string) (graph.ExtractionResult, []error) {
	return f.results[text], f.issues[text]
}

func newTestStore(t *testing.T) store.GraphStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entityResult(labels ...string) graph.ExtractionResult {
	var result graph.ExtractionResult
	for _, label := range labels {
		result.Entities = append(result.Entities, graph.Entity{Label: label, Type: graph.NodeTypeConcept})
	}
	return result
}

func TestRun_BuildsAndPersists(t *testing.T) {
	src := &fakeSource{
		docs: []source.Document{
			{ID: "doc-1", Name: "energy.pdf"},
			{ID: "doc-2", Name: "water.pdf"},
		},
		content: map[string]string{"doc-1": "energy text", "doc-2": "water text"},
	}
	ext := &fakeExtractor{results: map[string]graph.ExtractionResult{
		"energy text": entityResult("Energy Policy", "Grid Upgrade"),
		"water text":  entityResult("Water Directive"),
	}}
	st := newTestStore(t)

	o := NewOrchestrator(src, ext, st, 2)
	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.DocumentCount)
	assert.Equal(t, 3, summary.NodeCount)
	assert.Empty(t, summary.Errors)

	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.NodeCount)
}

func TestRun_ListFailureIsFatal(t *testing.T) {
	src := &fakeSource{listErr: errors.New("connection refused")}
	st := newTestStore(t)

	o := NewOrchestrator(src, &fakeExtractor{}, st, 1)
	_, err := o.Run(context.Background(), Options{})

	require.Error(t, err)
	var unavailable *perrors.ErrDocumentSourceUnavailable
	assert.ErrorAs(t, err, &unavailable)
	assert.True(t, perrors.IsFatal(err))
}

func TestRun_FetchFailureSkipsDocument(t *testing.T) {
	src := &fakeSource{
		docs: []source.Document{
			{ID: "doc-1", Name: "good.pdf"},
			{ID: "doc-2", Name: "bad.pdf"},
		},
		content:  map[string]string{"doc-1": "good text"},
		fetchErr: map[string]error{"doc-2": errors.New("timeout")},
	}
	ext := &fakeExtractor{results: map[string]graph.ExtractionResult{
		"good text": entityResult("Good Policy"),
	}}
	st := newTestStore(t)

	o := NewOrchestrator(src, ext, st, 2)
	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentCount, "failed document still counts as processed")
	assert.Equal(t, 1, summary.NodeCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "doc-2")
}

func TestRun_AllExtractionsFailedStillReported(t *testing.T) {
	src := &fakeSource{
		docs: []source.Document{
			{ID: "doc-1", Name: "a.pdf"},
			{ID: "doc-2", Name: "b.pdf"},
			{ID: "doc-3", Name: "c.pdf"},
		},
		content: map[string]string{"doc-1": "a", "doc-2": "b", "doc-3": "c"},
	}
	ext := &fakeExtractor{issues: map[string][]error{
		"a": {perrors.NewTransientExternal("a.pdf", errors.New("timeout"))},
		"b": {perrors.NewTransientExternal("b.pdf", errors.New("timeout"))},
		"c": {perrors.NewTransientExternal("c.pdf", errors.New("timeout"))},
	}}
	st := newTestStore(t)

	o := NewOrchestrator(src, ext, st, 2)
	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err, "per-document extraction failures never abort the run")
	assert.Equal(t, 3, summary.DocumentCount)
	assert.Equal(t, 0, summary.NodeCount)
	assert.Len(t, summary.Errors, 3)
}

func TestRun_ExtractionIssuesReported(t *testing.T) {
	src := &fakeSource{
		docs:    []source.Document{{ID: "doc-1", Name: "odd.pdf"}},
		content: map[string]string{"doc-1": "odd text"},
	}
	ext := &fakeExtractor{
		results: map[string]graph.ExtractionResult{"odd text": entityResult("Odd Policy")},
		issues: map[string][]error{
			"odd text": {perrors.NewOrphanRelation("Odd Policy", "Missing")},
		},
	}
	st := newTestStore(t)

	o := NewOrchestrator(src, ext, st, 1)
	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.NodeCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "Missing")
}

func TestRun_IncrementalSkipsProcessedDocuments(t *testing.T) {
	st := newTestStore(t)
	ext := &fakeExtractor{results: map[string]graph.ExtractionResult{
		"first text":  entityResult("First Policy"),
		"second text": entityResult("First Policy", "Second Policy"),
	}}

	src := &fakeSource{
		docs:    []source.Document{{ID: "doc-1", Name: "first.pdf"}},
		content: map[string]string{"doc-1": "first text"},
	}
	o := NewOrchestrator(src, ext, st, 1)
	first, err := o.Run(context.Background(), Options{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 1, first.NodeCount)
	assert.Equal(t, 1, first.NewNodeCount)

	src.docs = append(src.docs, source.Document{ID: "doc-2", Name: "second.pdf"})
	src.content["doc-2"] = "second text"
	src.fetched = nil

	second, err := o.Run(context.Background(), Options{Incremental: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-2"}, src.fetched, "already-processed document is not refetched")
	assert.Equal(t, 1, second.SkippedCount)
	assert.Equal(t, 1, second.DocumentCount)
	assert.Equal(t, 2, second.NodeCount)
	assert.Equal(t, 1, second.NewNodeCount)
}

func TestRun_IncrementalRerunIsNoop(t *testing.T) {
	st := newTestStore(t)
	ext := &fakeExtractor{results: map[string]graph.ExtractionResult{
		"text": entityResult("Stable Policy"),
	}}
	src := &fakeSource{
		docs:    []source.Document{{ID: "doc-1", Name: "stable.pdf"}},
		content: map[string]string{"doc-1": "text"},
	}

	o := NewOrchestrator(src, ext, st, 1)
	_, err := o.Run(context.Background(), Options{Incremental: true})
	require.NoError(t, err)

	rerun, err := o.Run(context.Background(), Options{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.DocumentCount)
	assert.Equal(t, 1, rerun.SkippedCount)
	assert.Equal(t, 0, rerun.NewNodeCount)
	assert.Equal(t, 1, rerun.NodeCount)
}

func TestRun_ProgressReported(t *testing.T) {
	src := &fakeSource{
		docs: []source.Document{
			{ID: "doc-1", Name: "a.pdf"},
			{ID: "doc-2", Name: "b.pdf"},
		},
		content: map[string]string{"doc-1": "a", "doc-2": "b"},
	}
	ext := &fakeExtractor{results: map[string]graph.ExtractionResult{
		"a": entityResult("A"),
		"b": entityResult("B"),
	}}
	st := newTestStore(t)

	var mu sync.Mutex
	var seen []int
	o := NewOrchestrator(src, ext, st, 1)
	_, err := o.Run(context.Background(), Options{
		Progress: func(done, total int, _ string) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})

	require.NoError(t, err)
	sort.Ints(seen)
	assert.Equal(t, []int{1, 2}, seen)
}
