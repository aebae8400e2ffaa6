package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"policy-graph/internal/graph"
	"policy-graph/internal/source"
	"policy-graph/internal/store"
	perrors "policy-graph/pkg/errors"
	"policy-graph/pkg/logger"
)

// Extractor is the extraction capability the pipeline needs
type Extractor interface {
	Extract(ctx context.Context, title, text string) (graph.ExtractionResult, []error)
}

// ProgressFunc is called once per document as it completes, with the
// 1-based position, the total count, and the document name
type ProgressFunc func(done, total int, name string)

// Options controls a single build run
type Options struct {
	// Incremental unions the run's output into the persisted snapshot
	// instead of replacing it; documents already recorded in the
	// snapshot's provenance are skipped entirely.
	Incremental bool
	Progress    ProgressFunc
}

// RunSummary is what a build run reports back. Per-document failures end
// up in Errors; only an unreachable document source or a concurrent build
// aborts the run.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	DocumentCount int           `json:"document_count"`
	SkippedCount  int           `json:"skipped_count"`
	NodeCount     int           `json:"node_count"`
	EdgeCount     int           `json:"edge_count"`
	NewNodeCount  int           `json:"new_node_count"`
	NewEdgeCount  int           `json:"new_edge_count"`
	Elapsed       time.Duration `json:"elapsed"`
	Errors        []string      `json:"errors,omitempty"`
}

// Orchestrator drives a full build: enumerate documents, extract from each
// in parallel, assemble one candidate snapshot, commit it once
type Orchestrator struct {
	source    source.DocumentSource
	extractor Extractor
	builder   *graph.Builder
	store     store.GraphStore
	workers   int
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline. workers bounds concurrent
// extractions; values below 1 are clamped to 1.
func NewOrchestrator(src source.DocumentSource, ext Extractor, st store.GraphStore, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		source:    src,
		extractor: ext,
		builder:   graph.NewBuilder(),
		store:     st,
		workers:   workers,
		logger:    logger.Get(),
	}
}

// Run executes one build. Extraction runs concurrently but the store sees
// exactly one save at the end, so a half-built graph is never visible.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}

	o.logger.Info("build run started",
		zap.String("run_id", summary.RunID),
		zap.Bool("incremental", opts.Incremental),
		zap.Int("workers", o.workers),
	)

	docs, err := o.source.ListDocuments(ctx)
	if err != nil {
		return nil, perrors.NewDocumentSourceUnavailable(err)
	}

	var before store.Stats
	if opts.Incremental {
		before, err = o.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		docs, summary.SkippedCount, err = o.filterProcessed(ctx, docs)
		if err != nil {
			return nil, err
		}
	}

	// Every post-skip document counts as processed, whether or not its
	// extraction contributed anything.
	summary.DocumentCount = len(docs)

	results, issues := o.extractAll(ctx, docs, opts.Progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, issue := range issues {
		summary.Errors = append(summary.Errors, issue.Error())
	}

	candidate := o.builder.Build(results)
	saved, err := o.store.Save(ctx, candidate, opts.Incremental)
	if err != nil {
		return nil, err
	}

	summary.NodeCount = saved.NodeCount
	summary.EdgeCount = saved.EdgeCount
	summary.NewNodeCount = saved.NodeCount - before.NodeCount
	summary.NewEdgeCount = saved.EdgeCount - before.EdgeCount
	summary.Elapsed = time.Since(start)

	o.logger.Info("build run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("documents", summary.DocumentCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("nodes", summary.NodeCount),
		zap.Int("edges", summary.EdgeCount),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// filterProcessed drops documents whose id already appears in the persisted
// snapshot's provenance, so an incremental run only pays for new material
func (o *Orchestrator) filterProcessed(ctx context.Context, docs []source.Document) ([]source.Document, int, error) {
	snapshot, err := o.store.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if snapshot.IsEmpty() {
		return docs, 0, nil
	}

	seen := snapshot.ProvenanceSet()
	remaining := docs[:0]
	for _, doc := range docs {
		if seen[doc.ID] {
			continue
		}
		remaining = append(remaining, doc)
	}
	return remaining, len(docs) - len(remaining), nil
}

// extractAll fetches and extracts every document with bounded parallelism.
// Failures never cancel the group; they become recorded issues and the
// document contributes nothing.
func (o *Orchestrator) extractAll(ctx context.Context, docs []source.Document, progress ProgressFunc) ([]graph.DocumentResult, []error) {
	var (
		mu      sync.Mutex
		results []graph.DocumentResult
		issues  []error
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}

			result, docIssues := o.extractOne(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if result != nil {
				results = append(results, *result)
			}
			issues = append(issues, docIssues...)
			done++
			if progress != nil {
				progress(done, len(docs), doc.Name)
			}
			return nil
		})
	}
	g.Wait()

	return results, issues
}

func (o *Orchestrator) extractOne(ctx context.Context, doc source.Document) (*graph.DocumentResult, []error) {
	text, err := o.source.DocumentContent(ctx, doc.ID)
	if err != nil {
		o.logger.Warn("skipping document, content fetch failed",
			zap.String("document_id", doc.ID),
			zap.String("name", doc.Name),
			zap.Error(err),
		)
		return nil, []error{perrors.NewDocumentFetchFailed(doc.ID, err)}
	}
	if text == "" {
		o.logger.Debug("skipping empty document",
			zap.String("document_id", doc.ID),
			zap.String("name", doc.Name),
		)
		return nil, nil
	}

	result, issues := o.extractor.Extract(ctx, doc.Name, text)
	if result.Empty() {
		return nil, issues
	}
	return &graph.DocumentResult{DocID: doc.ID, Result: result}, issues
}
