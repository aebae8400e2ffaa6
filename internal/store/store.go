package store

import (
	"context"
	"time"

	"policy-graph/internal/graph"
)

// Stats is the cheap summary precomputed at save time; reading it never
// scans the snapshot
type Stats struct {
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GraphStore persists exactly one current snapshot. Save with
// incremental=false replaces it atomically; incremental=true unions the
// candidate into it under the builder's identity rules. Snapshots are
// immutable once written, so reads never block; at most one writer runs at
// a time, a second Save is rejected with ErrConcurrentBuild.
type GraphStore interface {
	Save(ctx context.Context, candidate *graph.Snapshot, incremental bool) (*graph.Snapshot, error)
	Load(ctx context.Context) (*graph.Snapshot, error)
	RepairDuplicates(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// reconcile turns a builder candidate into the snapshot to persist:
// incremental saves union into the existing snapshot and keep its creation
// time, full saves replace it outright
func reconcile(existing, candidate *graph.Snapshot, incremental bool, now time.Time) *graph.Snapshot {
	var next *graph.Snapshot
	if incremental && !existing.IsEmpty() {
		next = graph.Merge(existing, candidate)
	} else {
		next = graph.Merge(graph.EmptySnapshot(), candidate)
		next.CreatedAt = time.Time{}
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	graph.Canonicalize(next)
	return next
}
