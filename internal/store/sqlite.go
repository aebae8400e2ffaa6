package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"policy-graph/internal/graph"
	perrors "policy-graph/pkg/errors"
	"policy-graph/pkg/logger"
)

// SQLiteStore keeps the whole snapshot as one serialized record with
// precomputed counts. Adequate at the modeled scale; anything needing a
// real graph-capable store swaps in behind the GraphStore interface.
type SQLiteStore struct {
	db       *sql.DB
	building atomic.Bool
	logger   *zap.Logger
}

// NewSQLiteStore opens (and if needed initializes) the snapshot database
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.Get()}
	if err := s.initTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS knowledge_graph (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		graph_data TEXT NOT NULL,
		node_count INTEGER DEFAULT 0,
		edge_count INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to initialize knowledge_graph table: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save commits a candidate snapshot, replacing or merging per incremental.
// A second save while one is in flight is rejected, never queued.
func (s *SQLiteStore) Save(ctx context.Context, candidate *graph.Snapshot, incremental bool) (*graph.Snapshot, error) {
	if !s.building.CompareAndSwap(false, true) {
		return nil, perrors.NewConcurrentBuild()
	}
	defer s.building.Store(false)

	existing, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	next := reconcile(existing, candidate, incremental, time.Now().UTC())
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("graph snapshot saved",
		zap.Int("nodes", next.NodeCount),
		zap.Int("edges", next.EdgeCount),
		zap.Bool("incremental", incremental),
	)
	return next, nil
}

func (s *SQLiteStore) persist(ctx context.Context, snapshot *graph.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Only the latest snapshot is kept
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_graph`); err != nil {
		return fmt.Errorf("failed to drop previous snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO knowledge_graph (graph_data, node_count, edge_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`,
		string(data),
		snapshot.NodeCount,
		snapshot.EdgeCount,
		snapshot.CreatedAt.Format(time.RFC3339Nano),
		snapshot.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return tx.Commit()
}

// Load returns the current snapshot, or the empty sentinel when none has
// been saved yet
func (s *SQLiteStore) Load(ctx context.Context) (*graph.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
	SELECT graph_data FROM knowledge_graph
	ORDER BY updated_at DESC LIMIT 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return graph.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot graph.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, perrors.NewSnapshotCorrupt(err)
	}
	return &snapshot, nil
}

// RepairDuplicates re-applies the current normalization rules to the
// persisted snapshot and merges nodes stored before a rule existed.
// Returns the number of nodes removed.
func (s *SQLiteStore) RepairDuplicates(ctx context.Context) (int, error) {
	if !s.building.CompareAndSwap(false, true) {
		return 0, perrors.NewConcurrentBuild()
	}
	defer s.building.Store(false)

	current, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	if current.IsEmpty() {
		return 0, nil
	}

	repaired, removed := graph.Repair(current)
	if removed == 0 && repaired.EdgeCount == current.EdgeCount {
		return 0, nil
	}

	repaired.UpdatedAt = time.Now().UTC()
	if err := s.persist(ctx, repaired); err != nil {
		return 0, err
	}

	s.logger.Info("duplicate nodes repaired",
		zap.Int("removed_nodes", removed),
		zap.Int("remaining_nodes", repaired.NodeCount),
	)
	return removed, nil
}

// Clear wipes the snapshot back to the empty sentinel. Writes through the
// same single-writer guard as Save, so it cannot interleave with a build.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if !s.building.CompareAndSwap(false, true) {
		return perrors.NewConcurrentBuild()
	}
	defer s.building.Store(false)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_graph`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	s.logger.Info("graph snapshot cleared")
	return nil
}

// Stats reads the counts precomputed at save time
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
	SELECT node_count, edge_count, created_at, updated_at FROM knowledge_graph
	ORDER BY updated_at DESC LIMIT 1`).Scan(&stats.NodeCount, &stats.EdgeCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read snapshot stats: %w", err)
	}

	if stats.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		s.logger.Warn("malformed created_at on snapshot row",
			zap.String("value", createdAt),
			zap.Error(err),
		)
	}
	if stats.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		s.logger.Warn("malformed updated_at on snapshot row",
			zap.String("value", updatedAt),
			zap.Error(err),
		)
	}
	return stats, nil
}
