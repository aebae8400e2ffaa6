package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"policy-graph/internal/graph"
	perrors "policy-graph/pkg/errors"
	"policy-graph/pkg/logger"
)

// Neo4jStore persists the snapshot as real graph entities: one :Entity node
// per graph node, one :RELATION relationship per edge, and a :GraphMeta
// node carrying the precomputed stats. The snapshot contract is identical
// to the SQLite backend; merging happens in memory so both backends share
// the same identity rules.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	building atomic.Bool
	logger   *zap.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity
func NewNeo4jStore(ctx context.Context, uri, user, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver, logger: logger.Get()}, nil
}

// Close closes the driver connection
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// Save commits a candidate snapshot. The replace happens inside a single
// write transaction, so readers see either the previous snapshot or the
// new one, never a partial state.
func (s *Neo4jStore) Save(ctx context.Context, candidate *graph.Snapshot, incremental bool) (*graph.Snapshot, error) {
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

func (s *Neo4jStore) persist(ctx context.Context, snapshot *graph.Snapshot) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	nodes := make([]map[string]interface{}, 0, len(snapshot.Nodes))
	for _, n := range snapshot.Nodes {
		nodes = append(nodes, map[string]interface{}{
			"id":         n.ID,
			"label":      n.Label,
			"type":       string(n.Type),
			"provenance": n.Provenance,
			"props":      marshalProperties(n.Properties),
		})
	}
	edges := make([]map[string]interface{}, 0, len(snapshot.Edges))
	for _, e := range snapshot.Edges {
		edges = append(edges, map[string]interface{}{
			"source":     e.SourceID,
			"target":     e.TargetID,
			"type":       string(e.Relation),
			"provenance": e.Provenance,
			"props":      marshalProperties(e.Properties),
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
			MERGE (m:GraphMeta {id: 'current'})
			SET m.node_count = $nodeCount,
			    m.edge_count = $edgeCount,
			    m.created_at = $createdAt,
			    m.updated_at = $updatedAt
		`, map[string]interface{}{
			"nodeCount": snapshot.NodeCount,
			"edgeCount": snapshot.EdgeCount,
			"createdAt": snapshot.CreatedAt.Format(time.RFC3339Nano),
			"updatedAt": snapshot.UpdatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			_, err = tx.Run(ctx, `
				UNWIND $nodes AS n
				CREATE (:Entity {id: n.id, label: n.label, type: n.type, provenance: n.provenance, props: n.props})
			`, map[string]interface{}{"nodes": nodes})
			if err != nil {
				return nil, err
			}
		}
		if len(edges) > 0 {
			_, err = tx.Run(ctx, `
				UNWIND $edges AS e
				MATCH (s:Entity {id: e.source}), (t:Entity {id: e.target})
				CREATE (s)-[:RELATION {type: e.type, provenance: e.provenance, props: e.props}]->(t)
			`, map[string]interface{}{"edges": edges})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

// Load reads the current snapshot, or the empty sentinel when none exists
func (s *Neo4jStore) Load(ctx context.Context) (*graph.Snapshot, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		snapshot := graph.EmptySnapshot()

		meta, err := tx.Run(ctx, `
			MATCH (m:GraphMeta {id: 'current'})
			RETURN m.created_at AS created_at, m.updated_at AS updated_at
		`, nil)
		if err != nil {
			return nil, err
		}
		if meta.Next(ctx) {
			record := meta.Record()
			snapshot.CreatedAt = timeValue(record, "created_at")
			snapshot.UpdatedAt = timeValue(record, "updated_at")
		} else {
			return snapshot, nil
		}

		nodes, err := tx.Run(ctx, `
			MATCH (n:Entity)
			RETURN n.id AS id, n.label AS label, n.type AS type, n.provenance AS provenance, n.props AS props
		`, nil)
		if err != nil {
			return nil, err
		}
		for nodes.Next(ctx) {
			record := nodes.Record()
			snapshot.Nodes = append(snapshot.Nodes, graph.Node{
				ID:         stringValue(record, "id"),
				Label:      stringValue(record, "label"),
				Type:       graph.NodeType(stringValue(record, "type")),
				Provenance: stringSliceValue(record, "provenance"),
				Properties: unmarshalProperties(stringValue(record, "props")),
			})
		}

		edges, err := tx.Run(ctx, `
			MATCH (s:Entity)-[r:RELATION]->(t:Entity)
			RETURN s.id AS source, t.id AS target, r.type AS type, r.provenance AS provenance, r.props AS props
		`, nil)
		if err != nil {
			return nil, err
		}
		for edges.Next(ctx) {
			record := edges.Record()
			snapshot.Edges = append(snapshot.Edges, graph.Edge{
				SourceID:   stringValue(record, "source"),
				TargetID:   stringValue(record, "target"),
				Relation:   graph.RelationType(stringValue(record, "type")),
				Provenance: stringSliceValue(record, "provenance"),
				Properties: unmarshalProperties(stringValue(record, "props")),
			})
		}

		graph.Canonicalize(snapshot)
		return snapshot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return result.(*graph.Snapshot), nil
}

// RepairDuplicates re-applies normalization to the persisted snapshot and
// merges legacy duplicates, same as the SQLite backend
func (s *Neo4jStore) RepairDuplicates(ctx context.Context) (int, error) {
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
	return removed, nil
}

// Clear wipes the snapshot back to the empty sentinel. Writes through the
// same single-writer guard as Save, so it cannot interleave with a build.
func (s *Neo4jStore) Clear(ctx context.Context) error {
	if !s.building.CompareAndSwap(false, true) {
		return perrors.NewConcurrentBuild()
	}
	defer s.building.Store(false)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `MATCH (m:GraphMeta) DELETE m`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	s.logger.Info("graph snapshot cleared")
	return nil
}

// Stats reads the precomputed counts from the meta node
func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:GraphMeta {id: 'current'})
		RETURN m.node_count AS node_count, m.edge_count AS edge_count,
		       m.created_at AS created_at, m.updated_at AS updated_at
	`, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read snapshot stats: %w", err)
	}
	if !result.Next(ctx) {
		return Stats{}, result.Err()
	}

	record := result.Record()
	return Stats{
		NodeCount: intValue(record, "node_count"),
		EdgeCount: intValue(record, "edge_count"),
		CreatedAt: timeValue(record, "created_at"),
		UpdatedAt: timeValue(record, "updated_at"),
	}, nil
}

// Record value helpers

func stringValue(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func intValue(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	if n, ok := val.(int64); ok {
		return int(n)
	}
	return 0
}

func timeValue(record *neo4j.Record, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, stringValue(record, key))
	return t
}

func stringSliceValue(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok {
		return nil
	}
	slice, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func marshalProperties(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	data, err := json.Marshal(props)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProperties(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var props map[string]string
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil
	}
	return props
}
