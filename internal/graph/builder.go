package graph

import (
	"strings"

	"go.uber.org/zap"

	"policy-graph/pkg/logger"
)

// DocumentResult pairs a source document id with its extraction output
type DocumentResult struct {
	DocID  string
	Result ExtractionResult
}

// Builder turns per-document extraction results into a candidate snapshot:
// labels are normalized, node ids assigned deterministically, duplicates
// merged within and across documents, and relations that did not resolve to
// two nodes of the same extraction result dropped. The candidate has not
// been reconciled with persisted state; that is the store's job.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{logger: logger.Get()}
}

// Build accumulates every document's extraction result into one candidate
// snapshot. Node and edge identity is content-derived, so the output is
// independent of document order.
func (b *Builder) Build(results []DocumentResult) *Snapshot {
	nodes := make(map[string]*Node)
	edges := make(map[string]*Edge)

	for _, dr := range results {
		// Relation endpoints are labels scoped to this document's result;
		// cross-document relation inference is not attempted.
		local := make(map[string]string)

		for _, ent := range dr.Result.Entities {
			norm := NormalizeLabel(ent.Label)
			if norm == "" || ent.Type == "" {
				continue
			}
			id := NodeID(ent.Type, ent.Label)

			node, ok := nodes[id]
			if !ok {
				node = &Node{
					ID:    id,
					Label: DisplayLabel(ent.Label),
					Type:  ent.Type,
				}
				if ent.Description != "" {
					node.Properties = map[string]string{"description": ent.Description}
				}
				nodes[id] = node
			} else if node.Label != DisplayLabel(ent.Label) {
				b.logger.Warn("label variants merged into one node",
					zap.String("node_id", id),
					zap.String("kept", node.Label),
					zap.String("merged", strings.TrimSpace(ent.Label)),
					zap.String("document", dr.DocID),
				)
			}
			node.Provenance = appendProvenance(node.Provenance, dr.DocID)

			if _, taken := local[norm]; !taken {
				local[norm] = id
			}
		}

		for _, rel := range dr.Result.Relations {
			sourceID, okSource := local[NormalizeLabel(rel.SourceLabel)]
			targetID, okTarget := local[NormalizeLabel(rel.TargetLabel)]
			if !okSource || !okTarget {
				// Orphans are warned about at parse time; this is the
				// dangling-edge guard for anything that slipped through.
				b.logger.Debug("dropping relation with unresolved endpoint",
					zap.String("source", rel.SourceLabel),
					zap.String("target", rel.TargetLabel),
					zap.String("document", dr.DocID),
				)
				continue
			}
			if sourceID == targetID {
				continue
			}

			candidate := Edge{SourceID: sourceID, TargetID: targetID, Relation: rel.Type}
			if existing, ok := edges[candidate.Key()]; ok {
				existing.Provenance = appendProvenance(existing.Provenance, dr.DocID)
			} else {
				candidate.Provenance = appendProvenance(nil, dr.DocID)
				edges[candidate.Key()] = &candidate
			}
		}
	}

	snapshot := EmptySnapshot()
	for _, n := range nodes {
		snapshot.Nodes = append(snapshot.Nodes, *n)
	}
	for _, e := range edges {
		snapshot.Edges = append(snapshot.Edges, *e)
	}
	Canonicalize(snapshot)
	return snapshot
}

func appendProvenance(provenance []string, docID string) []string {
	if docID == "" {
		return provenance
	}
	for _, existing := range provenance {
		if existing == docID {
			return provenance
		}
	}
	return append(provenance, docID)
}
