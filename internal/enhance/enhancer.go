package enhance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"policy-graph/internal/graph"
	"policy-graph/pkg/logger"
)

const relationsHeading = "[Knowledge Graph Relations]"

// EntityRecognizer names the entities mentioned in a piece of text. The
// build-time extractor satisfies it; only the entity list is used here.
type EntityRecognizer interface {
	Extract(ctx context.Context, title, text string) (graph.ExtractionResult, []error)
}

// Enhancement is the outcome of enriching one question
type Enhancement struct {
	EnhancedQuestion string       `json:"enhanced_question"`
	RelationsUsed    []graph.Edge `json:"relations_used,omitempty"`
}

// Enhancer augments a user question with relations read from the current
// snapshot. It never blocks a question: when the graph is empty, the
// recognizer fails, or nothing matches, the question passes through
// unchanged.
type Enhancer struct {
	recognizer  EntityRecognizer
	relationCap int
	logger      *zap.Logger
}

// NewEnhancer creates an enhancer. relationCap bounds the relations
// surfaced per matched node; values below 1 are clamped to 1.
func NewEnhancer(recognizer EntityRecognizer, relationCap int) *Enhancer {
	if relationCap < 1 {
		relationCap = 1
	}
	return &Enhancer{
		recognizer:  recognizer,
		relationCap: relationCap,
		logger:      logger.Get(),
	}
}

// Enhance returns the question with a relations section appended, or the
// question verbatim when the graph has nothing to offer
func (e *Enhancer) Enhance(ctx context.Context, question string, snapshot *graph.Snapshot) Enhancement {
	passthrough := Enhancement{EnhancedQuestion: question}
	if strings.TrimSpace(question) == "" || snapshot.IsEmpty() {
		return passthrough
	}

	result, _ := e.recognizer.Extract(ctx, "", question)
	if len(result.Entities) == 0 {
		return passthrough
	}

	matched := e.matchNodes(result.Entities, snapshot)
	if len(matched) == 0 {
		return passthrough
	}

	relations := e.collectRelations(matched, snapshot)
	if len(relations) == 0 {
		return passthrough
	}

	e.logger.Debug("question enhanced",
		zap.Int("matched_nodes", len(matched)),
		zap.Int("relations", len(relations)),
	)
	return Enhancement{
		EnhancedQuestion: formatEnhanced(question, relations, snapshot),
		RelationsUsed:    relations,
	}
}

// matchNodes resolves recognized entities to snapshot nodes: exact match on
// the normalized label first, substring containment as a fallback. Order
// follows the recognized-entity order, so output stays deterministic.
func (e *Enhancer) matchNodes(entities []graph.Entity, snapshot *graph.Snapshot) []graph.Node {
	var matched []graph.Node
	seen := make(map[string]bool)

	add := func(n graph.Node) {
		if !seen[n.ID] {
			seen[n.ID] = true
			matched = append(matched, n)
		}
	}

	for _, ent := range entities {
		norm := graph.NormalizeLabel(ent.Label)
		if norm == "" {
			continue
		}

		found := false
		for _, n := range snapshot.Nodes {
			if graph.NormalizeLabel(n.Label) == norm {
				add(n)
				found = true
			}
		}
		if found {
			continue
		}
		for _, n := range snapshot.Nodes {
			nodeNorm := graph.NormalizeLabel(n.Label)
			if strings.Contains(nodeNorm, norm) || strings.Contains(norm, nodeNorm) {
				add(n)
			}
		}
	}
	return matched
}

// collectRelations gathers edges incident to the matched nodes, both
// directions, at most relationCap per node, deduplicated across nodes.
// Per-node ordering is by relation type, then by the far endpoint's label.
func (e *Enhancer) collectRelations(matched []graph.Node, snapshot *graph.Snapshot) []graph.Edge {
	var out []graph.Edge
	taken := make(map[string]bool)

	for _, node := range matched {
		var incident []graph.Edge
		for _, edge := range snapshot.Edges {
			if edge.SourceID == node.ID || edge.TargetID == node.ID {
				incident = append(incident, edge)
			}
		}

		sort.Slice(incident, func(i, j int) bool {
			if incident[i].Relation != incident[j].Relation {
				return incident[i].Relation < incident[j].Relation
			}
			return farLabel(incident[i], node.ID, snapshot) < farLabel(incident[j], node.ID, snapshot)
		})

		count := 0
		for _, edge := range incident {
			if count >= e.relationCap {
				break
			}
			if taken[edge.Key()] {
				continue
			}
			taken[edge.Key()] = true
			out = append(out, edge)
			count++
		}
	}
	return out
}

func farLabel(edge graph.Edge, nearID string, snapshot *graph.Snapshot) string {
	farID := edge.TargetID
	if farID == nearID {
		farID = edge.SourceID
	}
	if n, ok := snapshot.NodeByID(farID); ok {
		return n.Label
	}
	return farID
}

// formatEnhanced appends the relations section. The original question text
// is preserved byte for byte above the heading.
func formatEnhanced(question string, relations []graph.Edge, snapshot *graph.Snapshot) string {
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(relationsHeading)
	b.WriteString("\n")

	for _, edge := range relations {
		src, dst := edge.SourceID, edge.TargetID
		if n, ok := snapshot.NodeByID(edge.SourceID); ok {
			src = n.Label
		}
		if n, ok := snapshot.NodeByID(edge.TargetID); ok {
			dst = n.Label
		}
		b.WriteString(fmt.Sprintf("  • %s → %s → %s\n", src, string(edge.Relation), dst))
	}
	return strings.TrimRight(b.String(), "\n")
}
