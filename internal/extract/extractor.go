package extract

import (
	"context"

	"go.uber.org/zap"

	"policy-graph/internal/graph"
	perrors "policy-graph/pkg/errors"
	"policy-graph/pkg/logger"
)

// Completer is the generation capability the extractor needs
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Extractor turns a document's title and text into a validated
// ExtractionResult. Every failure below it is absorbed: the result is
// always usable (possibly empty) and the issues slice carries what went
// wrong, typed per the error taxonomy, for the run summary.
type Extractor struct {
	client        Completer
	maxTextLength int
	logger        *zap.Logger
}

// NewExtractor creates a new extractor. maxTextLength bounds the text
// submitted per call; 0 disables truncation.
func NewExtractor(client Completer, maxTextLength int) *Extractor {
	return &Extractor{
		client:        client,
		maxTextLength: maxTextLength,
		logger:        logger.Get(),
	}
}

// Extract submits the document and validates the response. Transport and
// parse failures yield an empty result plus a recorded issue; they are
// never raised as hard errors.
func (e *Extractor) Extract(ctx context.Context, title, text string) (graph.ExtractionResult, []error) {
	user, truncated := buildUserPrompt(title, text, e.maxTextLength)
	if truncated {
		e.logger.Info("document text truncated for extraction",
			zap.String("title", title),
			zap.Int("max_length", e.maxTextLength),
		)
	}

	raw, err := e.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		e.logger.Warn("extraction call failed, continuing with empty result",
			zap.String("title", title),
			zap.Error(err),
		)
		return graph.ExtractionResult{}, []error{perrors.NewTransientExternal(title, err)}
	}

	payload, err := parseResponse(raw)
	if err != nil {
		e.logger.Warn("extraction response unparseable, continuing with empty result",
			zap.String("title", title),
			zap.Error(err),
		)
		return graph.ExtractionResult{}, []error{err}
	}

	return e.validate(title, payload)
}

// validate applies the post-parse policy: entities and relations with a
// type outside the vocabulary are dropped silently; relations whose
// endpoints are not among this result's entities are dropped with an
// OrphanRelation warning.
func (e *Extractor) validate(title string, payload *rawPayload) (graph.ExtractionResult, []error) {
	var result graph.ExtractionResult
	var issues []error

	known := make(map[string]bool)
	for _, raw := range payload.Entities {
		name := raw.name()
		norm := graph.NormalizeLabel(name)
		if norm == "" {
			continue
		}
		entityType, ok := graph.ParseNodeType(raw.Type)
		if !ok {
			e.logger.Debug("dropping entity with unknown type",
				zap.String("label", name),
				zap.String("type", raw.Type),
			)
			continue
		}
		result.Entities = append(result.Entities, graph.Entity{
			Label:       name,
			Type:        entityType,
			Description: raw.Description,
		})
		known[norm] = true
	}

	for _, raw := range payload.Relations {
		relationType, ok := graph.ParseRelationType(raw.Type)
		if !ok {
			e.logger.Debug("dropping relation with unknown type",
				zap.String("type", raw.Type),
			)
			continue
		}
		if !known[graph.NormalizeLabel(raw.Source)] || !known[graph.NormalizeLabel(raw.Target)] {
			issues = append(issues, perrors.NewOrphanRelation(raw.Source, raw.Target))
			continue
		}
		result.Relations = append(result.Relations, graph.Relation{
			SourceLabel: raw.Source,
			TargetLabel: raw.Target,
			Type:        relationType,
		})
	}

	e.logger.Info("extraction validated",
		zap.String("title", title),
		zap.Int("entities", len(result.Entities)),
		zap.Int("relations", len(result.Relations)),
		zap.Int("issues", len(issues)),
	)
	return result, issues
}
