package extract

import (
	"fmt"
	"strings"

	"policy-graph/internal/graph"
)

// systemPrompt instructs the model to return a single JSON object and
// enumerates the allowed vocabularies. Types outside these lists are
// dropped during validation, so the enumeration here is load-bearing.
var systemPrompt = fmt.Sprintf(`You are an analyst of policy and regulatory documents. Extract the entities and relations mentioned in the document.

Allowed entity types: %s.
Allowed relation types: %s.

Respond with a single JSON object and nothing else:
{"entities":[{"label":"...","type":"...","description":"..."}],"relations":[{"source":"...","target":"...","type":"..."}]}

Rules:
- "label" is the entity's name exactly as it appears in the document.
- Every relation's "source" and "target" must repeat the label of an entity in the same response.
- Omit "description" when there is nothing useful to say.
- Do not invent entities or relations that the document does not support.`,
	joinNodeTypes(), joinRelationTypes())

func joinNodeTypes() string {
	parts := make([]string, len(graph.NodeTypes))
	for i, t := range graph.NodeTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func joinRelationTypes() string {
	parts := make([]string, len(graph.RelationTypes))
	for i, t := range graph.RelationTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// buildUserPrompt assembles the per-document prompt, truncating the text to
// maxLen characters. Long documents keep the head 70% and tail 30% with an
// elision marker in between; the head carries the title, background and the
// main clauses. Returns whether truncation happened.
func buildUserPrompt(title, text string, maxLen int) (string, bool) {
	truncated := false
	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		head := string(runes[:maxLen*7/10])
		tail := string(runes[len(runes)-maxLen*3/10:])
		omitted := len(runes) - maxLen
		text = fmt.Sprintf("%s\n\n... [%d characters omitted] ...\n\n%s", head, omitted, tail)
		truncated = true
	}

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Document title: %s\n\n", title)
	}
	fmt.Fprintf(&b, "Document content:\n%s\n\n---\n\nExtract the entities and relations. Return the JSON object only.", text)
	return b.String(), truncated
}
