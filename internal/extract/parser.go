package extract

import (
	"encoding/json"
	"strings"

	perrors "policy-graph/pkg/errors"
)

// rawEntity tolerates both "text" and "label" keys for the entity name,
// since models vary between the two
type rawEntity struct {
	Text        string `json:"text"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (e rawEntity) name() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Text
}

type rawRelation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type rawPayload struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

// parseResponse runs the staged parse of a model response: strip code
// fences, locate the outermost JSON object in whatever prose surrounds it,
// then unmarshal. Each stage fails with a MalformedExtraction error so the
// cause stays distinguishable in logs and tests.
func parseResponse(raw string) (*rawPayload, error) {
	content := stripCodeFences(strings.TrimSpace(raw))

	object, ok := outermostJSONObject(content)
	if !ok {
		return nil, perrors.NewMalformedExtraction(snippet(content), nil)
	}

	var payload rawPayload
	if err := json.Unmarshal([]byte(object), &payload); err != nil {
		return nil, perrors.NewMalformedExtraction(snippet(object), err)
	}
	return &payload, nil
}

// stripCodeFences unwraps ```json ... ``` or plain ``` ... ``` blocks
func stripCodeFences(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return content
}

// outermostJSONObject returns the substring from the first '{' to its
// matching close brace, tracking strings and escapes so braces inside
// labels don't confuse the scan
func outermostJSONObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

func snippet(content string) string {
	const limit = 200
	if len(content) > limit {
		return content[:limit]
	}
	return content
}
