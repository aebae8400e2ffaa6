package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// cosmeticSuffixes are file-extension-like tails that leak into labels
// derived from document names
var cosmeticSuffixes = []string{".pdf", ".docx", ".doc", ".txt"}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeLabel produces the canonical form of a label used for identity
// comparison only; the original spelling is kept for display. Trims and
// collapses whitespace, case-folds, and strips cosmetic file suffixes.
func NormalizeLabel(label string) string {
	s := strings.TrimSpace(label)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	for _, suffix := range cosmeticSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	return s
}

// DisplayLabel strips cosmetic suffixes but keeps the original casing,
// matching how document-derived titles are shown
func DisplayLabel(label string) string {
	s := strings.TrimSpace(label)
	lower := strings.ToLower(s)
	for _, suffix := range cosmeticSuffixes {
		if strings.HasSuffix(lower, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}
	return s
}

// NodeID derives the deterministic node id from the type and the normalized
// label. Content-derived, so ids are independent of processing order and
// batch composition.
func NodeID(t NodeType, label string) string {
	sum := sha256.Sum256([]byte(string(t) + "\x00" + NormalizeLabel(label)))
	return string(t) + ":" + hex.EncodeToString(sum[:6])
}
