package service

import (
	"strings"

	"github.com/symptom-triage-server/internal/vocabulary"
)

// TextNormalizer canonicalizes free text before matching.
type TextNormalizer struct{}

// NewTextNormalizer creates a new normalizer
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{}
}

// Normalize lowercases the text, strips filler phrases and punctuation and
// collapses whitespace. Empty input yields an empty string. Vocabulary
// names are keyed with the same rules.
func (n *TextNormalizer) Normalize(text string) string {
	return vocabulary.Normalize(text)
}

// NormalizeSymptoms joins a list of symptom labels with spaces and
// normalizes the result.
func (n *TextNormalizer) NormalizeSymptoms(symptoms []string) string {
	return n.Normalize(strings.Join(symptoms, " "))
}

// Tokens splits normalized text into words.
func (n *TextNormalizer) Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
