package service

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/symptom-triage-server/internal/vocabulary"
)

// FuzzyMatch is the outcome of matching one token against the vocabulary.
// Exactly one of MatchedSymptom and UnmatchedToken is set.
type FuzzyMatch struct {
	Token          string  `json:"token"`
	MatchedSymptom string  `json:"matched_symptom,omitempty"`
	UnmatchedToken string  `json:"unmatched_token,omitempty"`
	Similarity     float64 `json:"similarity"`
	BestCandidate  string  `json:"best_candidate,omitempty"`
}

// Accepted reports whether the token resolved to a vocabulary symptom.
func (m FuzzyMatch) Accepted() bool {
	return m.MatchedSymptom != ""
}

// FuzzyMatcher maps noisy transcribed tokens to canonical symptom names.
type FuzzyMatcher struct {
	names     []string
	lowered   []string
	threshold float64
}

// NewFuzzyMatcher creates a matcher over the given names. Order matters:
// ties go to the earlier name.
func NewFuzzyMatcher(names []string, threshold float64) *FuzzyMatcher {
	lowered := make([]string, len(names))
	for i, name := range names {
		lowered[i] = vocabulary.Normalize(name)
	}
	return &FuzzyMatcher{
		names:     names,
		lowered:   lowered,
		threshold: threshold,
	}
}

// Threshold returns the acceptance threshold. Similarity must be strictly
// greater than this value.
func (m *FuzzyMatcher) Threshold() float64 {
	return m.threshold
}

// MatchToken finds the most similar vocabulary name for a token.
func (m *FuzzyMatcher) MatchToken(token string) FuzzyMatch {
	token = vocabulary.Normalize(token)
	best := -1
	bestScore := -1.0

	for i, candidate := range m.lowered {
		score := Similarity(token, candidate)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	match := FuzzyMatch{Token: token}
	if best < 0 {
		match.UnmatchedToken = token
		return match
	}

	match.Similarity = bestScore
	match.BestCandidate = m.names[best]
	if bestScore > m.threshold {
		match.MatchedSymptom = m.names[best]
	} else {
		match.UnmatchedToken = token
	}
	return match
}

// Similarity is 1 - distance/longer length, measured in runes. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}
