package service

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/vocabulary"
)

// Tunable defaults of the classification pipeline.
const (
	DefaultFuzzyThreshold  = 0.75
	DefaultEscalationDelay = 10 * time.Second

	BaselineScore       = 5
	MinScore            = 0
	MaxScore            = 100
	ConfidencePerReason = 12

	CriticalThreshold = 80
	UrgentThreshold   = 55
	CautionThreshold  = 35
)

var suggestedActions = map[domain.RiskLabel]domain.SuggestedAction{
	domain.CRITICAL: {
		Message:  "Emergency services will be contacted automatically unless you cancel. Stay where you are and keep your phone nearby.",
		Timeline: "0-10 minutes",
	},
	domain.URGENT: {
		Message:  "Seek urgent care or visit an emergency department as soon as possible.",
		Timeline: "1-4 hours",
	},
	domain.CAUTION: {
		Message:  "Book an appointment with a doctor and monitor your symptoms for changes.",
		Timeline: "Within 24-48 hours",
	},
	domain.SAFE: {
		Message:  "Rest, stay hydrated and use over-the-counter remedies as needed. Seek care if symptoms worsen.",
		Timeline: "1-2 days",
	},
}

// LabelForScore maps a clamped score onto a risk label.
func LabelForScore(score int) domain.RiskLabel {
	switch {
	case score >= CriticalThreshold:
		return domain.CRITICAL
	case score >= UrgentThreshold:
		return domain.URGENT
	case score >= CautionThreshold:
		return domain.CAUTION
	default:
		return domain.SAFE
	}
}

// SuggestedActionFor returns the static guidance for a label.
func SuggestedActionFor(label domain.RiskLabel) domain.SuggestedAction {
	return suggestedActions[label]
}

// Confidence grows with the number of reasons, capped at 100.
func Confidence(reasonCount int) int {
	c := reasonCount * ConfidencePerReason
	if c > MaxScore {
		return MaxScore
	}
	return c
}

func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Classifier is the stateless classification pipeline. It is safe for
// concurrent use; every call builds a fresh result.
type Classifier struct {
	logger     *logrus.Logger
	vocab      *vocabulary.Vocabulary
	normalizer *TextNormalizer
	fuzzy      *FuzzyMatcher
	engine     *PatternRuleEngine
}

var _ domain.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier over a compiled vocabulary. A
// non-positive threshold selects DefaultFuzzyThreshold.
func NewClassifier(vocab *vocabulary.Vocabulary, fuzzyThreshold float64, logger *logrus.Logger) *Classifier {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Classifier{
		logger:     logger,
		vocab:      vocab,
		normalizer: NewTextNormalizer(),
		fuzzy:      NewFuzzyMatcher(vocab.Names(), fuzzyThreshold),
		engine:     NewPatternRuleEngine(vocab, logger),
	}
}

// Vocabulary returns the compiled vocabulary the classifier runs on.
func (c *Classifier) Vocabulary() *vocabulary.Vocabulary {
	return c.vocab
}

// Normalize returns the canonical text the classifier would match against.
// Free text comes first, then the symptom labels.
func (c *Classifier) Normalize(input domain.SymptomInput) string {
	parts := make([]string, 0, len(input.Symptoms)+1)
	if input.Text != "" {
		parts = append(parts, input.Text)
	}
	parts = append(parts, input.Symptoms...)
	return c.normalizer.NormalizeSymptoms(parts)
}

// Classify runs the full pipeline. It never fails: input with no
// recognizable symptom is classified SAFE at the baseline score.
func (c *Classifier) Classify(input domain.SymptomInput) *domain.ClassificationResult {
	normalized := c.Normalize(input)

	contributions := c.engine.MatchDictionary(normalized)

	var unmatched []string
	if input.Source == domain.SourceVoice {
		var fuzzyHits []Contribution
		fuzzyHits, unmatched = c.matchVoiceTokens(normalized, contributions)
		contributions = append(contributions, fuzzyHits...)
	}

	contributions = append(contributions, c.engine.EvaluateRules(normalized)...)

	result := c.aggregate(contributions)
	result.NormalizedText = normalized
	result.UnmatchedTokens = unmatched

	c.logger.WithFields(logrus.Fields{
		"score":      result.Score,
		"label":      result.Label,
		"confidence": result.Confidence,
		"reasons":    len(result.Reasons),
		"source":     input.Source,
		"unmatched":  len(unmatched),
	}).Debug("Classified symptom input")

	return result
}

// matchVoiceTokens fuzzy-matches every token. Symptoms not already found
// by the dictionary pass contribute once each. Tokens that are words of an
// exact dictionary hit are never reported as unmatched.
func (c *Classifier) matchVoiceTokens(normalized string, dictionary []Contribution) ([]Contribution, []string) {
	found := make(map[string]bool, len(dictionary))
	covered := make(map[string]bool)
	for _, hit := range dictionary {
		name := vocabulary.Normalize(hit.Symptom)
		found[name] = true
		for _, word := range strings.Fields(name) {
			covered[word] = true
		}
	}

	var hits []Contribution
	var unmatched []string
	reported := make(map[string]bool)

	for _, token := range c.normalizer.Tokens(normalized) {
		match := c.fuzzy.MatchToken(token)
		if match.Accepted() {
			key := vocabulary.Normalize(match.MatchedSymptom)
			if found[key] {
				continue
			}
			found[key] = true
			hits = append(hits, c.engine.symptomContribution(match.MatchedSymptom, SourceFuzzy))
			continue
		}
		if covered[token] || reported[token] {
			continue
		}
		reported[token] = true
		unmatched = append(unmatched, token)

		c.logger.WithFields(logrus.Fields{
			"token":          token,
			"best_candidate": match.BestCandidate,
			"similarity":     match.Similarity,
		}).Debug("Voice token did not match vocabulary")
	}

	return hits, unmatched
}

func (c *Classifier) aggregate(contributions []Contribution) *domain.ClassificationResult {
	score := BaselineScore
	reasons := make([]string, 0, len(contributions))
	breakdown := make(map[domain.Category]int)

	for _, contrib := range contributions {
		score += contrib.Weight
		reasons = append(reasons, contrib.Reason)
		for _, category := range contrib.Categories {
			breakdown[category] += contrib.Weight
		}
	}

	score = clampScore(score)
	label := LabelForScore(score)

	return &domain.ClassificationResult{
		Score:             score,
		Label:             label,
		Confidence:        Confidence(len(reasons)),
		Reasons:           reasons,
		CategoryBreakdown: breakdown,
		SuggestedAction:   SuggestedActionFor(label),
	}
}
