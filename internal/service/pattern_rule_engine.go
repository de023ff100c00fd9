package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/vocabulary"
)

// ContributionSource tells which pass produced a contribution.
type ContributionSource string

const (
	SourceDictionary ContributionSource = "dictionary"
	SourceFuzzy      ContributionSource = "fuzzy"
	SourceRule       ContributionSource = "rule"
)

// Contribution is one weighted finding with its reason and the categories
// it is attributed to.
type Contribution struct {
	Source     ContributionSource
	Symptom    string
	Weight     int
	Reason     string
	Categories []domain.Category
}

// PatternRuleEngine runs the dictionary pass and the compound rule pass
// over normalized text. Both passes are exhaustive.
type PatternRuleEngine struct {
	logger *logrus.Logger
	vocab  *vocabulary.Vocabulary
	names  []string // normalized, aligned with vocab.Names()
}

// NewPatternRuleEngine creates an engine over a compiled vocabulary.
func NewPatternRuleEngine(vocab *vocabulary.Vocabulary, logger *logrus.Logger) *PatternRuleEngine {
	return &PatternRuleEngine{
		logger: logger,
		vocab:  vocab,
		names:  vocab.Keys(),
	}
}

// DetectedReason is the reason recorded for a dictionary hit.
func DetectedReason(name string) string {
	return fmt.Sprintf("%s detected", name)
}

// MatchDictionary returns one contribution per distinct symptom name that
// occurs in the normalized text, in vocabulary order.
func (e *PatternRuleEngine) MatchDictionary(text string) []Contribution {
	var hits []Contribution

	for i, name := range e.vocab.Names() {
		if !strings.Contains(text, e.names[i]) {
			continue
		}
		hits = append(hits, e.symptomContribution(name, SourceDictionary))
	}

	e.logger.WithFields(logrus.Fields{
		"hits":  len(hits),
		"names": len(e.names),
	}).Debug("Completed dictionary pass")

	return hits
}

// symptomContribution builds the contribution for a named symptom.
func (e *PatternRuleEngine) symptomContribution(name string, source ContributionSource) Contribution {
	weight, _ := e.vocab.Weight(name)
	return Contribution{
		Source:     source,
		Symptom:    name,
		Weight:     weight,
		Reason:     DetectedReason(name),
		Categories: e.vocab.Categories(name),
	}
}

// EvaluateRules tests every rule against the text and returns one
// contribution per matching rule, in rule order.
func (e *PatternRuleEngine) EvaluateRules(text string) []Contribution {
	var matched []Contribution

	for _, rule := range e.vocab.Rules() {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		matched = append(matched, Contribution{
			Source:     SourceRule,
			Weight:     rule.Weight,
			Reason:     rule.Reason,
			Categories: []domain.Category{rule.Category},
		})
	}

	e.logger.WithFields(logrus.Fields{
		"total_rules":   len(e.vocab.Rules()),
		"matched_rules": len(matched),
	}).Debug("Completed pattern rule evaluation")

	return matched
}
