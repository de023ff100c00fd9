// Package domain contains the core entities of the symptom triage pipeline:
// vocabulary entries, pattern rules, risk labels and classification results.
//
// Everything in this package is plain data. Behaviour lives in the service
// package; the types here only know how to validate and describe themselves.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// RiskLabel is the ordinal risk classification produced for a symptom description.
type RiskLabel string

const (
	SAFE     RiskLabel = "SAFE"
	CAUTION  RiskLabel = "CAUTION"
	URGENT   RiskLabel = "URGENT"
	CRITICAL RiskLabel = "CRITICAL"
)

// Category groups symptoms and rules by body system.
type Category string

const (
	CategoryCardiac          Category = "cardiac"
	CategoryRespiratory      Category = "respiratory"
	CategoryNeurological     Category = "neurological"
	CategoryGastrointestinal Category = "gastrointestinal"
	CategoryInfectious       Category = "infectious"
	CategoryDermatological   Category = "dermatological"
	CategoryMusculoskeletal  Category = "musculoskeletal"
	CategoryMentalHealth     Category = "mental_health"
	CategoryGeneral          Category = "general"
)

// InputSource tells the pipeline where the text came from. Voice input is
// fuzzy-matched token by token because transcription is unreliable.
type InputSource string

const (
	SourceTyped InputSource = "typed"
	SourceVoice InputSource = "voice"
)

// Validation errors for triage data integrity
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidLabel        = errors.New("invalid risk label")
	ErrInvalidCategory     = errors.New("invalid symptom category")
	ErrInvalidSource       = errors.New("invalid input source")
	ErrSessionNotFound     = errors.New("triage session not found")
	ErrSessionClosed       = errors.New("triage session closed")
	ErrNoPendingEscalation = errors.New("no pending escalation")
)

// AllLabels lists the labels from least to most severe.
var AllLabels = []RiskLabel{SAFE, CAUTION, URGENT, CRITICAL}

// IsValid reports whether the label is one of the four known labels.
func (l RiskLabel) IsValid() bool {
	switch l {
	case SAFE, CAUTION, URGENT, CRITICAL:
		return true
	default:
		return false
	}
}

// String returns the string representation of the label.
func (l RiskLabel) String() string {
	return string(l)
}

// Rank returns the ordinal position of the label, SAFE being 0.
// Unknown labels rank below SAFE.
func (l RiskLabel) Rank() int {
	for i, label := range AllLabels {
		if label == l {
			return i
		}
	}
	return -1
}

// RequiresEscalation reports whether a classification with this label arms
// an automatic escalation.
func (l RiskLabel) RequiresEscalation() bool {
	return l == CRITICAL
}

// LogFields returns structured logging fields for audit trails.
func (l RiskLabel) LogFields() map[string]any {
	return map[string]any{
		"label":               string(l),
		"rank":                l.Rank(),
		"requires_escalation": l.RequiresEscalation(),
	}
}

// ParseRiskLabel parses a string into a RiskLabel.
func ParseRiskLabel(s string) (RiskLabel, error) {
	label := RiskLabel(s)
	if !label.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidLabel, s)
	}
	return label, nil
}

// IsValid reports whether the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCardiac, CategoryRespiratory, CategoryNeurological,
		CategoryGastrointestinal, CategoryInfectious, CategoryDermatological,
		CategoryMusculoskeletal, CategoryMentalHealth, CategoryGeneral:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidCategory, s)
	}
	return c, nil
}

// IsValid reports whether the input source is known.
func (s InputSource) IsValid() bool {
	return s == SourceTyped || s == SourceVoice
}

// String returns the string representation of the input source.
func (s InputSource) String() string {
	return string(s)
}

// ParseInputSource parses a string into an InputSource. An empty string
// means typed input.
func ParseInputSource(s string) (InputSource, error) {
	if s == "" {
		return SourceTyped, nil
	}
	src := InputSource(s)
	if !src.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidSource, s)
	}
	return src, nil
}

// SymptomEntry is one canonical symptom in the vocabulary.
type SymptomEntry struct {
	Name     string   `json:"name" yaml:"name"`
	Weight   int      `json:"weight" yaml:"weight"`
	Category Category `json:"category" yaml:"category"`
}

// PatternRule is a compiled compound rule over the normalized text.
type PatternRule struct {
	Pattern  *regexp.Regexp `json:"-"`
	Weight   int            `json:"weight"`
	Category Category       `json:"category"`
	Reason   string         `json:"reason"`
}

// Source returns the textual form of the compiled pattern.
func (r PatternRule) Source() string {
	if r.Pattern == nil {
		return ""
	}
	return r.Pattern.String()
}

// SymptomInput is a classification request. Either Text or Symptoms is set;
// when both are present the symptom list is appended after the text.
type SymptomInput struct {
	Text     string      `json:"text,omitempty"`
	Symptoms []string    `json:"symptoms,omitempty"`
	Source   InputSource `json:"source,omitempty"`
}

// EscalationState is the state of a session's escalation scheduler.
type EscalationState string

const (
	EscalationIdle    EscalationState = "IDLE"
	EscalationPending EscalationState = "PENDING"
)

// EscalationInfo is the caller-visible view of a pending escalation.
type EscalationInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Deadline  time.Time `json:"deadline"`
	Label     RiskLabel `json:"label"`
	Reasons   []string  `json:"reasons"`
}
