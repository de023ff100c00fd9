// Package vocabulary holds the immutable symptom catalogue and the compiled
// pattern rules the classifier runs against.
package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/symptom-triage-server/internal/domain"
)

// Load-time validation errors
var (
	ErrInvalidEntry  = errors.New("invalid vocabulary entry")
	ErrMalformedRule = errors.New("malformed pattern rule")
)

const (
	MinWeight = 0
	MaxWeight = 100
)

// Vocabulary is the compiled catalogue. It is safe for concurrent use
// because nothing mutates it after Compile returns.
type Vocabulary struct {
	entries    []domain.SymptomEntry
	rules      []domain.PatternRule
	names      []string
	keys       []string
	weights    map[string]int
	categories map[string][]domain.Category
}

// Compile validates the raw entries and rule definitions and builds a
// Vocabulary. Entry order and rule order are preserved. Names are keyed by
// their Normalize form; a name with nothing left after normalization is
// rejected.
func Compile(entries []domain.SymptomEntry, defs []domain.RuleDefinition) (*Vocabulary, error) {
	v := &Vocabulary{
		entries:    make([]domain.SymptomEntry, 0, len(entries)),
		rules:      make([]domain.PatternRule, 0, len(defs)),
		weights:    make(map[string]int),
		categories: make(map[string][]domain.Category),
	}

	for i, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty name", ErrInvalidEntry, i)
		}
		if entry.Weight < MinWeight || entry.Weight > MaxWeight {
			return nil, fmt.Errorf("%w: %q weight %d outside [%d,%d]", ErrInvalidEntry, entry.Name, entry.Weight, MinWeight, MaxWeight)
		}
		if !entry.Category.IsValid() {
			return nil, fmt.Errorf("%w: %q has unknown category %q", ErrInvalidEntry, entry.Name, entry.Category)
		}

		key := Normalize(entry.Name)
		if key == "" {
			return nil, fmt.Errorf("%w: %q has no matchable words", ErrInvalidEntry, entry.Name)
		}
		if w, seen := v.weights[key]; seen {
			if w != entry.Weight {
				return nil, fmt.Errorf("%w: %q listed with weights %d and %d", ErrInvalidEntry, entry.Name, w, entry.Weight)
			}
		} else {
			v.weights[key] = entry.Weight
			v.names = append(v.names, entry.Name)
			v.keys = append(v.keys, key)
		}
		if !containsCategory(v.categories[key], entry.Category) {
			v.categories[key] = append(v.categories[key], entry.Category)
		}
		v.entries = append(v.entries, entry)
	}

	for i, def := range defs {
		rule, err := compileRule(def)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		v.rules = append(v.rules, rule)
	}

	return v, nil
}

// MustCompile is like Compile but panics on error. Used for the builtin
// catalogue, which is fixed at build time.
func MustCompile(entries []domain.SymptomEntry, defs []domain.RuleDefinition) *Vocabulary {
	v, err := Compile(entries, defs)
	if err != nil {
		panic(err)
	}
	return v
}

// Load pulls entries and rules from a source and compiles them.
func Load(ctx context.Context, src domain.VocabularySource) (*Vocabulary, error) {
	entries, err := src.LoadSymptoms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load symptoms: %w", err)
	}
	defs, err := src.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return Compile(entries, defs)
}

func compileRule(def domain.RuleDefinition) (domain.PatternRule, error) {
	if strings.TrimSpace(def.Pattern) == "" {
		return domain.PatternRule{}, fmt.Errorf("%w: empty pattern", ErrMalformedRule)
	}
	if def.Weight < MinWeight || def.Weight > MaxWeight {
		return domain.PatternRule{}, fmt.Errorf("%w: %q weight %d outside [%d,%d]", ErrMalformedRule, def.Pattern, def.Weight, MinWeight, MaxWeight)
	}
	if !def.Category.IsValid() {
		return domain.PatternRule{}, fmt.Errorf("%w: %q has unknown category %q", ErrMalformedRule, def.Pattern, def.Category)
	}
	if strings.TrimSpace(def.Reason) == "" {
		return domain.PatternRule{}, fmt.Errorf("%w: %q has no reason", ErrMalformedRule, def.Pattern)
	}

	re, err := regexp.Compile("(?i)" + def.Pattern)
	if err != nil {
		return domain.PatternRule{}, fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}

	return domain.PatternRule{
		Pattern:  re,
		Weight:   def.Weight,
		Category: def.Category,
		Reason:   def.Reason,
	}, nil
}

func containsCategory(list []domain.Category, c domain.Category) bool {
	for _, existing := range list {
		if existing == c {
			return true
		}
	}
	return false
}

// Entries returns the catalogue in load order, duplicates included.
func (v *Vocabulary) Entries() []domain.SymptomEntry {
	return append([]domain.SymptomEntry(nil), v.entries...)
}

// Rules returns the compiled rules in load order.
func (v *Vocabulary) Rules() []domain.PatternRule {
	return v.rules
}

// Names returns the distinct symptom names in first-seen order.
func (v *Vocabulary) Names() []string {
	return v.names
}

// Keys returns the normalized form of each name, aligned with Names.
func (v *Vocabulary) Keys() []string {
	return v.keys
}

// Weight returns the weight of a symptom name, compared in normalized form.
func (v *Vocabulary) Weight(name string) (int, bool) {
	w, ok := v.weights[Normalize(name)]
	return w, ok
}

// Categories returns every category that lists the symptom name.
func (v *Vocabulary) Categories(name string) []domain.Category {
	return v.categories[Normalize(name)]
}

// Definitions returns the rules in their uncompiled form.
func (v *Vocabulary) Definitions() []domain.RuleDefinition {
	defs := make([]domain.RuleDefinition, 0, len(v.rules))
	for _, r := range v.rules {
		defs = append(defs, domain.RuleDefinition{
			Pattern:  strings.TrimPrefix(r.Source(), "(?i)"),
			Weight:   r.Weight,
			Category: r.Category,
			Reason:   r.Reason,
		})
	}
	return defs
}

// Stats summarises the vocabulary for logging.
func (v *Vocabulary) Stats() map[string]any {
	return map[string]any{
		"entries":        len(v.entries),
		"distinct_names": len(v.names),
		"rules":          len(v.rules),
	}
}
