package domain

import (
	"errors"
	"testing"
)

func TestRiskLabelConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    RiskLabel
		expected string
		rank     int
	}{
		{"Safe", SAFE, "SAFE", 0},
		{"Caution", CAUTION, "CAUTION", 1},
		{"Urgent", URGENT, "URGENT", 2},
		{"Critical", CRITICAL, "CRITICAL", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if tt.value.Rank() != tt.rank {
				t.Errorf("Expected rank %d, got %d", tt.rank, tt.value.Rank())
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}
}

func TestRiskLabel_RequiresEscalation(t *testing.T) {
	for _, label := range AllLabels {
		want := label == CRITICAL
		if got := label.RequiresEscalation(); got != want {
			t.Errorf("%s.RequiresEscalation() = %v, want %v", label, got, want)
		}
	}
}

func TestParseRiskLabel(t *testing.T) {
	label, err := ParseRiskLabel("URGENT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != URGENT {
		t.Errorf("Expected URGENT, got %s", label)
	}

	_, err = ParseRiskLabel("urgent")
	if !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("Expected ErrInvalidLabel, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"cardiac", false},
		{"mental_health", false},
		{"general", false},
		{"Cardiac", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseCategory(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseInputSource(t *testing.T) {
	src, err := ParseInputSource("")
	if err != nil || src != SourceTyped {
		t.Errorf("empty source should default to typed, got %s, %v", src, err)
	}

	src, err = ParseInputSource("voice")
	if err != nil || src != SourceVoice {
		t.Errorf("Expected voice, got %s, %v", src, err)
	}

	if _, err := ParseInputSource("sms"); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource, got %v", err)
	}
}

func TestClassificationResult_Clone(t *testing.T) {
	original := &ClassificationResult{
		Score:             100,
		Label:             CRITICAL,
		Reasons:           []string{"Chest pain detected"},
		CategoryBreakdown: map[Category]int{CategoryCardiac: 70},
		PendingEscalation: &EscalationInfo{ID: "esc-1", Reasons: []string{"Chest pain detected"}},
	}

	clone := original.Clone()
	clone.Reasons[0] = "mutated"
	clone.CategoryBreakdown[CategoryCardiac] = 1
	clone.PendingEscalation.Reasons[0] = "mutated"

	if original.Reasons[0] != "Chest pain detected" {
		t.Error("Clone shares the reasons slice")
	}
	if original.CategoryBreakdown[CategoryCardiac] != 70 {
		t.Error("Clone shares the breakdown map")
	}
	if original.PendingEscalation.Reasons[0] != "Chest pain detected" {
		t.Error("Clone shares the escalation reasons")
	}
}
