package domain

// ClassificationResult is produced fresh for every classification call.
type ClassificationResult struct {
	Score             int              `json:"score"`
	Label             RiskLabel        `json:"label"`
	Confidence        int              `json:"confidence"`
	Reasons           []string         `json:"reasons"`
	CategoryBreakdown map[Category]int `json:"category_breakdown"`
	SuggestedAction   SuggestedAction  `json:"suggested_action"`
	NormalizedText    string           `json:"normalized_text"`
	UnmatchedTokens   []string         `json:"unmatched_tokens,omitempty"`
	PendingEscalation *EscalationInfo  `json:"pending_escalation,omitempty"`
}

// SuggestedAction is the user-facing guidance attached to a label.
type SuggestedAction struct {
	Message  string `json:"message"`
	Timeline string `json:"timeline"`
}

// Clone returns a deep copy so cached results can be handed out without
// sharing slices or maps between callers.
func (r *ClassificationResult) Clone() *ClassificationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Reasons = append(make([]string, 0, len(r.Reasons)), r.Reasons...)
	if r.UnmatchedTokens != nil {
		out.UnmatchedTokens = append([]string(nil), r.UnmatchedTokens...)
	}
	out.CategoryBreakdown = make(map[Category]int, len(r.CategoryBreakdown))
	for k, v := range r.CategoryBreakdown {
		out.CategoryBreakdown[k] = v
	}
	if r.PendingEscalation != nil {
		esc := *r.PendingEscalation
		esc.Reasons = append([]string(nil), r.PendingEscalation.Reasons...)
		out.PendingEscalation = &esc
	}
	return &out
}

// LogFields returns structured logging fields for the result.
func (r *ClassificationResult) LogFields() map[string]any {
	return map[string]any{
		"score":        r.Score,
		"label":        string(r.Label),
		"confidence":   r.Confidence,
		"reason_count": len(r.Reasons),
		"escalated":    r.PendingEscalation != nil,
	}
}
