package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/domain"
)

// SymptomsInput is the description shared by the classify and assess tools.
type SymptomsInput struct {
	Text     string   `json:"text,omitempty" jsonschema:"free text description of the symptoms"`
	Symptoms []string `json:"symptoms,omitempty" jsonschema:"individual symptom names"`
	Source   string   `json:"source,omitempty" jsonschema:"typed or voice; voice enables fuzzy matching"`
}

func (in SymptomsInput) input() domain.SymptomInput {
	return domain.SymptomInput{
		Text:     in.Text,
		Symptoms: in.Symptoms,
		Source:   domain.InputSource(in.Source),
	}
}

// AssessInput is the assess_symptoms argument.
type AssessInput struct {
	SessionID string   `json:"session_id" jsonschema:"session returned by create_session"`
	Text      string   `json:"text,omitempty" jsonschema:"free text description of the symptoms"`
	Symptoms  []string `json:"symptoms,omitempty" jsonschema:"individual symptom names"`
	Source    string   `json:"source,omitempty" jsonschema:"typed or voice; voice enables fuzzy matching"`
}

// SessionInput names a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session returned by create_session"`
}

// NoInput is the argument of tools that take none.
type NoInput struct{}

// AuditInput filters query_audit.
type AuditInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"only records of this session"`
	Kind      string `json:"kind,omitempty" jsonschema:"assessment or escalation"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of records"`
}

// EscalationOutput is a pending escalation.
type EscalationOutput struct {
	ID       string   `json:"id"`
	Deadline string   `json:"deadline"`
	Label    string   `json:"label"`
	Reasons  []string `json:"reasons"`
}

// ClassificationOutput is the tool view of a classification result.
type ClassificationOutput struct {
	Score             int               `json:"score"`
	Label             string            `json:"label"`
	Confidence        int               `json:"confidence"`
	Reasons           []string          `json:"reasons"`
	CategoryBreakdown map[string]int    `json:"category_breakdown"`
	Action            string            `json:"action"`
	Timeline          string            `json:"timeline"`
	UnmatchedTokens   []string          `json:"unmatched_tokens,omitempty"`
	Escalation        *EscalationOutput `json:"escalation,omitempty"`
}

// SessionOutput describes a session.
type SessionOutput struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

// EscalationStatusOutput reports a session's scheduler state.
type EscalationStatusOutput struct {
	SessionID  string            `json:"session_id"`
	State      string            `json:"state"`
	Escalation *EscalationOutput `json:"escalation,omitempty"`
}

// CancelOutput reports a cancellation.
type CancelOutput struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

// SymptomOutput is one vocabulary entry.
type SymptomOutput struct {
	Name     string `json:"name"`
	Weight   int    `json:"weight"`
	Category string `json:"category"`
}

// RuleOutput is one compound rule.
type RuleOutput struct {
	Pattern  string `json:"pattern"`
	Weight   int    `json:"weight"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// VocabularyOutput lists the active vocabulary.
type VocabularyOutput struct {
	Symptoms []SymptomOutput `json:"symptoms"`
	Rules    []RuleOutput    `json:"rules"`
}

// AuditRecordOutput is one audit entry.
type AuditRecordOutput struct {
	Kind         string   `json:"kind"`
	Event        string   `json:"event"`
	SessionID    string   `json:"session_id,omitempty"`
	EscalationID string   `json:"escalation_id,omitempty"`
	Label        string   `json:"label,omitempty"`
	Score        int      `json:"score"`
	Reasons      []string `json:"reasons,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// AuditOutput is the query_audit result.
type AuditOutput struct {
	Records []AuditRecordOutput `json:"records"`
	Total   int64               `json:"total"`
}

// ExportOutput reports an audit export.
type ExportOutput struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

func escalationOutput(info *domain.EscalationInfo) *EscalationOutput {
	if info == nil {
		return nil
	}
	return &EscalationOutput{
		ID:       info.ID,
		Deadline: info.Deadline.UTC().Format(time.RFC3339Nano),
		Label:    string(info.Label),
		Reasons:  info.Reasons,
	}
}

func classificationOutput(r *domain.ClassificationResult) ClassificationOutput {
	breakdown := make(map[string]int, len(r.CategoryBreakdown))
	for c, n := range r.CategoryBreakdown {
		breakdown[string(c)] = n
	}
	return ClassificationOutput{
		Score:             r.Score,
		Label:             string(r.Label),
		Confidence:        r.Confidence,
		Reasons:           r.Reasons,
		CategoryBreakdown: breakdown,
		Action:            r.SuggestedAction.Message,
		Timeline:          r.SuggestedAction.Timeline,
		UnmatchedTokens:   r.UnmatchedTokens,
		Escalation:        escalationOutput(r.PendingEscalation),
	}
}

// toolError turns a service error into the message the client sees.
func toolError(err error) error {
	return fmt.Errorf("%s: %w", domain.ErrorCode(err), err)
}

func (s *Server) toolLogger(tool string) *logrus.Entry {
	return s.logger.WithField("tool", tool)
}

func (s *Server) handleClassifySymptoms(ctx context.Context, req *mcp.CallToolRequest, in SymptomsInput) (*mcp.CallToolResult, ClassificationOutput, error) {
	s.toolLogger("classify_symptoms").Debug("Tool invoked")

	result, err := s.triage.Classify(ctx, in.input())
	if err != nil {
		return nil, ClassificationOutput{}, toolError(err)
	}
	return nil, classificationOutput(result), nil
}

func (s *Server) handleCreateSession(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, SessionOutput, error) {
	session := s.triage.CreateSession(ctx)
	s.toolLogger("create_session").WithField("session_id", session.ID).Debug("Tool invoked")

	return nil, SessionOutput{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *Server) handleAssessSymptoms(ctx context.Context, req *mcp.CallToolRequest, in AssessInput) (*mcp.CallToolResult, ClassificationOutput, error) {
	s.toolLogger("assess_symptoms").WithField("session_id", in.SessionID).Debug("Tool invoked")

	input := SymptomsInput{Text: in.Text, Symptoms: in.Symptoms, Source: in.Source}.input()
	result, err := s.triage.Assess(ctx, in.SessionID, input)
	if err != nil {
		return nil, ClassificationOutput{}, toolError(err)
	}
	return nil, classificationOutput(result), nil
}

func (s *Server) handleCancelEscalation(ctx context.Context, req *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, CancelOutput, error) {
	s.toolLogger("cancel_escalation").WithField("session_id", in.SessionID).Debug("Tool invoked")

	if err := s.triage.CancelEscalation(ctx, in.SessionID); err != nil {
		return nil, CancelOutput{}, toolError(err)
	}
	return nil, CancelOutput{SessionID: in.SessionID, Cancelled: true}, nil
}

func (s *Server) handleEscalationStatus(ctx context.Context, req *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, EscalationStatusOutput, error) {
	info, err := s.triage.EscalationStatus(ctx, in.SessionID)
	if err != nil {
		return nil, EscalationStatusOutput{}, toolError(err)
	}

	out := EscalationStatusOutput{
		SessionID:  in.SessionID,
		State:      string(domain.EscalationIdle),
		Escalation: escalationOutput(info),
	}
	if info != nil {
		out.State = string(domain.EscalationPending)
	}
	return nil, out, nil
}

func (s *Server) handleCloseSession(ctx context.Context, req *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	s.toolLogger("close_session").WithField("session_id", in.SessionID).Debug("Tool invoked")

	if err := s.triage.CloseSession(ctx, in.SessionID); err != nil {
		return nil, SessionOutput{}, toolError(err)
	}
	return nil, SessionOutput{SessionID: in.SessionID}, nil
}

func (s *Server) handleListVocabulary(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, VocabularyOutput, error) {
	vocab := s.triage.Vocabulary()

	out := VocabularyOutput{
		Symptoms: make([]SymptomOutput, 0, len(vocab.Entries())),
		Rules:    make([]RuleOutput, 0, len(vocab.Rules())),
	}
	for _, e := range vocab.Entries() {
		out.Symptoms = append(out.Symptoms, SymptomOutput{Name: e.Name, Weight: e.Weight, Category: string(e.Category)})
	}
	for _, d := range vocab.Definitions() {
		out.Rules = append(out.Rules, RuleOutput{Pattern: d.Pattern, Weight: d.Weight, Category: string(d.Category), Reason: d.Reason})
	}
	return nil, out, nil
}

func (s *Server) handleQueryAudit(ctx context.Context, req *mcp.CallToolRequest, in AuditInput) (*mcp.CallToolResult, AuditOutput, error) {
	if in.Limit < 0 {
		return nil, AuditOutput{}, toolError(domain.NewValidationError("limit", "must be non-negative", in.Limit))
	}
	if in.Kind != "" && in.Kind != string(audit.KindAssessment) && in.Kind != string(audit.KindEscalation) {
		return nil, AuditOutput{}, toolError(domain.NewValidationError("kind", "must be assessment or escalation", in.Kind))
	}

	filter := audit.Filter{SessionID: in.SessionID, Kind: audit.Kind(in.Kind), Limit: in.Limit}
	records, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, AuditOutput{}, toolError(err)
	}
	total, err := s.audit.CountFiltered(ctx, filter)
	if err != nil {
		return nil, AuditOutput{}, toolError(err)
	}

	out := AuditOutput{Records: make([]AuditRecordOutput, 0, len(records)), Total: total}
	for _, r := range records {
		out.Records = append(out.Records, AuditRecordOutput{
			Kind:         string(r.Kind),
			Event:        r.Event,
			SessionID:    r.SessionID,
			EscalationID: r.EscalationID,
			Label:        r.Label,
			Score:        r.Score,
			Reasons:      r.Reasons,
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return nil, out, nil
}

func (s *Server) handleExportAudit(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, ExportOutput, error) {
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return nil, ExportOutput{}, toolError(fmt.Errorf("create export directory: %w", err))
	}

	filePath := filepath.Join(s.exportDir, fmt.Sprintf("audit_export_%s.json", time.Now().Format("20060102_150405")))
	file, err := os.Create(filePath)
	if err != nil {
		return nil, ExportOutput{}, toolError(fmt.Errorf("create export file: %w", err))
	}
	defer file.Close()

	if err := s.audit.ExportJSON(ctx, file); err != nil {
		s.toolLogger("export_audit").WithError(err).Error("Failed to export audit log")
		return nil, ExportOutput{}, toolError(err)
	}

	count, _ := s.audit.Count(ctx)
	return nil, ExportOutput{
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d audit records to %s", count, filePath),
	}, nil
}
