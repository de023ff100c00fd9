package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/cache"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/vocabulary"
)

// ResultCache is the cache the triage service reads through.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.ClassificationResult, bool)
	Set(ctx context.Context, key string, result *domain.ClassificationResult)
}

// AuditRecorder is the audit sink the triage service writes to.
type AuditRecorder interface {
	Record(ctx context.Context, rec *audit.Record) error
}

// TriageService ties classification, caching, sessions and auditing
// together. Transports call into it.
type TriageService struct {
	classifier *Classifier
	sessions   *SessionManager
	cache      ResultCache
	audit      AuditRecorder
	logger     *logrus.Logger
}

// NewTriageService creates the service. cache and auditor may be nil.
func NewTriageService(classifier *Classifier, sessions *SessionManager, cache ResultCache, auditor AuditRecorder, logger *logrus.Logger) *TriageService {
	if auditor == nil {
		auditor = audit.NopStore{}
	}
	return &TriageService{
		classifier: classifier,
		sessions:   sessions,
		cache:      cache,
		audit:      auditor,
		logger:     logger,
	}
}

// AuditObserver turns scheduler events into audit records. Pass it as the
// SessionManager observer.
func AuditObserver(recorder AuditRecorder, logger *logrus.Logger) EscalationObserver {
	return func(event EscalationEvent) {
		rec := &audit.Record{
			Kind:         audit.KindEscalation,
			Event:        string(event.Type),
			SessionID:    event.Escalation.SessionID,
			EscalationID: event.Escalation.ID,
			Label:        string(event.Escalation.Label),
			Reasons:      event.Escalation.Reasons,
			Detail:       event.Error,
		}
		if err := recorder.Record(context.Background(), rec); err != nil {
			logger.WithError(err).WithField("escalation_id", event.Escalation.ID).Warn("Failed to audit escalation event")
		}
	}
}

// Vocabulary returns the vocabulary in use.
func (s *TriageService) Vocabulary() *vocabulary.Vocabulary {
	return s.classifier.Vocabulary()
}

// Sessions returns the session manager.
func (s *TriageService) Sessions() *SessionManager {
	return s.sessions
}

func validateInput(input *domain.SymptomInput) error {
	source, err := domain.ParseInputSource(string(input.Source))
	if err != nil {
		return domain.NewValidationError("source", "must be typed or voice", input.Source)
	}
	input.Source = source
	return nil
}

// Classify runs a stateless classification. The only error is invalid
// input; an empty description classifies as SAFE.
func (s *TriageService) Classify(ctx context.Context, input domain.SymptomInput) (*domain.ClassificationResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	result := s.classify(ctx, input)
	s.record(ctx, "classified", "", input.Source, result)
	return result, nil
}

func (s *TriageService) classify(ctx context.Context, input domain.SymptomInput) *domain.ClassificationResult {
	if s.cache == nil {
		return s.classifier.Classify(input)
	}

	key := cache.Key(input.Source, s.classifier.Normalize(input))
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached
	}
	result := s.classifier.Classify(input)
	s.cache.Set(ctx, key, result)
	return result
}

// Assess classifies within a session. A CRITICAL result arms the
// session's escalation and the pending escalation is attached to the
// result.
func (s *TriageService) Assess(ctx context.Context, sessionID string, input domain.SymptomInput) (*domain.ClassificationResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	result := s.classify(ctx, input)
	esc := session.Scheduler().Arm(result.Label, result.Reasons)
	if esc == nil && result.Label.RequiresEscalation() {
		// The session was closed between Get and Arm.
		return nil, domain.ErrSessionClosed
	}
	if esc != nil {
		info := esc.Info()
		result.PendingEscalation = &info
	}

	s.record(ctx, "assessed", sessionID, input.Source, result)

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"score":      result.Score,
		"label":      result.Label,
		"escalated":  result.PendingEscalation != nil,
	}).Info("Completed session assessment")

	return result, nil
}

// CreateSession starts a new triage session.
func (s *TriageService) CreateSession(ctx context.Context) *Session {
	return s.sessions.Create()
}

// CloseSession ends a session, cancelling any pending escalation.
func (s *TriageService) CloseSession(ctx context.Context, sessionID string) error {
	return s.sessions.Close(sessionID)
}

// CancelEscalation cancels the session's pending escalation.
func (s *TriageService) CancelEscalation(ctx context.Context, sessionID string) error {
	if err := s.sessions.CancelEscalation(sessionID); err != nil {
		return fmt.Errorf("cancel escalation for %s: %w", sessionID, err)
	}
	return nil
}

// EscalationStatus returns the pending escalation of a session, or nil.
func (s *TriageService) EscalationStatus(ctx context.Context, sessionID string) (*domain.EscalationInfo, error) {
	return s.sessions.Escalation(sessionID)
}

func (s *TriageService) record(ctx context.Context, event, sessionID string, source domain.InputSource, result *domain.ClassificationResult) {
	rec := &audit.Record{
		Kind:           audit.KindAssessment,
		Event:          event,
		SessionID:      sessionID,
		Source:         string(source),
		Label:          string(result.Label),
		Score:          result.Score,
		Confidence:     result.Confidence,
		Reasons:        result.Reasons,
		NormalizedText: result.NormalizedText,
	}
	if result.PendingEscalation != nil {
		rec.EscalationID = result.PendingEscalation.ID
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.WithError(err).Warn("Failed to audit classification")
	}
}
