package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/logging"
	"github.com/symptom-triage-server/internal/middleware"
)

// ClassifyRequest is the body of classify and assess calls. Either Text or
// Symptoms carries the description.
type ClassifyRequest struct {
	Text     string   `json:"text"`
	Symptoms []string `json:"symptoms"`
	Source   string   `json:"source"`
}

func (r ClassifyRequest) input() domain.SymptomInput {
	return domain.SymptomInput{
		Text:     r.Text,
		Symptoms: r.Symptoms,
		Source:   domain.InputSource(r.Source),
	}
}

// SessionResponse describes a newly created session.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// EscalationStatusResponse reports a session's scheduler state.
type EscalationStatusResponse struct {
	SessionID  string                 `json:"session_id"`
	State      domain.EscalationState `json:"state"`
	Escalation *domain.EscalationInfo `json:"escalation,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
		"sessions":  s.triage.Sessions().Count(),
		"checks":    checks,
	})
}

func (s *Server) handleVocabulary(c *gin.Context) {
	vocab := s.triage.Vocabulary()
	c.JSON(http.StatusOK, gin.H{
		"symptoms": vocab.Entries(),
		"rules":    vocab.Definitions(),
		"stats":    vocab.Stats(),
	})
}

func (s *Server) handleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "must be a JSON object with text or symptoms", err.Error()))
		return
	}

	result, err := s.triage.Classify(c.Request.Context(), req.input())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	session := s.triage.CreateSession(c.Request.Context())
	c.JSON(http.StatusCreated, SessionResponse{ID: session.ID, CreatedAt: session.CreatedAt})
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.triage.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAssess(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "must be a JSON object with text or symptoms", err.Error()))
		return
	}

	result, err := s.triage.Assess(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEscalationStatus(c *gin.Context) {
	sessionID := c.Param("id")
	info, err := s.triage.EscalationStatus(c.Request.Context(), sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := EscalationStatusResponse{SessionID: sessionID, State: domain.EscalationIdle, Escalation: info}
	if info != nil {
		resp.State = domain.EscalationPending
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelEscalation(c *gin.Context) {
	if err := s.triage.CancelEscalation(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAudit(c *gin.Context) {
	filter := audit.Filter{
		SessionID: c.Query("session_id"),
		Kind:      audit.Kind(c.Query("kind")),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(c, domain.NewValidationError(name, "must be a non-negative integer", raw))
			return
		}
		*dst = n
	}

	ctx := c.Request.Context()
	records, err := s.audit.List(ctx, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.audit.CountFiltered(ctx, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   total,
	})
}

// respondError maps service errors onto HTTP statuses and TriageError
// bodies.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	code := domain.ErrorCode(err)
	status, message := http.StatusInternalServerError, "Internal server error"
	switch code {
	case domain.ErrValidation:
		status, message = http.StatusBadRequest, "Invalid request"
	case domain.ErrSessionMissing:
		status, message = http.StatusNotFound, "Triage session not found"
	case domain.ErrSessionEnded:
		status, message = http.StatusGone, "Triage session closed"
	case domain.ErrEscalationMissing:
		status, message = http.StatusConflict, "No pending escalation"
	default:
		logging.FromContext(c.Request.Context(), s.logger).WithError(err).Error("Request failed")
		c.AbortWithStatusJSON(status, domain.NewTriageError(code, message, "", requestID))
		return
	}

	c.AbortWithStatusJSON(status, domain.NewTriageError(code, message, err.Error(), requestID))
}
