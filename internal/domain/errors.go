package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes carried in TriageError bodies and MCP tool errors.
const (
	ErrValidation        = "VALIDATION_ERROR"
	ErrSessionMissing    = "SESSION_NOT_FOUND"
	ErrSessionEnded      = "SESSION_CLOSED"
	ErrEscalationMissing = "NO_PENDING_ESCALATION"
	ErrRateLimit         = "RATE_LIMIT_EXCEEDED"
	ErrTimeout           = "REQUEST_TIMEOUT"
	ErrInternalServer    = "INTERNAL_SERVER_ERROR"
)

// TriageError is the error body returned by the HTTP API.
type TriageError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *TriageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTriageError stamps a TriageError with the current UTC time.
func NewTriageError(code, message, details, requestID string) *TriageError {
	return &TriageError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError reports a bad request field or configuration key.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// ErrorCode classifies an error returned by the triage service. Unknown
// errors are ErrInternalServer.
func ErrorCode(err error) string {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, ErrInvalidSource),
		errors.Is(err, ErrInvalidLabel),
		errors.Is(err, ErrInvalidCategory):
		return ErrValidation
	case errors.Is(err, ErrSessionNotFound):
		return ErrSessionMissing
	case errors.Is(err, ErrSessionClosed):
		return ErrSessionEnded
	case errors.Is(err, ErrNoPendingEscalation):
		return ErrEscalationMissing
	default:
		return ErrInternalServer
	}
}
