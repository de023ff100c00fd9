// Package dispatch contains the emergency dispatch collaborators invoked
// when a CRITICAL escalation fires without being cancelled.
package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/domain"
)

// Request describes an escalation that fired.
type Request struct {
	EscalationID string           `json:"escalation_id"`
	SessionID    string           `json:"session_id"`
	Urgency      domain.RiskLabel `json:"urgency"`
	Reasons      []string         `json:"reasons"`
	TriggeredAt  time.Time        `json:"triggered_at"`
}

// Dispatcher sends an escalation to the outside world. Implementations own
// their retry policy; callers fire and forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req Request) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// LogDispatcher simulates dispatch by writing a structured log entry.
type LogDispatcher struct {
	logger *logrus.Logger
}

// NewLogDispatcher creates a simulated dispatcher
func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, req Request) error {
	d.logger.WithFields(logrus.Fields{
		"escalation_id": req.EscalationID,
		"session_id":    req.SessionID,
		"urgency":       req.Urgency,
		"reasons":       req.Reasons,
		"triggered_at":  req.TriggeredAt,
	}).Warn("Simulated emergency dispatch")
	return nil
}
