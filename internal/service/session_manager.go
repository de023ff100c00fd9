package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/dispatch"
	"github.com/symptom-triage-server/internal/domain"
)

// Session is one user's triage conversation. It owns exactly one
// escalation scheduler.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu         sync.Mutex
	lastActive time.Time
	scheduler  *EscalationScheduler
}

// LastActive returns the last time the session was used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// Scheduler returns the session's escalation scheduler.
func (s *Session) Scheduler() *EscalationScheduler {
	return s.scheduler
}

// SessionManagerConfig wires a SessionManager.
type SessionManagerConfig struct {
	EscalationDelay time.Duration
	SessionTTL      time.Duration
	Clock           Clock
	Dispatcher      dispatch.Dispatcher
	Observer        EscalationObserver
	Logger          *logrus.Logger
}

// SessionManager owns all live sessions and their schedulers.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   map[string]time.Time
	inflight sync.WaitGroup

	delay      time.Duration
	ttl        time.Duration
	clock      Clock
	dispatcher dispatch.Dispatcher
	observer   EscalationObserver
	logger     *logrus.Logger
}

// NewSessionManager creates an empty manager. A zero TTL disables reaping.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.NewLogDispatcher(cfg.Logger)
	}
	if cfg.EscalationDelay <= 0 {
		cfg.EscalationDelay = DefaultEscalationDelay
	}
	return &SessionManager{
		sessions:   make(map[string]*Session),
		closed:     make(map[string]time.Time),
		delay:      cfg.EscalationDelay,
		ttl:        cfg.SessionTTL,
		clock:      cfg.Clock,
		dispatcher: cfg.Dispatcher,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
	}
}

// Create starts a new session in the Idle escalation state.
func (m *SessionManager) Create() *Session {
	now := m.clock.Now()
	id := uuid.New().String()
	session := &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
		scheduler: NewEscalationScheduler(SchedulerConfig{
			SessionID:  id,
			Delay:      m.delay,
			Clock:      m.clock,
			Dispatcher: m.dispatcher,
			Observer:   m.observer,
			Logger:     m.logger,
			InFlight:   &m.inflight,
		}),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.logger.WithField("session_id", id).Info("Triage session created")
	return session
}

// Get returns a live session and marks it active. The touch happens under
// the manager lock so Reap never sees a stale activity time for a session
// that has already been handed out.
func (m *SessionManager) Get(id string) (*Session, error) {
	now := m.clock.Now()

	m.mu.RLock()
	session, ok := m.sessions[id]
	_, wasClosed := m.closed[id]
	if ok {
		session.touch(now)
	}
	m.mu.RUnlock()

	if !ok {
		if wasClosed {
			return nil, domain.ErrSessionClosed
		}
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Close removes a session and cancels its pending escalation.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.closed[id] = m.clock.Now()
	}
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}

	session.scheduler.Close()
	m.logger.WithField("session_id", id).Info("Triage session closed")
	return nil
}

// CancelEscalation cancels the session's pending escalation.
func (m *SessionManager) CancelEscalation(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	if !session.scheduler.Cancel() {
		return domain.ErrNoPendingEscalation
	}
	return nil
}

// Escalation returns the session's pending escalation, or nil when idle.
func (m *SessionManager) Escalation(id string) (*domain.EscalationInfo, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return session.scheduler.Pending(), nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the TTL. Sessions with a
// pending escalation are never reaped: the idle check and the close happen
// atomically on the scheduler, so an escalation armed concurrently either
// keeps the session alive or is refused. Returns the number closed.
func (m *SessionManager) Reap() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	now := m.clock.Now()
	cutoff := now.Add(-m.ttl)

	reaped := 0
	for id, session := range m.sessions {
		if !session.LastActive().Before(cutoff) {
			continue
		}
		if !session.scheduler.closeIfIdle() {
			continue
		}
		delete(m.sessions, id)
		m.closed[id] = now
		reaped++
	}

	for id, closedAt := range m.closed {
		if closedAt.Before(cutoff) {
			delete(m.closed, id)
		}
	}
	m.mu.Unlock()

	if reaped > 0 {
		m.logger.WithField("reaped", reaped).Info("Reaped idle triage sessions")
	}
	return reaped
}

// StartReaper runs Reap on an interval until ctx is done.
func (m *SessionManager) StartReaper(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Reap()
			}
		}
	}()
}

// Shutdown closes every session and waits for in-flight dispatches.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}

	m.inflight.Wait()
}
