package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/dispatch"
	"github.com/symptom-triage-server/internal/domain"
)

// DefaultDispatchTimeout bounds a single dispatch call.
const DefaultDispatchTimeout = 30 * time.Second

// EscalationEventType names a scheduler transition.
type EscalationEventType string

const (
	EventArmed          EscalationEventType = "armed"
	EventReplaced       EscalationEventType = "replaced"
	EventCancelled      EscalationEventType = "cancelled"
	EventFired          EscalationEventType = "fired"
	EventDispatched     EscalationEventType = "dispatched"
	EventDispatchFailed EscalationEventType = "dispatch_failed"
)

// EscalationEvent is published on every scheduler transition and on the
// outcome of a dispatch.
type EscalationEvent struct {
	Type       EscalationEventType   `json:"type"`
	Escalation domain.EscalationInfo `json:"escalation"`
	Error      string                `json:"error,omitempty"`
	At         time.Time             `json:"at"`

	// Seq increases by one per event within a scheduler.
	Seq uint64 `json:"seq"`
}

// EscalationObserver receives scheduler events in Seq order. It is called
// without the scheduler lock held but must not call back into the
// scheduler, and must not block for long.
type EscalationObserver func(EscalationEvent)

// Observers fans one event out to every non-nil observer in order.
func Observers(observers ...EscalationObserver) EscalationObserver {
	var live []EscalationObserver
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	return func(event EscalationEvent) {
		for _, o := range live {
			o(event)
		}
	}
}

// Escalation is an armed, cancellable, time-delayed dispatch.
type Escalation struct {
	ID        string
	SessionID string
	Deadline  time.Time
	Label     domain.RiskLabel
	Reasons   []string

	scheduler *EscalationScheduler
	timer     Timer
}

// Cancel stops the escalation if it is still pending. It is safe to call
// any number of times; only the first call on a pending escalation
// returns true.
func (e *Escalation) Cancel() bool {
	return e.scheduler.cancel(e)
}

// Info returns the caller-visible snapshot of the escalation.
func (e *Escalation) Info() domain.EscalationInfo {
	return domain.EscalationInfo{
		ID:        e.ID,
		SessionID: e.SessionID,
		Deadline:  e.Deadline,
		Label:     e.Label,
		Reasons:   append([]string(nil), e.Reasons...),
	}
}

// SchedulerConfig wires an EscalationScheduler.
type SchedulerConfig struct {
	SessionID       string
	Delay           time.Duration
	DispatchTimeout time.Duration
	Clock           Clock
	Dispatcher      dispatch.Dispatcher
	Observer        EscalationObserver
	Logger          *logrus.Logger

	// InFlight, when set, tracks dispatch goroutines across schedulers.
	InFlight *sync.WaitGroup
}

// EscalationScheduler is the per-session Idle/Pending state machine. At
// most one escalation is pending at a time and each one either fires once
// or is cancelled, never both.
type EscalationScheduler struct {
	mu      sync.Mutex
	pending *Escalation
	closed  bool
	seq     uint64

	// emitMu is taken before mu is released so observers see events in
	// the order the transitions happened.
	emitMu sync.Mutex

	sessionID       string
	delay           time.Duration
	dispatchTimeout time.Duration
	clock           Clock
	dispatcher      dispatch.Dispatcher
	observer        EscalationObserver
	logger          *logrus.Logger

	inflight *sync.WaitGroup
}

// NewEscalationScheduler creates an idle scheduler.
func NewEscalationScheduler(cfg SchedulerConfig) *EscalationScheduler {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultEscalationDelay
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.NewLogDispatcher(cfg.Logger)
	}
	if cfg.InFlight == nil {
		cfg.InFlight = &sync.WaitGroup{}
	}
	return &EscalationScheduler{
		sessionID:       cfg.SessionID,
		delay:           cfg.Delay,
		dispatchTimeout: cfg.DispatchTimeout,
		clock:           cfg.Clock,
		dispatcher:      cfg.Dispatcher,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		inflight:        cfg.InFlight,
	}
}

// Arm schedules a dispatch for a CRITICAL label, atomically replacing any
// pending escalation. Other labels leave the state untouched and return
// nil, as does a closed scheduler.
func (s *EscalationScheduler) Arm(label domain.RiskLabel, reasons []string) *Escalation {
	if !label.RequiresEscalation() {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	previous := s.pending
	if previous != nil {
		previous.timer.Stop()
	}

	esc := &Escalation{
		ID:        uuid.New().String(),
		SessionID: s.sessionID,
		Deadline:  s.clock.Now().Add(s.delay),
		Label:     label,
		Reasons:   append([]string(nil), reasons...),
		scheduler: s,
	}
	s.pending = esc
	esc.timer = s.clock.AfterFunc(s.delay, func() { s.fire(esc) })

	var events []EscalationEvent
	if previous != nil {
		events = append(events, s.eventLocked(EventReplaced, previous, nil))
	}
	events = append(events, s.eventLocked(EventArmed, esc, nil))
	s.unlockAndPublish(events...)

	if previous != nil {
		s.logger.WithFields(logrus.Fields{
			"session_id":    s.sessionID,
			"escalation_id": previous.ID,
			"replaced_by":   esc.ID,
		}).Info("Pending escalation replaced")
	}
	s.logger.WithFields(logrus.Fields{
		"session_id":    s.sessionID,
		"escalation_id": esc.ID,
		"deadline":      esc.Deadline,
		"reasons":       len(esc.Reasons),
	}).Warn("Escalation armed")

	return esc
}

// Cancel cancels whatever escalation is pending. It reports whether one
// was.
func (s *EscalationScheduler) Cancel() bool {
	s.mu.Lock()
	esc := s.pending
	s.mu.Unlock()
	if esc == nil {
		return false
	}
	return s.cancel(esc)
}

func (s *EscalationScheduler) cancel(esc *Escalation) bool {
	s.mu.Lock()
	if s.pending != esc {
		s.mu.Unlock()
		return false
	}
	esc.timer.Stop()
	s.pending = nil
	s.unlockAndPublish(s.eventLocked(EventCancelled, esc, nil))

	s.logger.WithFields(logrus.Fields{
		"session_id":    s.sessionID,
		"escalation_id": esc.ID,
	}).Info("Escalation cancelled")
	return true
}

// fire runs on the timer goroutine. A cancel or replace that took the lock
// first makes this a no-op.
func (s *EscalationScheduler) fire(esc *Escalation) {
	s.mu.Lock()
	if s.pending != esc {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.inflight.Add(1)
	s.unlockAndPublish(s.eventLocked(EventFired, esc, nil))

	s.logger.WithFields(logrus.Fields{
		"session_id":    s.sessionID,
		"escalation_id": esc.ID,
	}).Warn("Escalation fired, dispatching")

	req := dispatch.Request{
		EscalationID: esc.ID,
		SessionID:    esc.SessionID,
		Urgency:      esc.Label,
		Reasons:      append([]string(nil), esc.Reasons...),
		TriggeredAt:  s.clock.Now(),
	}

	go func() {
		defer s.inflight.Done()

		err := s.dispatchOnce(req)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"session_id":    s.sessionID,
				"escalation_id": esc.ID,
			}).Error("Emergency dispatch failed")
			s.publish(EventDispatchFailed, esc, err)
			return
		}
		s.publish(EventDispatched, esc, nil)
	}()
}

func (s *EscalationScheduler) dispatchOnce(req dispatch.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()
	return s.dispatcher.Dispatch(ctx, req)
}

func (s *EscalationScheduler) publish(eventType EscalationEventType, esc *Escalation, err error) {
	s.mu.Lock()
	s.unlockAndPublish(s.eventLocked(eventType, esc, err))
}

// eventLocked stamps the next sequence number. s.mu must be held.
func (s *EscalationScheduler) eventLocked(eventType EscalationEventType, esc *Escalation, err error) EscalationEvent {
	s.seq++
	event := EscalationEvent{
		Type:       eventType,
		Escalation: esc.Info(),
		At:         s.clock.Now(),
		Seq:        s.seq,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// unlockAndPublish releases s.mu and delivers events. The caller must hold
// s.mu.
func (s *EscalationScheduler) unlockAndPublish(events ...EscalationEvent) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	if s.observer == nil {
		return
	}
	for _, event := range events {
		s.observer(event)
	}
}

// State reports Idle or Pending.
func (s *EscalationScheduler) State() domain.EscalationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return domain.EscalationPending
	}
	return domain.EscalationIdle
}

// Pending returns a snapshot of the pending escalation, or nil when idle.
func (s *EscalationScheduler) Pending() *domain.EscalationInfo {
	s.mu.Lock()
	esc := s.pending
	s.mu.Unlock()
	if esc == nil {
		return nil
	}
	info := esc.Info()
	return &info
}

// closeIfIdle refuses further arming only when nothing is pending. It
// reports whether the scheduler was closed by this call.
func (s *EscalationScheduler) closeIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending != nil {
		return false
	}
	s.closed = true
	return true
}

// Closed reports whether the scheduler refuses arming.
func (s *EscalationScheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels any pending escalation and refuses further arming.
func (s *EscalationScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Cancel()
}

// Wait blocks until every in-flight dispatch has returned.
func (s *EscalationScheduler) Wait() {
	s.inflight.Wait()
}
