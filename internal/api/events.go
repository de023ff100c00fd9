package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// subscriber is one websocket listening to one session's escalation events.
type subscriber struct {
	sessionID string
	send      chan []byte
}

// EventHub fans escalation events out to websocket subscribers of the
// session the event belongs to. All subscriber bookkeeping happens on the
// run goroutine.
type EventHub struct {
	subscribers map[string]map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan service.EscalationEvent
	counts     chan chan int
	done       chan struct{}

	logger *logrus.Logger
}

// NewEventHub creates a hub. Call Run to start delivering.
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan service.EscalationEvent, 256),
		counts:      make(chan chan int),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run delivers events until ctx is done, then closes every subscriber.
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, subs := range h.subscribers {
				for sub := range subs {
					close(sub.send)
				}
			}
			h.subscribers = make(map[string]map[*subscriber]struct{})
			return

		case sub := <-h.register:
			if h.subscribers[sub.sessionID] == nil {
				h.subscribers[sub.sessionID] = make(map[*subscriber]struct{})
			}
			h.subscribers[sub.sessionID][sub] = struct{}{}

		case sub := <-h.unregister:
			if subs, ok := h.subscribers[sub.sessionID]; ok {
				if _, ok := subs[sub]; ok {
					delete(subs, sub)
					close(sub.send)
					if len(subs) == 0 {
						delete(h.subscribers, sub.sessionID)
					}
				}
			}

		case event := <-h.broadcast:
			subs := h.subscribers[event.Escalation.SessionID]
			if len(subs) == 0 {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Warn("Failed to marshal escalation event")
				continue
			}
			for sub := range subs {
				select {
				case sub.send <- data:
				default:
					// Slow consumer; drop rather than stall the hub.
				}
			}

		case reply := <-h.counts:
			n := 0
			for _, subs := range h.subscribers {
				n += len(subs)
			}
			reply <- n
		}
	}
}

func (h *EventHub) subscribe(sub *subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *EventHub) unsubscribe(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish queues an event for delivery. It never blocks; events are
// dropped when the queue is full. Use it as a SessionManager observer.
func (h *EventHub) Publish(event service.EscalationEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.WithField("session_id", event.Escalation.SessionID).Warn("Escalation event queue full, dropping event")
	}
}

// Subscribers returns the number of connected subscribers.
func (h *EventHub) Subscribers(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.counts <- reply:
		return <-reply
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
}

// handleEvents upgrades GET /api/v1/sessions/:id/events to a websocket
// that streams the session's escalation events.
func (s *Server) handleEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.triage.Sessions().Get(sessionID); err != nil {
		s.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sub := &subscriber{sessionID: sessionID, send: make(chan []byte, sendBuffer)}
	if !s.events.subscribe(sub) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	s.logger.WithField("session_id", sessionID).Debug("Escalation event subscriber connected")

	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

func (s *Server) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		s.events.unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
