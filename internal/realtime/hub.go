// Package realtime pushes dispatch events to connected riders and drivers
// over websockets.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Message is the frame written to clients.
type Message struct {
	Event   service.EventName `json:"event"`
	Payload any               `json:"payload"`
	SentAt  time.Time         `json:"sent_at"`
}

type session struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// offer queues frame without blocking. It reports false when the session
// is closed or its buffer is full.
func (s *session) offer(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub tracks open websocket sessions per user. A user may hold several
// sessions; every event is fanned out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*session]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

var _ service.NotificationChannel = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.OrNop(log),
	}
}

// Emit queues an event for every session of recipientID. Events for users
// without a session, or whose buffer is full, are dropped.
func (h *Hub) Emit(recipientID string, event service.EventName, payload any) {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions[recipientID]))
	for s := range h.sessions[recipientID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	frame, err := json.Marshal(Message{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		h.logger.Error("failed to encode realtime event", zap.String("event", string(event)), zap.Error(err))
		return
	}

	for _, s := range targets {
		if !s.offer(frame) {
			observability.NotificationsDropped.Inc()
			h.logger.Warn("dropping realtime event",
				zap.String("recipient_id", recipientID),
				zap.String("event", string(event)),
			)
		}
	}
}

// Connected reports how many sessions userID holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Serve upgrades the request and streams events to userID until the
// client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	s := &session{userID: userID, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(s)

	go h.writePump(s)
	h.readPump(s)
	return nil
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	if h.sessions[s.userID] == nil {
		h.sessions[s.userID] = make(map[*session]struct{})
	}
	h.sessions[s.userID][s] = struct{}{}
	h.mu.Unlock()

	observability.RealtimeConnections.Inc()
	h.logger.Debug("realtime session opened", zap.String("user_id", s.userID))
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.userID]; ok {
		if _, ok := set[s]; ok {
			delete(set, s)
			observability.RealtimeConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.sessions, s.userID)
		}
	}
	h.mu.Unlock()

	s.close()
	h.logger.Debug("realtime session closed", zap.String("user_id", s.userID))
}

// readPump discards client frames and keeps the read deadline alive on pongs.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime read failed", zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
