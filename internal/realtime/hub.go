// Package realtime maintains the live websocket connection registry
// used by the REALTIME notification channel.
package realtime

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// session is the write surface of one live connection.
// *websocket.Conn satisfies it; tests substitute fakes.
type session interface {
	WriteMessage(messageType int, data []byte) error
}

// Hub tracks open sessions per member. A member may hold several
// sessions (multiple devices/tabs); Send fans a payload out to all of
// them. All state is guarded by a single RWMutex; reads dominate.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint64][]session
	log      *zap.Logger
}

// NewHub creates an empty connection registry.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[uint64][]session),
		log:      log,
	}
}

// Register adds a session for a member.
func (h *Hub) Register(memberID uint64, s session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[memberID] = append(h.sessions[memberID], s)
	h.log.Debug("session registered", zap.Uint64("member_id", memberID))
}

// Unregister removes a session for a member.
func (h *Hub) Unregister(memberID uint64, s session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	remaining := h.sessions[memberID][:0]
	for _, existing := range h.sessions[memberID] {
		if existing != s {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == 0 {
		delete(h.sessions, memberID)
	} else {
		h.sessions[memberID] = remaining
	}
	h.log.Debug("session unregistered", zap.Uint64("member_id", memberID))
}

// IsConnected reports whether the member has at least one open session.
func (h *Hub) IsConnected(memberID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[memberID]) > 0
}

// Send writes payload to every open session of the member and reports
// whether at least one write succeeded. Write errors on individual
// sessions are logged, not returned; the read loop tears the broken
// session down.
func (h *Hub) Send(memberID uint64, payload []byte) (bool, error) {
	h.mu.RLock()
	targets := make([]session, len(h.sessions[memberID]))
	copy(targets, h.sessions[memberID])
	h.mu.RUnlock()

	if len(targets) == 0 {
		return false, nil
	}

	sent := false
	for _, s := range targets {
		if err := s.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Warn("realtime write failed",
				zap.Uint64("member_id", memberID),
				zap.Error(err))
			continue
		}
		sent = true
	}
	return sent, nil
}

// Handler returns the websocket endpoint handler. The upgrade
// middleware stores the authenticated member id in locals before the
// connection is accepted.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		memberID, ok := c.Locals("memberID").(uint64)
		if !ok || memberID == 0 {
			_ = c.Close()
			return
		}

		h.Register(memberID, c)
		defer func() {
			h.Unregister(memberID, c)
			_ = c.Close()
		}()

		// Inbound messages are ignored; the loop exists to detect
		// disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}
}
