// ABOUTME: Hub is the registry of active live sync sessions
// ABOUTME: Sessions join on connect, leave on terminal transition, and are stopped together on shutdown

package livesync

import (
	"log/slog"
	"sync"
)

// Hub tracks every active sync session by session ID. Sessions register
// themselves on connect and remove themselves when their state machine
// reaches a terminal state, so the hub never accumulates dead entries and
// needs no periodic sweep.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewHub creates an empty session registry.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "livesync-hub"),
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Debug("session registered", "session_id", s.id, "active", count)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	count := len(h.sessions)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("session removed", "session_id", id, "active", count)
	}
}

// Count returns the number of active sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close stops all active sessions. Each session removes itself from the
// registry as it reaches its terminal state.
func (h *Hub) Close() {
	h.mu.Lock()
	active := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		active = append(active, s)
	}
	h.mu.Unlock()

	for _, s := range active {
		s.stop()
	}

	h.logger.Debug("hub closed", "stopped", len(active))
}
