// ABOUTME: HTTP handler that upgrades sync requests to WebSocket sessions
// ABOUTME: Auth happens in-protocol after the upgrade so failures reach the client as error frames

package livesync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/threadwell/threadwell/internal/auth"
	"github.com/threadwell/threadwell/internal/conversation"
)

// Handler upgrades stream requests and runs sync sessions.
type Handler struct {
	service     *conversation.Service
	broadcaster *conversation.EventBroadcaster
	verifier    auth.TokenVerifier
	hub         *Hub
	logger      *slog.Logger

	heartbeatInterval time.Duration
	writeTimeout      time.Duration

	upgrader websocket.Upgrader
}

// NewHandler wires a sync handler. Zero durations get sensible defaults.
func NewHandler(service *conversation.Service, broadcaster *conversation.EventBroadcaster, verifier auth.TokenVerifier, hub *Hub, heartbeatInterval, writeTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handler{
		service:           service,
		broadcaster:       broadcaster,
		verifier:          verifier,
		hub:               hub,
		logger:            logger.With("component", "livesync"),
		heartbeatInterval: heartbeatInterval,
		writeTimeout:      writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens authenticate sessions; origin checks add nothing here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleStream upgrades the request and runs the session to completion.
// The token is captured before the upgrade (header or query parameter);
// verification happens inside the session so the client gets an error frame
// instead of a bare HTTP status.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request, rawRef string) {
	token, _ := auth.TokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	session := newSession(conn, rawRef, token, h.service, h.broadcaster, h.verifier, h.hub, h.heartbeatInterval, h.writeTimeout, h.logger)
	h.hub.add(session)
	session.Run()
}
