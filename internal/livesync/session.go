// ABOUTME: Session runs one live sync stream over a WebSocket connection
// ABOUTME: Lifecycle is a state machine: connecting, authenticating, streaming, then closed or errored

package livesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/qmuntal/stateless"

	"github.com/threadwell/threadwell/internal/auth"
	"github.com/threadwell/threadwell/internal/conversation"
	"github.com/threadwell/threadwell/internal/store"
)

// Session states
type sessionState stateless.State

var (
	stateConnecting     sessionState = "connecting"
	stateAuthenticating sessionState = "authenticating"
	stateStreaming      sessionState = "streaming"
	stateClosed         sessionState = "closed"  // Terminal: orderly shutdown
	stateErrored        sessionState = "errored" // Terminal: auth or stream failure
)

// Session triggers
type sessionTrigger stateless.Trigger

var (
	triggerAccept        sessionTrigger = "accept"
	triggerAuthenticated sessionTrigger = "authenticated"
	triggerAuthFailed    sessionTrigger = "auth_failed"
	triggerStreamError   sessionTrigger = "stream_error"
	triggerDisconnect    sessionTrigger = "disconnect"
	triggerFinish        sessionTrigger = "finish"
)

// Session drives one sync stream: it authenticates the client, replays the
// conversation baseline, then pushes mutation deltas until the client
// disconnects or the server shuts down. All writes happen on the session's
// own goroutine; a separate read pump exists only to detect disconnects.
type Session struct {
	id     string
	rawRef string
	token  string

	conn        *websocket.Conn
	service     *conversation.Service
	broadcaster *conversation.EventBroadcaster
	verifier    auth.TokenVerifier
	hub         *Hub
	logger      *slog.Logger

	heartbeatInterval time.Duration
	writeTimeout      time.Duration

	fsm    *stateless.StateMachine
	ctx    context.Context
	cancel context.CancelFunc

	// Populated during authentication
	ownerID string
	conv    *store.Conversation
}

func newSession(conn *websocket.Conn, rawRef, token string, service *conversation.Service, broadcaster *conversation.EventBroadcaster, verifier auth.TokenVerifier, hub *Hub, heartbeatInterval, writeTimeout time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:                uuid.New().String(),
		rawRef:            rawRef,
		token:             token,
		conn:              conn,
		service:           service,
		broadcaster:       broadcaster,
		verifier:          verifier,
		hub:               hub,
		heartbeatInterval: heartbeatInterval,
		writeTimeout:      writeTimeout,
		ctx:               ctx,
		cancel:            cancel,
	}
	s.logger = logger.With("component", "livesync", "session_id", s.id)
	s.fsm = s.buildStateMachine()
	return s
}

// buildStateMachine wires the session lifecycle. Work happens in OnEntry
// callbacks, which fire the next trigger themselves; Run only fires accept
// and the machine walks to a terminal state.
func (s *Session) buildStateMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(stateConnecting)

	fsm.Configure(stateConnecting).
		Permit(triggerAccept, stateAuthenticating).
		Permit(triggerAuthFailed, stateErrored)

	fsm.Configure(stateAuthenticating).
		OnEntry(func(ctx context.Context, args ...any) error {
			return s.authenticate()
		}).
		Permit(triggerAuthenticated, stateStreaming).
		Permit(triggerAuthFailed, stateErrored)

	fsm.Configure(stateStreaming).
		OnEntry(func(ctx context.Context, args ...any) error {
			return s.stream()
		}).
		Permit(triggerStreamError, stateErrored).
		Permit(triggerDisconnect, stateClosed).
		Permit(triggerFinish, stateClosed)

	fsm.Configure(stateClosed).
		OnEntry(func(ctx context.Context, args ...any) error {
			s.teardown(websocket.CloseNormalClosure)
			return nil
		})

	fsm.Configure(stateErrored).
		OnEntry(func(ctx context.Context, args ...any) error {
			s.teardown(websocket.ClosePolicyViolation)
			return nil
		})

	return fsm
}

// Run executes the session to completion. It blocks until the session
// reaches a terminal state.
func (s *Session) Run() {
	go s.readPump()

	if err := s.fsm.Fire(triggerAccept); err != nil {
		s.logger.Error("session state machine error", "error", err)
		s.teardown(websocket.CloseInternalServerErr)
	}
}

// authenticate verifies the client token and resolves the conversation ref.
// Failures are reported in-protocol with an error frame before the session
// moves to errored.
func (s *Session) authenticate() error {
	if s.token == "" {
		s.sendFrame(errorFrame("missing authorization"))
		return s.fsm.Fire(triggerAuthFailed)
	}

	userID, err := s.verifier.Verify(s.token)
	if err != nil {
		s.logger.Debug("sync auth failed", "error", err)
		s.sendFrame(errorFrame("authentication failed"))
		return s.fsm.Fire(triggerAuthFailed)
	}

	conv, err := s.service.Resolve(s.ctx, userID, conversation.ParseRef(s.rawRef))
	if err != nil {
		s.logger.Debug("sync ref resolution failed", "ref", s.rawRef, "error", err)
		s.sendFrame(errorFrame("conversation not found"))
		return s.fsm.Fire(triggerAuthFailed)
	}

	s.ownerID = userID
	s.conv = conv
	s.logger.Debug("sync session authenticated",
		"owner_id", userID,
		"conversation_id", conv.ID)
	return s.fsm.Fire(triggerAuthenticated)
}

// stream replays the baseline and then pushes deltas until disconnect.
// The broadcaster subscription is taken BEFORE the baseline read so that a
// mutation arriving during replay is buffered rather than lost.
func (s *Session) stream() error {
	events, _ := s.broadcaster.Subscribe(s.ctx, s.conv.ID)

	ref := conversation.Ref{Kind: conversation.RefByID, Value: s.conv.ID}
	messages, err := s.service.History(s.ctx, s.ownerID, ref, 0, 0)
	if err != nil {
		s.logger.Error("baseline read failed", "error", err)
		s.sendFrame(errorFrame("failed to read conversation"))
		return s.fsm.Fire(triggerStreamError)
	}

	for _, msg := range messages {
		if err := s.sendFrame(initialMessageFrame(msg)); err != nil {
			return s.fsm.Fire(triggerDisconnect)
		}
	}
	if err := s.sendFrame(connectedFrame(s.conv)); err != nil {
		return s.fsm.Fire(triggerDisconnect)
	}

	s.logger.Info("sync session streaming",
		"conversation_id", s.conv.ID,
		"baseline_messages", len(messages))

	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return s.fsm.Fire(triggerDisconnect)

		case event, ok := <-events:
			if !ok {
				// Broadcaster shut down, server is going away
				return s.fsm.Fire(triggerFinish)
			}
			if err := s.sendEvent(event); err != nil {
				return s.fsm.Fire(triggerDisconnect)
			}

		case now := <-ticker.C:
			if err := s.sendFrame(heartbeatFrame(now)); err != nil {
				return s.fsm.Fire(triggerDisconnect)
			}
		}
	}
}

// sendEvent maps a broadcaster event to its wire frame. Deletions have no
// frame in the sync protocol; clients pick them up on resync.
func (s *Session) sendEvent(event *conversation.Event) error {
	switch event.Kind {
	case conversation.EventAdded:
		return s.sendFrame(messageAddedFrame(event.Message))
	case conversation.EventUpdated:
		return s.sendFrame(messageUpdatedFrame(event.Message))
	default:
		return nil
	}
}

// sendFrame serializes one frame with a write deadline. The session is the
// only writer on the connection.
func (s *Session) sendFrame(f *frame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(f)
}

// readPump blocks on reads to detect client disconnects. Any read error
// cancels the session context, which unblocks the streaming loop within one
// select iteration.
func (s *Session) readPump() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.logger.Debug("sync client disconnected", "error", err)
			s.cancel()
			return
		}
	}
}

// teardown runs on entry to a terminal state: cancel the context, send a
// best-effort close frame, release the connection, and leave the hub.
func (s *Session) teardown(closeCode int) {
	s.cancel()

	deadline := time.Now().Add(s.writeTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""), deadline)
	_ = s.conn.Close()

	s.hub.remove(s.id)
	s.logger.Debug("sync session ended", "close_code", closeCode)
}

// stop cancels the session from outside (hub shutdown).
func (s *Session) stop() {
	s.cancel()
}
