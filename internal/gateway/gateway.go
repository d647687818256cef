// ABOUTME: Gateway wires the store, conversation service, auth, and live sync into an HTTP server
// ABOUTME: Owns startup, route registration, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threadwell/threadwell/internal/auth"
	"github.com/threadwell/threadwell/internal/config"
	"github.com/threadwell/threadwell/internal/conversation"
	"github.com/threadwell/threadwell/internal/livesync"
	"github.com/threadwell/threadwell/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Gateway is the main server that ties every subsystem together.
type Gateway struct {
	config      *config.Config
	store       store.Store
	broadcaster *conversation.EventBroadcaster
	service     *conversation.Service
	verifier    *auth.JWTVerifier
	hub         *livesync.Hub
	sync        *livesync.Handler
	httpServer  *http.Server
	logger      *slog.Logger
}

// New creates a gateway from configuration. The returned gateway owns the
// store and must be shut down with Shutdown or Run's deferred cleanup.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	broadcaster := conversation.NewEventBroadcaster(logger)
	service := conversation.New(st, broadcaster, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	hub := livesync.NewHub(logger)
	syncHandler := livesync.NewHandler(service, broadcaster, verifier, hub,
		cfg.Sync.HeartbeatInterval, cfg.Sync.WriteTimeout, logger)

	g := &Gateway{
		config:      cfg,
		store:       st,
		broadcaster: broadcaster,
		service:     service,
		verifier:    verifier,
		hub:         hub,
		sync:        syncHandler,
		logger:      logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// initStore opens the SQLite store at the configured path. THREADWELL_DB_PATH
// overrides the config value, which lets tests and one-off runs point at a
// scratch database without editing config files.
func initStore(cfg *config.Config) (store.Store, error) {
	path := cfg.Database.Path
	if env := os.Getenv("THREADWELL_DB_PATH"); env != "" {
		path = env
	}
	return store.NewSQLiteStore(path)
}

// routes builds the HTTP mux. Everything under /api requires a valid token
// except the stream endpoint, which authenticates inside the WebSocket
// protocol so clients get a structured error frame instead of a failed
// upgrade.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	authed := auth.HTTPAuthMiddleware(g.verifier)

	mux.HandleFunc("GET /health", g.handleHealth)

	mux.Handle("GET /api/conversations", authed(http.HandlerFunc(g.handleListConversations)))
	mux.Handle("GET /api/conversations/detailed", authed(http.HandlerFunc(g.handleListConversationsDetailed)))
	mux.Handle("POST /api/conversations", authed(http.HandlerFunc(g.handleCreateConversation)))
	mux.Handle("DELETE /api/conversations/{ref}", authed(http.HandlerFunc(g.handleDeleteConversation)))

	mux.Handle("GET /api/conversations/{ref}/messages", authed(http.HandlerFunc(g.handleListMessages)))
	mux.Handle("POST /api/conversations/{ref}/messages", authed(http.HandlerFunc(g.handleAppendMessage)))
	mux.Handle("PATCH /api/conversations/{ref}/messages/{id}", authed(http.HandlerFunc(g.handleUpdateMessage)))
	mux.Handle("DELETE /api/conversations/{ref}/messages/{id}", authed(http.HandlerFunc(g.handleDeleteMessage)))
	mux.Handle("POST /api/conversations/{ref}/messages/update", authed(http.HandlerFunc(g.handleUpdateMessageByContent)))
	mux.Handle("POST /api/conversations/{ref}/messages/delete", authed(http.HandlerFunc(g.handleDeleteMessageByContent)))
	mux.Handle("POST /api/conversations/{ref}/messages/{id}/feedback", authed(http.HandlerFunc(g.handleMessageFeedback)))

	mux.Handle("POST /api/conversations/{ref}/rename", authed(http.HandlerFunc(g.handleRenameConversation)))
	mux.Handle("POST /api/conversations/{ref}/fork", authed(http.HandlerFunc(g.handleForkConversation)))
	mux.Handle("POST /api/conversations/{ref}/pin", authed(http.HandlerFunc(g.handlePinConversation)))

	mux.HandleFunc("GET /api/conversations/{ref}/stream", g.handleStream)

	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, a
// shutdown signal arrives, or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("starting HTTP server", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		g.Shutdown()
		return err
	case sig := <-sigCh:
		g.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		g.logger.Info("context cancelled, shutting down")
	}

	return g.gracefulShutdown()
}

// gracefulShutdown drains in-flight HTTP requests before closing the rest of
// the subsystems.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := g.closeSubsystems(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.logger.Info("shutdown complete")
	return nil
}

// Shutdown stops the gateway immediately. Safe to call after Run returns.
func (g *Gateway) Shutdown() {
	if err := g.httpServer.Close(); err != nil {
		g.logger.Warn("http close error", "error", err)
	}
	if err := g.closeSubsystems(); err != nil {
		g.logger.Warn("subsystem close error", "error", err)
	}
}

func (g *Gateway) closeSubsystems() error {
	g.hub.Close()
	g.broadcaster.Close()
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		g.logger.Warn("failed to write health response", "error", err)
	}
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	g.sync.HandleStream(w, r, r.PathValue("ref"))
}
