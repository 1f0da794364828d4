// ABOUTME: HTTP server wiring routes, auth middleware, and graceful shutdown
// ABOUTME: All core endpoints sit behind JWT auth; health and user endpoints are public

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/awaren/awaren-server/internal/auth"
	"github.com/awaren/awaren-server/internal/cache"
	"github.com/awaren/awaren-server/internal/chat"
	"github.com/awaren/awaren-server/internal/config"
	"github.com/awaren/awaren-server/internal/insights"
	"github.com/awaren/awaren-server/internal/jobs"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/store"
)

// Server is the awaren HTTP server.
type Server struct {
	cfg       *config.Config
	store     store.Store
	memories  memory.Store
	chat      *chat.Service
	insights  *insights.Service
	verifier  *auth.JWTVerifier
	cache     *cache.Cache
	scheduler *jobs.Scheduler
	logger    *slog.Logger

	httpServer *http.Server
}

// New creates a Server from its collaborators.
func New(cfg *config.Config, st store.Store, mem memory.Store, chatSvc *chat.Service, insightSvc *insights.Service, verifier *auth.JWTVerifier, c *cache.Cache, scheduler *jobs.Scheduler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		memories:  mem,
		chat:      chatSvc,
		insights:  insightSvc,
		verifier:  verifier,
		cache:     c,
		scheduler: scheduler,
		logger:    logger.With("component", "server"),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler builds the full route tree. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", s.handleHealth)
	public.HandleFunc("POST /api/v1/users/register", s.handleRegister)
	public.HandleFunc("POST /api/v1/users/login", s.handleLogin)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)
	protected.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	protected.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleGetMessages)
	protected.HandleFunc("DELETE /api/v1/conversations/{id}", s.handleDeleteConversation)
	protected.HandleFunc("GET /api/v1/memory/relevant", s.handleRelevantMemories)
	protected.HandleFunc("GET /api/v1/insights/hero", s.handleHeroInsight)
	protected.HandleFunc("GET /api/v1/insights/data", s.handleDataInsight)
	protected.HandleFunc("GET /api/v1/insights/explore", s.handleExploreInsight)

	public.Handle("/api/v1/", auth.Middleware(s.verifier)(protected))

	return public
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully, waiting for in-flight requests and background jobs.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Server.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let queued persistence and title jobs finish
	s.scheduler.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
