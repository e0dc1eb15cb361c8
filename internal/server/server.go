// Package server assembles the HTTP + WebSocket API for the escrow engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vignex/escrow-engine/internal/domain"
	"github.com/vignex/escrow-engine/internal/server/handler"
	"github.com/vignex/escrow-engine/internal/server/middleware"
	"github.com/vignex/escrow-engine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter throttles requests per client IP when RateLimit > 0.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Users  *handler.UserHandler
	Ads    *handler.AdHandler
	Trades *handler.TradeHandler
}

// Server is the API server for the escrow trade engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// User endpoints.
	mux.HandleFunc("POST /api/users", handlers.Users.Register)
	mux.HandleFunc("GET /api/users/{id}", handlers.Users.Get)

	// Advertisement endpoints.
	mux.HandleFunc("POST /api/ads", handlers.Ads.Post)
	mux.HandleFunc("GET /api/ads", handlers.Ads.List)
	mux.HandleFunc("GET /api/ads/{id}", handlers.Ads.Get)
	mux.HandleFunc("POST /api/ads/{id}/status", handlers.Ads.SetStatus)
	mux.HandleFunc("DELETE /api/ads/{id}", handlers.Ads.Delete)

	// Trade lifecycle endpoints. Each POST maps to one state transition.
	mux.HandleFunc("POST /api/trades", handlers.Trades.Create)
	mux.HandleFunc("GET /api/trades", handlers.Trades.List)
	mux.HandleFunc("GET /api/trades/pending", handlers.Trades.ListPending)
	mux.HandleFunc("GET /api/trades/{id}", handlers.Trades.Get)
	mux.HandleFunc("POST /api/trades/{id}/verify", handlers.Trades.Verify)
	mux.HandleFunc("POST /api/trades/{id}/mark-paid", handlers.Trades.MarkPaid)
	mux.HandleFunc("POST /api/trades/{id}/release", handlers.Trades.Release)
	mux.HandleFunc("POST /api/trades/{id}/cancel", handlers.Trades.Cancel)
	mux.HandleFunc("POST /api/trades/{id}/extend", handlers.Trades.Extend)
	mux.HandleFunc("POST /api/trades/{id}/appeal", handlers.Trades.Appeal)
	mux.HandleFunc("POST /api/trades/{id}/resolve", handlers.Trades.Resolve)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
