// Package server exposes the market, betting, and settlement services over
// HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veilworks/blindbet/internal/server/handler"
	"github.com/veilworks/blindbet/internal/server/middleware"
	"github.com/veilworks/blindbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Bets    *handler.BetHandler
	Claims  *handler.ClaimHandler
	Token   *handler.TokenHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)

	// Bet endpoints.
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets/me", handlers.Bets.GetBet)
	mux.HandleFunc("GET /api/markets/{id}/pools", handlers.Bets.GetPools)

	// Claim endpoints.
	mux.HandleFunc("POST /api/markets/{id}/claims", handlers.Claims.ClaimReward)
	mux.HandleFunc("POST /api/markets/{id}/claims/reopen", handlers.Claims.ReclaimExpired)
	mux.HandleFunc("GET /api/markets/{id}/claims/me", handlers.Claims.GetPendingClaim)

	// Token endpoints.
	mux.HandleFunc("POST /api/token/encrypt", handlers.Token.Encrypt)
	mux.HandleFunc("POST /api/token/approve", handlers.Token.Approve)
	mux.HandleFunc("GET /api/token/balance", handlers.Token.Balance)
	mux.HandleFunc("POST /api/token/mint", handlers.Token.Mint)

	// Decryption callback endpoint.
	mux.HandleFunc("POST /api/callbacks/decrypt", handlers.Claims.DecryptCallback)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
