package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/server/handler"
	"github.com/sealedmarkets/batchpool/internal/server/middleware"
	"github.com/sealedmarkets/batchpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminToken  string // if empty, the admin surface is disabled
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Rounds  *handler.RoundHandler
	Auction *handler.AuctionHandler
	Admin   *handler.AdminHandler
}

// Server is the HTTP + WebSocket API for one batch auction market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS) and attaches the
// WebSocket hub. The admin surface is mounted behind bearer-token auth and
// only when a token is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Read endpoints.
	mux.HandleFunc("GET /api/status", handlers.Rounds.Status)
	mux.HandleFunc("GET /api/rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("GET /api/rounds/{round}", handlers.Rounds.GetRound)
	mux.HandleFunc("GET /api/rounds/{round}/settlement", handlers.Rounds.GetSettlement)
	mux.HandleFunc("GET /api/rounds/{round}/reveals", handlers.Rounds.ListReveals)
	mux.HandleFunc("GET /api/rounds/{round}/commitments/{address}", handlers.Rounds.GetCommitment)
	mux.HandleFunc("GET /api/rounds/{round}/claimable/{address}", handlers.Rounds.GetClaimable)
	mux.HandleFunc("GET /api/rounds/{round}/bond", handlers.Rounds.GetBond)
	mux.HandleFunc("GET /api/rounds/{round}/archive", handlers.Rounds.ListArchive)
	mux.HandleFunc("GET /api/rounds/{round}/archive/{object}", handlers.Rounds.GetArchiveObject)
	mux.HandleFunc("GET /api/events", handlers.Rounds.ListEvents)
	mux.HandleFunc("GET /api/settlements", handlers.Rounds.ListSettlements)

	// Lifecycle endpoints.
	mux.HandleFunc("POST /api/rounds", handlers.Auction.StartRound)
	mux.HandleFunc("POST /api/commit", handlers.Auction.Commit)
	mux.HandleFunc("POST /api/reveal", handlers.Auction.Reveal)
	mux.HandleFunc("POST /api/settle", handlers.Auction.Settle)
	mux.HandleFunc("POST /api/claim", handlers.Auction.Claim)
	mux.HandleFunc("POST /api/refund", handlers.Auction.Refund)
	mux.HandleFunc("POST /api/emergency/refund", handlers.Auction.EmergencyRefund)
	mux.HandleFunc("POST /api/bond/withdraw", handlers.Auction.WithdrawBond)
	mux.HandleFunc("POST /api/force-unpause", handlers.Auction.ForceUnpause)
	mux.HandleFunc("POST /api/solvers/rewards/claim", handlers.Auction.ClaimReward)

	// Admin surface, mounted only when a token is configured.
	if cfg.AdminToken != "" && handlers.Admin != nil {
		admin := http.NewServeMux()
		admin.HandleFunc("GET /api/admin/pause", handlers.Admin.PauseFlags)
		admin.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
		admin.HandleFunc("POST /api/admin/unpause", handlers.Admin.Unpause)
		admin.HandleFunc("POST /api/admin/emergency/{round}", handlers.Admin.ActivateEmergency)
		admin.HandleFunc("POST /api/admin/override", handlers.Admin.SetOverride)
		admin.HandleFunc("POST /api/admin/fees/withdraw", handlers.Admin.WithdrawFees)
		admin.HandleFunc("GET /api/admin/solvers", handlers.Admin.ListSolvers)
		admin.HandleFunc("POST /api/admin/solvers", handlers.Admin.RegisterSolver)
		admin.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)

		mux.Handle("/api/admin/", middleware.Auth(cfg.AdminToken)(admin))
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
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
