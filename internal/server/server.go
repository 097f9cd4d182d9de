// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/metrics"
	"github.com/alanyoungcy/binarymarket/internal/server/handler"
	"github.com/alanyoungcy/binarymarket/internal/server/middleware"
	"github.com/alanyoungcy/binarymarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Deps aggregates the services the routes are served from. Markets and
// Accounts are required; the rest switch their routes off when nil.
type Deps struct {
	Markets  handler.MarketService
	Accounts handler.AccountService
	Archive  handler.ArchiveService
	Stream   handler.StreamReader
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Metrics  *metrics.Metrics
	Checks   []handler.Check
}

// publicPaths are served without the API key.
var publicPaths = []string{"/api/health", "/metrics"}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered on the ServeMux and the
// middleware chain applied.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(logger, deps.Checks...)
	mux.HandleFunc("GET /api/health", health.HealthCheck)

	mh := handler.NewMarketHandler(deps.Markets, logger)
	mux.HandleFunc("GET /api/markets", mh.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", mh.GetMarket)
	mux.HandleFunc("PUT /api/markets/{id}", mh.ConfigureMarket)
	mux.HandleFunc("POST /api/markets/{id}/activate", mh.Activate)
	mux.HandleFunc("POST /api/markets/{id}/bets", mh.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/liquidity", mh.AddLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/resolve", mh.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/withdraw", mh.Withdraw)
	mux.HandleFunc("GET /api/markets/{id}/events", mh.ListEvents)

	ah := handler.NewAccountHandler(deps.Accounts, logger)
	mux.HandleFunc("GET /api/accounts/{owner}", ah.GetAccount)
	mux.HandleFunc("POST /api/accounts/{owner}/deposit", ah.Deposit)

	if deps.Archive != nil {
		arch := handler.NewArchiveHandler(deps.Archive, logger)
		mux.HandleFunc("POST /api/markets/{id}/archive", arch.ArchiveMarket)
		mux.HandleFunc("GET /api/markets/{id}/archive", arch.ListArchive)
		mux.HandleFunc("GET /api/markets/{id}/archive/record", arch.ArchivedRecord)
	}

	if deps.Stream != nil {
		sh := handler.NewStreamHandler(deps.Stream, logger)
		mux.HandleFunc("GET /api/events/stream", sh.Replay)
	}

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	// Build the middleware chain, innermost first. Identity sits outside
	// Logging so the request the mux annotates with its route pattern is the
	// one Logging holds.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, publicPaths...)(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, deps.Metrics)(h)
	h = middleware.Identity()(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
