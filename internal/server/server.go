// Package server exposes the ops HTTP API: health, status, metrics and
// execution history.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/server/middleware"
)

const (
	pathHealth  = "/api/health"
	pathMetrics = "/metrics"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr string
	// APIKey protects everything except health and metrics. Empty disables
	// authentication.
	APIKey       string
	RateLimitRPS float64
	RateBurst    int
}

// Handlers are the endpoint implementations. Executions, Decisions and
// Archive are optional and their routes are only registered when set.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Executions *handler.ExecutionHandler
	Decisions  *handler.DecisionHandler
	Archive    *handler.ArchiveHandler
	Metrics    http.Handler
}

// Server is the ops API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers routes and wraps them in rate limiting, auth and request
// logging.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           routes(cfg, h, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func routes(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+pathHealth, h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	if h.Metrics != nil {
		mux.Handle("GET "+pathMetrics, h.Metrics)
	}
	if h.Executions != nil {
		mux.HandleFunc("GET /api/executions", h.Executions.ListRecent)
		mux.HandleFunc("GET /api/executions/{id}", h.Executions.Get)
	}
	if h.Decisions != nil {
		mux.HandleFunc("GET /api/decisions", h.Decisions.List)
	}
	if h.Archive != nil {
		mux.HandleFunc("POST /api/archive/trigger", h.Archive.Trigger)
	}

	var handler http.Handler = mux
	handler = middleware.Auth(cfg.APIKey, pathHealth, pathMetrics)(handler)
	handler = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateBurst)(handler)
	handler = middleware.Logging(logger, pathHealth, pathMetrics)(handler)
	return handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.InfoContext(ctx, "ops server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
