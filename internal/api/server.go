package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/volume-sync/vsc/internal/auth"
	"github.com/volume-sync/vsc/internal/config"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server

	cfg        *config.Config
	dispatcher SubmitPort
	telemetry  TelemetryPort
	status     StatusPort

	authMiddleware *auth.Middleware
	limiter        *RateLimiter
	metricsHandler http.Handler

	startTime time.Time
}

// NewServer creates an API server. metricsHandler may be nil to disable
// the /metrics endpoint.
func NewServer(cfg *config.Config, dispatcher SubmitPort, telemetry TelemetryPort, status StatusPort, authMiddleware *auth.Middleware, metricsHandler http.Handler) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil)
	}
	return &Server{
		cfg:            cfg,
		dispatcher:     dispatcher,
		telemetry:      telemetry,
		status:         status,
		authMiddleware: authMiddleware,
		limiter:        NewRateLimiter(cfg.RateLimit),
		metricsHandler: metricsHandler,
		startTime:      time.Now(),
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Std(),
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
