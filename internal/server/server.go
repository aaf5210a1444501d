package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
	"github.com/alanyoungcy/hmtengine/internal/server/handler"
	"github.com/alanyoungcy/hmtengine/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled (control routes only)

	RateLimitPerMinute int // webhook rate limit; 0 disables
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Control *handler.ControlHandler
	Webhook http.Handler
}

// Server is the headless HTTP control-and-webhook surface for the engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) for the control surface; the
// webhook route authenticates itself via its own per-key scheme and is
// deliberately exempt from the API-key middleware.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)

	auth := middleware.Auth(cfg.APIKey)
	mux.Handle("POST /start", auth(http.HandlerFunc(handlers.Control.Start)))
	mux.Handle("POST /stop", auth(http.HandlerFunc(handlers.Control.Stop)))
	mux.Handle("GET /stats", auth(http.HandlerFunc(handlers.Control.Stats)))

	webhookHandler := handlers.Webhook
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		webhookHandler = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(webhookHandler)
	}
	mux.Handle("POST /webhook", webhookHandler)

	var h http.Handler = mux
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
