package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/attestkit/harvester/logger"
	"github.com/attestkit/harvester/plugin"
)

// Config holds configuration for the standalone HTTP server.
type Config struct {
	// RedisURL enables distributed rate limiting (in-memory if empty).
	RedisURL string
	// RequestLimit is the number of requests allowed per window (default: 100).
	RequestLimit int
	// RequestWindow is the rate limiting window (default: 1 minute).
	RequestWindow time.Duration
	// AuthToken, when set, is required on every request except /health.
	AuthToken string
}

// Server exposes the plugin workflows over plain HTTP.
type Server struct {
	service     *plugin.Service
	logger      logger.Logger
	router      *chi.Mux
	rateLimiter *RateLimiter
}

// New creates the HTTP server around an initialized plugin service.
func New(svc *plugin.Service, log logger.Logger, cfg *Config) (*Server, error) {
	if log == nil {
		log = logger.Noop()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RequestLimit == 0 {
		cfg.RequestLimit = 100
	}
	if cfg.RequestWindow == 0 {
		cfg.RequestWindow = time.Minute
	}

	rateLimiter, err := RateLimit(RateLimitConfig{
		RequestLimit:   cfg.RequestLimit,
		WindowDuration: cfg.RequestWindow,
		RedisURL:       cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	s := &Server{
		service:     svc,
		logger:      log,
		rateLimiter: rateLimiter,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httplog.RequestLogger(logger.Slog(log), &httplog.Options{
		RecoverPanics: true,
	}))
	r.Use(rateLimiter.Handler)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(Auth(cfg.AuthToken))
		r.Mount("/", svc.Router())
	})

	s.router = r
	return s, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.service.Health()

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// StartWithShutdown starts the HTTP server and shuts it down gracefully
// when ctx is cancelled.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close releases resources held by the server.
func (s *Server) Close() error {
	return s.rateLimiter.Close()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
