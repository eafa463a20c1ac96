package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratify/live-metrics/internal/auth"
	"github.com/stratify/live-metrics/internal/config"
)

// Server represents the dashboard API server
type Server struct {
	config      config.ServerConfig
	handler     http.Handler
	handlers    *Handlers
	server      *http.Server
	authManager *auth.Manager
	router      *chi.Mux
	registry    *Registry
}

// NewServer creates the API server around a session registry.
func NewServer(cfg config.ServerConfig, registry *Registry, authManager *auth.Manager) *Server {
	handlers := NewHandlers(registry, authManager)

	origins := []string{"http://localhost:5173", "http://localhost:8080"}
	if cfg.BaseURL != "" {
		origins = append(origins, cfg.BaseURL)
	}
	router := SetupRoutes(handlers, authManager, origins)

	return &Server{
		config:      cfg,
		handler:     router,
		handlers:    handlers,
		authManager: authManager,
		router:      router,
		registry:    registry,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// WriteTimeout stays 0: the SSE streams hold their response open for
		// the life of the viewer session.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
