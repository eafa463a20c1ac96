package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stratify/live-metrics/internal/auth"
)

// SetupRoutes configures the router. The /api group carries the owner auth
// middleware; /public is reachable without a session so shared view addresses
// work for anonymous viewers.
func SetupRoutes(h *Handlers, authManager *auth.Manager, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - allow credentials for auth cookies
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Owner dashboard (protected)
	r.Route("/api", func(r chi.Router) {
		if authManager != nil {
			r.Use(requireSession(authManager))
		}
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", h.GetDashboard)
			r.Post("/refresh", h.RefreshDashboard)
			r.Post("/live", h.SetLiveState)
			r.Get("/events", h.StreamDashboard)
		})
	})

	// Shared view addresses (no auth; access control happens server-side on
	// the proxy path)
	r.Route("/public/dashboard/{viewID}", func(r chi.Router) {
		r.Get("/", h.GetPublicDashboard)
		r.Get("/events", h.StreamPublicDashboard)
	})

	return r
}

func requireSession(authManager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !authManager.IsAuthenticated(req) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
