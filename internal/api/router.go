package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Account endpoints that issue sessions
		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/federated", s.handleFederatedLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/homes", func(r chi.Router) {
				r.Get("/", s.handleListHomes)
				r.Post("/", s.handleCreateHome)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHome)
					r.Patch("/", s.handleUpdateHome)
					r.Delete("/", s.handleDeleteHome)
					r.Get("/rooms", s.handleListRooms)
					r.Post("/rooms", s.handleCreateRoom)
				})
			})

			r.Route("/rooms/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRoom)
				r.Patch("/", s.handleUpdateRoom)
				r.Delete("/", s.handleDeleteRoom)
				r.Get("/devices", s.handleListDevices)
				r.Post("/devices", s.handleCreateDevice)
			})

			r.Route("/devices/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Put("/state", s.handleSetDeviceState)
				r.Get("/readings", s.handleListReadings)
				r.Get("/backfill", s.handleBackfill)
			})

			r.Route("/onboarding", func(r chi.Router) {
				r.Post("/", s.handleStartOnboarding)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleOnboardingStatus)
					r.Delete("/", s.handleEndOnboarding)
					r.Post("/scan", s.handleOnboardingScan)
					r.Post("/select", s.handleOnboardingSelect)
					r.Post("/connect", s.handleOnboardingConnect)
					r.Post("/configure", s.handleOnboardingConfigure)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.HealthCheck(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
