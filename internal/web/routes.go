package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/kiosk/internal/web/handlers"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.services, s.sessionManager)
	kioskHandler := handlers.NewKioskHandler(s.services, s.kioskSessions, s.sessionManager)
	configHandler := handlers.NewConfigHandler(s.services)
	identitiesHandler := handlers.NewIdentitiesHandler(s.services, s.sessionManager)
	attendanceHandler := handlers.NewAttendanceHandler(s.services)
	matchHandler := handlers.NewMatchHandler(s.services)
	statsHandler := handlers.NewStatsHandler(s.services, s.kioskSessions)

	// No auth required
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", s.services.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Get("/config", configHandler.Get)

		// Kiosk screens
		r.Post("/kiosk/sessions", kioskHandler.Start)
		r.Get("/kiosk/sessions/{sid}", kioskHandler.Get)
		r.Delete("/kiosk/sessions/{sid}", kioskHandler.End)
		r.Post("/kiosk/sessions/{sid}/frame", kioskHandler.Frame)
		r.Post("/kiosk/sessions/{sid}/credential", kioskHandler.Credential)
		r.Post("/kiosk/sessions/{sid}/reset", kioskHandler.Reset)
		r.Post("/kiosk/sessions/{sid}/register", kioskHandler.Register)

		// Administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			r.Get("/identities", identitiesHandler.List)
			r.Post("/identities", identitiesHandler.Create)
			r.Post("/identities/generate", identitiesHandler.GenerateIdentifier)
			r.Get("/identities/{id}", identitiesHandler.Get)
			r.Post("/identities/{id}/embeddings", identitiesHandler.AddEmbedding)
			r.Put("/identities/{id}/credentials", identitiesHandler.SetCredentials)
			r.Put("/identities/{id}/admin", identitiesHandler.SetAdmin)

			r.Get("/attendance", attendanceHandler.List)
			r.Post("/match", matchHandler.Match)
			r.Get("/stats", statsHandler.Get)
		})
	})
}
