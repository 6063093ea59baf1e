package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/kiosk/internal/constants"
	"github.com/kozaktomas/kiosk/internal/web/handlers"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	services       *handlers.Services
	router         *chi.Mux
	httpServer     *http.Server
	kioskSessions  *handlers.KioskSessions
	sessionManager *middleware.SessionManager
	logger         *slog.Logger
}

// NewServer creates the kiosk API server over fully built services
func NewServer(svc *handlers.Services) *Server {
	r := chi.NewRouter()
	cfg := svc.Config
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		services:       svc,
		router:         r,
		kioskSessions:  handlers.NewKioskSessions(),
		sessionManager: middleware.NewSessionManager(cfg.Web.SessionSecret),
		logger:         logger,
	}
	if cfg.Web.SessionSecret == "" {
		logger.Warn("WEB_SESSION_SECRET is not set, using a development secret")
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(svc.Metrics))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(constants.RequestTimeout))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      constants.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then writes out attendance records still held in memory
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	s.sessionManager.Stop()
	s.kioskSessions.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := s.services.Ledger.Flush(ctx); err != nil {
		s.logger.Error("attendance records left unsaved", "pending", s.services.Ledger.Pending(), "error", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
