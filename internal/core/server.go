// Package core provides the API chassis for the YardLink platform.
// It creates a chi router compatible with both standard HTTP (for local
// dev) and AWS Lambda Proxy Integration (via chiadapter), and enforces
// the cross-cutting concerns (security, logging, error handling) before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"yardlink/internal/config"
)

// RouteRegistrar registers a handler group's routes on the v1 router.
// Populated by the application entry point to avoid import cycles
// between core and handler packages.
type RouteRegistrar func(chi.Router)

// Server holds the dependencies for the YardLink API.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked by GET /health. Each represents a
	// critical dependency (database, queue).
	HealthProbes []HealthProbe

	// V1RouteRegistrars are invoked when routes are mounted.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the server chassis. The caller mounts routes
// after construction, which lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler. Used by
// http.ListenAndServe locally and chiadapter.New on Lambda.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown logs termination. Connection pools are owned and closed by
// the entry point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
