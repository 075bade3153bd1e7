// Package core provides the API chassis for the docgen service. It creates a
// chi router and enforces cross-cutting concerns -- identity resolution,
// rate limiting, logging, and error handling -- before requests reach the
// document handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docgen/internal/billing"
	"docgen/internal/config"
	"docgen/internal/ratelimit"
)

// Server encapsulates all dependencies for the docgen API, allowing for easy
// injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Keys           billing.KeyService
	Plans          billing.PlanRegistry
	RateLimitStore ratelimit.Store

	// HealthProbes are executed by the /health endpoint.
	HealthProbes []HealthProbe

	// V1RouteRegistrars register domain handler routes under /v1. Populated
	// by the application entry point to avoid import cycles between core and
	// handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	keys billing.KeyService,
	plans billing.PlanRegistry,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if keys == nil {
		return nil, fmt.Errorf("key service must not be nil")
	}
	if plans == nil {
		return nil, fmt.Errorf("plan registry must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Keys:      keys,
		Plans:     plans,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	s.Logger.Info("server shutdown complete")
	return nil
}
