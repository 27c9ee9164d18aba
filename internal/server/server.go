package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/normgraph/normgraph/internal/auth"
	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/knowledge"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/retrieval"
)

// Deps are the subsystems the API serves.
type Deps struct {
	Orchestrator *retrieval.Orchestrator
	Ingester     *knowledge.Ingester
	Manager      knowledge.Manager
	// Tokens may be nil when auth is disabled.
	Tokens *auth.Handler
}

// Server is the REST API over the query and ingestion pipelines.
type Server struct {
	httpServer  *http.Server
	deps        Deps
	authEnabled bool
	logger      *observability.TracedLogger
}

// New builds the server and its route tree.
func New(cfg config.ServerConfig, authCfg config.AuthConfig, deps Deps, logger *observability.TracedLogger) *Server {
	s := &Server{
		deps:        deps,
		authEnabled: authCfg.Enabled && deps.Tokens != nil,
		logger:      logger,
	}

	addr := cfg.Address
	if addr == "" {
		addr = ":8080"
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  orDefault(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 120*time.Second),
	}
	return s
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.With(s.requirePermission(auth.PermissionQuery)).Post("/query", s.handleQuery)
			r.With(s.requirePermission(auth.PermissionQuery)).Get("/sources", s.handleListSources)
			r.With(s.requirePermission(auth.PermissionQuery)).Get("/stats", s.handleStats)
			r.With(s.requirePermission(auth.PermissionIngest)).Post("/ingest", s.handleIngest)
			r.With(s.requirePermission(auth.PermissionIngest)).Delete("/sources/{source}", s.handleDeleteSource)
		})
	})
	return r
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "server listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
