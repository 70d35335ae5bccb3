// Package server provides the HTTP API for rxmatch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/config"
	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/resolve"
	"github.com/rxbridge/rxmatch/internal/store"
)

// Server is the HTTP server for the rxmatch API.
type Server struct {
	provider *catalog.Provider
	matchCfg *match.Config
	pipeline *resolve.Pipeline
	store    store.Store
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	// reload rebuilds the catalog from the feed on demand; nil disables the
	// reload endpoint.
	reload func(ctx context.Context) error
}

// Option configures optional server behavior.
type Option func(*Server)

// WithReload enables the catalog reload endpoint backed by fn.
func WithReload(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.reload = fn }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	provider *catalog.Provider,
	matchCfg *match.Config,
	pipeline *resolve.Pipeline,
	st store.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		provider: provider,
		matchCfg: matchCfg,
		pipeline: pipeline,
		store:    st,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router for the API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/resolve", s.handleResolve)
	r.Post("/api/v1/match", s.handleMatch)
	r.Get("/api/v1/concepts/{id}", s.handleGetConcept)
	r.Get("/api/v1/resolutions", s.handleListResolutions)
	r.Get("/api/v1/resolutions/{id}", s.handleGetResolution)
	r.Post("/api/v1/catalog/reload", s.handleCatalogReload)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
