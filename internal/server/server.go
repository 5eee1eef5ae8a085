// Package server provides the HTTP API for Mitsuke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/history"
	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/search"
)

// Server is the HTTP server for the Mitsuke API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	history *history.Store // optional
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. history may
// be nil when query logging is disabled.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	hist *history.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:  engine,
		indexer: idx,
		history: hist,
		config:  cfg,
		logger:  logger,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/search/tags", s.handleSearchByTags)
	r.Get("/api/v1/similar", s.handleSimilar)
	r.Get("/api/v1/keyword", s.handleKeyword)
	r.Get("/api/v1/readiness", s.handleReadiness)
	r.Get("/api/v1/stats", s.handleStats)
	r.Post("/api/v1/stats/reset", s.handleStatsReset)
	r.Delete("/api/v1/cache", s.handleCacheClear)
	r.Post("/api/v1/index", s.handleIndexSync)
	r.Post("/api/v1/cleanup", s.handleCleanup)
	r.Get("/api/v1/history", s.handleHistory)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
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
