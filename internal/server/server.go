// Package server provides the HTTP API for normlab.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/pkg/utils"
)

// WatchService reports the inbox directories being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the normlab API.
type Server struct {
	backend *app.Backend
	watch   WatchService // nil when no inbox is watched
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server over backend. watch may be nil.
func NewServer(backend *app.Backend, cfg *config.ServerConfig, logger *zap.Logger, watch WatchService) *Server {
	return &Server{
		backend: backend,
		watch:   watch,
		config:  cfg,
		logger:  utils.OrNop(logger),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleIngestDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/chunks", s.handleGetChunks)

		r.Post("/records", s.handleAddRecords)
		r.Post("/index/reset", s.handleReset)
		r.Post("/search", s.handleSearch)
		r.Get("/retrieval-logs", s.handleRetrievalLogs)

		r.Post("/norms", s.handleLoadNorms)
		r.Post("/norms/resolve", s.handleResolve)
		r.Get("/reports/variance", s.handleVarianceReport)

		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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
