// Package server provides the HTTP API for shoel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/rag"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a multipart PDF upload.
const maxUploadBytes = 64 << 20

// WatchService manages the watched inbox directories. Implemented by *watcher.Watcher.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the shoel API.
type Server struct {
	service *rag.Service
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	watch          WatchService // nil when no inbox is configured
	configPath     string       // when set with appConfig, watch changes are persisted
	appConfig      *config.Config
	appConfigMu    sync.Mutex
	routerOnce     sync.Once
	router         http.Handler
	requestTimeout time.Duration
}

// NewServer creates a server over svc. watch may be nil; when configPath and
// appConfig are set, changes to the watched directories are saved to the config file.
func NewServer(
	svc *rag.Service,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	appConfig *config.Config,
) *Server {
	timeout := 120 * time.Second
	if appConfig != nil {
		// leave room for every provider in the fallback chain
		if t := appConfig.Generation.Timeout() * time.Duration(len(appConfig.Generation.Providers)+1); t > timeout {
			timeout = t
		}
	}
	return &Server{
		service:        svc,
		config:         cfg,
		logger:         logger,
		watch:          watch,
		configPath:     configPath,
		appConfig:      appConfig,
		requestTimeout: timeout,
	}
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	s.routerOnce.Do(func() {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Use(middleware.Compress(5))

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/documents", s.handleUploadDocument)
			r.Post("/documents/text", s.handleIngestText)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleDeleteDocument)
			r.Post("/search", s.handleSearch)
			r.Post("/chat", s.handleChat)
			r.Get("/status", s.handleStatus)
			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})
		r.Get("/health", s.handleHealth)
		s.router = r
	})
	return s.router
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
