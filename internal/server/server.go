// Package server provides the HTTP API for shashin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/indexer"
	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/search"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/pkg/utils"
)

// WatchService manages the watched library directories.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the shashin API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	store   storage.Store
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	watch      WatchService
	configPath string
	appConfig  *config.Config
	configMu   sync.Mutex

	// runCtx outlives requests; background runs are cancelled by Stop.
	runCtx    context.Context
	cancelRun context.CancelFunc
	// pending is set by RequestIndex while a run is active.
	pending atomic.Bool
}

// NewServer creates a server with the given dependencies. watch and appConfig may be nil;
// the watch endpoints then answer 501 and status omits configuration details.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	store storage.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	appConfig *config.Config,
) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine:     engine,
		indexer:    idx,
		store:      store,
		config:     cfg,
		logger:     utils.OrNop(logger),
		watch:      watch,
		configPath: configPath,
		appConfig:  appConfig,
		runCtx:     runCtx,
		cancelRun:  cancel,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The progress stream lasts as long as the run, so it sits outside the timeout.
	r.Get("/api/v1/index/stream", s.handleIndexStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/index", s.handleIndexStart)
		r.Get("/api/v1/index", s.handleIndexProgress)
		r.Get("/api/v1/stats", s.handleStats)
		r.Delete("/api/v1/items/{id}", s.handleDeleteItem)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels any background run and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelRun()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// TriggerIndex starts a background run that is drained and logged by the server.
// It returns indexer.ErrIndexingInProgress when a run is already active.
func (s *Server) TriggerIndex() (models.IndexingProgress, error) {
	ch, err := s.indexer.Start(s.runCtx)
	if err != nil {
		return s.indexer.Progress(), err
	}
	go func() {
		var last models.IndexingProgress
		for p := range ch {
			last = p
		}
		s.logger.Info("background indexing finished",
			zap.String("run_id", last.RunID),
			zap.String("status", string(last.CurrentStatus)),
			zap.Int("indexed", last.IndexedCount),
			zap.Int("failed", last.Failed))
		if s.pending.Swap(false) && s.runCtx.Err() == nil {
			s.RequestIndex()
		}
	}()
	return s.indexer.Progress(), nil
}

// RequestIndex starts a background run, or queues one to follow the active run.
// Requests made during one run collapse into a single follow-up run.
func (s *Server) RequestIndex() {
	_, err := s.TriggerIndex()
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		s.pending.Store(true)
		s.logger.Debug("indexing queued behind active run")
		// The active run may have finished before pending was set.
		if !s.indexer.Running() && s.pending.Swap(false) {
			s.RequestIndex()
		}
		return
	}
	if err != nil {
		s.logger.Warn("failed to start indexing", zap.Error(err))
	}
}
