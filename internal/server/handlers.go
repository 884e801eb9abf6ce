package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/indexer"
	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) || errors.Is(err, models.ErrInvalidThreshold) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type indexStartResponse struct {
	Status   string                  `json:"status"`
	Progress models.IndexingProgress `json:"progress"`
}

func (s *Server) handleIndexStart(w http.ResponseWriter, r *http.Request) {
	progress, err := s.TriggerIndex()
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		s.respondJSON(w, http.StatusConflict, indexStartResponse{Status: "in_progress", Progress: progress})
		return
	}
	if err != nil {
		s.logger.Error("failed to start indexing", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, indexStartResponse{Status: "started", Progress: progress})
}

func (s *Server) handleIndexProgress(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"running":  s.indexer.Running(),
		"progress": s.indexer.Progress(),
	})
}

// handleIndexStream runs an indexing pass bound to the request and writes one JSON
// progress object per line. Disconnecting cancels the run; the next run resumes it.
func (s *Server) handleIndexStream(w http.ResponseWriter, r *http.Request) {
	ch, err := s.indexer.Start(r.Context())
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		s.respondJSON(w, http.StatusConflict, indexStartResponse{Status: "in_progress", Progress: s.indexer.Progress()})
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for p := range ch {
		if err := enc.Encode(p); err != nil {
			s.logger.Debug("progress stream closed", zap.Error(err))
			// Keep draining so the run finishes its cancellation.
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexer.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete item request", zap.String("item_id", id))
	if err := s.indexer.DeleteItem(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "item not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count embeddings failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"embeddings": count,
		"indexing":   s.indexer.Progress(),
	}
	if s.watch != nil {
		resp["directories"] = s.watch.Directories()
	}

	if s.appConfig != nil {
		cfg := s.appConfig
		resp["config"] = map[string]interface{}{
			"storage_type":         cfg.Storage.Type,
			"database_path":        cfg.Storage.DatabasePath,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"context_length":       cfg.Tokenizer.ContextLength,
			"image_size":           cfg.Embedding.ImageSize,
			"default_limit":        cfg.Search.DefaultLimit,
			"default_threshold":    cfg.Search.Threshold(),
		}
		var paths []string
		if cfg.Storage.Type == "memory" {
			paths = []string{cfg.Storage.SnapshotPath}
		} else {
			paths = storage.SQLiteFiles(cfg.Storage.DatabasePath)
		}
		if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistDirectories writes the current directory list back to the config file.
func (s *Server) persistDirectories() {
	if s.configPath == "" || s.appConfig == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.appConfig.Library.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.appConfig); err != nil {
		s.logger.Warn("failed to persist library directories", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
