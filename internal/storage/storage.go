// Package storage persists image embeddings keyed by item id.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/models"
)

// ErrNotFound is returned when deleting an id that has no stored vector.
var ErrNotFound = errors.New("embedding not found")

// Store is the durable mapping from item id to embedding vector.
// Implementations are safe for concurrent use; each Put is atomic per id.
type Store interface {
	Contains(ctx context.Context, id string) (bool, error)
	// Put inserts or overwrites the vector for id.
	Put(ctx context.Context, id string, vec []float32) error
	// GetAll returns a snapshot of every stored embedding in insertion order.
	GetAll(ctx context.Context) ([]models.ItemEmbedding, error)
	DeleteByID(ctx context.Context, id string) error
	IDs(ctx context.Context) (map[string]struct{}, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// New opens the store selected by cfg.Type.
func New(cfg *config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "memory":
		m := NewMemoryStore(cfg.SnapshotPath)
		if err := m.Load(); err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func validatePut(id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("empty item id")
	}
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}
	return nil
}
