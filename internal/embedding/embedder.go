// Package embedding maps token ids and images into the shared CLIP vector space.
package embedding

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/pkg/utils"
)

// Embedder produces unit-length embeddings for text and images.
type Embedder interface {
	// EncodeText embeds a fixed-length token id sequence.
	EncodeText(ctx context.Context, ids []int64) ([]float32, error)
	EncodeImage(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}

// New loads the CLIP models described by cfg. When loading fails and cfg.AllowMock is
// set, a MockEmbedder of the configured dimensions is returned instead.
func New(cfg *config.EmbeddingConfig, contextLength int, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	emb, err := NewCLIPEmbedder(cfg, contextLength)
	if err == nil {
		logger.Info("CLIP models loaded",
			zap.String("text_model", cfg.TextModelPath),
			zap.String("image_model", cfg.ImageModelPath),
			zap.Int("dimensions", cfg.Dimensions))
		return emb, nil
	}
	if !cfg.AllowMock {
		return nil, fmt.Errorf("failed to load CLIP models: %w", err)
	}
	logger.Warn("CLIP models unavailable, using mock embedder", zap.Error(err))
	return NewMockEmbedder(cfg.Dimensions), nil
}
