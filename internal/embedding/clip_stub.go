//go:build !cgo

package embedding

import (
	"context"
	"errors"
	"image"

	"github.com/hyperjump/shashin/internal/config"
)

var errNoCGO = errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// CLIPEmbedder stub type when built without CGO (see clip.go for the real implementation).
type CLIPEmbedder struct{}

// NewCLIPEmbedder returns an error when built without CGO.
func NewCLIPEmbedder(_ *config.EmbeddingConfig, _ int) (*CLIPEmbedder, error) {
	return nil, errNoCGO
}

func (*CLIPEmbedder) EncodeText(context.Context, []int64) ([]float32, error) { return nil, errNoCGO }

func (*CLIPEmbedder) EncodeImage(context.Context, image.Image) ([]float32, error) {
	return nil, errNoCGO
}

func (*CLIPEmbedder) Dimensions() int { return 0 }

func (*CLIPEmbedder) Close() error { return nil }
