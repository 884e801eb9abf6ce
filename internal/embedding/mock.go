package embedding

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"image"
	"math"

	"github.com/hyperjump/shashin/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and for running without the CLIP
// models. Equal inputs always produce equal unit vectors.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EncodeText returns a vector derived from the id sequence.
func (e *MockEmbedder) EncodeText(ctx context.Context, ids []int64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}
	return e.vector(h.Sum64()), nil
}

// EncodeImage returns a vector derived from an 8×8 sample grid of img.
func (e *MockEmbedder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	b := img.Bounds()
	const grid = 8
	if !b.Empty() {
		for gy := 0; gy < grid; gy++ {
			for gx := 0; gx < grid; gx++ {
				x := b.Min.X + gx*b.Dx()/grid
				y := b.Min.Y + gy*b.Dy()/grid
				r, g, bl, _ := img.At(x, y).RGBA()
				h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)})
			}
		}
	}
	return e.vector(h.Sum64()), nil
}

func (e *MockEmbedder) vector(seed uint64) []float32 {
	emb := make([]float32, e.dimensions)
	s := float64(seed%100003) + 1
	for i := range emb {
		emb[i] = float32(math.Sin(s*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
