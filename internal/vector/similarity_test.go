package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"diagonal", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"both empty", []float32{}, []float32{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -0.2, 0.9, 0.1}
	b := []float32{0.5, 0.4, -0.1, 0.7}
	ab, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	ba, err := CosineSimilarity(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.LessOrEqual(t, ab, 1.0)
	assert.GreaterOrEqual(t, ab, -1.0)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestInnerProductAndNorm(t *testing.T) {
	assert.InDelta(t, 11.0, InnerProduct([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.Equal(t, 0.0, InnerProduct([]float32{1}, []float32{1, 2}))
	assert.InDelta(t, 5.0, L2Norm([]float32{3, 4}), 1e-9)
}
