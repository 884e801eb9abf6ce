// Package vector provides cosine similarity, ranking and the binary codec for
// embedding vectors.
package vector

import (
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are compared.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// CosineSimilarity returns dot(a,b) / (|a|·|b|) in [-1, 1]. A zero-norm vector yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push identical vectors slightly past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}

// InnerProduct returns the dot product of two equal-length vectors, 0 otherwise.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
