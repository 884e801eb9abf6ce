package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	norm := NormalizeL2(x)
	if math.Abs(norm-5) > 1e-9 {
		t.Errorf("norm = %f, want 5", norm)
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", x)
	}

	zero := []float32{0, 0, 0}
	if got := NormalizeL2(zero); got != 0 {
		t.Errorf("zero vector norm = %f, want 0", got)
	}
	for _, v := range zero {
		if v != 0 {
			t.Errorf("zero vector modified: %v", zero)
		}
	}
}
