package vector

import (
	"fmt"
	"testing"
)

func benchCandidates(n, dims int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		v := make([]float32, dims)
		v[0] = float32(i) / float32(n)
		v[i%dims] += 1
		out[i] = Candidate{ID: fmt.Sprintf("img:%d", i), Vector: v}
	}
	return out
}

func BenchmarkCosineSimilarity512(b *testing.B) {
	c := benchCandidates(2, 512)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = CosineSimilarity(c[0].Vector, c[1].Vector)
	}
}

func BenchmarkRank10k(b *testing.B) {
	candidates := benchCandidates(10000, 512)
	query := make([]float32, 512)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Rank(query, candidates, DefaultThreshold, DefaultLimit)
	}
}
