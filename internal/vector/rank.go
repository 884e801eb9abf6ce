package vector

import (
	"sort"
)

const (
	// DefaultThreshold is the minimum similarity a match must reach.
	DefaultThreshold = 0.2
	// DefaultLimit caps the number of matches when no limit is given.
	DefaultLimit = 20
)

// Candidate is a stored vector eligible for ranking.
type Candidate struct {
	ID     string
	Vector []float32
}

// Match is a ranked candidate.
type Match struct {
	ID         string
	Similarity float64
}

// Rank scores every candidate against query, drops those below threshold and returns at
// most limit matches ordered by descending similarity. Ties keep candidate order.
// limit <= 0 means DefaultLimit. A candidate of the wrong length fails the whole call.
func Rank(query []float32, candidates []Candidate, threshold float64, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	matches := make([]Match, 0, min(len(candidates), limit))
	for _, c := range candidates {
		sim, err := CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, err
		}
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
