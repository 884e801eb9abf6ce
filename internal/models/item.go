// Package models defines the data structures shared by the indexer, search engine and
// HTTP surface.
package models

import "time"

// ItemEmbedding is a stored image vector keyed by its item id.
type ItemEmbedding struct {
	ID        string    `json:"id" db:"id"`
	Vector    []float32 `json:"-" db:"vector"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Dimensions returns the vector length.
func (e ItemEmbedding) Dimensions() int { return len(e.Vector) }

// Stats summarizes index coverage.
type Stats struct {
	Indexed int64 `json:"indexed"`
	Total   int   `json:"total"`
}
