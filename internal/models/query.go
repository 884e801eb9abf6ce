package models

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultLimit is used when a query does not set one.
	DefaultLimit = 20
	// MaxLimit caps any requested limit.
	MaxLimit = 100
)

// ErrEmptyQuery is returned for a query with no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrInvalidThreshold is returned for a threshold outside [-1, 1].
var ErrInvalidThreshold = errors.New("threshold outside [-1, 1]")

// SearchQuery is a text-to-image search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// Threshold overrides the minimum similarity; nil means the configured default.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate trims the query text and normalizes the limit.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Threshold != nil && (*q.Threshold < -1 || *q.Threshold > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, *q.Threshold)
	}
	return nil
}
