package models

import "time"

// IndexingStatus is the state of an indexing run.
type IndexingStatus string

const (
	IndexingIdle      IndexingStatus = "idle"
	IndexingScanning  IndexingStatus = "scanning"
	IndexingDiffing   IndexingStatus = "diffing"
	IndexingIndexing  IndexingStatus = "indexing"
	IndexingComplete  IndexingStatus = "complete"
	IndexingError     IndexingStatus = "error"
	IndexingCancelled IndexingStatus = "cancelled"
)

// Terminal reports whether no further transitions follow s within a run.
func (s IndexingStatus) Terminal() bool {
	switch s {
	case IndexingComplete, IndexingError, IndexingCancelled:
		return true
	}
	return false
}

// IndexingProgress is a snapshot of an indexing run.
type IndexingProgress struct {
	RunID         string         `json:"run_id,omitempty"`
	CurrentStatus IndexingStatus `json:"current_status"`
	TotalItems    int            `json:"total_items"`
	// IndexedCount is the number of items known to have a stored vector.
	IndexedCount int       `json:"indexed_count"`
	Missing      int       `json:"missing"`
	Failed       int       `json:"failed"`
	CurrentItem  string    `json:"current_item,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}
