// Package cli provides CLI output helpers for shashin.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/hyperjump/shashin/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are treated as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\n", r.Rank, r.Similarity, resultLocation(r))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	switch response.Status {
	case models.SearchStatusNotIndexed:
		fmt.Fprintln(w, "\nNo photos are indexed yet. Run \"shashin index\" first.")
		return
	case models.SearchStatusNoMatches:
		fmt.Fprintf(w, "\nNo photos matched %q above similarity %.2f (searched %d in %dms)\n",
			response.Query, response.Threshold, response.Searched, response.QueryTime)
		return
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (searched %d, threshold %.2f)\n\n",
		response.Total, response.QueryTime, response.Searched, response.Threshold)
	for _, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", r.Rank, r.Similarity)
		fmt.Fprintf(w, "ID: %s\n", r.ItemID)
		if r.Path != "" {
			fmt.Fprintf(w, "File: %s\n", r.Path)
		}
	}
	fmt.Fprintln(w)
}

func resultLocation(r *models.SearchResult) string {
	if r.Path != "" {
		return r.Path
	}
	return r.ItemID
}

// WriteProgress writes one line describing an indexing snapshot.
func WriteProgress(w io.Writer, p models.IndexingProgress) {
	switch {
	case p.CurrentStatus == models.IndexingIndexing && p.CurrentItem != "":
		fmt.Fprintf(w, "[%s] %d/%d indexed, %d failed (%s)\n",
			p.CurrentStatus, p.IndexedCount, p.TotalItems, p.Failed, Truncate(filepath.Base(p.CurrentItem), 40))
	case p.CurrentStatus.Terminal():
		elapsed := time.Duration(0)
		if !p.StartedAt.IsZero() && !p.FinishedAt.IsZero() {
			elapsed = p.FinishedAt.Sub(p.StartedAt).Round(time.Millisecond)
		}
		fmt.Fprintf(w, "[%s] %d/%d indexed, %d failed in %s\n",
			p.CurrentStatus, p.IndexedCount, p.TotalItems, p.Failed, elapsed)
		if p.Error != "" {
			fmt.Fprintf(w, "error: %s\n", p.Error)
		}
	default:
		fmt.Fprintf(w, "[%s] %d items\n", p.CurrentStatus, p.TotalItems)
	}
}

// WriteStats writes the indexed and total counts.
func WriteStats(w io.Writer, stats models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, stats)
	}
	fmt.Fprintf(w, "indexed:  %d   # embeddings in the store\n", stats.Indexed)
	fmt.Fprintf(w, "total:    %d   # photos in the library\n", stats.Total)
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
