package models

// SearchStatus distinguishes an empty index from a search that matched nothing.
type SearchStatus string

const (
	SearchStatusOK         SearchStatus = "ok"
	SearchStatusNoMatches  SearchStatus = "no_matches"
	SearchStatusNotIndexed SearchStatus = "not_indexed"
)

// SearchResult is a single ranked item.
type SearchResult struct {
	ItemID     string  `json:"item_id"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
	// Path is the file backing the item when the library can resolve it.
	Path string `json:"path,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Status    SearchStatus    `json:"status"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	Threshold float64         `json:"threshold"`
	// Searched is the number of stored vectors compared against the query.
	Searched  int   `json:"searched"`
	QueryTime int64 `json:"query_time_ms"`
}
