// Package search ranks stored image embeddings against a text query.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/embedding"
	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/internal/tokenizer"
	"github.com/hyperjump/shashin/internal/vector"
	"github.com/hyperjump/shashin/pkg/utils"
)

// DefaultQueryCacheSize is the number of query embeddings kept by default.
const DefaultQueryCacheSize = 1000

// PathResolver maps an item id to the file backing it.
type PathResolver func(id string) (string, bool)

// Engine runs text-to-image search.
type Engine struct {
	tokenizer  *tokenizer.Tokenizer
	embedder   embedding.Embedder
	store      storage.Store
	config     *config.SearchConfig
	queryCache *embedding.EmbeddingCache
	resolve    PathResolver
	logger     *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithQueryCacheSize sets the query embedding cache capacity; zero disables it.
func WithQueryCacheSize(n int) EngineOption {
	return func(e *Engine) { e.queryCache = embedding.NewEmbeddingCache(n) }
}

// WithPathResolver fills SearchResult.Path for each match.
func WithPathResolver(r PathResolver) EngineOption {
	return func(e *Engine) { e.resolve = r }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	tok *tokenizer.Tokenizer,
	emb embedding.Embedder,
	store storage.Store,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		tokenizer:  tok,
		embedder:   emb,
		store:      store,
		config:     cfg,
		queryCache: embedding.NewEmbeddingCache(DefaultQueryCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Search embeds the query and ranks every stored vector against it. An empty store
// yields status not_indexed and a store with nothing above the threshold no_matches;
// neither is an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}

	queryVec, err := e.QueryVector(ctx, query.Query)
	if err != nil {
		return nil, err
	}
	items, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}

	response := &models.SearchResponse{
		Query:     query.Query,
		Threshold: *query.Threshold,
		Results:   []*models.SearchResult{},
	}
	if len(items) == 0 {
		response.Status = models.SearchStatusNotIndexed
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	candidates := make([]vector.Candidate, 0, len(items))
	skipped := 0
	for _, it := range items {
		if len(it.Vector) != len(queryVec) {
			skipped++
			continue
		}
		candidates = append(candidates, vector.Candidate{ID: it.ID, Vector: it.Vector})
	}
	if skipped > 0 {
		e.logger.Warn("skipping embeddings with mismatched dimensions",
			zap.Int("skipped", skipped), zap.Int("expected", len(queryVec)))
	}

	matches, err := vector.Rank(queryVec, candidates, *query.Threshold, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("ranking failed: %w", err)
	}
	for i, m := range matches {
		r := &models.SearchResult{ItemID: m.ID, Similarity: m.Similarity, Rank: i + 1}
		if e.resolve != nil {
			r.Path, _ = e.resolve(m.ID)
		}
		response.Results = append(response.Results, r)
	}
	response.Total = len(response.Results)
	response.Searched = len(candidates)
	response.Status = models.SearchStatusOK
	if response.Total == 0 {
		response.Status = models.SearchStatusNoMatches
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("search complete",
		zap.String("query", query.Query),
		zap.Int("results", response.Total),
		zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}

// QueryVector tokenizes and embeds text, using the query cache.
func (e *Engine) QueryVector(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if vec, ok := e.queryCache.Get(key); ok {
		return vec, nil
	}
	ids := e.tokenizer.Tokenize(text)
	vec, err := e.embedder.EncodeText(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	e.queryCache.Set(key, vec)
	return vec, nil
}
