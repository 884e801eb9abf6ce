package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/embedding"
	"github.com/hyperjump/shashin/internal/indexer"
	"github.com/hyperjump/shashin/internal/library"
	"github.com/hyperjump/shashin/internal/search"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/internal/tokenizer"
)

// Components holds initialized services.
type Components struct {
	Tokenizer *tokenizer.Tokenizer
	Embedder  embedding.Embedder
	Store     storage.Store
	Library   *library.DirLibrary
	Indexer   *indexer.Indexer
	Engine    *search.Engine
}

// Close releases the store and the embedder.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func newTokenizer(cfg *config.TokenizerConfig) (*tokenizer.Tokenizer, error) {
	vocab, err := tokenizer.LoadVocabulary(cfg.MergesPath, tokenizer.VocabularyOptions{MaxMerges: cfg.MaxMerges})
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	return tokenizer.New(vocab,
		tokenizer.WithContextLength(cfg.ContextLength),
		tokenizer.WithCacheSize(cfg.CacheSize),
		tokenizer.WithKeepEndOfText(cfg.KeepEndOfText),
	)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	tok, err := newTokenizer(&cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	logger.Debug("vocabulary loaded",
		zap.Int("merges", tok.Vocabulary().MergeCount()),
		zap.Int("size", tok.Vocabulary().Size()))

	embedder, err := embedding.New(&cfg.Embedding, tok.ContextLength(), logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lib := library.NewDirLibrary(&cfg.Library, library.WithLogger(logger))
	idx := indexer.NewIndexer(lib, embedder, store, indexer.WithLogger(logger))
	engine := search.NewEngine(tok, embedder, store, &cfg.Search,
		search.WithLogger(logger),
		search.WithQueryCacheSize(cfg.Embedding.CacheSize),
		search.WithPathResolver(lib.Path),
	)

	return &Components{
		Tokenizer: tok,
		Embedder:  embedder,
		Store:     store,
		Library:   lib,
		Indexer:   idx,
		Engine:    engine,
	}, nil
}
