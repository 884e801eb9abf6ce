package search

import (
	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/models"
)

// ProcessQuery validates the query and applies the configured limit and threshold
// defaults. After it returns nil, query.Threshold is non-nil.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	requested := query.Limit
	if err := query.Validate(); err != nil {
		return err
	}
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	if requested <= 0 && cfg.DefaultLimit > 0 {
		query.Limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
		query.Limit = cfg.MaxLimit
	}
	if query.Threshold == nil {
		t := cfg.Threshold()
		query.Threshold = &t
	}
	return nil
}
