// Package indexer keeps the embedding store in sync with the media library.
//
// A run scans the library, diffs it against the store, then embeds what is missing.
// Repeated runs are idempotent and an interrupted run resumes where it stopped.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/shashin/internal/embedding"
	"github.com/hyperjump/shashin/internal/library"
	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/pkg/utils"
)

// ErrIndexingInProgress is returned when a run is requested while another is active.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// DefaultProgressInterval is the minimum time between progress log lines.
const DefaultProgressInterval = 5 * time.Second

// Indexer embeds library items that have no stored vector.
type Indexer struct {
	library          library.Library
	embedder         embedding.Embedder
	store            storage.Store
	logger           *zap.Logger
	progressInterval time.Duration

	running  atomic.Bool
	mu       sync.RWMutex
	progress models.IndexingProgress
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for run and per-item events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithProgressInterval sets how often progress is logged during a run.
func WithProgressInterval(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.progressInterval = d }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(lib library.Library, emb embedding.Embedder, store storage.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		library:          lib,
		embedder:         emb,
		store:            store,
		progressInterval: DefaultProgressInterval,
		progress:         models.IndexingProgress{CurrentStatus: models.IndexingIdle},
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Run performs one synchronous run, calling report (if non-nil) on every transition and
// after every item. It returns the final progress.
func (idx *Indexer) Run(ctx context.Context, report func(models.IndexingProgress)) (models.IndexingProgress, error) {
	if !idx.running.CompareAndSwap(false, true) {
		return idx.Progress(), ErrIndexingInProgress
	}
	defer idx.running.Store(false)
	return idx.run(ctx, report)
}

// Start begins a run in the background. Progress is delivered on the returned channel,
// which is closed after the terminal snapshot. A slow reader may miss intermediate
// snapshots but always receives the last one.
func (idx *Indexer) Start(ctx context.Context) (<-chan models.IndexingProgress, error) {
	if !idx.running.CompareAndSwap(false, true) {
		return nil, ErrIndexingInProgress
	}
	ch := make(chan models.IndexingProgress, 32)
	go func() {
		defer close(ch)
		defer idx.running.Store(false)
		_, _ = idx.run(ctx, func(p models.IndexingProgress) { sendLatest(ch, p) })
	}()
	return ch, nil
}

// sendLatest never blocks: when ch is full the oldest snapshot is dropped.
// It must only be called by the channel's single sender.
func sendLatest(ch chan models.IndexingProgress, p models.IndexingProgress) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Progress returns the last reported snapshot.
func (idx *Indexer) Progress() models.IndexingProgress {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.progress
}

// Running reports whether a run is active.
func (idx *Indexer) Running() bool {
	return idx.running.Load()
}

func (idx *Indexer) run(ctx context.Context, report func(models.IndexingProgress)) (models.IndexingProgress, error) {
	p := models.IndexingProgress{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := idx.logger.With(zap.String("run_id", p.RunID))
	emit := func(status models.IndexingStatus) {
		p.CurrentStatus = status
		if status.Terminal() {
			p.FinishedAt = time.Now()
			p.CurrentItem = ""
		}
		idx.mu.Lock()
		idx.progress = p
		idx.mu.Unlock()
		if report != nil {
			report(p)
		}
	}
	fail := func(stage string, err error) (models.IndexingProgress, error) {
		if ctx.Err() != nil {
			log.Info("indexing cancelled", zap.String("stage", stage))
			emit(models.IndexingCancelled)
			return p, ctx.Err()
		}
		err = fmt.Errorf("%s: %w", stage, err)
		p.Error = err.Error()
		log.Error("indexing failed", zap.Error(err))
		emit(models.IndexingError)
		return p, err
	}

	log.Info("indexing started")
	emit(models.IndexingScanning)
	items, err := idx.library.ListItems(ctx)
	if err != nil {
		return fail("scan library", err)
	}
	p.TotalItems = len(items)

	emit(models.IndexingDiffing)
	stored, err := idx.store.IDs(ctx)
	if err != nil {
		return fail("read stored ids", err)
	}
	missing := make([]string, 0, len(items))
	for _, id := range items {
		if _, ok := stored[id]; !ok {
			missing = append(missing, id)
		}
	}
	p.Missing = len(missing)
	p.IndexedCount = len(items) - len(missing)
	log.Debug("diff complete", zap.Int("total", len(items)), zap.Int("missing", len(missing)))

	if len(missing) > 0 {
		emit(models.IndexingIndexing)
		sometimes := rate.Sometimes{Interval: idx.progressInterval}
		for _, id := range missing {
			if ctx.Err() != nil {
				return fail("index items", ctx.Err())
			}
			p.CurrentItem = id
			if err := idx.indexItem(ctx, id); err != nil {
				if ctx.Err() != nil {
					return fail("index items", err)
				}
				p.Failed++
				log.Warn("skipping item", zap.String("item_id", id), zap.Error(err))
			} else {
				p.IndexedCount++
				p.Missing--
			}
			emit(models.IndexingIndexing)
			sometimes.Do(func() {
				log.Info("indexing progress",
					zap.Int("indexed", p.IndexedCount),
					zap.Int("total", p.TotalItems),
					zap.Int("failed", p.Failed))
			})
		}
	}

	emit(models.IndexingComplete)
	log.Info("indexing complete",
		zap.Int("indexed", p.IndexedCount),
		zap.Int("total", p.TotalItems),
		zap.Int("failed", p.Failed),
		zap.Duration("elapsed", p.FinishedAt.Sub(p.StartedAt)))
	return p, nil
}

func (idx *Indexer) indexItem(ctx context.Context, id string) error {
	img, err := idx.library.LoadPixels(ctx, id)
	if err != nil {
		return fmt.Errorf("load pixels: %w", err)
	}
	vec, err := idx.embedder.EncodeImage(ctx, img)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := idx.store.Put(ctx, id, vec); err != nil {
		return fmt.Errorf("store vector: %w", err)
	}
	idx.logger.Debug("item indexed", zap.String("item_id", id))
	return nil
}

// Stats returns the stored vector count and the library size.
func (idx *Indexer) Stats(ctx context.Context) (models.Stats, error) {
	items, err := idx.library.ListItems(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("scan library: %w", err)
	}
	n, err := idx.store.Count(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("count stored items: %w", err)
	}
	return models.Stats{Indexed: n, Total: len(items)}, nil
}

// DeleteItem removes the stored vector for id. The item is embedded again on the next
// run if the library still lists it.
func (idx *Indexer) DeleteItem(ctx context.Context, id string) error {
	if err := idx.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	idx.logger.Debug("item deleted", zap.String("item_id", id))
	return nil
}

// Prune deletes stored vectors whose items the library no longer lists and returns how
// many were removed.
func (idx *Indexer) Prune(ctx context.Context) (int, error) {
	if !idx.running.CompareAndSwap(false, true) {
		return 0, ErrIndexingInProgress
	}
	defer idx.running.Store(false)

	items, err := idx.library.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan library: %w", err)
	}
	listed := make(map[string]struct{}, len(items))
	for _, id := range items {
		listed[id] = struct{}{}
	}
	stored, err := idx.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read stored ids: %w", err)
	}
	removed := 0
	for id := range stored {
		if _, ok := listed[id]; ok {
			continue
		}
		if err := idx.store.DeleteByID(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, fmt.Errorf("delete %s: %w", id, err)
		}
		removed++
	}
	if removed > 0 {
		idx.logger.Info("pruned stale embeddings", zap.Int("removed", removed))
	}
	return removed, nil
}
