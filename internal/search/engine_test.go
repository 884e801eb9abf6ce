package search

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/storage"
	"github.com/hyperjump/shashin/internal/tokenizer"
)

// fixedEmbedder returns the same text vector for every query.
type fixedEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fixedEmbedder) EncodeText(ctx context.Context, ids []int64) ([]float32, error) {
	f.calls++
	if len(ids) != tokenizer.DefaultContextLength {
		return nil, errors.New("bad id count")
	}
	return f.vec, f.err
}

func (f *fixedEmbedder) EncodeImage(context.Context, image.Image) ([]float32, error) {
	return nil, errors.New("not used")
}
func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }
func (f *fixedEmbedder) Close() error    { return nil }

func testTokenizer(t *testing.T) *tokenizer.Tokenizer {
	t.Helper()
	vocab, err := tokenizer.BuildVocabulary(strings.NewReader("#version: 0.2\nd o\ndo g</w>\n"), tokenizer.VocabularyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	tok, err := tokenizer.New(vocab)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func setup(t *testing.T, emb *fixedEmbedder, vectors map[string][]float32, order []string, opts ...EngineOption) *Engine {
	t.Helper()
	store := storage.NewMemoryStore("")
	ctx := context.Background()
	for _, id := range order {
		if err := store.Put(ctx, id, vectors[id]); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.SearchConfig{DefaultLimit: 20, MaxLimit: 100}
	return NewEngine(testTokenizer(t), emb, store, cfg, opts...)
}

func TestEngine_NotIndexed(t *testing.T) {
	engine := setup(t, &fixedEmbedder{vec: []float32{1, 0}}, nil, nil)
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "dog"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.SearchStatusNotIndexed {
		t.Errorf("Status = %s, want not_indexed", resp.Status)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("Results = %v", resp.Results)
	}
}

func TestEngine_ThresholdAboveBestMatch(t *testing.T) {
	// Best similarity is 0.5.
	vectors := map[string][]float32{"img:a": {1, 1.7320508}, "img:b": {0, 1}}
	engine := setup(t, &fixedEmbedder{vec: []float32{1, 0}}, vectors, []string{"img:a", "img:b"})
	threshold := 0.9
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "dog", Threshold: &threshold})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.SearchStatusNoMatches || resp.Total != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Searched != 2 || resp.Threshold != 0.9 {
		t.Errorf("Searched = %d, Threshold = %v", resp.Searched, resp.Threshold)
	}
}

func TestEngine_RanksAndResolvesPaths(t *testing.T) {
	vectors := map[string][]float32{
		"img:low":  {1, 1.7320508}, // 0.5
		"img:best": {1, 0},         // 1.0
		"img:none": {0, 1},         // 0.0
		"img:mid":  {1, 1},         // 0.707
	}
	order := []string{"img:low", "img:best", "img:none", "img:mid"}
	paths := map[string]string{"img:best": "/photos/best.jpg"}
	engine := setup(t, &fixedEmbedder{vec: []float32{1, 0}}, vectors, order,
		WithPathResolver(func(id string) (string, bool) { p, ok := paths[id]; return p, ok }))

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "a dog"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.SearchStatusOK {
		t.Fatalf("Status = %s", resp.Status)
	}
	var got []string
	for i, r := range resp.Results {
		got = append(got, r.ItemID)
		if r.Rank != i+1 {
			t.Errorf("rank of %s = %d", r.ItemID, r.Rank)
		}
	}
	if strings.Join(got, ",") != "img:best,img:mid,img:low" {
		t.Errorf("order = %v", got)
	}
	if resp.Threshold != 0.2 {
		t.Errorf("default threshold = %v", resp.Threshold)
	}
	if resp.Results[0].Path != "/photos/best.jpg" || resp.Results[1].Path != "" {
		t.Errorf("paths = %q, %q", resp.Results[0].Path, resp.Results[1].Path)
	}

	resp, _ = engine.Search(context.Background(), &models.SearchQuery{Query: "a dog", Limit: 1})
	if resp.Total != 1 || resp.Results[0].ItemID != "img:best" {
		t.Errorf("limited = %+v", resp.Results)
	}
}

func TestEngine_SkipsMismatchedDimensions(t *testing.T) {
	vectors := map[string][]float32{"img:old": {1, 0, 0}, "img:new": {1, 0}}
	engine := setup(t, &fixedEmbedder{vec: []float32{1, 0}}, vectors, []string{"img:old", "img:new"})
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "dog"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].ItemID != "img:new" || resp.Searched != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEngine_QueryCache(t *testing.T) {
	emb := &fixedEmbedder{vec: []float32{1, 0}}
	engine := setup(t, emb, map[string][]float32{"img:a": {1, 0}}, []string{"img:a"})
	ctx := context.Background()
	for _, q := range []string{"Dog", "dog", " dog "} {
		if _, err := engine.Search(ctx, &models.SearchQuery{Query: q}); err != nil {
			t.Fatal(err)
		}
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.calls)
	}

	uncached := &fixedEmbedder{vec: []float32{1, 0}}
	engine = setup(t, uncached, map[string][]float32{"img:a": {1, 0}}, []string{"img:a"}, WithQueryCacheSize(0))
	_, _ = engine.Search(ctx, &models.SearchQuery{Query: "dog"})
	_, _ = engine.Search(ctx, &models.SearchQuery{Query: "dog"})
	if uncached.calls != 2 {
		t.Errorf("embedder called %d times with cache disabled, want 2", uncached.calls)
	}
}

func TestEngine_Errors(t *testing.T) {
	engine := setup(t, &fixedEmbedder{vec: []float32{1, 0}}, nil, nil)
	if _, err := engine.Search(context.Background(), &models.SearchQuery{Query: "   "}); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}

	failing := setup(t, &fixedEmbedder{err: errors.New("model crashed")}, nil, nil)
	if _, err := failing.Search(context.Background(), &models.SearchQuery{Query: "dog"}); err == nil {
		t.Error("expected embedder error")
	}
}

func TestProcessQuery(t *testing.T) {
	threshold := 0.35
	cfg := &config.SearchConfig{DefaultLimit: 10, MaxLimit: 50, DefaultThreshold: &threshold}

	q := &models.SearchQuery{Query: "cat"}
	if err := ProcessQuery(q, cfg); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 10 || q.Threshold == nil || *q.Threshold != 0.35 {
		t.Errorf("defaults = limit %d threshold %v", q.Limit, q.Threshold)
	}

	q = &models.SearchQuery{Query: "cat", Limit: 80}
	_ = ProcessQuery(q, cfg)
	if q.Limit != 50 {
		t.Errorf("capped limit = %d", q.Limit)
	}

	zero := 0.0
	q = &models.SearchQuery{Query: "cat", Threshold: &zero}
	_ = ProcessQuery(q, nil)
	if *q.Threshold != 0 || q.Limit != models.DefaultLimit {
		t.Errorf("explicit zero threshold = %v, limit %d", *q.Threshold, q.Limit)
	}
}
