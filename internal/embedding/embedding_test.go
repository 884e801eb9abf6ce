package embedding

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/vector"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-3 }

func TestPreprocess_ShapeAndNormalization(t *testing.T) {
	out := Preprocess(solid(300, 200, color.White), 224)
	if len(out) != 3*224*224 {
		t.Fatalf("len = %d", len(out))
	}
	plane := 224 * 224
	for c := 0; c < 3; c++ {
		want := (1 - clipMean[c]) / clipStd[c]
		if got := out[c*plane+plane/2]; !near(got, want) {
			t.Errorf("channel %d = %v, want %v", c, got, want)
		}
	}
}

func TestPreprocess_CenterCropCHW(t *testing.T) {
	// 448x224: left half red, right half blue. The centered crop spans x 112..335.
	img := image.NewRGBA(image.Rect(0, 0, 448, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 448; x++ {
			if x < 224 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	out := Preprocess(img, 224)
	plane := 224 * 224
	red := out[0*plane+100*224+10]
	if want := (1 - clipMean[0]) / clipStd[0]; !near(red, want) {
		t.Errorf("left of crop red = %v, want %v", red, want)
	}
	blueInRed := out[2*plane+100*224+10]
	if want := -clipMean[2] / clipStd[2]; !near(blueInRed, want) {
		t.Errorf("left of crop blue = %v, want %v", blueInRed, want)
	}
	blue := out[2*plane+100*224+200]
	if want := (1 - clipMean[2]) / clipStd[2]; !near(blue, want) {
		t.Errorf("right of crop blue = %v, want %v", blue, want)
	}
}

func TestPreprocess_PortraitAndEmpty(t *testing.T) {
	if out := Preprocess(solid(100, 200, color.Black), 32); len(out) != 3*32*32 {
		t.Errorf("portrait len = %d", len(out))
	}
	out := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), 16)
	if len(out) != 3*16*16 {
		t.Fatalf("empty len = %d", len(out))
	}
	if want := -clipMean[1] / clipStd[1]; !near(out[16*16], want) {
		t.Errorf("empty image value = %v, want %v", out[16*16], want)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	ids := []int64{49406, 320, 1929, 49407}

	a, err := e.EncodeText(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.EncodeText(ctx, ids)
	if len(a) != 64 || e.Dimensions() != 64 {
		t.Fatalf("dims = %d", len(a))
	}
	if sim, _ := vector.CosineSimilarity(a, b); !near(float32(sim), 1) {
		t.Errorf("same ids similarity = %v", sim)
	}
	if n := vector.L2Norm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %v", n)
	}
	c, _ := e.EncodeText(ctx, []int64{49406, 999, 49407})
	if sim, _ := vector.CosineSimilarity(a, c); near(float32(sim), 1) {
		t.Error("different ids should not produce the same vector")
	}
}

func TestMockEmbedder_Images(t *testing.T) {
	e := NewMockEmbedder(0)
	ctx := context.Background()
	if e.Dimensions() != 512 {
		t.Errorf("default dims = %d", e.Dimensions())
	}
	red1, _ := e.EncodeImage(ctx, solid(20, 20, color.RGBA{R: 255, A: 255}))
	red2, _ := e.EncodeImage(ctx, solid(20, 20, color.RGBA{R: 255, A: 255}))
	green, _ := e.EncodeImage(ctx, solid(20, 20, color.RGBA{G: 255, A: 255}))
	if sim, _ := vector.CosineSimilarity(red1, red2); !near(float32(sim), 1) {
		t.Errorf("identical images similarity = %v", sim)
	}
	if sim, _ := vector.CosineSimilarity(red1, green); near(float32(sim), 1) {
		t.Error("different images should differ")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.EncodeImage(cancelled, solid(2, 2, color.White)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNew_FallsBackToMock(t *testing.T) {
	cfg := &config.EmbeddingConfig{Dimensions: 32, AllowMock: true}
	emb, err := New(cfg, 77, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer emb.Close()
	if _, ok := emb.(*MockEmbedder); !ok {
		t.Errorf("expected mock embedder, got %T", emb)
	}
	if emb.Dimensions() != 32 {
		t.Errorf("dims = %d", emb.Dimensions())
	}

	cfg.AllowMock = false
	if _, err := New(cfg, 77, nil); err == nil {
		t.Error("expected error without models and mock disallowed")
	}
}

func BenchmarkPreprocess(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Preprocess(img, DefaultImageSize)
	}
}

func BenchmarkMockEmbedder_EncodeText(b *testing.B) {
	e := NewMockEmbedder(512)
	ctx := context.Background()
	ids := make([]int64, 77)
	ids[0], ids[1], ids[2] = 49406, 320, 49407
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EncodeText(ctx, ids)
	}
}
