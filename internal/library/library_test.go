package library

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shashin/internal/config"
)

func writePNG(t *testing.T, path string, c color.Color, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func newLib(dirs []string, recursive bool) *DirLibrary {
	return NewDirLibrary(&config.LibraryConfig{
		Directories: dirs,
		Extensions:  []string{".png", "JPG"},
		Recursive:   &recursive,
	})
}

func TestDirLibrary_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writePNG(t, filepath.Join(dir, "old.png"), color.RGBA{R: 255, A: 255}, base)
	writePNG(t, filepath.Join(dir, "new.png"), color.RGBA{G: 255, A: 255}, base.Add(2*time.Minute))
	writePNG(t, filepath.Join(dir, "mid.png"), color.RGBA{B: 255, A: 255}, base.Add(time.Minute))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644); err != nil {
		t.Fatal(err)
	}

	lib := newLib([]string{dir}, true)
	ids, err := lib.ListItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 items, got %v", ids)
	}
	want := []string{"new.png", "mid.png", "old.png"}
	for i, id := range ids {
		p, ok := lib.Path(id)
		if !ok {
			t.Fatalf("no path for %s", id)
		}
		if filepath.Base(p) != want[i] {
			t.Errorf("position %d = %s, want %s", i, filepath.Base(p), want[i])
		}
	}
}

func TestDirLibrary_IDsStableAcrossScansAndMoves(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writePNG(t, filepath.Join(dir, "a.png"), color.White, now)
	lib := newLib([]string{dir}, true)
	ctx := context.Background()

	first, err := lib.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := lib.ListItems(ctx)
	if first[0] != again[0] {
		t.Errorf("id changed between scans: %s vs %s", first[0], again[0])
	}

	if err := os.Rename(filepath.Join(dir, "a.png"), filepath.Join(dir, "renamed.png")); err != nil {
		t.Fatal(err)
	}
	moved, _ := lib.ListItems(ctx)
	if len(moved) != 1 || moved[0] != first[0] {
		t.Errorf("id changed after rename: %v vs %s", moved, first[0])
	}
}

func TestDirLibrary_DuplicatesListedOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writePNG(t, filepath.Join(dir, "a.png"), color.Black, now)
	writePNG(t, filepath.Join(dir, "copy.png"), color.Black, now.Add(-time.Minute))
	lib := newLib([]string{dir}, true)
	ids, err := lib.ListItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected duplicate content once, got %v", ids)
	}
	if p, _ := lib.Path(ids[0]); filepath.Base(p) != "a.png" {
		t.Errorf("expected newest copy, got %s", p)
	}

	// Forgetting one copy keeps the id resolvable through the other.
	if _, ok := lib.Forget(filepath.Join(dir, "a.png")); ok {
		t.Error("Forget should report false while a copy remains")
	}
	if p, ok := lib.Path(ids[0]); !ok || filepath.Base(p) != "copy.png" {
		t.Errorf("Path after Forget = %s, %v", p, ok)
	}
	if id, ok := lib.Forget(filepath.Join(dir, "copy.png")); !ok || id != ids[0] {
		t.Errorf("Forget last copy = %s, %v", id, ok)
	}
}

func TestDirLibrary_Recursive(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writePNG(t, filepath.Join(dir, "top.png"), color.White, now)
	writePNG(t, filepath.Join(dir, "sub", "deep.png"), color.Black, now)
	writePNG(t, filepath.Join(dir, ".thumbs", "hidden.png"), color.Gray{Y: 128}, now)
	ctx := context.Background()

	ids, err := newLib([]string{dir}, true).ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("recursive: expected 2 items, got %d", len(ids))
	}
	ids, err = newLib([]string{dir}, false).ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("non-recursive: expected 1 item, got %d", len(ids))
	}
}

func TestDirLibrary_LoadPixels(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{R: 255, A: 255}, time.Now())
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}
	lib := newLib([]string{dir}, true)
	ctx := context.Background()
	ids, err := lib.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 items, got %d", len(ids))
	}

	var decoded, failed int
	for _, id := range ids {
		img, err := lib.LoadPixels(ctx, id)
		if err != nil {
			failed++
			continue
		}
		decoded++
		if img.Bounds().Dx() != 4 {
			t.Errorf("width = %d", img.Bounds().Dx())
		}
	}
	if decoded != 1 || failed != 1 {
		t.Errorf("decoded=%d failed=%d", decoded, failed)
	}

	if _, err := lib.LoadPixels(ctx, "img:unknown"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestDirLibrary_UnreachableRoot(t *testing.T) {
	lib := newLib([]string{filepath.Join(t.TempDir(), "missing")}, true)
	if _, err := lib.ListItems(context.Background()); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestDirLibrary_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.White, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newLib([]string{dir}, true).ListItems(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDirLibrary_Allowed(t *testing.T) {
	lib := newLib(nil, true)
	for path, want := range map[string]bool{
		"a.png":  true,
		"B.PNG":  true,
		"c.jpg":  true,
		"d.gif":  false,
		"noext":  false,
		"e.png~": false,
	} {
		if got := lib.Allowed(path); got != want {
			t.Errorf("Allowed(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDirLibrary_AddRemoveRoot(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	now := time.Now()
	writePNG(t, filepath.Join(a, "a.png"), color.White, now)
	writePNG(t, filepath.Join(b, "b.png"), color.Black, now)
	lib := newLib([]string{a}, true)
	ctx := context.Background()

	if err := lib.AddRoot(b); err != nil {
		t.Fatal(err)
	}
	if err := lib.AddRoot(b); err != nil {
		t.Fatal(err)
	}
	if len(lib.Roots()) != 2 {
		t.Errorf("Roots = %v", lib.Roots())
	}
	ids, _ := lib.ListItems(ctx)
	if len(ids) != 2 {
		t.Errorf("expected 2 items, got %d", len(ids))
	}

	if !lib.RemoveRoot(b) {
		t.Error("RemoveRoot should report true")
	}
	if lib.RemoveRoot(b) {
		t.Error("second RemoveRoot should report false")
	}
	ids, _ = lib.ListItems(ctx)
	if len(ids) != 1 {
		t.Errorf("expected 1 item after removing root, got %d", len(ids))
	}
	if err := lib.AddRoot(filepath.Join(a, "a.png")); err == nil {
		t.Error("expected error adding a file as root")
	}
}
