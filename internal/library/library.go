// Package library enumerates photos on disk and decodes their pixels.
package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/shashin/internal/config"
	"github.com/hyperjump/shashin/internal/fileid"
	"github.com/hyperjump/shashin/pkg/utils"
)

// ErrItemNotFound is returned for an id the library did not list.
var ErrItemNotFound = errors.New("item not found")

// Library is the source of media items to index.
type Library interface {
	// ListItems returns every item id, newest first.
	ListItems(ctx context.Context) ([]string, error)
	LoadPixels(ctx context.Context, id string) (image.Image, error)
}

type fileEntry struct {
	id    string
	mtime time.Time
	size  int64
}

// DirLibrary is a Library over image files in a set of directories.
type DirLibrary struct {
	exts      map[string]struct{}
	recursive bool
	logger    *zap.Logger

	mu     sync.Mutex
	roots  []string
	byPath map[string]fileEntry
	byID   map[string]string
}

// Option configures a DirLibrary.
type Option func(*DirLibrary)

// WithLogger sets the logger for skipped files.
func WithLogger(l *zap.Logger) Option {
	return func(d *DirLibrary) { d.logger = l }
}

// NewDirLibrary creates a library over cfg.Directories.
func NewDirLibrary(cfg *config.LibraryConfig, opts ...Option) *DirLibrary {
	d := &DirLibrary{
		roots:     append([]string(nil), cfg.Directories...),
		exts:      make(map[string]struct{}, len(cfg.Extensions)),
		recursive: cfg.RecursiveOrDefault(),
		byPath:    make(map[string]fileEntry),
		byID:      make(map[string]string),
	}
	for _, ext := range cfg.Extensions {
		d.exts["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = utils.OrNop(d.logger)
	return d
}

// Roots returns the library directories.
func (d *DirLibrary) Roots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.roots...)
}

// AddRoot adds a directory to the library. Adding a known directory is a no-op.
func (d *DirLibrary) AddRoot(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("library root unreachable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library root is not a directory: %s", abs)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.roots {
		if sameDir(r, abs) {
			return nil
		}
	}
	d.roots = append(d.roots, abs)
	return nil
}

// RemoveRoot drops a directory from the library and reports whether it was present.
// Items under it disappear from the next listing.
func (d *DirLibrary) RemoveRoot(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.roots {
		if sameDir(r, abs) {
			d.roots = append(d.roots[:i], d.roots[i+1:]...)
			return true
		}
	}
	return false
}

func sameDir(a, b string) bool {
	if abs, err := filepath.Abs(a); err == nil {
		a = abs
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

// Allowed reports whether path has one of the configured image extensions.
func (d *DirLibrary) Allowed(path string) bool {
	_, ok := d.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

type scanned struct {
	path  string
	mtime time.Time
	size  int64
}

// ListItems walks every root. An unreachable root fails the scan; files that cannot be
// read are skipped. Files with identical content are listed once.
func (d *DirLibrary) ListItems(ctx context.Context) ([]string, error) {
	var files []scanned
	for _, root := range d.Roots() {
		found, err := d.walk(ctx, root)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].mtime.Equal(files[j].mtime) {
			return files[i].mtime.After(files[j].mtime)
		}
		return files[i].path < files[j].path
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	byPath := make(map[string]fileEntry, len(files))
	byID := make(map[string]string, len(files))
	ids := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := d.byPath[f.path]
		if !ok || !entry.mtime.Equal(f.mtime) || entry.size != f.size {
			id, err := fileid.ContentID(f.path)
			if err != nil {
				d.logger.Debug("skipping unreadable file", zap.String("path", f.path), zap.Error(err))
				continue
			}
			entry = fileEntry{id: id, mtime: f.mtime, size: f.size}
		}
		byPath[f.path] = entry
		if _, dup := byID[entry.id]; dup {
			continue
		}
		byID[entry.id] = f.path
		ids = append(ids, entry.id)
	}
	d.byPath = byPath
	d.byID = byID
	return ids, nil
}

func (d *DirLibrary) walk(ctx context.Context, root string) ([]scanned, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("library root unreachable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root is not a directory: %s", absRoot)
	}

	var out []scanned
	err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			d.logger.Debug("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != absRoot && (!d.recursive || strings.HasPrefix(entry.Name(), ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Allowed(path) {
			return nil
		}
		// Resolve symlinks so only regular files are listed.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		out = append(out, scanned{path: path, mtime: finfo.ModTime(), size: finfo.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	return out, nil
}

// LoadPixels decodes the image for id. The id must come from a previous ListItems.
func (d *DirLibrary) LoadPixels(ctx context.Context, id string) (image.Image, error) {
	path, ok := d.Path(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Path returns the file backing id.
func (d *DirLibrary) Path(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	return p, ok
}

// Forget drops path from the listing cache and returns the id it had. It reports false
// when the path was unknown or another file with the same content is still listed.
func (d *DirLibrary) Forget(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.byPath[abs]
	if !ok {
		return "", false
	}
	delete(d.byPath, abs)
	if d.byID[entry.id] != abs {
		return "", false
	}
	delete(d.byID, entry.id)
	for p, e := range d.byPath {
		if e.id == entry.id {
			d.byID[entry.id] = p
			return "", false
		}
	}
	return entry.id, true
}
