package storage

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/vector"
)

// snapshotMagic identifies MemoryStore snapshot files, version 1.
const snapshotMagic uint32 = 0x53484d31 // "SHM1"

const (
	maxSnapshotIDLen = 4 << 10
	maxSnapshotDims  = 1 << 16
	// idLen, dims, created, updated
	snapshotEntryHeader = 4 + 4 + 8 + 8
)

// MemoryStore keeps embeddings in memory with an optional snapshot file.
// Vectors are copied on the way in and out.
type MemoryStore struct {
	path    string
	index   map[string]int
	entries []models.ItemEmbedding
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty store. A non-empty path enables Save and Load and
// is written on Close.
func NewMemoryStore(path string) *MemoryStore {
	return &MemoryStore{
		path:  path,
		index: make(map[string]int),
	}
}

func (m *MemoryStore) Contains(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[id]
	return ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, id string, vec []float32) error {
	if err := validatePut(id, vec); err != nil {
		return err
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[id]; ok {
		m.entries[i].Vector = cp
		m.entries[i].UpdatedAt = now
		return nil
	}
	m.index[id] = len(m.entries)
	m.entries = append(m.entries, models.ItemEmbedding{ID: id, Vector: cp, CreatedAt: now, UpdatedAt: now})
	return nil
}

func (m *MemoryStore) GetAll(ctx context.Context) ([]models.ItemEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ItemEmbedding, len(m.entries))
	for i, e := range m.entries {
		out[i] = e
		out[i].Vector = append([]float32(nil), e.Vector...)
	}
	return out, nil
}

// DeleteByID removes id, keeping the remaining entries in insertion order.
func (m *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, id)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].ID] = j
	}
	return nil
}

func (m *MemoryStore) IDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{}, len(m.index))
	for id := range m.index {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// Close writes the snapshot when a path is configured.
func (m *MemoryStore) Close() error {
	return m.Save()
}

// Save persists the store to its snapshot path through a temporary file.
// Format: magic (4), n (4), then per entry: idLen (4), id, dims (4), created (8),
// updated (8), vector (dims*4). All little-endian.
func (m *MemoryStore) Save() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeSnapshot(w, m.entries); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), m.path)
}

func writeSnapshot(w io.Writer, entries []models.ItemEmbedding) error {
	le := binary.LittleEndian
	if err := binary.Write(w, le, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, le, uint32(len(entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range entries {
		header := []any{
			uint32(len(e.ID)),
			[]byte(e.ID),
			uint32(len(e.Vector)),
			e.CreatedAt.UnixNano(),
			e.UpdatedAt.UnixNano(),
		}
		for _, v := range header {
			if err := binary.Write(w, le, v); err != nil {
				return fmt.Errorf("write entry %s: %w", e.ID, err)
			}
		}
		if _, err := w.Write(vector.EncodeVector(e.Vector)); err != nil {
			return fmt.Errorf("write vector %s: %w", e.ID, err)
		}
	}
	return nil
}

// Load replaces the contents with the snapshot file. A missing file leaves the store
// unchanged.
func (m *MemoryStore) Load() error {
	if m.path == "" {
		return nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	entries, err := readSnapshot(bufio.NewReader(f), info.Size())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.index = make(map[string]int, len(entries))
	for i, e := range entries {
		m.index[e.ID] = i
	}
	return nil
}

// readSnapshot decodes a snapshot of size bytes. Every declared length is checked
// against the bytes left in the file before anything is allocated.
func readSnapshot(r io.Reader, size int64) ([]models.ItemEmbedding, error) {
	le := binary.LittleEndian
	var magic, n uint32
	if err := binary.Read(r, le, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not a snapshot file (magic %#x)", magic)
	}
	if err := binary.Read(r, le, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	remaining := size - 8
	if int64(n)*snapshotEntryHeader > remaining {
		return nil, fmt.Errorf("snapshot truncated: %d entries declared in %d bytes", n, remaining)
	}
	entries := make([]models.ItemEmbedding, 0, n)
	for i := uint32(0); i < n; i++ {
		var idLen, dims uint32
		var created, updated int64
		if err := binary.Read(r, le, &idLen); err != nil {
			return nil, fmt.Errorf("read id len: %w", err)
		}
		if idLen > maxSnapshotIDLen || int64(idLen) > remaining-snapshotEntryHeader {
			return nil, fmt.Errorf("entry %d: invalid id length %d", i, idLen)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		for _, v := range []any{&dims, &created, &updated} {
			if err := binary.Read(r, le, v); err != nil {
				return nil, fmt.Errorf("read entry %s: %w", id, err)
			}
		}
		remaining -= snapshotEntryHeader + int64(idLen)
		if dims > maxSnapshotDims || int64(dims)*4 > remaining {
			return nil, fmt.Errorf("entry %s: invalid dimensions %d", id, dims)
		}
		buf := make([]byte, int(dims)*4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %s: %w", id, err)
		}
		remaining -= int64(len(buf))
		vec, err := vector.DecodeVector(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.ItemEmbedding{
			ID:        string(id),
			Vector:    vec,
			CreatedAt: time.Unix(0, created),
			UpdatedAt: time.Unix(0, updated),
		})
	}
	return entries, nil
}
