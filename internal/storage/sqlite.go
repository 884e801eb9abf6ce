package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/shashin/internal/models"
	"github.com/hyperjump/shashin/internal/vector"
)

// SQLiteStore implements Store on a single SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; WAL lets readers proceed meanwhile.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Contains reports whether id has a stored vector.
func (s *SQLiteStore) Contains(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM embeddings WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put upserts the vector for id in a single statement.
func (s *SQLiteStore) Put(ctx context.Context, id string, vec []float32) error {
	if err := validatePut(id, vec); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (id, vector, dimensions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   vector = excluded.vector,
		   dimensions = excluded.dimensions,
		   updated_at = excluded.updated_at`,
		id, vector.EncodeVector(vec), len(vec), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding %s: %w", id, err)
	}
	return nil
}

// GetAll returns every embedding ordered by first insertion.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]models.ItemEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, created_at, updated_at FROM embeddings ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ItemEmbedding
	for rows.Next() {
		var (
			e                models.ItemEmbedding
			blob             []byte
			created, updated int64
		)
		if err := rows.Scan(&e.ID, &blob, &created, &updated); err != nil {
			return nil, err
		}
		if e.Vector, err = vector.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("embedding %s: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(0, created)
		e.UpdatedAt = time.Unix(0, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteByID removes the vector for id.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// IDs returns the set of stored ids.
func (s *SQLiteStore) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Count returns the number of stored embeddings.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
