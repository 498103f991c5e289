package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/burrowapp/burrow/internal/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path       TEXT NOT NULL UNIQUE,
	content_preview TEXT NOT NULL,
	embedding       BLOB NOT NULL,
	dimension       INTEGER NOT NULL,
	model           TEXT NOT NULL,
	indexed_at      REAL NOT NULL,
	file_mtime      REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_vectors_path ON vectors(file_path);
CREATE INDEX IF NOT EXISTS idx_vectors_mtime ON vectors(file_mtime);
`

// SQLiteStore keeps vectors in an embedded SQLite database. All statements
// are serialised through one mutex: one writer, readers wait their turn.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens or creates the vector database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, dbPath, sqliteSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, doc Document) error {
	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vectors (file_path, content_preview, embedding, dimension, model, indexed_at, file_mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_preview = excluded.content_preview,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			indexed_at = excluded.indexed_at,
			file_mtime = excluded.file_mtime`,
		doc.Path,
		doc.Preview,
		EncodeEmbedding(doc.Embedding),
		doc.Dimension(),
		doc.Model,
		float64(indexedAt.UnixNano())/1e9,
		doc.FileMtime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", doc.Path, err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, topK int, minScore float32) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT file_path, content_preview, embedding FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			path, preview string
			blob          []byte
		)
		if err := rows.Scan(&path, &preview, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		results = append(results, SearchResult{
			Path:    path,
			Preview: preview,
			Score:   CosineSimilarity(query, DecodeEmbedding(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	return rankResults(results, topK, minScore), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AllPaths(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) Mtimes(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT file_path, file_mtime FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to load mtimes: %w", err)
	}
	defer rows.Close()

	mtimes := make(map[string]float64)
	for rows.Next() {
		var (
			p string
			m float64
		)
		if err := rows.Scan(&p, &m); err != nil {
			return nil, fmt.Errorf("failed to scan mtime: %w", err)
		}
		mtimes[p] = m
	}
	return mtimes, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MaxIndexedAt(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var secs sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(indexed_at) FROM vectors`).Scan(&secs); err != nil {
		return nil, fmt.Errorf("failed to query last index time: %w", err)
	}
	if !secs.Valid {
		return nil, nil
	}
	t := time.Unix(unixSeconds(secs.Float64))
	return &t, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
