package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vectors (
	id              BIGSERIAL PRIMARY KEY,
	file_path       TEXT NOT NULL UNIQUE,
	content_preview TEXT NOT NULL,
	embedding       vector NOT NULL,
	dimension       INTEGER NOT NULL,
	model           TEXT NOT NULL,
	indexed_at      DOUBLE PRECISION NOT NULL,
	file_mtime      DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_vectors_mtime ON vectors(file_mtime);
`

// PostgresStore keeps vectors in PostgreSQL with the pgvector extension.
// Similarity is computed by the database; ranking matches SQLiteStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, doc Document) error {
	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vectors (file_path, content_preview, embedding, dimension, model, indexed_at, file_mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (file_path) DO UPDATE SET
			content_preview = EXCLUDED.content_preview,
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			model = EXCLUDED.model,
			indexed_at = EXCLUDED.indexed_at,
			file_mtime = EXCLUDED.file_mtime`,
		doc.Path,
		doc.Preview,
		pgvector.NewVector(doc.Embedding),
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

func (s *PostgresStore) Search(ctx context.Context, query []float32, topK int, minScore float32) ([]SearchResult, error) {
	if len(query) == 0 {
		return rankResults(nil, topK, minScore), nil
	}

	// Rows of another dimension cannot be compared and score 0.
	rows, err := s.pool.Query(ctx, `
		SELECT file_path, content_preview,
			CASE WHEN dimension = $2 THEN 1 - (embedding <=> $1) ELSE 0 END AS score
		FROM vectors`,
		pgvector.NewVector(query), len(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r     SearchResult
			score float64
		)
		if err := rows.Scan(&r.Path, &r.Preview, &score); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		// pgvector returns NaN for zero-norm vectors.
		if math.IsNaN(score) {
			score = 0
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	return rankResults(results, topK, minScore), nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vectors WHERE file_path = $1`, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vectors`); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	return nil
}

func (s *PostgresStore) AllPaths(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT file_path FROM vectors`)
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

func (s *PostgresStore) Mtimes(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT file_path, file_mtime FROM vectors`)
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

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MaxIndexedAt(ctx context.Context) (*time.Time, error) {
	var secs *float64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(indexed_at) FROM vectors`).Scan(&secs); err != nil {
		return nil, fmt.Errorf("failed to query last index time: %w", err)
	}
	if secs == nil {
		return nil, nil
	}
	t := time.Unix(unixSeconds(*secs))
	return &t, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
