package store

import (
	"context"
	"time"
)

// Document is one indexed file with its embedding.
type Document struct {
	Path      string    `json:"path"`
	Preview   string    `json:"preview"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	IndexedAt time.Time `json:"indexed_at"`
	FileMtime float64   `json:"file_mtime"` // seconds since epoch
}

// Dimension returns the length of the embedding.
func (d Document) Dimension() int {
	return len(d.Embedding)
}

// SearchResult represents a search match with its relevance score
type SearchResult struct {
	Path    string  `json:"path"`
	Preview string  `json:"preview"`
	Score   float32 `json:"score"`
}

// VectorStore defines the interface for vector storage backends.
// At most one document exists per path.
type VectorStore interface {
	// Upsert inserts the document or replaces every field of the existing
	// document with the same path.
	Upsert(ctx context.Context, doc Document) error

	// Search returns documents scoring at least minScore against query,
	// best first, at most topK of them.
	Search(ctx context.Context, query []float32, topK int, minScore float32) ([]SearchResult, error)

	// Delete removes the document for path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// DeleteAll removes every document.
	DeleteAll(ctx context.Context) error

	// AllPaths returns every indexed path.
	AllPaths(ctx context.Context) ([]string, error)

	// Mtimes returns the stored file mtime for every indexed path.
	Mtimes(ctx context.Context) (map[string]float64, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)

	// MaxIndexedAt returns the most recent index time, or nil when empty.
	MaxIndexedAt(ctx context.Context) (*time.Time, error)

	// Close cleanly shuts down the store
	Close() error
}
