package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_EndToEndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{Path: "/a", Preview: "alpha", Embedding: []float32{1, 0, 0}, Model: "m"},
		{Path: "/b", Preview: "beta", Embedding: []float32{0, 1, 0}, Model: "m"},
	}
	for _, d := range docs {
		if err := s.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", d.Path, err)
		}
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].Path != "/a" {
		t.Errorf("expected /a, got %s", results[0].Path)
	}
	if math.Abs(float64(results[0].Score)-1.0) > 1e-6 {
		t.Errorf("expected score ~1.0, got %f", results[0].Score)
	}
	if results[0].Preview != "alpha" {
		t.Errorf("expected preview alpha, got %q", results[0].Preview)
	}
}

func TestSQLiteStore_SearchTopKOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Each vector rotates further away from the query [1, 0].
	for i := 0; i < 10; i++ {
		angle := float64(i) * 0.15
		doc := Document{
			Path:      fmt.Sprintf("/doc%02d", i),
			Preview:   "p",
			Embedding: []float32{float32(math.Cos(angle)), float32(math.Sin(angle))},
			Model:     "m",
		}
		if err := s.Upsert(ctx, doc); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	results, err := s.Search(ctx, []float32{1, 0}, 5, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[0].Path != "/doc00" {
		t.Errorf("expected most similar first, got %s", results[0].Path)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSQLiteStore_SearchExcludesBelowMinScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Upsert(ctx, Document{Path: "/close", Embedding: []float32{0.9, 0.1}, Model: "m"})
	_ = s.Upsert(ctx, Document{Path: "/far", Embedding: []float32{-1, 0}, Model: "m"})

	results, err := s.Search(ctx, []float32{1, 0}, 10, 0.3)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	for _, r := range results {
		if r.Score < 0.3 {
			t.Errorf("result %s scored %f below min score", r.Path, r.Score)
		}
		if r.Path == "/far" {
			t.Error("expected /far to be excluded")
		}
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestSQLiteStore_SearchEmpty(t *testing.T) {
	s := newTestStore(t)

	results, err := s.Search(context.Background(), []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := Document{Path: "/p.txt", Preview: "old", Embedding: []float32{1, 0}, Model: "m1", FileMtime: 100}
	second := Document{Path: "/p.txt", Preview: "new", Embedding: []float32{0, 1, 0}, Model: "m2", FileMtime: 200.5}

	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}

	var (
		preview   string
		dimension int
		model     string
		blob      []byte
	)
	row := s.db.QueryRow(`SELECT content_preview, dimension, model, embedding FROM vectors WHERE file_path = ?`, "/p.txt")
	if err := row.Scan(&preview, &dimension, &model, &blob); err != nil {
		t.Fatalf("failed to read row: %v", err)
	}
	if preview != "new" || dimension != 3 || model != "m2" {
		t.Errorf("row not replaced: preview=%q dimension=%d model=%q", preview, dimension, model)
	}
	if got := DecodeEmbedding(blob); len(got) != 3 || got[1] != 1 {
		t.Errorf("unexpected embedding %v", got)
	}

	mtimes, err := s.Mtimes(ctx)
	if err != nil {
		t.Fatalf("Mtimes() failed: %v", err)
	}
	if mtimes["/p.txt"] != 200.5 {
		t.Errorf("expected mtime 200.5, got %f", mtimes["/p.txt"])
	}
}

func TestSQLiteStore_DeleteAndPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/x", "/y", "/z"} {
		if err := s.Upsert(ctx, Document{Path: p, Embedding: []float32{1}, Model: "m"}); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	if err := s.Delete(ctx, "/y"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, "/missing"); err != nil {
		t.Fatalf("Delete() of missing path failed: %v", err)
	}

	paths, err := s.AllPaths(ctx)
	if err != nil {
		t.Fatalf("AllPaths() failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", paths)
	}
	for _, p := range paths {
		if p == "/y" {
			t.Error("deleted path still listed")
		}
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("expected empty store, got %d rows", n)
	}
}

func TestSQLiteStore_MaxIndexedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.MaxIndexedAt(ctx)
	if err != nil {
		t.Fatalf("MaxIndexedAt() failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty store, got %v", got)
	}

	older := time.Unix(1_700_000_000, 0)
	newer := time.Unix(1_700_000_500, 0)
	_ = s.Upsert(ctx, Document{Path: "/old", Embedding: []float32{1}, Model: "m", IndexedAt: older})
	_ = s.Upsert(ctx, Document{Path: "/new", Embedding: []float32{1}, Model: "m", IndexedAt: newer})

	got, err = s.MaxIndexedAt(ctx)
	if err != nil {
		t.Fatalf("MaxIndexedAt() failed: %v", err)
	}
	if got == nil || got.Unix() != newer.Unix() {
		t.Errorf("expected %v, got %v", newer, got)
	}
}

func TestSQLiteStore_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	if err := s.Upsert(ctx, Document{Path: "/keep", Embedding: []float32{1, 2}, Model: "m"}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if n, _ := reopened.Count(ctx); n != 1 {
		t.Errorf("expected 1 row after reopen, got %d", n)
	}
}
