package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/extract"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

const (
	// previewChars is the length of the stored content preview, in characters.
	previewChars = 200

	// mtimeTolerance is the minimum mtime drift, in seconds, that marks a file stale.
	mtimeTolerance = 1.0
)

// ErrNotIndexable is returned by IndexFile for paths the scanner would skip.
var ErrNotIndexable = errors.New("file is not indexable")

type Options struct {
	Roots           []string
	Extensions      []string
	MaxFileSize     int64
	MaxContentChars int
	ExcludePatterns []string
}

type Indexer struct {
	store     store.VectorStore
	embedder  embedder.Embedder
	extractor extract.Extractor
	tracker   *progress.Tracker
	scanner   *Scanner
	maxChars  int
	now       func() time.Time
}

type IndexStats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`
}

func New(st store.VectorStore, emb embedder.Embedder, ext extract.Extractor, tr *progress.Tracker, opts Options) *Indexer {
	if tr == nil {
		tr = progress.NewTracker()
	}
	return &Indexer{
		store:     st,
		embedder:  emb,
		extractor: ext,
		tracker:   tr,
		scanner:   NewScanner(opts.Roots, opts.Extensions, opts.MaxFileSize, opts.ExcludePatterns),
		maxChars:  opts.MaxContentChars,
		now:       time.Now,
	}
}

// Tracker returns the progress tracker this indexer reports to.
func (idx *Indexer) Tracker() *progress.Tracker {
	return idx.tracker
}

// Scanner returns the scanner used to discover candidate files.
func (idx *Indexer) Scanner() *Scanner {
	return idx.scanner
}

// RunFull clears the store and embeds every indexable file.
func (idx *Indexer) RunFull(ctx context.Context) (IndexStats, error) {
	var stats IndexStats
	idx.tracker.Begin()

	if err := idx.store.DeleteAll(ctx); err != nil {
		err = fmt.Errorf("failed to clear vector store: %w", err)
		idx.tracker.Finish(fmt.Sprintf("Indexing failed: %v", err))
		return stats, err
	}

	paths := idx.scanner.Scan()
	if err := idx.indexPaths(ctx, paths, &stats); err != nil {
		idx.tracker.Finish(fmt.Sprintf("Indexing interrupted: %v", err))
		return stats, err
	}

	summary := fmt.Sprintf("Indexed %d files, %d errors", stats.Indexed, stats.Errors)
	idx.tracker.Finish(summary)
	log.Printf("Full index complete: indexed=%d errors=%d", stats.Indexed, stats.Errors)
	return stats, nil
}

// RunIncremental embeds new and modified files, then removes vectors for
// files that no longer exist or are no longer indexable.
func (idx *Indexer) RunIncremental(ctx context.Context) (IndexStats, error) {
	var stats IndexStats
	idx.tracker.Begin()

	existing, err := idx.store.Mtimes(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load stored mtimes: %w", err)
		idx.tracker.Finish(fmt.Sprintf("Indexing failed: %v", err))
		return stats, err
	}

	all := idx.scanner.Scan()
	stale := make([]string, 0, len(all))
	for _, path := range all {
		stored, ok := existing[path]
		if !ok || isStale(fileMtime(path), stored) {
			stale = append(stale, path)
		}
	}
	stats.Skipped = len(all) - len(stale)

	if err := idx.indexPaths(ctx, stale, &stats); err != nil {
		idx.tracker.Finish(fmt.Sprintf("Indexing interrupted: %v", err))
		return stats, err
	}

	idx.tracker.SetPhase(progress.PhaseCleanup)
	removed, err := idx.cleanup(ctx)
	if err != nil {
		idx.tracker.Finish(fmt.Sprintf("Indexing failed: %v", err))
		return stats, err
	}
	stats.Removed = removed

	summary := fmt.Sprintf("Indexed %d, skipped %d, removed %d, %d errors",
		stats.Indexed, stats.Skipped, stats.Removed, stats.Errors)
	idx.tracker.Finish(summary)
	log.Printf("Incremental index complete: indexed=%d skipped=%d removed=%d errors=%d",
		stats.Indexed, stats.Skipped, stats.Removed, stats.Errors)
	return stats, nil
}

// IndexFile embeds a single file. Unless force is set, a file whose stored
// mtime matches is left alone and false is returned.
func (idx *Indexer) IndexFile(ctx context.Context, path string, force bool) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	if !idx.scanner.IsIndexable(abs) {
		return false, fmt.Errorf("%w: %s", ErrNotIndexable, abs)
	}

	if !force {
		existing, err := idx.store.Mtimes(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to load stored mtimes: %w", err)
		}
		if stored, ok := existing[abs]; ok && !isStale(fileMtime(abs), stored) {
			return false, nil
		}
	}

	if err := idx.indexOne(ctx, abs); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveFile deletes the stored vector for path, if any.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	if err := idx.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func isStale(current, stored float64) bool {
	return math.Abs(current-stored) >= mtimeTolerance
}

// indexPaths embeds each path in order. Per-file failures are logged and
// counted; only context cancellation stops the loop early.
func (idx *Indexer) indexPaths(ctx context.Context, paths []string, stats *IndexStats) error {
	idx.tracker.SetTotal(len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx.tracker.SetCurrent(filepath.Base(path))
		if err := idx.indexOne(ctx, path); err != nil {
			log.Printf("Failed to index %s: %v", path, err)
			stats.Errors++
		} else {
			stats.Indexed++
		}
		idx.tracker.Record(stats.Indexed+stats.Errors, stats.Errors)
	}
	return nil
}

func (idx *Indexer) indexOne(ctx context.Context, path string) error {
	content, err := idx.extractor.Extract(path, idx.maxChars)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}

	vec, err := idx.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed: %w", err)
	}

	doc := store.Document{
		Path:      path,
		Preview:   extract.Truncate(content, previewChars),
		Embedding: vec,
		Model:     idx.embedder.Model(),
		IndexedAt: idx.now(),
		FileMtime: fileMtime(path),
	}
	if err := idx.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// cleanup removes stored paths that are missing on disk or no longer pass
// the scanner. Failed deletes are logged and skipped.
func (idx *Indexer) cleanup(ctx context.Context) (int, error) {
	stored, err := idx.store.AllPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored paths: %w", err)
	}

	valid := make(map[string]bool)
	for _, p := range idx.scanner.Scan() {
		valid[p] = true
	}

	removed := 0
	for _, path := range stored {
		if _, err := os.Stat(path); err == nil && valid[path] {
			continue
		}
		if err := idx.store.Delete(ctx, path); err != nil {
			log.Printf("Failed to remove stale entry %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
