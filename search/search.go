// Package search answers natural-language queries against the vector store.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/store"
)

type Searcher struct {
	store    store.VectorStore
	embedder embedder.Embedder
	topK     int
	minScore float32
}

func NewSearcher(st store.VectorStore, emb embedder.Embedder, cfg config.VectorSearchConfig) *Searcher {
	return &Searcher{
		store:    st,
		embedder: emb,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
	}
}

// Search embeds query and returns matching files, best first. A limit of
// zero or less falls back to the configured top_k.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = s.topK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Search(ctx, vec, limit, s.minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to search store: %w", err)
	}
	return results, nil
}
