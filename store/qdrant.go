package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultQdrantPort = 6334
	qdrantScrollLimit = 256
)

// QdrantStore keeps vectors in a Qdrant collection. Point IDs are derived
// from the file path so an upsert replaces the previous point for that path.
// The collection is created on first upsert, sized to that embedding.
type QdrantStore struct {
	client     *qdrant.Client
	collection string

	mu        sync.Mutex
	dimension int // 0 until the collection is known to exist
}

func NewQdrantStore(ctx context.Context, host string, port int, collection, apiKey string, useTLS bool) (*QdrantStore, error) {
	if port == 0 {
		port = defaultQdrantPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection}
	if _, err := s.loadDimension(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func pointID(path string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String())
}

// loadDimension returns the collection's vector size, or 0 when the
// collection does not exist yet.
func (s *QdrantStore) loadDimension(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension > 0 {
		return s.dimension, nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if !exists {
		return 0, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get qdrant collection info: %w", err)
	}
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		s.dimension = int(params.GetSize())
	}
	return s.dimension, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	existing, err := s.loadDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		if existing != dim {
			return fmt.Errorf("embedding dimension %d does not match collection dimension %d (run a full reindex)", dim, existing)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	s.dimension = dim
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, doc Document) error {
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("failed to upsert %s: empty embedding", doc.Path)
	}
	if err := s.ensureCollection(ctx, len(doc.Embedding)); err != nil {
		return err
	}

	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(doc.Path),
				Vectors: qdrant.NewVectors(doc.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"file_path":  doc.Path,
					"preview":    doc.Preview,
					"model":      doc.Model,
					"indexed_at": float64(indexedAt.UnixNano()) / 1e9,
					"file_mtime": doc.FileMtime,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", doc.Path, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, minScore float32) ([]SearchResult, error) {
	dim, err := s.loadDimension(ctx)
	if err != nil {
		return nil, err
	}
	// Vectors of another dimension score 0 and are never above a positive threshold.
	if dim == 0 || dim != len(query) || topK <= 0 {
		return []SearchResult{}, nil
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		ScoreThreshold: &minScore,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Path:    p.GetPayload()["file_path"].GetStringValue(),
			Preview: p.GetPayload()["preview"].GetStringValue(),
			Score:   p.GetScore(),
		})
	}
	return rankResults(results, topK, minScore), nil
}

func (s *QdrantStore) Delete(ctx context.Context, path string) error {
	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return err
	}

	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointID(path)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// DeleteAll drops the collection; the next upsert recreates it.
func (s *QdrantStore) DeleteAll(ctx context.Context) error {
	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to drop qdrant collection: %w", err)
	}
	s.dimension = 0
	return nil
}

// scroll visits every point's payload.
func (s *QdrantStore) scroll(ctx context.Context, fn func(payload map[string]*qdrant.Value)) error {
	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return err
	}

	limit := uint32(qdrantScrollLimit)
	var offset *qdrant.PointId
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("failed to scroll qdrant: %w", err)
		}

		// The offset point is returned again as the first item of the next page.
		start := 0
		if offset != nil && len(points) > 0 && points[0].GetId().GetUuid() == offset.GetUuid() {
			start = 1
		}
		for _, p := range points[start:] {
			fn(p.GetPayload())
		}

		if len(points) < int(limit) {
			return nil
		}
		offset = points[len(points)-1].GetId()
	}
}

func (s *QdrantStore) AllPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.scroll(ctx, func(payload map[string]*qdrant.Value) {
		paths = append(paths, payload["file_path"].GetStringValue())
	})
	return paths, err
}

func (s *QdrantStore) Mtimes(ctx context.Context) (map[string]float64, error) {
	mtimes := make(map[string]float64)
	err := s.scroll(ctx, func(payload map[string]*qdrant.Value) {
		mtimes[payload["file_path"].GetStringValue()] = payload["file_mtime"].GetDoubleValue()
	})
	return mtimes, err
}

func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}

	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count qdrant points: %w", err)
	}
	return int64(n), nil
}

func (s *QdrantStore) MaxIndexedAt(ctx context.Context) (*time.Time, error) {
	var (
		latest float64
		found  bool
	)
	err := s.scroll(ctx, func(payload map[string]*qdrant.Value) {
		if v := payload["indexed_at"].GetDoubleValue(); !found || v > latest {
			latest = v
			found = true
		}
	})
	if err != nil || !found {
		return nil, err
	}
	t := time.Unix(unixSeconds(latest))
	return &t, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
