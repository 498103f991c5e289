package store

import (
	"context"
	"fmt"

	"github.com/burrowapp/burrow/config"
)

// New opens the backend selected by store.backend. The SQLite database lives
// in dataDir.
func New(ctx context.Context, cfg *config.Config, dataDir string) (VectorStore, error) {
	switch cfg.Store.Backend {
	case "sqlite", "":
		return NewSQLiteStore(ctx, config.GetVectorDBPath(dataDir))
	case "postgres":
		if cfg.Store.Postgres.DSN == "" {
			return nil, fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
		return NewPostgresStore(ctx, cfg.Store.Postgres.DSN)
	case "qdrant":
		q := cfg.Store.Qdrant
		if q.Host == "" {
			return nil, fmt.Errorf("store.qdrant.host is required for the qdrant backend")
		}
		return NewQdrantStore(ctx, q.Host, q.Port, q.Collection, q.APIKey, q.UseTLS)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}
