// Package sqlitedb opens SQLite databases with the pragmas shared by the
// vector store and the launch history.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/burrowapp/burrow/internal/fileutil"
	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

// Open opens (creating if needed) the database at path, applies WAL and busy
// timeout pragmas, and executes schema. The pool is limited to one
// connection so pragmas apply to every statement.
func Open(ctx context.Context, path string, schema string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := fileutil.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if schema != "" {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return db, nil
}
