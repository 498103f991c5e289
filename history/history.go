// Package history records launcher activations and ranks them by frecency.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/burrowapp/burrow/internal/sqlitedb"
)

// FrecentLimit is the number of entries Frecent returns.
const FrecentLimit = 6

const schema = `
CREATE TABLE IF NOT EXISTS launches (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	exec        TEXT NOT NULL,
	icon        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	count       INTEGER NOT NULL DEFAULT 0,
	last_used   REAL NOT NULL DEFAULT 0
);
`

// frecency weights the launch count by days since last use (julian days).
const frecency = `count * (1.0 / (1.0 + (julianday('now') - last_used)))`

type Entry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Exec        string  `json:"exec"`
	Icon        string  `json:"icon,omitempty"`
	Description string  `json:"description,omitempty"`
	Count       int64   `json:"count"`
	Score       float64 `json:"score"`
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Record counts one launch of id, creating the entry on first use and
// refreshing its display fields on later ones. The launcher host is the
// writer; this module only reads and prunes the history.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launches (id, name, exec, icon, description, count, last_used)
		VALUES (?, ?, ?, ?, ?, 1, julianday('now'))
		ON CONFLICT(id) DO UPDATE SET
			count = count + 1,
			last_used = julianday('now'),
			name = excluded.name,
			exec = excluded.exec,
			icon = excluded.icon,
			description = excluded.description`,
		e.ID, e.Name, e.Exec, e.Icon, e.Description)
	if err != nil {
		return fmt.Errorf("failed to record launch %s: %w", e.ID, err)
	}
	return nil
}

// Frecent returns up to FrecentLimit entries, most frecent first.
func (s *Store) Frecent(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, exec, icon, description, count, `+frecency+` AS score
		FROM launches
		ORDER BY score DESC, id ASC
		LIMIT ?`, FrecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Exec, &e.Icon, &e.Description, &e.Count, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of distinct launched entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM launches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count launches: %w", err)
	}
	return n, nil
}

// Remove deletes one entry and reports whether it existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM launches WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", id, err)
	}
	return n > 0, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM launches`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
