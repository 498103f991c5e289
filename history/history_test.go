package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if n, err := s.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count() on empty db = %d, %v", n, err)
	}

	firefox := Entry{ID: "firefox", Name: "Firefox", Exec: "firefox"}
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, firefox); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}
	if err := s.Record(ctx, Entry{ID: "term", Name: "Terminal", Exec: "kitty"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	entries, err := s.Frecent(ctx)
	if err != nil {
		t.Fatalf("Frecent() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "firefox" || entries[0].Count != 3 {
		t.Errorf("expected firefox with count 3 first, got %+v", entries[0])
	}
}

func TestRecordUpdatesDisplayFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Record(ctx, Entry{ID: "app", Name: "Old", Exec: "old"})
	_ = s.Record(ctx, Entry{ID: "app", Name: "New", Exec: "new", Icon: "icon.png"})

	entries, err := s.Frecent(ctx)
	if err != nil {
		t.Fatalf("Frecent() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Name != "New" || e.Exec != "new" || e.Icon != "icon.png" || e.Count != 2 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestFrecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < FrecentLimit+4; i++ {
		if err := s.Record(ctx, Entry{ID: fmt.Sprintf("app%02d", i), Name: "n", Exec: "e"}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	entries, err := s.Frecent(ctx)
	if err != nil {
		t.Fatalf("Frecent() failed: %v", err)
	}
	if len(entries) != FrecentLimit {
		t.Errorf("expected %d entries, got %d", FrecentLimit, len(entries))
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Record(ctx, Entry{ID: "a", Name: "A", Exec: "a"})
	_ = s.Record(ctx, Entry{ID: "b", Name: "B", Exec: "b"})
	_ = s.Record(ctx, Entry{ID: "c", Name: "C", Exec: "c"})

	removed, err := s.Remove(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("Remove(a) = %v, %v", removed, err)
	}
	removed, err = s.Remove(ctx, "missing")
	if err != nil || removed {
		t.Fatalf("Remove(missing) = %v, %v", removed, err)
	}

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Clear() removed %d, want 2", n)
	}
	if c, _ := s.Count(ctx); c != 0 {
		t.Errorf("expected empty history, got %d", c)
	}
}
