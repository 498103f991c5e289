package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/burrowapp/burrow/indexer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func removeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove %s: %v", path, err)
	}
}

func waitEvent(t *testing.T, events <-chan FileEvent, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for file event")
			return FileEvent{}
		}
	}
}

func newTestWatcher(t *testing.T, root string, exclude ...string) *Watcher {
	t.Helper()
	scanner := indexer.NewScanner([]string{root}, []string{"txt", "md"}, 1_000_000, exclude)
	w, err := NewWatcher(scanner, 20)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return w
}

func TestWatcher_ReportsIndexableFiles(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "hello")

	ev := waitEvent(t, w.Events(), func(ev FileEvent) bool { return ev.Path == path })
	if ev.Type != EventCreate && ev.Type != EventModify {
		t.Errorf("expected CREATE or MODIFY, got %s", ev.Type)
	}

	removeFile(t, path)
	ev = waitEvent(t, w.Events(), func(ev FileEvent) bool { return ev.Path == path })
	if ev.Type != EventDelete && ev.Type != EventRename {
		t.Errorf("expected DELETE or RENAME, got %s", ev.Type)
	}
}

func TestWatcher_IgnoresFilteredPaths(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root, "drafts/")

	writeFile(t, filepath.Join(root, ".hidden.txt"), "x")
	writeFile(t, filepath.Join(root, "image.png"), "x")
	writeFile(t, filepath.Join(root, "drafts", "wip.txt"), "x")
	marker := filepath.Join(root, "marker.md")
	writeFile(t, marker, "x")

	// The marker is written last, so anything before it has been flushed too.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == marker {
				return
			}
			t.Errorf("unexpected event %s %s", ev.Type, ev.Path)
		case <-deadline:
			t.Fatal("timed out waiting for marker event")
		}
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	sub := filepath.Join(root, "projects")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "plan.md")
	writeFile(t, path, "roadmap")
	waitEvent(t, w.Events(), func(ev FileEvent) bool { return ev.Path == path })
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		ev   EventType
		want string
	}{
		{EventCreate, "CREATE"},
		{EventModify, "MODIFY"},
		{EventDelete, "DELETE"},
		{EventRename, "RENAME"},
		{EventType(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestWatcher_QueueMergesEventsPerPath(t *testing.T) {
	scanner := indexer.NewScanner([]string{t.TempDir()}, []string{"txt"}, 1_000_000, nil)
	w, err := NewWatcher(scanner, int(time.Hour/time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Close()

	w.queue(FileEvent{Type: EventCreate, Path: "/r/a.txt"})
	w.queue(FileEvent{Type: EventModify, Path: "/r/a.txt"})
	w.queue(FileEvent{Type: EventCreate, Path: "/r/b.txt"})
	w.queue(FileEvent{Type: EventDelete, Path: "/r/b.txt"})
	w.queue(FileEvent{Type: EventModify, Path: "/r/c.txt"})
	w.queue(FileEvent{Type: EventDelete, Path: "/r/c.txt"})

	w.mu.Lock()
	pending := make(map[string]EventType, len(w.pending))
	for p, ev := range w.pending {
		pending[p] = ev.Type
	}
	w.mu.Unlock()

	want := map[string]EventType{
		"/r/a.txt": EventCreate,
		"/r/c.txt": EventDelete,
	}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for p, typ := range want {
		if pending[p] != typ {
			t.Errorf("pending[%s] = %s, want %s", p, pending[p], typ)
		}
	}

	go w.flush()
	first := <-w.Events()
	second := <-w.Events()
	if first.Path != "/r/a.txt" || second.Path != "/r/c.txt" {
		t.Errorf("flush order = %s, %s; want path order", first.Path, second.Path)
	}
}
