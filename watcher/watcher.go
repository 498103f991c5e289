// Package watcher keeps the index current between scheduled passes.
//
// Watcher turns fsnotify events under the index roots into debounced
// FileEvents, and Host drives the periodic incremental pass and applies
// those events to the store.
package watcher

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/burrowapp/burrow/indexer"
	"github.com/fsnotify/fsnotify"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	case EventRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a debounced change to an absolute path under an index root.
type FileEvent struct {
	Type EventType
	Path string
}

// Watcher reports changes to indexable files under the scanner's roots.
// Events for one path inside a debounce window collapse into one.
type Watcher struct {
	scanner  *indexer.Scanner
	fsw      *fsnotify.Watcher
	debounce time.Duration
	events   chan FileEvent
	done     chan struct{}
	stop     sync.Once

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
}

func NewWatcher(scanner *indexer.Scanner, debounceMs int) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		scanner:  scanner,
		fsw:      fsw,
		debounce: time.Duration(debounceMs) * time.Millisecond,
		events:   make(chan FileEvent, 256),
		done:     make(chan struct{}),
		pending:  make(map[string]FileEvent),
	}, nil
}

// Start registers every existing root and its non-excluded subdirectories
// and begins translating events. Roots that do not exist yet are skipped;
// the next scheduled pass still covers them.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.scanner.Roots() {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.watchTree(root); err != nil {
			return err
		}
	}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

func (w *Watcher) Close() error {
	w.stop.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return w.fsw.Close()
}

func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.scanner.Skipped(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.translate(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) {
	path := ev.Name

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) && !w.scanner.Skipped(path, true) {
			if err := w.watchTree(path); err != nil {
				log.Printf("Failed to watch new directory %s: %v", path, err)
			}
		}
		return
	}

	if w.scanner.Skipped(path, false) {
		return
	}

	var typ EventType
	switch {
	case ev.Has(fsnotify.Remove):
		typ = EventDelete
	case ev.Has(fsnotify.Rename):
		typ = EventRename
	case ev.Has(fsnotify.Create):
		typ = EventCreate
	case ev.Has(fsnotify.Write):
		typ = EventModify
	default:
		return
	}

	// A removed file cannot be stat'ed, so only additions are filtered here.
	if (typ == EventCreate || typ == EventModify) && !w.scanner.IsIndexable(path) {
		return
	}

	w.queue(FileEvent{Type: typ, Path: path})
}

// queue merges ev into the pending set and restarts the debounce window.
func (w *Watcher) queue(ev FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, seen := w.pending[ev.Path]
	switch {
	case seen && prev.Type == EventCreate && (ev.Type == EventDelete || ev.Type == EventRename):
		// Created and gone within one window: nothing was ever indexed.
		delete(w.pending, ev.Path)
	case seen && prev.Type == EventCreate && ev.Type == EventModify:
	default:
		w.pending[ev.Path] = ev
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush delivers pending events in path order. It blocks while the consumer
// is busy rather than dropping events, and gives up once the watcher closes.
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := make([]FileEvent, 0, len(w.pending))
	for _, ev := range w.pending {
		batch = append(batch, ev)
	}
	w.pending = make(map[string]FileEvent)
	w.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	for _, ev := range batch {
		select {
		case w.events <- ev:
		case <-w.done:
			return
		}
	}
}
