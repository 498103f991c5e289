package watcher

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/burrowapp/burrow/indexer"
)

// Host keeps the index fresh without a daemon: it runs an incremental pass
// at startup and on every tick, and optionally applies file events between
// passes.
type Host struct {
	idx      *indexer.Indexer
	interval time.Duration
	watch    bool
	debounce int

	// Serializes passes and file events against the store.
	mu sync.Mutex
}

type HostOptions struct {
	Interval   time.Duration
	Watch      bool
	DebounceMs int
}

func NewHost(idx *indexer.Indexer, opts HostOptions) *Host {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &Host{
		idx:      idx,
		interval: opts.Interval,
		watch:    opts.Watch,
		debounce: opts.DebounceMs,
	}
}

// Run blocks until ctx is canceled. Failed passes are logged and retried on
// the next tick.
func (h *Host) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.tickLoop(gctx)
	})

	if h.watch {
		w, err := NewWatcher(h.idx.Scanner(), h.debounce)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			return h.consume(gctx, w.Events())
		})
	}

	return g.Wait()
}

func (h *Host) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.runPass(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Host) runPass(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats, err := h.idx.RunIncremental(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Incremental pass failed: %v", err)
		}
		return
	}
	log.Printf("[indexer] indexed=%d, skipped=%d, removed=%d, errors=%d",
		stats.Indexed, stats.Skipped, stats.Removed, stats.Errors)
}

func (h *Host) consume(ctx context.Context, events <-chan FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.apply(ctx, ev)
		}
	}
}

// apply indexes a created or modified file, or drops the vector of one that
// is gone. A rename reports the old name, so it is treated like a removal
// when the path no longer exists.
func (h *Host) apply(ctx context.Context, ev FileEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(ev.Path); os.IsNotExist(err) {
		if err := h.idx.RemoveFile(ctx, ev.Path); err != nil {
			log.Printf("Failed to remove %s: %v", ev.Path, err)
			return
		}
		log.Printf("Removed %s (%s)", ev.Path, ev.Type)
		return
	}

	indexed, err := h.idx.IndexFile(ctx, ev.Path, false)
	if err != nil {
		log.Printf("Failed to index %s: %v", ev.Path, err)
		return
	}
	if indexed {
		log.Printf("Indexed %s (%s)", ev.Path, ev.Type)
	}
}
