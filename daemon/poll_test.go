package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/burrowapp/burrow/progress"
)

// scriptedSource replays a fixed sequence of poll results, repeating the last.
type scriptedSource struct {
	mu    sync.Mutex
	steps []pollStep
	calls int
}

type pollStep struct {
	p   progress.Progress
	err error
}

func (s *scriptedSource) Progress(context.Context) (progress.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].p, s.steps[i].err
}

func running(processed, total int, phase progress.Phase) pollStep {
	return pollStep{p: progress.Progress{Running: true, Processed: processed, Total: total, Phase: phase}}
}

func TestWaitForIndexer_ReportsChangesOnly(t *testing.T) {
	src := &scriptedSource{steps: []pollStep{
		running(0, 0, progress.PhaseScanning),
		running(0, 0, progress.PhaseScanning),
		running(0, 3, progress.PhaseEmbedding),
		running(1, 3, progress.PhaseEmbedding),
		running(1, 3, progress.PhaseEmbedding),
		running(3, 3, progress.PhaseEmbedding),
		{p: progress.Progress{Running: false, Processed: 3, Total: 3, Phase: progress.PhaseIdle, LastResult: "done"}},
	}}

	var seen []progress.Progress
	final, err := WaitForIndexer(context.Background(), src, WaitOptions{
		Interval: time.Millisecond,
		OnChange: func(p progress.Progress) { seen = append(seen, p) },
	})
	if err != nil {
		t.Fatalf("WaitForIndexer() failed: %v", err)
	}
	if final.LastResult != "done" {
		t.Errorf("unexpected final progress %+v", final)
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 change notifications, got %d: %+v", len(seen), seen)
	}
}

func TestWaitForIndexer_ToleratesTransientErrors(t *testing.T) {
	src := &scriptedSource{steps: []pollStep{
		running(0, 1, progress.PhaseEmbedding),
		{err: errors.New("connection refused")},
		running(1, 1, progress.PhaseEmbedding),
		{err: errors.New("timeout")},
		{p: progress.Progress{Phase: progress.PhaseIdle}},
	}}

	if _, err := WaitForIndexer(context.Background(), src, WaitOptions{Interval: time.Millisecond, MaxConsecutiveErrors: 2}); err != nil {
		t.Fatalf("WaitForIndexer() failed: %v", err)
	}
}

func TestWaitForIndexer_UnreachableAfterConsecutiveErrors(t *testing.T) {
	src := &scriptedSource{steps: []pollStep{
		running(0, 1, progress.PhaseEmbedding),
		{err: errors.New("connection refused")},
	}}

	_, err := WaitForIndexer(context.Background(), src, WaitOptions{Interval: time.Millisecond, MaxConsecutiveErrors: 4})
	if !errors.Is(err, ErrDaemonUnreachable) {
		t.Fatalf("expected ErrDaemonUnreachable, got %v", err)
	}
	if src.calls != 5 {
		t.Errorf("expected 5 polls (1 ok + 4 failures), got %d", src.calls)
	}
}

func TestWaitForIndexer_ContextCanceled(t *testing.T) {
	src := &scriptedSource{steps: []pollStep{running(0, 1, progress.PhaseEmbedding)}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := WaitForIndexer(ctx, src, WaitOptions{Interval: time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
