package progress

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()

	p := tr.Snapshot()
	if p.Running || p.Phase != PhaseIdle {
		t.Fatalf("expected idle tracker, got %+v", p)
	}

	tr.Begin()
	p = tr.Snapshot()
	if !p.Running || p.Phase != PhaseScanning {
		t.Fatalf("expected running/scanning, got %+v", p)
	}

	tr.SetTotal(3)
	tr.SetCurrent("a.txt")
	if p = tr.Snapshot(); p.Phase != PhaseEmbedding || p.Total != 3 || p.CurrentFile != "a.txt" {
		t.Fatalf("unexpected state %+v", p)
	}

	tr.Record(2, 1)
	tr.SetPhase(PhaseCleanup)
	if p = tr.Snapshot(); p.Processed != 2 || p.Errors != 1 || p.Phase != PhaseCleanup {
		t.Fatalf("unexpected state %+v", p)
	}

	tr.Finish("Indexed 1, skipped 0, removed 0, 1 errors")
	p = tr.Snapshot()
	if p.Running || p.Phase != PhaseIdle || p.CurrentFile != "" {
		t.Fatalf("expected frozen idle state, got %+v", p)
	}
	if p.LastResult != "Indexed 1, skipped 0, removed 0, 1 errors" {
		t.Errorf("unexpected last result %q", p.LastResult)
	}
	if p.Processed != 2 || p.Total != 3 {
		t.Errorf("counts should survive Finish, got %+v", p)
	}
}

func TestTracker_BeginResetsCountersButKeepsLastResult(t *testing.T) {
	tr := NewTracker()
	tr.Begin()
	tr.SetTotal(5)
	tr.Record(5, 2)
	tr.Finish("done")

	tr.Begin()
	p := tr.Snapshot()
	if p.Processed != 0 || p.Total != 0 || p.Errors != 0 || p.CurrentFile != "" {
		t.Errorf("expected counters reset, got %+v", p)
	}
	if p.LastResult != "done" {
		t.Errorf("expected last result retained during run, got %q", p.LastResult)
	}
}

func TestTracker_TryStartIsExclusive(t *testing.T) {
	tr := NewTracker()

	const callers = 32
	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tr.TryStart(); ok {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 1 {
		t.Fatalf("expected exactly one run to start, got %d", started.Load())
	}
	if tr.owner == "" {
		t.Error("expected an owner token while running")
	}

	tr.Finish("ok")
	if tr.owner != "" {
		t.Error("expected owner cleared after Finish")
	}
	if _, ok := tr.TryStart(); !ok {
		t.Error("expected TryStart to succeed after Finish")
	}
}

func TestTracker_TryStartTokensDiffer(t *testing.T) {
	tr := NewTracker()

	first, ok := tr.TryStart()
	if !ok {
		t.Fatal("TryStart() failed")
	}
	tr.Finish("")

	second, ok := tr.TryStart()
	if !ok {
		t.Fatal("TryStart() failed")
	}
	if first == second {
		t.Errorf("expected distinct owner tokens, got %s twice", first)
	}
}

func TestTracker_BeginKeepsClaimedOwner(t *testing.T) {
	tr := NewTracker()
	owner, _ := tr.TryStart()
	tr.Begin()
	if tr.owner != owner {
		t.Errorf("Begin() replaced owner %s with %s", owner, tr.owner)
	}
}
