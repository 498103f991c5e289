// Package progress tracks the state of the current or most recent indexing run.
//
// A Tracker is shared between the goroutine running the indexer and any
// number of readers (HTTP handlers, CLI pollers). Every method takes the
// lock for a short, synchronous update; no lock is held across I/O.
package progress

import (
	"sync"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScanning  Phase = "scanning"
	PhaseEmbedding Phase = "embedding"
	PhaseCleanup   Phase = "cleanup"
)

// Progress is a point-in-time copy of the run state.
type Progress struct {
	Running     bool   `json:"running"`
	Phase       Phase  `json:"phase"`
	CurrentFile string `json:"current_file"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Errors      int    `json:"errors"`
	LastResult  string `json:"last_result"`
}

type Tracker struct {
	mu    sync.Mutex
	state Progress
	owner string
}

func NewTracker() *Tracker {
	return &Tracker{state: Progress{Phase: PhaseIdle}}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TryStart claims the tracker for a new run. It returns the owner token and
// true when no run is active; otherwise it returns "" and false and leaves
// the state untouched. The check and the claim happen under one lock, so
// two concurrent callers cannot both start a run.
func (t *Tracker) TryStart() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Running {
		return "", false
	}

	t.owner = uuid.NewString()
	t.begin()
	return t.owner, true
}

// Begin resets the counters and enters the scanning phase. It is idempotent
// for a run already claimed with TryStart.
func (t *Tracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner == "" {
		t.owner = uuid.NewString()
	}
	t.begin()
}

func (t *Tracker) begin() {
	t.state.Running = true
	t.state.Phase = PhaseScanning
	t.state.CurrentFile = ""
	t.state.Processed = 0
	t.state.Total = 0
	t.state.Errors = 0
}

// SetTotal records the number of files to embed and enters the embedding phase.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Total = total
	t.state.Phase = PhaseEmbedding
}

func (t *Tracker) SetCurrent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.CurrentFile = name
}

// Record stores the running counts after a file finishes.
func (t *Tracker) Record(processed, errors int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Processed = processed
	t.state.Errors = errors
}

func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Phase = phase
}

// Finish ends the run: running=false, phase=idle, no current file, and
// lastResult kept until the next run finishes.
func (t *Tracker) Finish(lastResult string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Running = false
	t.state.Phase = PhaseIdle
	t.state.CurrentFile = ""
	t.state.LastResult = lastResult
	t.owner = ""
}
