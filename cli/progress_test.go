package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/burrowapp/burrow/progress"
)

type fixedSource struct {
	p   progress.Progress
	err error
}

func (s fixedSource) Progress(context.Context) (progress.Progress, error) {
	return s.p, s.err
}

func TestProgressModel_Fetch(t *testing.T) {
	want := progress.Progress{Running: true, Phase: progress.PhaseEmbedding, Processed: 1, Total: 2}
	m := newProgressModel(fixedSource{p: want})

	msg := m.Init()()
	pm, ok := msg.(progressMsg)
	if !ok {
		t.Fatalf("Init() produced %T, want progressMsg", msg)
	}
	if pm.err != nil || pm.p != want {
		t.Errorf("progressMsg = %+v", pm)
	}
}

func TestProgressModel_Update(t *testing.T) {
	m := newProgressModel(fixedSource{})

	next, cmd := m.Update(progressMsg{p: progress.Progress{Running: true, Phase: progress.PhaseEmbedding, Processed: 3, Total: 6}})
	m = next.(progressModel)
	if cmd == nil {
		t.Fatal("Update(progressMsg) returned no tick")
	}
	if m.current.Processed != 3 || m.failures != 0 || m.updated.IsZero() {
		t.Errorf("model after progress = %+v", m)
	}
	if view := m.View(); !strings.Contains(view, "3/6") {
		t.Errorf("View() = %q, want 3/6", view)
	}

	next, _ = m.Update(progressMsg{err: errors.New("connection refused")})
	m = next.(progressModel)
	next, _ = m.Update(progressMsg{err: errors.New("connection refused")})
	m = next.(progressModel)
	if m.failures != 2 {
		t.Errorf("failures = %d, want 2", m.failures)
	}
	if m.current.Processed != 3 {
		t.Error("failed poll overwrote the last good snapshot")
	}
	if view := m.View(); !strings.Contains(view, "2 failed polls") {
		t.Errorf("View() = %q, want failure count", view)
	}

	next, _ = m.Update(progressMsg{p: progress.Progress{LastResult: "done"}})
	if next.(progressModel).failures != 0 {
		t.Error("failures not reset after a good poll")
	}

	if _, cmd := m.Update(tickMsg{}); cmd == nil {
		t.Error("Update(tickMsg) returned no fetch")
	}
}

func TestProgressModel_Quit(t *testing.T) {
	m := newProgressModel(fixedSource{})
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("Update(%q) returned no command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Update(%q) did not quit", key.String())
		}
	}
}
