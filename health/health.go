// Package health reports whether the services indexing depends on are usable.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

const checkTimeout = 3 * time.Second

// Report is the answer to a health check. Issues holds one human-readable
// line per failed check.
type Report struct {
	Ollama   bool     `json:"ollama"`
	VectorDB bool     `json:"vector_db"`
	APIKey   bool     `json:"api_key"`
	Indexing bool     `json:"indexing"`
	Issues   []string `json:"issues"`
}

// Healthy reports whether the core services are up. The API key is optional.
func (r Report) Healthy() bool {
	return r.Ollama && r.VectorDB
}

// Summary renders the report on one line.
func (r Report) Summary() string {
	ok := func(b bool) string {
		if b {
			return "OK"
		}
		return "FAIL"
	}
	parts := []string{
		"Ollama: " + ok(r.Ollama),
		"Vector DB: " + ok(r.VectorDB),
		"API Key: " + ok(r.APIKey),
	}
	if len(r.Issues) > 0 {
		parts = append(parts, "Issues: "+strings.Join(r.Issues, "; "))
	}
	return strings.Join(parts, " | ")
}

type Checker struct {
	ollama    embedder.Pinger
	store     store.VectorStore
	tracker   *progress.Tracker
	hasAPIKey bool
}

// NewChecker builds a checker. A nil tracker reports indexing=false.
func NewChecker(ollama embedder.Pinger, st store.VectorStore, tr *progress.Tracker, hasAPIKey bool) *Checker {
	return &Checker{ollama: ollama, store: st, tracker: tr, hasAPIKey: hasAPIKey}
}

func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Issues: []string{}}

	if err := c.checkOllama(ctx); err != nil {
		r.Issues = append(r.Issues, fmt.Sprintf("Ollama: %v", err))
	} else {
		r.Ollama = true
	}

	if err := c.checkVectorDB(ctx); err != nil {
		r.Issues = append(r.Issues, fmt.Sprintf("Vector DB: %v", err))
	} else {
		r.VectorDB = true
	}

	r.APIKey = c.hasAPIKey
	if !r.APIKey {
		r.Issues = append(r.Issues, "OpenRouter API key not configured")
	}

	if c.tracker != nil {
		r.Indexing = c.tracker.Snapshot().Running
	}
	return r
}

func (c *Checker) checkOllama(ctx context.Context) error {
	if c.ollama == nil {
		return fmt.Errorf("not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.ollama.Ping(ctx)
}

func (c *Checker) checkVectorDB(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("not open")
	}
	if _, err := c.store.Count(ctx); err != nil {
		return fmt.Errorf("query failed (%v)", err)
	}
	return nil
}
