package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/extract"
	"github.com/burrowapp/burrow/indexer"
	"github.com/burrowapp/burrow/internal/fileutil"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

// env holds the resolved configuration and directories for one command.
type env struct {
	cfg       *config.Config
	configDir string
	dataDir   string
	runDir    string

	// runtimeFactory replaces openRuntime when set.
	runtimeFactory func(context.Context, *env) (*localRuntime, error)
}

func loadEnv() (*env, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	dataDir, err := config.GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	runDir, err := daemon.GetRuntimeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve runtime directory: %w", err)
	}
	return &env{cfg: cfg, configDir: configDir, dataDir: dataDir, runDir: runDir}, nil
}

// errVectorSearchDisabled is returned by every indexing entry point when
// vector_search.enabled is false.
var errVectorSearchDisabled = errors.New("vector search is disabled in config (set vector_search.enabled: true)")

func (e *env) requireVectorSearch() error {
	if !e.cfg.VectorSearch.Enabled {
		return errVectorSearchDisabled
	}
	return nil
}

// runtime opens the in-process store, embedder, and indexer.
func (e *env) runtime(ctx context.Context) (*localRuntime, error) {
	if e.runtimeFactory != nil {
		return e.runtimeFactory(ctx, e)
	}
	return openRuntime(ctx, e)
}

func (e *env) lockPath() string {
	return config.GetIndexerLockPath(e.dataDir)
}

func (e *env) modelInfo() daemon.ModelInfo {
	return daemon.ModelInfo{
		Name:     e.cfg.Models.Embedding.Name,
		Provider: e.cfg.Models.Embedding.Provider,
	}
}

// daemonClient returns a client for the running daemon, or nil when none is
// running. Stale PID files are cleaned up on the way.
func (e *env) daemonClient() (*daemon.Client, error) {
	pid, err := daemon.GetRunningPID(e.runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}
	if pid == 0 {
		return nil, nil
	}
	return daemon.NewClient(daemon.SocketPath(e.runDir), daemon.DefaultClientTimeout), nil
}

// initializeEmbedder builds the configured embedder. For Ollama the server is
// pinged first so a missing daemon fails fast instead of once per file.
func initializeEmbedder(ctx context.Context, cfg *config.Config) (embedder.Embedder, error) {
	emb, err := embedder.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Models.Embedding.Provider == "ollama" {
		if p, ok := emb.(embedder.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				emb.Close()
				return nil, fmt.Errorf("cannot connect to Ollama: %w\nMake sure Ollama is running and has the %s model", err, cfg.Models.Embedding.Name)
			}
		}
	}

	return emb, nil
}

func initializeStore(ctx context.Context, e *env) (store.VectorStore, error) {
	st, err := store.New(ctx, e.cfg, e.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return st, nil
}

func newIndexer(e *env, st store.VectorStore, emb embedder.Embedder, tr *progress.Tracker) *indexer.Indexer {
	return indexer.New(st, emb, extract.New(), tr, indexer.Options{
		Roots:           e.cfg.ResolvedIndexDirs(),
		Extensions:      e.cfg.VectorSearch.FileExtensions,
		MaxFileSize:     e.cfg.VectorSearch.MaxFileSizeBytes,
		MaxContentChars: e.cfg.Indexer.MaxContentChars,
		ExcludePatterns: e.cfg.VectorSearch.ExcludePatterns,
	})
}

// localRuntime bundles the components an in-process command needs.
type localRuntime struct {
	store    store.VectorStore
	embedder embedder.Embedder
	tracker  *progress.Tracker
	indexer  *indexer.Indexer
}

func openRuntime(ctx context.Context, e *env) (*localRuntime, error) {
	st, err := initializeStore(ctx, e)
	if err != nil {
		return nil, err
	}
	emb, err := initializeEmbedder(ctx, e.cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	tr := progress.NewTracker()
	return &localRuntime{
		store:    st,
		embedder: emb,
		tracker:  tr,
		indexer:  newIndexer(e, st, emb, tr),
	}, nil
}

func (r *localRuntime) Close() {
	if err := r.embedder.Close(); err != nil {
		log.Printf("Warning: failed to close embedder: %v", err)
	}
	if err := r.store.Close(); err != nil {
		log.Printf("Warning: failed to close store: %v", err)
	}
}

// errIndexerBusy is returned when another process holds the indexer lock.
var errIndexerBusy = errors.New("another indexing run is in progress")

func acquireIndexerLock(e *env) (*fileutil.FileLock, error) {
	lock, err := fileutil.TryLock(e.lockPath())
	if errors.Is(err, fileutil.ErrLocked) {
		return nil, errIndexerBusy
	}
	return lock, err
}

// localRunner starts indexing runs in this process. It serves the same role
// as the daemon's start endpoint when no daemon is running.
type localRunner struct {
	env     *env
	indexer *indexer.Indexer
	tracker *progress.Tracker
	runs    sync.WaitGroup
}

func (l *localRunner) Progress(context.Context) (progress.Progress, error) {
	return l.tracker.Snapshot(), nil
}

func (l *localRunner) StartIndexer(_ context.Context, full bool) (daemon.StartResponse, error) {
	if l.env.requireVectorSearch() != nil {
		return daemon.StartResponse{Started: false, Message: "Vector search is disabled in config"}, nil
	}
	if _, ok := l.tracker.TryStart(); !ok {
		return daemon.StartResponse{Started: false, Message: "Indexing already in progress"}, nil
	}

	lock, err := acquireIndexerLock(l.env)
	if err != nil {
		l.tracker.Finish(fmt.Sprintf("Indexing failed: %v", err))
		return daemon.StartResponse{}, err
	}

	l.runs.Add(1)
	go func() {
		defer l.runs.Done()
		defer lock.Unlock()

		ctx := context.Background()
		var err error
		if full {
			_, err = l.indexer.RunFull(ctx)
		} else {
			_, err = l.indexer.RunIncremental(ctx)
		}
		if err != nil {
			log.Printf("Indexing run failed: %v", err)
		}
	}()
	return daemon.StartResponse{Started: true, Message: "Indexing started"}, nil
}

// Wait blocks until every run started by l has finished.
func (l *localRunner) Wait() {
	l.runs.Wait()
}

// formatAge renders how long ago t was, for status lines.
func formatAge(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// absPath returns p made absolute, or p itself when that fails.
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
