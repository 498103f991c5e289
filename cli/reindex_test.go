package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/internal/fileutil"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

func skipIfWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping on Windows")
	}
}

// shortTempDir keeps socket paths under the unix path length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "bw")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// deadPID returns the PID of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run helper process: %v", err)
	}
	return cmd.Process.Pid
}

// newIndexEnv returns an env over a root holding one indexable file whose
// in-process runtime uses emb and counts how often it is opened.
func newIndexEnv(t *testing.T, emb embedder.Embedder) (*env, *atomic.Int32) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("meeting notes"), 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestEnv(t, root)
	e.runDir = shortTempDir(t)

	var opened atomic.Int32
	e.runtimeFactory = func(ctx context.Context, e *env) (*localRuntime, error) {
		opened.Add(1)
		st, err := store.NewSQLiteStore(ctx, config.GetVectorDBPath(e.dataDir))
		if err != nil {
			return nil, err
		}
		tr := progress.NewTracker()
		return &localRuntime{store: st, embedder: emb, tracker: tr, indexer: newIndexer(e, st, emb, tr)}, nil
	}
	return e, &opened
}

func releasedEmbedder() gatedEmbedder {
	emb := gatedEmbedder{release: make(chan struct{})}
	close(emb.release)
	return emb
}

func indexedCount(t *testing.T, e *env) int64 {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), config.GetVectorDBPath(e.dataDir))
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	defer st.Close()
	n, err := st.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	return n
}

// startDaemon serves a daemon for e on a real socket and claims the PID lease
// for this process.
func startDaemon(t *testing.T, e *env, emb embedder.Embedder) *daemon.Server {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), config.GetVectorDBPath(e.dataDir))
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}

	tracker := progress.NewTracker()
	srv := daemon.NewServer(daemon.Options{RunDir: e.runDir, LockPath: e.lockPath()}, daemon.Deps{
		Store:   st,
		Indexer: newIndexer(e, st, emb, tracker),
		Tracker: tracker,
	})
	if err := daemon.WritePIDFile(e.runDir); err != nil {
		t.Fatalf("WritePIDFile() failed: %v", err)
	}
	ln, err := daemon.Listen(e.runDir)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
		srv.Wait()
		st.Close()
	})
	return srv
}

func TestRunIndex_NoDaemonIndexesInProcess(t *testing.T) {
	e, opened := newIndexEnv(t, releasedEmbedder())
	var out, errOut bytes.Buffer

	if err := runIndex(context.Background(), e, indexRequest{out: &out, errOut: &errOut}); err != nil {
		t.Fatalf("runIndex() failed: %v", err)
	}

	if opened.Load() != 1 {
		t.Errorf("runtime opened %d times, want 1", opened.Load())
	}
	if !strings.Contains(out.String(), "Indexed 1, skipped 0, removed 0, 0 errors") {
		t.Errorf("output missing last result: %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
	if n := indexedCount(t, e); n != 1 {
		t.Errorf("indexed %d files, want 1", n)
	}
}

func TestRunIndex_StalePIDFileIndexesInProcess(t *testing.T) {
	e, opened := newIndexEnv(t, releasedEmbedder())
	if err := os.WriteFile(daemon.PIDPath(e.runDir), []byte(strconv.Itoa(deadPID(t))+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer

	if err := runIndex(context.Background(), e, indexRequest{full: true, out: &out, errOut: &errOut}); err != nil {
		t.Fatalf("runIndex() failed: %v", err)
	}

	if opened.Load() != 1 {
		t.Errorf("runtime opened %d times, want 1", opened.Load())
	}
	if !strings.Contains(out.String(), "Indexed 1 files, 0 errors") {
		t.Errorf("output missing last result: %q", out.String())
	}
	if _, err := os.Stat(daemon.PIDPath(e.runDir)); !os.IsNotExist(err) {
		t.Error("stale PID file was not removed")
	}
}

func TestRunIndex_UnreachableDaemonFallsBack(t *testing.T) {
	skipIfWindows(t)

	e, opened := newIndexEnv(t, releasedEmbedder())
	// A live PID with no socket behind it.
	if err := daemon.WritePIDFile(e.runDir); err != nil {
		t.Fatalf("WritePIDFile() failed: %v", err)
	}
	var out, errOut bytes.Buffer

	if err := runIndex(context.Background(), e, indexRequest{out: &out, errOut: &errOut}); err != nil {
		t.Fatalf("runIndex() failed: %v", err)
	}

	if !strings.Contains(errOut.String(), "Daemon unavailable") {
		t.Errorf("stderr = %q, want the fallback notice", errOut.String())
	}
	if opened.Load() != 1 {
		t.Errorf("runtime opened %d times, want 1", opened.Load())
	}
	if n := indexedCount(t, e); n != 1 {
		t.Errorf("indexed %d files, want 1", n)
	}
}

func TestRunIndex_AttachesToDaemonRun(t *testing.T) {
	skipIfWindows(t)

	emb := gatedEmbedder{release: make(chan struct{})}
	e, opened := newIndexEnv(t, emb)
	srv := startDaemon(t, e, emb)

	if resp := srv.StartIndexing(false); !resp.Started {
		t.Fatalf("StartIndexing() = %+v", resp)
	}
	time.AfterFunc(300*time.Millisecond, func() { close(emb.release) })

	var out, errOut bytes.Buffer
	if err := runIndex(context.Background(), e, indexRequest{full: true, out: &out, errOut: &errOut}); err != nil {
		t.Fatalf("runIndex() failed: %v", err)
	}

	if !strings.Contains(out.String(), "Indexing already in progress") {
		t.Errorf("output = %q, want the already-running notice", out.String())
	}
	if !strings.Contains(out.String(), "Indexed 1, skipped 0, removed 0, 0 errors") {
		t.Errorf("output = %q, want the daemon run's last result", out.String())
	}
	if opened.Load() != 0 {
		t.Errorf("runtime opened %d times while the daemon was indexing", opened.Load())
	}
}

func TestRunIndex_DaemonRefusalDoesNotFallBack(t *testing.T) {
	skipIfWindows(t)

	e, opened := newIndexEnv(t, releasedEmbedder())
	startDaemon(t, e, releasedEmbedder())

	lock, err := fileutil.TryLock(e.lockPath())
	if err != nil {
		t.Fatalf("TryLock() failed: %v", err)
	}
	defer lock.Unlock()

	var out, errOut bytes.Buffer
	err = runIndex(context.Background(), e, indexRequest{out: &out, errOut: &errOut})
	if !errors.Is(err, errDaemonRefused) {
		t.Fatalf("runIndex() error = %v, want errDaemonRefused", err)
	}
	if opened.Load() != 0 {
		t.Errorf("runtime opened %d times after a refusal", opened.Load())
	}
}

func TestRunIndex_VectorSearchDisabled(t *testing.T) {
	e, opened := newIndexEnv(t, releasedEmbedder())
	e.cfg.VectorSearch.Enabled = false
	var out, errOut bytes.Buffer

	err := runIndex(context.Background(), e, indexRequest{out: &out, errOut: &errOut})
	if !errors.Is(err, errVectorSearchDisabled) {
		t.Fatalf("runIndex() error = %v, want errVectorSearchDisabled", err)
	}
	if opened.Load() != 0 {
		t.Errorf("runtime opened %d times while disabled", opened.Load())
	}
}

func TestCommands_RefuseWhenVectorSearchDisabled(t *testing.T) {
	t.Setenv("BURROW_CONFIG_DIR", t.TempDir())
	t.Setenv("BURROW_DATA_DIR", t.TempDir())
	t.Setenv("BURROW_RUNTIME_DIR", t.TempDir())
	t.Setenv("BURROW_VECTOR_SEARCH_ENABLED", "false")

	if err := runIndexCommand(context.Background(), false, true); !errors.Is(err, errVectorSearchDisabled) {
		t.Errorf("update error = %v, want errVectorSearchDisabled", err)
	}
	if err := runIndexFile(indexCmd, []string{"notes.txt"}); !errors.Is(err, errVectorSearchDisabled) {
		t.Errorf("index error = %v, want errVectorSearchDisabled", err)
	}
	if err := runWatch(watchCmd, nil); !errors.Is(err, errVectorSearchDisabled) {
		t.Errorf("watch error = %v, want errVectorSearchDisabled", err)
	}
}

func TestLocalRunner_VectorSearchDisabled(t *testing.T) {
	e := newTestEnv(t, t.TempDir())
	e.cfg.VectorSearch.Enabled = false
	runner, _ := newTestRunner(t, e, gatedEmbedder{release: make(chan struct{})})

	resp, err := runner.StartIndexer(context.Background(), false)
	if err != nil {
		t.Fatalf("StartIndexer() failed: %v", err)
	}
	if resp.Started || !resp.Refused() {
		t.Errorf("StartIndexer() = %+v, want a refusal", resp)
	}
	if p, _ := runner.Progress(context.Background()); p.Running {
		t.Error("tracker claimed while vector search is disabled")
	}
}
