package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/burrowapp/burrow/health"
	"github.com/burrowapp/burrow/indexer"
	"github.com/burrowapp/burrow/internal/fileutil"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

const (
	shutdownDelay   = 100 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// IndexRunner performs indexing runs. *indexer.Indexer satisfies it.
type IndexRunner interface {
	RunFull(ctx context.Context) (indexer.IndexStats, error)
	RunIncremental(ctx context.Context) (indexer.IndexStats, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type LaunchCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Deps are the components a Server answers for. History and Health may be nil.
type Deps struct {
	Store   store.VectorStore
	Indexer IndexRunner
	Tracker *progress.Tracker
	History LaunchCounter
	Health  HealthChecker
	Model   ModelInfo
}

type Options struct {
	RunDir  string
	Version string

	// LockPath is the indexer lock shared with in-process runs. Empty skips
	// locking.
	LockPath string

	// IndexingDisabled refuses every start request.
	IndexingDisabled bool
}

type Server struct {
	opts    Options
	deps    Deps
	started time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	runs       sync.WaitGroup
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

func NewServer(opts Options, deps Deps) *Server {
	if deps.Tracker == nil {
		deps.Tracker = progress.NewTracker()
	}
	runCtx, cancelRuns := context.WithCancel(context.Background())
	return &Server{
		opts:       opts,
		deps:       deps,
		started:    time.Now(),
		shutdownCh: make(chan struct{}),
		runCtx:     runCtx,
		cancelRuns: cancelRuns,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get(routeStatus, s.handleStatus)
	r.Post(routeShutdown, s.handleShutdown)
	r.Get(routeProgress, s.handleProgress)
	r.Post(routeStart, s.handleStart)
	r.Get(routeHealth, s.handleHealth)
	r.Get(routeStats, s.handleStats)
	r.Get(routeModels, s.handleModels)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	return r
}

// Shutdown asks a running Serve loop to stop. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Run claims the PID lease, listens on the runtime socket, and serves until
// ctx is canceled, SIGINT or SIGTERM arrives, or a shutdown request is
// received. Active runs are then canceled and waited for, so the lease is
// held for as long as this process writes the store. The socket and PID
// file are removed on return.
func (s *Server) Run(ctx context.Context) error {
	if err := WritePIDFile(s.opts.RunDir); err != nil {
		return err
	}
	defer func() {
		if err := RemovePIDFile(s.opts.RunDir); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()

	ln, err := Listen(s.opts.RunDir)
	if err != nil {
		return err
	}
	defer os.Remove(SocketPath(s.opts.RunDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	defer s.Shutdown()

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received %s, shutting down", sig)
			s.Shutdown()
		case <-StopChannel(s.opts.RunDir):
			log.Printf("Stop requested, shutting down")
			s.Shutdown()
		case <-s.shutdownCh:
		}
	}()

	log.Printf("Daemon listening on %s (PID %d)", ln.Addr(), os.Getpid())
	err = s.Serve(ctx, ln)

	s.cancelRuns()
	s.Wait()
	return err
}

// Listen removes a leftover socket in runDir and binds a fresh one.
func Listen(runDir string) (net.Listener, error) {
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	sock := SocketPath(runDir)
	if err := os.Remove(sock); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", sock, err)
	}
	if err := os.Chmod(sock, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return ln, nil
}

// Serve answers requests on ln until ctx is canceled or Shutdown is called.
// In-flight requests are allowed to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.shutdownCh:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down daemon server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	log.Printf("Daemon stopped")
	return err
}

// Wait blocks until every indexing run started by this server has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// StartIndexing claims the indexer lock and the tracker, then launches a run
// in the background. A refused request reports why in the response message.
func (s *Server) StartIndexing(full bool) StartResponse {
	if s.opts.IndexingDisabled {
		return StartResponse{Started: false, Message: msgIndexingDisabled}
	}

	var lock *fileutil.FileLock
	if s.opts.LockPath != "" {
		var err error
		lock, err = fileutil.TryLock(s.opts.LockPath)
		switch {
		case errors.Is(err, fileutil.ErrLocked):
			if s.deps.Tracker.Snapshot().Running {
				return StartResponse{Started: false, Message: msgAlreadyRunning}
			}
			return StartResponse{Started: false, Message: msgIndexerBusy}
		case err != nil:
			log.Printf("Failed to acquire indexer lock: %v", err)
			return StartResponse{Started: false, Message: fmt.Sprintf("Indexing failed: %v", err)}
		}
	}

	if _, ok := s.deps.Tracker.TryStart(); !ok {
		if lock != nil {
			lock.Unlock()
		}
		return StartResponse{Started: false, Message: msgAlreadyRunning}
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if lock != nil {
			defer lock.Unlock()
		}

		// The run outlives the request that started it and stops at the
		// next file once the server shuts down.
		ctx := s.runCtx
		var (
			stats indexer.IndexStats
			err   error
			mode  = "update"
		)
		if full {
			mode = "reindex"
			stats, err = s.deps.Indexer.RunFull(ctx)
		} else {
			stats, err = s.deps.Indexer.RunIncremental(ctx)
		}
		if err != nil {
			log.Printf("Indexer run (%s) failed: %v", mode, err)
			return
		}
		log.Printf("Indexer run (%s) complete: indexed=%d skipped=%d removed=%d errors=%d",
			mode, stats.Indexed, stats.Skipped, stats.Removed, stats.Errors)
	}()
	return StartResponse{Started: true, Message: msgIndexingStarted}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:    s.opts.Version,
		PID:        os.Getpid(),
		UptimeSecs: uint64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	log.Printf("Shutdown requested via API")
	writeJSON(w, http.StatusOK, struct{}{})
	time.AfterFunc(shutdownDelay, s.Shutdown)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Tracker.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, s.StartIndexing(req.Full))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		checker := health.NewChecker(nil, s.deps.Store, s.deps.Tracker, false)
		writeJSON(w, http.StatusOK, checker.Check(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Health.Check(r.Context()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := CollectStats(r.Context(), s.deps.Store, s.deps.History)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CollectStats reads the /stats figures from the store and, when history is
// non-nil, the launch history.
func CollectStats(ctx context.Context, st store.VectorStore, history LaunchCounter) (StatsResponse, error) {
	count, err := st.Count(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("failed to query indexed file count: %w", err)
	}

	last, err := st.MaxIndexedAt(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("failed to query last index time: %w", err)
	}

	var launches int64
	if history != nil {
		launches, err = history.Count(ctx)
		if err != nil {
			return StatsResponse{}, fmt.Errorf("failed to query launch count: %w", err)
		}
	}

	resp := StatsResponse{IndexedFiles: count, LaunchCount: launches}
	if last != nil {
		ts := last.UTC().Format(time.RFC3339)
		resp.LastIndexed = &ts
	}
	return resp, nil
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelsResponse{Embedding: s.deps.Model})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
