package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/indexer"
	"github.com/burrowapp/burrow/progress"
)

var (
	reindexQuiet bool
	updateQuiet  bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Clear the index and re-embed every file",
	Long: `Clear the vector index and embed every indexable file under the
configured directories.

When the daemon is running the run happens there and this command follows
its progress; otherwise the indexer runs in this process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexCommand(cmd.Context(), true, reindexQuiet)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Index new and modified files and drop deleted ones",
	Long: `Run an incremental index: files whose modification time changed since
they were last embedded are re-embedded, new files are added, and entries
for deleted or excluded files are removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexCommand(cmd.Context(), false, updateQuiet)
	},
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexQuiet, "quiet", "q", false, "Suppress progress output")
	updateCmd.Flags().BoolVarP(&updateQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.AddCommand(reindexCmd, updateCmd)
}

// trackerSource reads progress straight from an in-process tracker.
type trackerSource struct {
	tracker *progress.Tracker
}

func (s trackerSource) Progress(context.Context) (progress.Progress, error) {
	return s.tracker.Snapshot(), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// errDaemonRefused is returned when the daemon declines a start request and
// no run is in progress to follow.
var errDaemonRefused = errors.New("daemon did not start indexing")

// indexRequest is one reindex or update invocation.
type indexRequest struct {
	full   bool
	quiet  bool
	out    io.Writer
	errOut io.Writer
}

func runIndexCommand(parent context.Context, full, quiet bool) error {
	ctx, stop := signalContext(parent)
	defer stop()

	e, err := loadEnv()
	if err != nil {
		return err
	}

	return runIndex(ctx, e, indexRequest{full: full, quiet: quiet, out: os.Stdout, errOut: os.Stderr})
}

// runIndex hands the run to the daemon when one is running and falls back
// to indexing in this process when it cannot be reached.
func runIndex(ctx context.Context, e *env, req indexRequest) error {
	if err := e.requireVectorSearch(); err != nil {
		return err
	}

	client, err := e.daemonClient()
	if err != nil {
		return err
	}
	if client != nil {
		final, err := indexViaDaemon(ctx, client, req)
		switch {
		case err == nil:
			if !req.quiet {
				fmt.Fprintln(req.out, okStyle.Render("✓ ")+final.LastResult)
			}
			return nil
		case errors.Is(err, errDaemonRefused):
			return err
		case ctx.Err() != nil:
			fmt.Fprintln(req.errOut, "Stopped following progress; the daemon keeps indexing")
			return ctx.Err()
		default:
			fmt.Fprintf(req.errOut, "Daemon unavailable (%v), indexing in-process\n", err)
		}
	}

	return indexInProcess(ctx, e, req)
}

// indexViaDaemon starts a run in the daemon, or attaches to the one already
// in progress, and follows it until it finishes.
func indexViaDaemon(ctx context.Context, client *daemon.Client, req indexRequest) (progress.Progress, error) {
	resp, err := client.StartIndexer(ctx, req.full)
	if err != nil {
		return progress.Progress{}, fmt.Errorf("%w: %v", daemon.ErrDaemonUnreachable, err)
	}
	if resp.Refused() {
		return progress.Progress{}, fmt.Errorf("%w: %s", errDaemonRefused, resp.Message)
	}
	if !req.quiet && !resp.Started {
		fmt.Fprintln(req.out, resp.Message)
	}

	return daemon.WaitForIndexer(ctx, client, daemon.WaitOptions{
		OnChange: progressPrinter(req.out, req.quiet),
	})
}

func indexInProcess(ctx context.Context, e *env, req indexRequest) error {
	lock, err := acquireIndexerLock(e)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	rt, err := e.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Claim the tracker before the run starts so the poller sees running=true.
	rt.tracker.TryStart()

	var (
		stats  indexer.IndexStats
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		if req.full {
			stats, runErr = rt.indexer.RunFull(ctx)
		} else {
			stats, runErr = rt.indexer.RunIncremental(ctx)
		}
	}()

	if !req.quiet {
		// Returns on completion or cancellation; the run itself stops at the
		// next file once ctx is done.
		_, _ = daemon.WaitForIndexer(ctx, trackerSource{rt.tracker}, daemon.WaitOptions{
			OnChange: progressPrinter(req.out, false),
		})
	}
	<-done

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("indexing interrupted")
		}
		return runErr
	}
	if !req.quiet {
		fmt.Fprintln(req.out, okStyle.Render("✓ ")+rt.tracker.Snapshot().LastResult)
		if stats.Errors > 0 {
			fmt.Fprintln(req.out, dimStyle.Render("Some files failed to index; see the log output above for details"))
		}
	}
	return nil
}

func progressPrinter(w io.Writer, quiet bool) func(progress.Progress) {
	if quiet {
		return nil
	}
	return func(p progress.Progress) {
		if !p.Running {
			fmt.Fprint(w, "\r\033[K")
			return
		}
		fmt.Fprint(w, "\r\033[K"+progressLine(p))
	}
}
