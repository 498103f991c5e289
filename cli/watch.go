package cli

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/watcher"
)

var (
	watchInterval time.Duration
	watchNoWatch  bool
	watchNoDaemon bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index fresh in the foreground",
	Long: `Run the host indexing loop in this process.

The loop will:
- Run an incremental pass at startup and then every indexer.interval_hours
- Skip unchanged files by comparing modification times
- Remove vectors of files that disappeared from the index directories
- Apply file changes between passes (create, modify, delete, rename) when
  indexer.watch_changes is enabled, debounced by indexer.debounce_ms

When daemon.auto_start is set and no daemon is running, a background daemon
is started first so the launcher can query progress and health.

Press Ctrl-C to stop. A pass in flight stops at the next file.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Time between incremental passes (default: indexer.interval_hours)")
	watchCmd.Flags().BoolVar(&watchNoWatch, "no-watch", false, "Disable file change detection between passes")
	watchCmd.Flags().BoolVar(&watchNoDaemon, "no-daemon", false, "Do not auto-start the background daemon")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	e, err := loadEnv()
	if err != nil {
		return err
	}
	if err := e.requireVectorSearch(); err != nil {
		return err
	}

	if e.cfg.Daemon.AutoStart && !watchNoDaemon {
		ensureDaemon(e)
	}

	lock, err := acquireIndexerLock(e)
	if err != nil {
		if errors.Is(err, errIndexerBusy) {
			return fmt.Errorf("%w (is another 'burrow watch' running?)", err)
		}
		return err
	}
	defer lock.Unlock()

	rt, err := e.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	interval := watchInterval
	if interval <= 0 {
		interval = time.Duration(e.cfg.Indexer.IntervalHours) * time.Hour
	}

	host := watcher.NewHost(rt.indexer, watcher.HostOptions{
		Interval:   interval,
		Watch:      e.cfg.Indexer.WatchChanges && !watchNoWatch,
		DebounceMs: e.cfg.Indexer.DebounceMs,
	})

	log.Printf("Watching %d directories, pass every %v", len(rt.indexer.Scanner().Roots()), interval)
	if err := host.Run(ctx); err != nil {
		return fmt.Errorf("host loop failed: %w", err)
	}
	log.Println("Stopped")
	return nil
}

// ensureDaemon starts a background daemon when none is running. Failures are
// logged; the host loop does not depend on the daemon.
func ensureDaemon(e *env) {
	client, err := e.daemonClient()
	if err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	if client != nil {
		return
	}

	logDir, err := resolveLogDir()
	if err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	pid, err := startBackgroundDaemon(e, logDir)
	if err != nil {
		log.Printf("Warning: daemon auto-start failed: %v", err)
		return
	}
	log.Printf("Daemon started (PID %d)", pid)
}
