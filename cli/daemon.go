package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/health"
	"github.com/burrowapp/burrow/history"
	"github.com/burrowapp/burrow/progress"
)

var (
	daemonBackground bool
	daemonLogDir     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background indexing daemon",
	Long: `The daemon owns indexing for the launcher. It listens on a unix socket in
the runtime directory and accepts start, progress, health, and stats
requests. Only one daemon runs per user.

Default log directories:
  Linux:   ~/.local/state/burrow/logs/burrow-daemon.log (or $XDG_STATE_HOME)
  macOS:   ~/Library/Logs/burrow/burrow-daemon.log
  Windows: %LOCALAPPDATA%\burrow\logs\burrow-daemon.log`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonBackground, "background", false, "Detach and run in the background")
	daemonStartCmd.Flags().StringVar(&daemonLogDir, "log-dir", "", "Directory for log files (default: OS-specific)")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func resolveLogDir() (string, error) {
	if daemonLogDir != "" {
		return daemonLogDir, nil
	}
	logDir, err := daemon.GetDefaultLogDir()
	if err != nil {
		return "", fmt.Errorf("failed to get default log directory: %w", err)
	}
	return logDir, nil
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	if daemonBackground {
		logDir, err := resolveLogDir()
		if err != nil {
			return err
		}
		pid, err := startBackgroundDaemon(e, logDir)
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started (PID %d)\n", pid)
		fmt.Printf("Logs: %s\n", daemon.LogPath(logDir))
		fmt.Printf("\nUse 'burrow daemon status' to check status\n")
		fmt.Printf("Use 'burrow daemon stop' to stop the daemon\n")
		return nil
	}

	if daemon.IsBackground() {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		log.SetPrefix("[burrow-daemon] ")
	}

	return serveDaemon(cmd.Context(), e)
}

// serveDaemon runs the daemon in this process until it is told to stop.
func serveDaemon(ctx context.Context, e *env) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := initializeStore(ctx, e)
	if err != nil {
		return err
	}
	defer st.Close()

	// The daemon must come up without Ollama; the health endpoint reports it.
	emb, err := embedder.NewFromConfig(e.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer emb.Close()

	var launches daemon.LaunchCounter
	hist, err := history.Open(ctx, config.GetHistoryDBPath(e.dataDir))
	if err != nil {
		log.Printf("Warning: launch history unavailable: %v", err)
	} else {
		defer hist.Close()
		launches = hist
	}

	tracker := progress.NewTracker()
	idx := newIndexer(e, st, emb, tracker)

	pinger, _ := emb.(embedder.Pinger)
	srv := daemon.NewServer(daemon.Options{
		RunDir:           e.runDir,
		Version:          Version,
		LockPath:         e.lockPath(),
		IndexingDisabled: !e.cfg.VectorSearch.Enabled,
	}, daemon.Deps{
		Store:   st,
		Indexer: idx,
		Tracker: tracker,
		History: launches,
		Health:  health.NewChecker(pinger, st, tracker, e.cfg.HasAPIKey()),
		Model:   e.modelInfo(),
	})

	err = srv.Run(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return fmt.Errorf("%w\nUse 'burrow daemon stop' to stop it", err)
	}
	return err
}

// startBackgroundDaemon spawns a detached daemon and waits until it answers
// on its socket, exits, or the startup timeout passes.
func startBackgroundDaemon(e *env, logDir string) (int, error) {
	pid, err := daemon.GetRunningPID(e.runDir)
	if err != nil {
		return 0, fmt.Errorf("failed to check running status: %w", err)
	}
	if pid > 0 {
		return 0, fmt.Errorf("daemon is already running (PID %d)", pid)
	}

	childPID, exitCh, err := daemon.SpawnBackground(logDir, []string{"daemon", "start"})
	if err != nil {
		return 0, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile := daemon.LogPath(logDir)
	client := daemon.NewClient(daemon.SocketPath(e.runDir), time.Second)
	startupTimeout := time.Duration(e.cfg.Daemon.StartupTimeoutSecs) * time.Second
	const pollInterval = 100 * time.Millisecond
	deadline := time.Now().Add(startupTimeout)

	for time.Now().Before(deadline) {
		if _, err := client.Status(context.Background()); err == nil {
			return childPID, nil
		}

		// Detects a failed start immediately, unlike kill(0) which reports
		// zombies as alive.
		select {
		case <-exitCh:
			return 0, fmt.Errorf("background process failed to start (check logs at %s)", logFile)
		default:
		}

		time.Sleep(pollInterval)
	}

	return 0, fmt.Errorf("timeout waiting for daemon to become ready after %v (check logs at %s)", startupTimeout, logFile)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	pid, err := daemon.GetRunningPID(e.runDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	if pid == 0 {
		fmt.Println("No daemon is running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)
	client := daemon.NewClient(daemon.SocketPath(e.runDir), daemon.DefaultClientTimeout)
	if err := client.Shutdown(cmd.Context()); err != nil {
		log.Printf("Shutdown request failed (%v), signalling process", err)
		if err := daemon.StopProcess(pid); err != nil {
			return fmt.Errorf("failed to stop process: %w", err)
		}
	}

	const shutdownTimeout = 30 * time.Second
	const shutdownPollInterval = 250 * time.Millisecond
	deadline := time.Now().Add(shutdownTimeout)
	lastProgress := time.Now()

	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			break
		}
		if time.Since(lastProgress) >= 5*time.Second {
			fmt.Println("Waiting for graceful shutdown...")
			lastProgress = time.Now()
		}
		time.Sleep(shutdownPollInterval)
	}

	if daemon.IsProcessRunning(pid) {
		return fmt.Errorf("process did not stop within %v\nStill running? Try: kill -9 %d", shutdownTimeout, pid)
	}

	if err := daemon.RemovePIDFile(e.runDir); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	pid, err := daemon.GetRunningPID(e.runDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if pid == 0 {
		fmt.Println("Status: " + failStyle.Render("not running"))
		fmt.Printf("Runtime directory: %s\n", e.runDir)
		return nil
	}

	fmt.Println("Status: " + okStyle.Render("running"))
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Socket: %s\n", daemon.SocketPath(e.runDir))

	client := daemon.NewClient(daemon.SocketPath(e.runDir), daemon.DefaultClientTimeout)
	if st, err := client.Status(cmd.Context()); err == nil {
		fmt.Printf("Version: %s\n", st.Version)
		fmt.Printf("Uptime: %s\n", (time.Duration(st.UptimeSecs) * time.Second).String())
	} else {
		fmt.Println("Socket: " + failStyle.Render("not responding") + dimStyle.Render(fmt.Sprintf(" (%v)", err)))
	}
	if line := memoryLine(pid); line != "" {
		fmt.Println(line)
	}
	if p, err := client.Progress(cmd.Context()); err == nil {
		fmt.Println("Indexer: " + progressLine(p))
	}
	return nil
}

// memoryLine reports the resident memory of pid, or "" when unavailable.
func memoryLine(pid int) string {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return ""
	}
	return fmt.Sprintf("Memory: %.1f MiB RSS", float64(mem.RSS)/(1024*1024))
}
