// Package daemon runs the single background indexing process and talks to it.
//
// One daemon may run per runtime directory. It owns a PID file and a unix
// socket in that directory and answers JSON requests over HTTP on the socket.
//
// # Basic Usage
//
// Start a background daemon:
//
//	logDir, _ := daemon.GetDefaultLogDir()
//	pid, exitCh, err := daemon.SpawnBackground(logDir, []string{"daemon", "start"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// exitCh is closed if the child exits, which detects early failures.
//
// Check whether a daemon is running:
//
//	runDir, _ := daemon.GetRuntimeDir()
//	pid, err := daemon.GetRunningPID(runDir)
//	if pid > 0 {
//	    client := daemon.NewClient(daemon.SocketPath(runDir), 0)
//	    status, _ := client.Status(ctx)
//	}
//
// # PID File Format
//
// The PID file contains a single line with the process ID as a decimal
// integer. It is created exclusively, so it doubles as the singleton lease.
//
// # Platform Support
//
// Process liveness and stop signalling are implemented in daemon_unix.go and
// daemon_windows.go.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	pidFileName    = "burrow.pid"
	socketFileName = "burrow.sock"
	logFileName    = "burrow-daemon.log"

	// BackgroundEnv is set to "1" in the environment of a spawned daemon.
	BackgroundEnv = "BURROW_BACKGROUND"
)

// ErrAlreadyRunning is returned when a live daemon already holds the lease.
var ErrAlreadyRunning = errors.New("daemon already running")

// GetRuntimeDir returns the directory holding the PID file and socket.
//
// BURROW_RUNTIME_DIR overrides the default of $XDG_RUNTIME_DIR/burrow, with
// ~/.local/share/burrow/run as fallback when XDG_RUNTIME_DIR is unset.
func GetRuntimeDir() (string, error) {
	if dir := os.Getenv("BURROW_RUNTIME_DIR"); dir != "" {
		return dir, nil
	}
	if base := os.Getenv("XDG_RUNTIME_DIR"); base != "" {
		return filepath.Join(base, "burrow"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "burrow", "run"), nil
}

// GetDefaultLogDir returns the OS-specific default log directory.
//
// Platform-specific defaults:
//   - Linux:   $XDG_STATE_HOME/burrow/logs or ~/.local/state/burrow/logs
//   - macOS:   ~/Library/Logs/burrow
//   - Windows: %LOCALAPPDATA%\burrow\logs
//
// The directory may not exist yet.
func GetDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "burrow"), nil
	case "windows":
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "burrow", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", "burrow", "logs"), nil
	default:
		if base := os.Getenv("XDG_STATE_HOME"); base != "" {
			return filepath.Join(base, "burrow", "logs"), nil
		}
		return filepath.Join(homeDir, ".local", "state", "burrow", "logs"), nil
	}
}

func SocketPath(runDir string) string {
	return filepath.Join(runDir, socketFileName)
}

func PIDPath(runDir string) string {
	return filepath.Join(runDir, pidFileName)
}

func LogPath(logDir string) string {
	return filepath.Join(logDir, logFileName)
}

// IsBackground reports whether this process was started by SpawnBackground.
func IsBackground() bool {
	return os.Getenv(BackgroundEnv) == "1"
}

// WritePIDFile claims the singleton lease by creating the PID file
// exclusively. If the file exists and names a live process other than this
// one, ErrAlreadyRunning is returned. A stale file is removed and the create
// is retried once.
func WritePIDFile(runDir string) error {
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	pidPath := PIDPath(runDir)
	for attempt := 0; ; attempt++ {
		err := createPIDFile(pidPath)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to write PID file: %w", err)
		}

		pid, readErr := ReadPIDFile(runDir)
		if readErr == nil && pid == os.Getpid() {
			return nil
		}
		if readErr == nil && IsProcessRunning(pid) {
			return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
		}
		if attempt > 0 {
			return fmt.Errorf("failed to replace stale PID file %s", pidPath)
		}
		if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}
}

func createPIDFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ReadPIDFile reads the process ID from the PID file in runDir.
//
// Return values:
//   - (0, nil):     No PID file exists
//   - (pid, nil):   PID file exists and contains a valid process ID
//   - (0, error):   PID file exists but is corrupt or unreadable
//
// It does not check whether the process is alive; see GetRunningPID.
func ReadPIDFile(runDir string) (int, error) {
	data, err := os.ReadFile(PIDPath(runDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func RemovePIDFile(runDir string) error {
	if err := os.Remove(PIDPath(runDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetRunningPID returns the PID of the live daemon, or 0 if none is running.
// A PID file naming a dead process is removed, along with its socket. A
// corrupt PID file is treated as stale.
func GetRunningPID(runDir string) (int, error) {
	pid, err := ReadPIDFile(runDir)
	if err != nil {
		_ = RemovePIDFile(runDir)
		return 0, nil
	}
	if pid == 0 {
		return 0, nil
	}

	if !IsProcessRunning(pid) {
		_ = RemovePIDFile(runDir)
		_ = os.Remove(SocketPath(runDir))
		return 0, nil
	}
	return pid, nil
}

// SpawnBackground re-executes the current binary as a detached process with
// stdout and stderr appended to the daemon log in logDir and BackgroundEnv
// set. The returned channel is closed when the child exits.
func SpawnBackground(logDir string, args []string) (int, <-chan struct{}, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(LogPath(logDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	liveness, err := newLivenessCheck()
	if err != nil {
		logFile.Close()
		return 0, nil, err
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), BackgroundEnv+"=1")
	cmd.SysProcAttr = sysProcAttr()
	liveness.configureCmd(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		liveness.cleanup()
		return 0, nil, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile.Close()
	exitCh := liveness.start(cmd.Process.Pid)

	return cmd.Process.Pid, exitCh, nil
}
