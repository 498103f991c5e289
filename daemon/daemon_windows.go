//go:build windows
// +build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	stopFilePrefix   = "burrow-stop-"
	stopPollInterval = 500 * time.Millisecond
)

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// livenessCheck polls on Windows since ExtraFiles is not supported.
type livenessCheck struct{}

func newLivenessCheck() (*livenessCheck, error) {
	return &livenessCheck{}, nil
}

func (l *livenessCheck) configureCmd(cmd *exec.Cmd) {}

func (l *livenessCheck) start(pid int) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for {
			time.Sleep(250 * time.Millisecond)
			if !IsProcessRunning(pid) {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (l *livenessCheck) cleanup() {}

func stopFilePath(runDir string, pid int) string {
	return filepath.Join(runDir, fmt.Sprintf("%s%d", stopFilePrefix, pid))
}

// StopProcess writes a sentinel stop file that the daemon polls for.
// os.Interrupt cannot be delivered across consoles on Windows.
func StopProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if !IsProcessRunning(pid) {
		return fmt.Errorf("process %d is not running", pid)
	}

	runDir, err := GetRuntimeDir()
	if err != nil {
		return fmt.Errorf("failed to determine runtime directory: %w", err)
	}
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	path := stopFilePath(runDir, pid)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0600); err != nil {
		return fmt.Errorf("failed to write stop file: %w", err)
	}
	return nil
}

// StopChannel returns a channel that is closed when a stop file for this
// process appears in runDir. A leftover file from a reused PID is removed.
func StopChannel(runDir string) <-chan struct{} {
	ch := make(chan struct{})
	path := stopFilePath(runDir, os.Getpid())
	_ = os.Remove(path)

	go func() {
		for {
			time.Sleep(stopPollInterval)
			if _, err := os.Stat(path); err == nil {
				_ = os.Remove(path)
				close(ch)
				return
			}
		}
	}()
	return ch
}
