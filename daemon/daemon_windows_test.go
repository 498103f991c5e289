//go:build windows
// +build windows

package daemon

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func TestStopProcessWritesStopFile(t *testing.T) {
	runDir := t.TempDir()
	t.Setenv("BURROW_RUNTIME_DIR", runDir)
	pid := os.Getpid()

	if err := StopProcess(pid); err != nil {
		t.Fatalf("StopProcess() error: %v", err)
	}

	if _, err := os.Stat(stopFilePath(runDir, pid)); os.IsNotExist(err) {
		t.Fatal("stop file was not created")
	}
}

func TestStopChannelDetectsStopFile(t *testing.T) {
	runDir := t.TempDir()
	path := stopFilePath(runDir, os.Getpid())

	ch := StopChannel(runDir)

	select {
	case <-ch:
		t.Fatal("StopChannel fired before stop file was written")
	case <-time.After(100 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		t.Fatalf("failed to write stop file: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("StopChannel did not fire after stop file was written")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("stop file was not removed after detection")
	}
}

func TestStopChannelCleansStaleFile(t *testing.T) {
	runDir := t.TempDir()
	path := stopFilePath(runDir, os.Getpid())
	if err := os.WriteFile(path, []byte("stale\n"), 0600); err != nil {
		t.Fatalf("failed to write stale stop file: %v", err)
	}

	ch := StopChannel(runDir)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("stale stop file was not cleaned up on init")
	}

	select {
	case <-ch:
		t.Fatal("StopChannel should not fire after cleaning stale file")
	case <-time.After(stopPollInterval + 200*time.Millisecond):
	}
}
