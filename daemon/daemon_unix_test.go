//go:build !windows
// +build !windows

package daemon

import (
	"testing"
	"time"
)

func TestLivenessCheckStart_ClosesOnReadError(t *testing.T) {
	l, err := newLivenessCheck()
	if err != nil {
		t.Fatalf("newLivenessCheck failed: %v", err)
	}
	defer l.cleanup()

	ch := l.start(0)

	// Force a read error path by closing the read end from the test side.
	if err := l.pr.Close(); err != nil {
		t.Fatalf("failed to close read pipe: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for liveness channel to close")
	}
}

func TestIsProcessRunning_PermissionDeniedCountsAsAlive(t *testing.T) {
	// PID 1 belongs to root; unprivileged callers get EPERM.
	if !IsProcessRunning(1) {
		t.Error("IsProcessRunning(1) = false, want true")
	}
}

func TestStopChannelNeverFires(t *testing.T) {
	select {
	case <-StopChannel(t.TempDir()):
		t.Fatal("StopChannel fired on Unix")
	case <-time.After(50 * time.Millisecond):
	}
}
