package fileutil

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// FileLock is an advisory, process-exclusive lock on a file.
type FileLock struct {
	f *os.File
}

// TryLock opens (creating if needed) the file at path and takes an exclusive
// lock without blocking. It returns ErrLocked when the lock is already held.
func TryLock(path string) (*FileLock, error) {
	if err := EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := tryLockExclusive(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &FileLock{f: f}, nil
}

// Unlock releases the lock and closes the file. The lock file stays on disk.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
