// Package lock provides the exclusive run lock for the clustering pipeline.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock guards a pipeline run with an OS-level file lock. The lock is
// advisory and released automatically if the process dies, so a crashed
// run never blocks the next one.
type FileLock struct {
	fl *flock.Flock
}

// New creates a file lock at the given path, creating parent directories
// as needed.
func New(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &FileLock{fl: flock.New(path)}, nil
}

// TryLock attempts to acquire the lock without blocking. Returns false
// when another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.fl.Unlock()
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.fl.Path()
}
