// Package lock is a single-instance guard scoped to one target directory,
// so two concurrent "hfd" invocations writing into the same repo
// directory don't race each other's chunk files. Grounded on a
// gofrs/flock TryLock pattern, rescoped from one process-wide daemon lock
// to one lock per download destination — this CLI has no daemon to be the
// sole instance of, but it does have a directory that must not be written
// by two runs at once.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock holds a single-instance lock on one target directory.
type DirLock struct {
	flock *flock.Flock
	path  string
}

// Acquire tries to lock targetDir via a ".hfd.lock" file inside it. It returns
// ok=false (no error) if another hfd process already holds it.
func Acquire(targetDir string) (lock *DirLock, ok bool, err error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, false, fmt.Errorf("creating target directory: %w", err)
	}

	lockPath := filepath.Join(targetDir, ".hfd.lock")
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &DirLock{flock: fileLock, path: lockPath}, true, nil
}

// Release unlocks and removes the lock file.
func (l *DirLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}
