package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
)

// DirLock guards the data directory against concurrent writers. Two
// ingest runs on the same index corrupt the derived stores, so writers
// take an exclusive cross-process lock first. Read-only queries go
// through WAL and do not take the lock.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given data directory. The lock
// file lives at <dir>/.ingest.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".ingest.lock")
	return &DirLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock attempts a non-blocking exclusive lock. A held lock returns
// a retryable store error naming the lock file.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return stamerrors.Wrap(err, stamerrors.ErrCodeStoreOpen, "create lock directory")
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return stamerrors.Wrap(err, stamerrors.ErrCodeStoreLocked, "acquire index lock")
	}
	if !acquired {
		return stamerrors.New(stamerrors.ErrCodeStoreLocked,
			fmt.Sprintf("another ingest holds %s", l.path))
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return stamerrors.Wrap(err, stamerrors.ErrCodeStoreLocked, "release index lock")
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *DirLock) IsLocked() bool { return l.locked }
