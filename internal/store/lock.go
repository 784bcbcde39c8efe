package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
)

// WriterLock guarantees a single writer per on-disk index across
// processes. The lock file lives next to the index directory as
// <index>.lock.
type WriterLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriterLock creates the lock for the index at indexPath.
func NewWriterLock(indexPath string) *WriterLock {
	lockPath := filepath.Clean(indexPath) + ".lock"
	return &WriterLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock takes the lock without blocking. A lock held by another process
// is reported as a retryable ERR_207_INDEX_LOCKED error.
func (l *WriterLock) TryLock() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return amerrors.New(amerrors.ErrCodeIndexLocked, "index is in use by another process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("close the other amanbib process using this library")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *WriterLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *WriterLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *WriterLock) IsLocked() bool { return l.locked }
