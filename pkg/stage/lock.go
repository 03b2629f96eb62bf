package stage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another run holds the output tree.
var ErrLocked = errors.New("output directory is in use by another run")

// Lock is an exclusive advisory lock on an output tree. The lock file sits
// next to the tree (root + ".lock") so it never appears inside it.
type Lock struct {
	f *os.File
}

// LockPath returns the lock file guarding root.
func LockPath(root string) string {
	return filepath.Clean(root) + ".lock"
}

// Acquire takes the lock for root without blocking.
func Acquire(root string) (*Lock, error) {
	path := LockPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release drops the lock. The lock file is left in place: removing it
// would let a waiting run lock an orphaned inode.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
