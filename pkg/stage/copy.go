// Package stage copies files into an output tree that mirrors their
// absolute source paths, and guards that tree against concurrent runs.
package stage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/sobundle/internal/log"
)

// Stats counts what a Copier did.
type Stats struct {
	Copied    int   // files whose bytes were written
	Unchanged int   // files skipped as byte-identical
	Bytes     int64 // bytes written
}

// Copier places files at Root joined with their absolute source path.
// It is not safe for concurrent use.
type Copier struct {
	Root  string
	stats Stats
}

// NewCopier returns a Copier rooted at the absolute form of root.
func NewCopier(root string) (*Copier, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	return &Copier{Root: abs}, nil
}

// Destination returns where src lands under the output root.
func (c *Copier) Destination(src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Root, abs), nil
}

// Stats returns the counters accumulated so far.
func (c *Copier) Stats() Stats {
	return c.stats
}

// Copy copies the contents of src (following symlinks) to its destination.
// Missing parent directories are created. An existing byte-identical
// destination is left untouched and copied is false.
func (c *Copier) Copy(src string) (dest string, copied bool, err error) {
	dest, err = c.Destination(src)
	if err != nil {
		return "", false, err
	}
	logger := log.Component("stage")

	info, err := os.Lstat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return dest, false, err
	case info.IsDir():
		return dest, false, fmt.Errorf("copy %s: destination %s is a directory", src, dest)
	case info.Mode().IsRegular():
		same, err := SameContent(src, dest)
		if err != nil {
			return dest, false, fmt.Errorf("compare %s: %w", src, err)
		}
		if same {
			c.stats.Unchanged++
			logger.Debug("unchanged", "src", src, "dest", dest)
			return dest, false, nil
		}
	}

	n, err := copyFile(src, dest)
	if err != nil {
		return dest, false, fmt.Errorf("copy %s: %w", src, err)
	}
	c.stats.Copied++
	c.stats.Bytes += n
	logger.Debug("copied", "src", src, "dest", dest, "bytes", n)
	return dest, true, nil
}

// copyFile writes src to a temporary sibling of dest and renames it into
// place, so an interrupted copy never leaves a truncated destination.
func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	n, err := io.Copy(tmp, in)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return 0, err
	}
	return n, nil
}
