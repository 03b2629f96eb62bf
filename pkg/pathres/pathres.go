// Package pathres canonicalizes paths by fully following symlink chains.
//
// Unlike filepath.EvalSymlinks, the number of symlinks followed is an
// explicit, configurable bound, and exceeding it yields a *LoopError.
package pathres

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxDepth matches the kernel's MAXSYMLINKS.
const DefaultMaxDepth = 40

var (
	// ErrNotFound is returned when a path component does not exist.
	ErrNotFound = errors.New("path does not exist")

	// ErrSymlinkLoop is returned when resolution follows more symlinks
	// than the resolver allows.
	ErrSymlinkLoop = errors.New("too many levels of symbolic links")
)

// LoopError reports the path whose resolution exceeded the bound.
type LoopError struct {
	Path  string
	Limit int
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("resolve %s: %v (limit %d)", e.Path, ErrSymlinkLoop, e.Limit)
}

func (e *LoopError) Unwrap() error { return ErrSymlinkLoop }

// Resolver resolves symlinks with a bounded number of hops.
type Resolver struct {
	MaxDepth int
}

// New returns a Resolver following at most maxDepth symlinks per path.
// A non-positive maxDepth selects DefaultMaxDepth.
func New(maxDepth int) Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return Resolver{MaxDepth: maxDepth}
}

// Resolve returns the absolute canonical form of path. Resolving an already
// canonical path returns it unchanged.
func (r Resolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	abs, err := Abs(path)
	if err != nil {
		return "", err
	}

	limit := r.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}

	resolved := string(filepath.Separator)
	rest := strings.TrimPrefix(abs, resolved)
	hops := 0

	for rest != "" {
		var comp string
		comp, rest, _ = strings.Cut(rest, string(filepath.Separator))

		switch comp {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, comp)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			if !info.IsDir() && rest != "" {
				return "", fmt.Errorf("resolve %s: %s is not a directory", path, next)
			}
			resolved = next
			continue
		}

		hops++
		if hops > limit {
			return "", &LoopError{Path: path, Limit: limit}
		}

		target, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		if filepath.IsAbs(target) {
			resolved = string(filepath.Separator)
			target = strings.TrimPrefix(target, resolved)
		}
		if rest == "" {
			rest = target
		} else {
			rest = target + string(filepath.Separator) + rest
		}
	}

	return resolved, nil
}

// Abs makes path absolute against the working directory without cleaning
// it. Lexical cleaning would fold "dir/.." before dir's symlink is
// followed, which the kernel does not do.
func Abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + string(filepath.Separator) + path, nil
}

// IsClean reports whether path is already in lexical canonical form, so
// that it names a location the same way with or without symlinks.
func IsClean(path string) bool {
	return filepath.Clean(path) == path
}

// Exists reports whether path names an existing file, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
