// Package closure computes the transitive shared-library closure of a
// binary and stages every file of it into an output tree.
//
// The walk is depth-first over canonical paths, in the order the dependency
// lister reports them, using an explicit stack. Each canonical path is
// extracted at most once per run. Any fatal error aborts the whole run:
// a bundle missing one real dependency is unusable.
package closure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/sobundle/internal/log"
	"github.com/albertocavalcante/sobundle/pkg/elfclass"
	"github.com/albertocavalcante/sobundle/pkg/ldd"
	"github.com/albertocavalcante/sobundle/pkg/pathres"
)

// Extractor lists the raw dependency lines of a canonical binary path.
type Extractor interface {
	Extract(ctx context.Context, canonical string) (ldd.Result, error)
}

// Resolver canonicalizes a path.
type Resolver interface {
	Resolve(path string) (string, error)
}

// Copier stages a source file and reports its destination.
type Copier interface {
	Copy(src string) (dest string, copied bool, err error)
}

// Missing is a dependency the walk skipped because it names no file on
// disk. It is recoverable.
type Missing struct {
	From   string `json:"from"`           // canonical path of the binary that requires it
	Name   string `json:"name"`           // soname or path as reported
	Path   string `json:"path,omitempty"` // resolved path, empty for "not found"
	Reason string `json:"reason"`
}

// Report describes a completed walk.
type Report struct {
	Input     string    // absolute input path
	Visited   []string  // canonical paths in visit order
	Files     []string  // staged destination paths, sorted
	Static    []string  // canonical paths treated as static leaves
	Excluded  []string  // canonical paths skipped by an exclude pattern
	Missing   []Missing // recoverable misses, in discovery order
	Copied    int       // files whose bytes were written
	Unchanged int       // files skipped as byte-identical
}

// Walker wires the components of a closure run. A Walker may run many
// times; each Run gets a fresh Registry.
type Walker struct {
	Inspector elfclass.Inspector
	Extractor Extractor
	Resolver  Resolver
	Copier    Copier

	// Exclude holds doublestar patterns matched against canonical
	// dependency paths. The input itself is never excluded.
	Exclude []string
}

// run holds the per-invocation state.
type run struct {
	w        *Walker
	registry *Registry
	aliases  map[string]bool // raw paths already staged
	excluded map[string]bool // canonical paths matched by Exclude
	files    map[string]bool
	report   *Report
}

// Run computes the closure of input and stages it. On error the returned
// report is nil; files already staged stay in place.
func (w *Walker) Run(ctx context.Context, input string) (*Report, error) {
	abs, err := pathres.Abs(input)
	if err != nil {
		return nil, fatal(input, err)
	}
	if err := w.validate(abs); err != nil {
		return nil, err
	}

	r := &run{
		w:        w,
		registry: NewRegistry(),
		aliases:  make(map[string]bool),
		excluded: make(map[string]bool),
		files:    make(map[string]bool),
		report:   &Report{Input: abs},
	}

	stack := []string{abs}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := r.visit(ctx, path, path == abs)
		if err != nil {
			return nil, err
		}
		// Reverse push keeps depth-first order equal to reported order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	r.report.Files = slices.Sorted(maps.Keys(r.files))
	log.Component("closure").Info("closure complete",
		"input", abs, "canonical_paths", r.registry.Len(), "files", len(r.report.Files))
	return r.report, nil
}

// validate rejects inputs that do not exist or are not ELF binaries.
func (w *Walker) validate(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fatal(path, ErrNotFound)
		}
		return fatal(path, err)
	}
	kind, err := w.Inspector.Classify(path)
	if err != nil {
		if errors.Is(err, elfclass.ErrNotFound) {
			return fatal(path, ErrNotFound)
		}
		return fatal(path, err)
	}
	if kind == elfclass.NotABinary {
		return fatal(path, ErrNotABinary)
	}
	log.Component("closure").Info("input classified", "path", path, "kind", kind)
	return nil
}

// visit processes one node and returns the dependency paths to walk next.
func (r *run) visit(ctx context.Context, path string, isInput bool) ([]string, error) {
	logger := log.Component("closure")

	canonical, err := r.w.Resolver.Resolve(path)
	if err != nil {
		if errors.Is(err, pathres.ErrNotFound) && isInput {
			err = ErrNotFound
		}
		return nil, fatal(path, err)
	}

	if r.registry.Contains(canonical) {
		// A new alias of a known library still has to exist in the tree.
		if path != canonical && pathres.IsClean(path) && !r.aliases[path] && !r.excluded[canonical] {
			if err := r.stage(path); err != nil {
				return nil, err
			}
			r.aliases[path] = true
		}
		logger.Debug("already visited", "path", path, "canonical", canonical)
		return nil, nil
	}
	r.registry.MarkVisited(canonical)
	r.report.Visited = append(r.report.Visited, canonical)

	if !isInput && r.matchesExclude(canonical) {
		logger.Info("excluded", "path", canonical)
		r.excluded[canonical] = true
		r.report.Excluded = append(r.report.Excluded, canonical)
		return nil, nil
	}

	logger.Debug("visit", "path", path, "canonical", canonical)
	if err := r.stage(canonical); err != nil {
		return nil, err
	}
	// A raw path with "." or ".." is no file name of its own; only its
	// canonical form is staged.
	if path != canonical && pathres.IsClean(path) {
		if err := r.stage(path); err != nil {
			return nil, err
		}
		r.aliases[path] = true
	}

	res, err := r.w.Extractor.Extract(ctx, canonical)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fatal(canonical, err)
	}
	if res.Static {
		r.report.Static = append(r.report.Static, canonical)
		return nil, nil
	}

	var children []string
	for _, line := range res.Lines {
		switch e := ldd.ParseLine(line).(type) {
		case ldd.Edge:
			if !pathres.Exists(e.Path) {
				logger.Warn("dependency file missing, skipping", "from", canonical, "name", e.Name, "path", e.Path)
				r.report.Missing = append(r.report.Missing, Missing{
					From: canonical, Name: e.Name, Path: e.Path, Reason: "file does not exist",
				})
				continue
			}
			children = append(children, e.Path)
		case ldd.Skip:
			switch e.Reason {
			case ldd.SkipNotFound:
				logger.Warn("loader could not resolve dependency, skipping", "from", canonical, "name", e.Name)
				r.report.Missing = append(r.report.Missing, Missing{
					From: canonical, Name: e.Name, Reason: e.Reason.String(),
				})
			case ldd.SkipStatic:
				logger.Info("statically linked, no dependencies", "path", canonical)
				r.report.Static = append(r.report.Static, canonical)
			case ldd.SkipBlank:
			default:
				logger.Debug("skipping ldd line", "from", canonical, "reason", e.Reason, "line", e.Raw)
			}
		}
	}
	return children, nil
}

func (r *run) stage(src string) error {
	dest, copied, err := r.w.Copier.Copy(src)
	if err != nil {
		return fatal(src, fmt.Errorf("stage: %w", err))
	}
	if !r.files[dest] {
		r.files[dest] = true
		if copied {
			r.report.Copied++
		} else {
			r.report.Unchanged++
		}
	}
	return nil
}

func (r *run) matchesExclude(canonical string) bool {
	for _, pattern := range r.w.Exclude {
		if ok, _ := doublestar.Match(pattern, canonical); ok {
			return true
		}
	}
	return false
}
