package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/sobundle/internal/log"
)

// Writer produces the manifest of an output tree.
type Writer struct {
	Root   string
	Name   string // file name inside Root
	Hashes bool

	// ExecDirs are probed for the main executable. Empty disables the probe.
	ExecDirs []string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Path returns where the manifest is written.
func (w *Writer) Path() string {
	return filepath.Join(w.Root, w.Name)
}

func (w *Writer) tmpName() string {
	return w.Name + ".tmp"
}

// Build lists the tree and returns the manifest without writing it.
func (w *Writer) Build(ctx context.Context, source string) (*Manifest, error) {
	idx, err := Scan(ctx, w.Root, w.Hashes, w.Name, w.tmpName())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.Root, err)
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	m := &Manifest{
		Source:    source,
		Generated: now().UTC().Truncate(time.Second),
		Entries:   idx.Sorted(),
	}

	if len(w.ExecDirs) > 0 {
		exe, err := FindMainExecutable(w.Root, w.ExecDirs)
		switch {
		case err == nil:
			m.MainExecutable = exe
		case errors.Is(err, ErrNoMainExecutable):
			log.Component("manifest").Debug("no main executable found", "root", w.Root)
		default:
			return nil, err
		}
	}
	return m, nil
}

// Write builds the manifest and writes it atomically to Path. Nothing else
// in the tree is touched.
func (w *Writer) Write(ctx context.Context, source string) (*Manifest, error) {
	m, err := w.Build(ctx, source)
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(w.Root, w.tmpName())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	if err := m.Encode(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, w.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename manifest: %w", err)
	}

	log.Component("manifest").Info("manifest written", "path", w.Path(), "entries", len(m.Entries))
	return m, nil
}
