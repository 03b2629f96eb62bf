package manifest

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/albertocavalcante/sobundle/pkg/stage"
)

// Scan walks root and indexes every non-directory, skipping the names in
// skip at the top level. Paths are recorded with a leading slash. When
// hash is false entries carry no hash.
func Scan(ctx context.Context, root string, hash bool, skip ...string) (*Index, error) {
	idx := NewIndex()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		for _, name := range skip {
			if rel == name {
				return nil
			}
		}

		e := Entry{Path: "/" + filepath.ToSlash(rel)}
		if hash {
			h, err := stage.HashFile(path)
			if err != nil {
				return err
			}
			e.Hash = h
		}
		idx.Add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
