package manifest

import (
	"context"
	"fmt"
	"path/filepath"
)

// Verify compares the manifest at root/name with the current tree. Files
// are re-hashed only if the manifest recorded hashes.
func Verify(ctx context.Context, root, name string) (*ChangeSet, *Manifest, error) {
	m, err := ReadFile(filepath.Join(root, name))
	if err != nil {
		return nil, nil, err
	}

	hashed := false
	for _, e := range m.Entries {
		if e.Hash != "" {
			hashed = true
			break
		}
	}

	current, err := Scan(ctx, root, hashed, name, name+".tmp")
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return m.Index().Diff(current), m, nil
}
