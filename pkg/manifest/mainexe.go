package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// DefaultExecDirs are the conventional executable directories, probed in
// this order.
var DefaultExecDirs = []string{"/usr/bin", "/bin", "/usr/local/bin"}

// ErrNoMainExecutable means no probed directory holds an executable file.
var ErrNoMainExecutable = errors.New("no main executable found")

// FindMainExecutable returns the rooted path of the first regular file with
// an execute bit set, probing execDirs in order and each directory's
// entries in name order. The result is deterministic for a given tree.
func FindMainExecutable(root string, execDirs []string) (string, error) {
	for _, dir := range execDirs {
		entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(dir)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return "", err
			}
			if info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
				return path.Join("/", dir, e.Name()), nil
			}
		}
	}
	return "", ErrNoMainExecutable
}
