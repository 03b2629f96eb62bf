package pathres

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// canonicalTempDir returns t.TempDir() with its own symlinks resolved, so
// expectations are not skewed by e.g. /tmp being a link.
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func symlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	root := canonicalTempDir(t)
	real := filepath.Join(root, "lib", "libfoo.so.1.2.3")
	touch(t, real)

	// libfoo.so -> libfoo.so.1 -> libfoo.so.1.2.3 (relative chain)
	symlink(t, "libfoo.so.1.2.3", filepath.Join(root, "lib", "libfoo.so.1"))
	symlink(t, "libfoo.so.1", filepath.Join(root, "lib", "libfoo.so"))
	// lib64 -> lib (directory link)
	symlink(t, "lib", filepath.Join(root, "lib64"))
	// absolute link
	symlink(t, real, filepath.Join(root, "abs.so"))
	// link whose target climbs out with ..
	if err := os.MkdirAll(filepath.Join(root, "x", "y"), 0o755); err != nil {
		t.Fatal(err)
	}
	symlink(t, "../../lib/libfoo.so.1", filepath.Join(root, "x", "y", "up.so"))
	// bin -> x/y, so bin/.. is x. bin/../lib/up.so exists only as x/lib/up.so;
	// folding the path lexically would look for lib/up.so instead.
	symlink(t, filepath.Join("x", "y"), filepath.Join(root, "bin"))
	if err := os.MkdirAll(filepath.Join(root, "x", "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	symlink(t, "../../lib/libfoo.so.1", filepath.Join(root, "x", "lib", "up.so"))

	tests := []struct {
		name string
		in   string
	}{
		{"canonical", real},
		{"chain", filepath.Join(root, "lib", "libfoo.so")},
		{"directory link", filepath.Join(root, "lib64", "libfoo.so.1")},
		{"absolute target", filepath.Join(root, "abs.so")},
		{"dotdot target", filepath.Join(root, "x", "y", "up.so")},
		{"unclean input", root + "/lib/./../lib/libfoo.so"},
		{"dotdot through directory link", filepath.Join(root, "bin") + "/../lib/up.so"},
	}

	r := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.in, err)
			}
			if got != real {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, real)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	root := canonicalTempDir(t)
	real := filepath.Join(root, "a.so")
	touch(t, real)
	symlink(t, "a.so", filepath.Join(root, "b.so"))

	r := New(0)
	once, err := r.Resolve(filepath.Join(root, "b.so"))
	if err != nil {
		t.Fatal(err)
	}
	twice, err := r.Resolve(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Errorf("Resolve not idempotent: %q then %q", once, twice)
	}
}

func TestResolveLoop(t *testing.T) {
	root := canonicalTempDir(t)
	symlink(t, "b", filepath.Join(root, "a"))
	symlink(t, "a", filepath.Join(root, "b"))

	_, err := New(0).Resolve(filepath.Join(root, "a"))
	if !errors.Is(err, ErrSymlinkLoop) {
		t.Fatalf("Resolve() error = %v, want ErrSymlinkLoop", err)
	}
	var loopErr *LoopError
	if !errors.As(err, &loopErr) || loopErr.Limit != DefaultMaxDepth {
		t.Errorf("Resolve() error = %#v, want *LoopError with default limit", err)
	}
}

func TestResolveDepthBound(t *testing.T) {
	root := canonicalTempDir(t)
	touch(t, filepath.Join(root, "l0"))
	for i := 1; i <= 3; i++ {
		symlink(t, filepath.Base(chainLink(root, i-1)), chainLink(root, i))
	}

	if _, err := New(3).Resolve(chainLink(root, 3)); err != nil {
		t.Errorf("3 hops within limit 3: error = %v", err)
	}
	if _, err := New(2).Resolve(chainLink(root, 3)); !errors.Is(err, ErrSymlinkLoop) {
		t.Errorf("3 hops over limit 2: error = %v, want ErrSymlinkLoop", err)
	}
}

func chainLink(root string, i int) string {
	return filepath.Join(root, "l"+string(rune('0'+i)))
}

func TestResolveNotFound(t *testing.T) {
	root := canonicalTempDir(t)
	symlink(t, "missing", filepath.Join(root, "dangling"))

	for _, in := range []string{filepath.Join(root, "nope"), filepath.Join(root, "dangling"), ""} {
		if _, err := New(0).Resolve(in); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", in, err)
		}
	}
}

func TestResolveFileAsDirectory(t *testing.T) {
	root := canonicalTempDir(t)
	touch(t, filepath.Join(root, "file"))

	if _, err := New(0).Resolve(filepath.Join(root, "file", "child")); err == nil {
		t.Error("Resolve() through a regular file should fail")
	}
}

func TestExists(t *testing.T) {
	root := canonicalTempDir(t)
	touch(t, filepath.Join(root, "f"))
	symlink(t, "gone", filepath.Join(root, "dangling"))

	if !Exists(filepath.Join(root, "f")) {
		t.Error("Exists(f) = false")
	}
	if Exists(filepath.Join(root, "dangling")) {
		t.Error("Exists(dangling) = true")
	}
}

func TestAbsKeepsDotDot(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"/opt/app/bin/../lib/libx.so", "/opt/app/bin/../lib/libx.so"},
		{"bin/../lib", wd + "/bin/../lib"},
	}
	for _, tt := range tests {
		got, err := Abs(tt.in)
		if err != nil {
			t.Fatalf("Abs(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Abs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if IsClean("/a/../b") || !IsClean("/a/b") {
		t.Error("IsClean misclassifies paths")
	}
}
