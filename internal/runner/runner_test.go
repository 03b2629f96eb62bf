package runner_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/sobundle/internal/runner"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindTool_SearchPath(t *testing.T) {
	tmpDir := t.TempDir()
	want := writeScript(t, tmpDir, "ldd", "exit 0")

	r := runner.New(runner.WithSearchPath(tmpDir))
	got, err := r.FindTool("ldd")
	if err != nil {
		t.Fatalf("FindTool() error = %v", err)
	}
	if got != want {
		t.Errorf("FindTool() = %q, want %q", got, want)
	}
}

func TestFindTool_AbsolutePath(t *testing.T) {
	tmpDir := t.TempDir()
	want := writeScript(t, tmpDir, "my-ldd", "exit 0")

	r := runner.New(runner.WithSearchPath(t.TempDir()))
	got, err := r.FindTool(want)
	if err != nil {
		t.Fatalf("FindTool() error = %v", err)
	}
	if got != want {
		t.Errorf("FindTool() = %q, want %q", got, want)
	}
}

func TestFindTool_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	// Present but not executable.
	if err := os.WriteFile(filepath.Join(tmpDir, "ldd"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := runner.New(runner.WithSearchPath(tmpDir))
	for _, tool := range []string{"ldd", "objdump", "", filepath.Join(tmpDir, "ldd")} {
		_, err := r.FindTool(tool)
		if !errors.Is(err, runner.ErrToolNotFound) {
			t.Errorf("FindTool(%q) error = %v, want ErrToolNotFound", tool, err)
		}
	}
}

func TestRun_CapturesStreams(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "tool", `echo "out $1"; echo "err" >&2; exit 3`)

	r := runner.New(runner.WithSearchPath(tmpDir))
	out, err := r.Run(context.Background(), "tool", "arg")

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run() error = %v, want *exec.ExitError", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", out.ExitCode)
	}
	if strings.TrimSpace(string(out.Stdout)) != "out arg" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
	if strings.TrimSpace(string(out.Stderr)) != "err" {
		t.Errorf("Stderr = %q", out.Stderr)
	}
}

func TestRun_CleanEnv(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "printenv-tool", `echo "preload=$LD_PRELOAD home=$HOME"`)
	t.Setenv("LD_PRELOAD", "/tmp/evil.so")
	t.Setenv("HOME", "/home/kept")

	r := runner.New(
		runner.WithSearchPath(tmpDir),
		runner.WithCleanEnv(true),
	)
	out, err := r.Run(context.Background(), "printenv-tool")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(string(out.Stdout)); got != "preload= home=/home/kept" {
		t.Errorf("child env = %q, want LD_PRELOAD removed", got)
	}
}

func TestRun_ToolMissing(t *testing.T) {
	r := runner.New(runner.WithSearchPath(t.TempDir()))
	_, err := r.Run(context.Background(), "ldd")
	if !errors.Is(err, runner.ErrToolNotFound) {
		t.Errorf("Run() error = %v, want ErrToolNotFound", err)
	}
}
