// Package runner locates and executes the external analysis tools
// (ldd, objdump, file) that sobundle depends on.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/sobundle/internal/log"
)

// ErrToolNotFound is returned when a required tool cannot be located.
var ErrToolNotFound = errors.New("tool not found")

// Output is the captured result of one tool invocation.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Commander runs a named tool to completion and captures its output.
// A non-zero exit is reported through both Output.ExitCode and a non-nil
// *exec.ExitError so callers can inspect the output of failed runs.
type Commander interface {
	Run(ctx context.Context, tool string, args ...string) (Output, error)
}

// Runner handles finding and executing external tools.
type Runner struct {
	searchPath string // PATH used for lookups; empty means $PATH
	cleanEnv   bool   // strip loader variables from the child environment
}

// Option configures a Runner.
type Option func(*Runner)

// WithSearchPath overrides the PATH used to look up tools. An empty path
// keeps $PATH.
func WithSearchPath(path string) Option {
	return func(r *Runner) {
		r.searchPath = path
	}
}

// WithCleanEnv removes LD_PRELOAD, LD_LIBRARY_PATH and LD_AUDIT from the
// environment of every child process.
func WithCleanEnv(clean bool) Option {
	return func(r *Runner) {
		r.cleanEnv = clean
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindTool resolves tool to an executable path. Absolute or relative paths
// containing a separator are checked directly; bare names are looked up in
// the search path.
func (r *Runner) FindTool(tool string) (string, error) {
	if tool == "" {
		return "", fmt.Errorf("%w: empty tool name", ErrToolNotFound)
	}

	if strings.ContainsRune(tool, filepath.Separator) {
		if isExecutable(tool) {
			return tool, nil
		}
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}

	if r.searchPath == "" {
		path, err := exec.LookPath(tool)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, tool)
		}
		return path, nil
	}

	for _, dir := range filepath.SplitList(r.searchPath) {
		candidate := filepath.Join(dir, tool)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, tool)
}

// Run executes tool with args and captures stdout and stderr separately.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (Output, error) {
	path, err := r.FindTool(tool)
	if err != nil {
		return Output{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = r.environ()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Component("runner").Debug("exec", "tool", path, "args", args)
	err = cmd.Run()

	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	return out, err
}

// loaderVars would redirect what the dynamic loader resolves while listing.
var loaderVars = []string{"LD_PRELOAD", "LD_LIBRARY_PATH", "LD_AUDIT"}

func (r *Runner) environ() []string {
	env := os.Environ()
	if r.cleanEnv {
		env = slices.DeleteFunc(env, func(kv string) bool {
			name, _, _ := strings.Cut(kv, "=")
			return slices.Contains(loaderVars, name)
		})
	}
	return env
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
