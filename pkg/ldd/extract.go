// Package ldd lists a binary's shared-library dependencies through the
// dynamic loader's tracing mode and parses the result.
//
// A failed listing is disambiguated with an elfclass.Inspector: a binary
// that declares no NEEDED entries is a static leaf, anything else is an
// analysis failure.
package ldd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/albertocavalcante/sobundle/internal/log"
	"github.com/albertocavalcante/sobundle/internal/runner"
	"github.com/albertocavalcante/sobundle/pkg/elfclass"
)

// ErrAnalysisFailed is returned when ldd fails on a binary that declares
// dependencies, so its closure cannot be trusted.
var ErrAnalysisFailed = errors.New("dependency analysis failed")

// AnalysisError carries the path and tool output behind ErrAnalysisFailed.
type AnalysisError struct {
	Path   string
	Output string // trimmed stderr, falling back to stdout
	Err    error
}

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrAnalysisFailed, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

func (e *AnalysisError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAnalysisFailed}
	}
	return []error{ErrAnalysisFailed, e.Err}
}

// Result is a successful extraction.
type Result struct {
	// Lines holds the raw ldd output lines, in reported order.
	Lines []string
	// Static is set when ldd failed but the binary declares no
	// dependencies. Lines is empty then.
	Static bool
}

// Extractor runs ldd through a runner.Commander.
type Extractor struct {
	Cmd       runner.Commander
	Tool      string
	Inspector elfclass.Inspector
}

// NewExtractor returns an Extractor invoking tool (usually "ldd").
func NewExtractor(cmd runner.Commander, tool string, inspector elfclass.Inspector) *Extractor {
	if tool == "" {
		tool = "ldd"
	}
	if inspector == nil {
		inspector = elfclass.ELF{}
	}
	return &Extractor{Cmd: cmd, Tool: tool, Inspector: inspector}
}

// Extract lists the direct and loader-resolved dependencies of canonical.
func (e *Extractor) Extract(ctx context.Context, canonical string) (Result, error) {
	logger := log.Component("ldd")

	out, err := e.Cmd.Run(ctx, e.Tool, canonical)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if errors.Is(err, runner.ErrToolNotFound) {
		return Result{}, &AnalysisError{Path: canonical, Err: err}
	}

	if err == nil {
		lines, err := splitLines(out.Stdout)
		if err != nil {
			return Result{}, &AnalysisError{Path: canonical, Err: fmt.Errorf("read ldd output: %w", err)}
		}
		for _, line := range lines {
			log.TraceContext(ctx, logger, "ldd line", "path", canonical, "line", line)
		}
		return Result{Lines: lines}, nil
	}

	// ldd failed: static binary, or a genuine failure?
	detail := strings.TrimSpace(string(out.Stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(out.Stdout))
	}
	logger.Debug("ldd failed, inspecting NEEDED entries", "path", canonical, "exit", out.ExitCode, "output", detail)

	hasNeeded, inspectErr := e.Inspector.HasNeeded(canonical)
	if inspectErr != nil {
		return Result{}, &AnalysisError{Path: canonical, Output: detail, Err: inspectErr}
	}
	if hasNeeded {
		return Result{}, &AnalysisError{Path: canonical, Output: detail, Err: err}
	}

	logger.Info("statically linked, no dependencies", "path", canonical)
	return Result{Static: true}, nil
}

func splitLines(data []byte) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
