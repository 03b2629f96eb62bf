package elfclass

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/albertocavalcante/sobundle/internal/runner"
)

// Tools classifies with file(1) and reads NEEDED entries with objdump(1).
// An empty tool name disables that tool and the ELF reader is used.
type Tools struct {
	Cmd     runner.Commander
	File    string // e.g. "file"
	Objdump string // e.g. "objdump"

	fallback ELF
}

// NewTools returns a Tools inspector backed by cmd.
func NewTools(cmd runner.Commander, file, objdump string) *Tools {
	return &Tools{Cmd: cmd, File: file, Objdump: objdump}
}

// Classify runs `file -b -L` on path and maps its description.
// Descriptions that mention neither linkage fall back to the ELF reader.
func (t *Tools) Classify(path string) (Kind, error) {
	if t.File == "" {
		return t.fallback.Classify(path)
	}
	if err := checkPath(path); err != nil && !isFormatError(err) {
		return NotABinary, err
	}

	out, err := t.Cmd.Run(context.Background(), t.File, "-b", "-L", path)
	if err != nil {
		return NotABinary, fmt.Errorf("%s %s: %w", t.File, path, err)
	}
	kind, ok := parseFileDescription(string(out.Stdout))
	if !ok {
		return t.fallback.Classify(path)
	}
	return kind, nil
}

// parseFileDescription maps file(1) output. The boolean is false when the
// description is ELF but names no linkage.
func parseFileDescription(desc string) (Kind, bool) {
	if !strings.Contains(desc, "ELF") {
		return NotABinary, true
	}
	switch {
	case strings.Contains(desc, "statically linked"), strings.Contains(desc, "static-pie linked"):
		return Static, true
	case strings.Contains(desc, "dynamically linked"), strings.Contains(desc, "interpreter"):
		return Dynamic, true
	}
	return NotABinary, false
}

// HasNeeded runs `objdump -p` and looks for NEEDED lines in the
// dynamic section listing.
func (t *Tools) HasNeeded(path string) (bool, error) {
	if t.Objdump == "" {
		return t.fallback.HasNeeded(path)
	}
	if err := checkPath(path); err != nil && !isFormatError(err) {
		return false, err
	}

	out, err := t.Cmd.Run(context.Background(), t.Objdump, "-p", path)
	if err != nil {
		return false, fmt.Errorf("%s -p %s: %w", t.Objdump, path, err)
	}
	needed, err := parseNeeded(out.Stdout)
	if err != nil {
		return false, fmt.Errorf("%s -p %s: %w", t.Objdump, path, err)
	}
	return len(needed) > 0, nil
}

// parseNeeded extracts sonames from objdump -p output lines of the form
// "  NEEDED               libc.so.6".
func parseNeeded(out []byte) ([]string, error) {
	var needed []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[0] == "NEEDED" {
			needed = append(needed, fields[1])
		}
	}
	return needed, sc.Err()
}
