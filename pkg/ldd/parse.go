package ldd

import (
	"path"
	"strings"
)

// Entry is one parsed line of ldd output: either an Edge or a Skip.
type Entry interface {
	entry()
}

// Edge is a dependency that names a file on disk.
type Edge struct {
	// Name is the soname as requested, or the path itself for the
	// "/path (addr)" form.
	Name string
	// Path is the absolute path the loader resolved Name to, as printed.
	// It is not cleaned: ".." must be resolved after the symlinks before it.
	Path string
	// Addr is the load address in parentheses, without them.
	Addr string
}

// SkipReason says why a line produced no dependency.
type SkipReason int

const (
	// Blank lines and lines made only of whitespace.
	SkipBlank SkipReason = iota
	// SkipVirtual is the vDSO or the dynamic loader itself.
	SkipVirtual
	// SkipNotFound is "name => not found": the loader could not resolve it.
	SkipNotFound
	// SkipStatic is ldd's "statically linked" notice.
	SkipStatic
	// SkipUnrecognized is anything matching neither production.
	SkipUnrecognized
)

func (r SkipReason) String() string {
	switch r {
	case SkipBlank:
		return "blank"
	case SkipVirtual:
		return "virtual"
	case SkipNotFound:
		return "not found"
	case SkipStatic:
		return "statically linked"
	default:
		return "unrecognized"
	}
}

// Skip is a line that names no file to bundle.
type Skip struct {
	Raw    string
	Name   string // soname, when the line carried one
	Reason SkipReason
}

func (Edge) entry() {}
func (Skip) entry() {}

// virtualPatterns match the basename of entries that are never bundled:
// the kernel-injected vDSO and the dynamic loader.
var virtualPatterns = []string{
	"linux-vdso.so.*",
	"linux-vdso32.so.*",
	"linux-vdso64.so.*",
	"linux-gate.so.*",
	"ld-linux.so.*",
	"ld-linux-*.so.*",
	"ld64.so.*",
	"ld-musl-*.so.*",
}

// IsVirtual reports whether name (a soname or path) is the vDSO or the
// dynamic loader.
func IsVirtual(name string) bool {
	base := path.Base(name)
	for _, pattern := range virtualPatterns {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ParseLine parses one line of ldd output. The grammar has two productions:
//
//	edge   = name "=>" abspath [ "(" addr ")" ]
//	       | abspath "(" addr ")"
//
// Everything else, including "name => not found" and "name (addr)" without
// a path (the vDSO), becomes a Skip.
func ParseLine(line string) Entry {
	s := strings.TrimSpace(line)
	if s == "" {
		return Skip{Raw: line, Reason: SkipBlank}
	}
	if s == "statically linked" || strings.HasSuffix(s, "not a dynamic executable") {
		return Skip{Raw: line, Reason: SkipStatic}
	}

	if name, target, ok := strings.Cut(s, "=>"); ok {
		name = strings.TrimSpace(name)
		target = strings.TrimSpace(target)
		if name == "" {
			return Skip{Raw: line, Reason: SkipUnrecognized}
		}
		if IsVirtual(name) {
			return Skip{Raw: line, Name: name, Reason: SkipVirtual}
		}
		if target == "not found" {
			return Skip{Raw: line, Name: name, Reason: SkipNotFound}
		}
		p, addr, ok := splitAddr(target, false)
		if !ok || !path.IsAbs(p) {
			return Skip{Raw: line, Name: name, Reason: SkipUnrecognized}
		}
		if IsVirtual(p) {
			return Skip{Raw: line, Name: name, Reason: SkipVirtual}
		}
		return Edge{Name: name, Path: p, Addr: addr}
	}

	p, addr, ok := splitAddr(s, true)
	if !ok {
		return Skip{Raw: line, Reason: SkipUnrecognized}
	}
	if IsVirtual(p) {
		return Skip{Raw: line, Name: p, Reason: SkipVirtual}
	}
	if !path.IsAbs(p) {
		return Skip{Raw: line, Name: p, Reason: SkipUnrecognized}
	}
	return Edge{Name: p, Path: p, Addr: addr}
}

// splitAddr splits "token (addr)" into its parts. When requireAddr is false
// a bare token is accepted. Tokens containing whitespace are rejected.
func splitAddr(s string, requireAddr bool) (token, addr string, ok bool) {
	token, rest, hasAddr := strings.Cut(s, " ")
	rest = strings.TrimSpace(rest)
	if !hasAddr || rest == "" {
		if requireAddr {
			return "", "", false
		}
		return s, "", s != ""
	}
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", "", false
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	if addr == "" || strings.ContainsAny(addr, " ()") {
		return "", "", false
	}
	return token, addr, true
}
