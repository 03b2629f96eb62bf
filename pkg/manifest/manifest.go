// Package manifest records the file set of a finished output tree.
//
// # Format
//
// A manifest is a line-oriented text file at the root of the tree. Header
// lines start with "#" and carry "key: value" pairs; entry lines follow,
// sorted, one per file:
//
//	# sobundle manifest
//	# source: /usr/bin/app
//	# generated: 2026-01-02T15:04:05Z
//	# main-executable: /usr/bin/app
//	26c7827d889f6da3  /usr/bin/app
//	ef46db3751d8e999  /usr/lib/libfoo.so.1
//
// Paths are relative to the output root but written with a leading slash,
// which is also where each file installs. The hash column is the xxHash64
// of the file and is omitted when hashes are disabled.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

const (
	magic = "sobundle manifest"

	keySource         = "source"
	keyGenerated      = "generated"
	keyMainExecutable = "main-executable"

	hashLen = 16
)

// ErrMalformed means a manifest could not be parsed.
var ErrMalformed = errors.New("malformed manifest")

// Entry is one file of the tree.
type Entry struct {
	Path string `json:"path"`           // rooted path, e.g. "/usr/lib/libc.so.6"
	Hash string `json:"hash,omitempty"` // xxHash64 hex, empty when not recorded
}

// Manifest is the parsed or to-be-written form of a manifest file.
type Manifest struct {
	Source         string    `json:"source"`
	Generated      time.Time `json:"generated"`
	MainExecutable string    `json:"main_executable,omitempty"`
	Entries        []Entry   `json:"entries"`
}

// Index converts the manifest entries to an Index.
func (m *Manifest) Index() *Index {
	idx := NewIndex()
	for _, e := range m.Entries {
		idx.Add(e)
	}
	return idx
}

// Encode writes m to w. Entries are sorted by path first.
func (m *Manifest) Encode(w io.Writer) error {
	slices.SortFunc(m.Entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", magic)
	fmt.Fprintf(bw, "# %s: %s\n", keySource, m.Source)
	fmt.Fprintf(bw, "# %s: %s\n", keyGenerated, m.Generated.UTC().Format(time.RFC3339))
	if m.MainExecutable != "" {
		fmt.Fprintf(bw, "# %s: %s\n", keyMainExecutable, m.MainExecutable)
	}
	for _, e := range m.Entries {
		if e.Hash != "" {
			fmt.Fprintf(bw, "%s  %s\n", e.Hash, e.Path)
		} else {
			fmt.Fprintln(bw, e.Path)
		}
	}
	return bw.Flush()
}

// Decode parses a manifest. Unknown header keys are ignored.
func Decode(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	sawMagic := false
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}

		if header, ok := strings.CutPrefix(line, "#"); ok {
			header = strings.TrimSpace(header)
			if header == magic {
				sawMagic = true
				continue
			}
			key, value, ok := strings.Cut(header, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case keySource:
				m.Source = value
			case keyGenerated:
				t, err := time.Parse(time.RFC3339, value)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: bad timestamp: %v", ErrMalformed, lineNo, err)
				}
				m.Generated = t
			case keyMainExecutable:
				m.MainExecutable = value
			}
			continue
		}

		e, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		m.Entries = append(m.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawMagic {
		return nil, fmt.Errorf("%w: missing %q header", ErrMalformed, magic)
	}
	return m, nil
}

func parseEntry(line string) (Entry, error) {
	if hash, path, ok := strings.Cut(line, "  "); ok && isHash(hash) {
		if !strings.HasPrefix(path, "/") {
			return Entry{}, fmt.Errorf("path %q is not rooted", path)
		}
		return Entry{Path: path, Hash: hash}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Entry{}, fmt.Errorf("path %q is not rooted", line)
	}
	return Entry{Path: line}, nil
}

func isHash(s string) bool {
	if len(s) != hashLen {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ReadFile parses the manifest at path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
