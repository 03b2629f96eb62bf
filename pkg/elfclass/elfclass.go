// Package elfclass identifies dynamically linked, statically linked and
// non-ELF files, and reports whether a binary declares NEEDED entries.
//
// Two inspectors are provided. ELF reads the file in-process with
// debug/elf. Tools shells out to file(1) and objdump(1) when they are
// configured, and falls back to ELF for anything the tools leave unclear.
package elfclass

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Kind is the result of classifying a path.
type Kind int

const (
	// NotABinary is anything that is not an ELF object.
	NotABinary Kind = iota
	// Static is an ELF object with no interpreter and no NEEDED entries.
	Static
	// Dynamic is an ELF object that the dynamic loader must process.
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "not-a-binary"
	}
}

// ErrNotFound is returned when the classified path does not exist.
var ErrNotFound = errors.New("no such file")

// Inspector classifies files and reports their declared dependencies.
type Inspector interface {
	// Classify reports the kind of the file at path.
	Classify(path string) (Kind, error)
	// HasNeeded reports whether path declares at least one NEEDED entry.
	HasNeeded(path string) (bool, error)
}

// ELF inspects files with debug/elf.
type ELF struct{}

// Classify opens path as ELF. Files that fail to parse are NotABinary.
func (ELF) Classify(path string) (Kind, error) {
	f, err := open(path)
	if err != nil {
		if isFormatError(err) {
			return NotABinary, nil
		}
		return NotABinary, err
	}
	defer func() { _ = f.Close() }()

	for _, p := range f.Progs {
		if p.Type == elf.PT_INTERP {
			return Dynamic, nil
		}
	}
	needed, err := f.ImportedLibraries()
	if err != nil {
		return NotABinary, fmt.Errorf("read dynamic section of %s: %w", path, err)
	}
	if len(needed) > 0 {
		return Dynamic, nil
	}
	return Static, nil
}

// HasNeeded reads the DT_NEEDED entries of path.
func (ELF) HasNeeded(path string) (bool, error) {
	needed, err := Needed(path)
	if err != nil {
		return false, err
	}
	return len(needed) > 0, nil
}

// Needed returns the DT_NEEDED sonames declared by path, in file order.
func Needed(path string) ([]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	needed, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("read dynamic section of %s: %w", path, err)
	}
	return needed, nil
}

// isFormatError reports whether err means "not an ELF file" rather than an
// I/O failure. Files shorter than the ELF ident fail with io.EOF.
func isFormatError(err error) bool {
	var fe *elf.FormatError
	return errors.As(err, &fe) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// checkPath maps a missing path to ErrNotFound and a non-regular file to a
// format error.
func checkPath(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return &elf.FormatError{}
	}
	return nil
}

func open(path string) (*elf.File, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	return elf.Open(path)
}
