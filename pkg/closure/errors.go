package closure

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/sobundle/pkg/ldd"
)

var (
	// ErrNotFound means the input path does not exist.
	ErrNotFound = errors.New("input does not exist")

	// ErrNotABinary means the input is not an ELF object.
	ErrNotABinary = errors.New("not an ELF binary")

	// ErrAnalysisFailed means a binary's dependencies could not be listed
	// although it declares some.
	ErrAnalysisFailed = ldd.ErrAnalysisFailed
)

// FatalError aborts a run. Path is the node being processed when the
// failure happened.
type FatalError struct {
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(path string, err error) error {
	return &FatalError{Path: path, Err: err}
}
