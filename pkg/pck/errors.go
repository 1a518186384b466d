package pck

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrFormat is matched by every *FormatError.
	ErrFormat = errors.New("pck: invalid format")

	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("pck: entry not found")

	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("pck: i/o failure")
)

// FormatError reports a structural problem found while parsing an archive.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "pck: " + e.Reason
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a logical path that is not present in an Index.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pck: entry %q not found", e.Path)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IOError reports a seek, read, write or flush failure on the archive stream.
// Op names the step that failed.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pck: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func ioError(op string, err error) error {
	return &IOError{Op: op, Err: err}
}
