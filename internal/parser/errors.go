package parser

import (
	"errors"
	"fmt"

	"unify/internal/source"
)

var (
	// ErrUnsupportedFormat: no reader exists for the file's format.
	ErrUnsupportedFormat = source.ErrUnsupportedFormat
	// ErrCorruptSource: the file cannot be parsed at all.
	ErrCorruptSource = errors.New("corrupt source")
	// ErrCorruptRecord: one record within an otherwise readable file is bad.
	ErrCorruptRecord = errors.New("corrupt record")
)

// RecordError describes a skipped record. It matches ErrCorruptRecord with
// errors.Is and exposes the underlying cause through errors.As.
type RecordError struct {
	Path string
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("corrupt record %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("corrupt record %s: %v", e.Path, e.Err)
}

func (e *RecordError) Unwrap() []error { return []error{ErrCorruptRecord, e.Err} }

// Corrupt builds a *RecordError.
func Corrupt(path string, line int, err error) error {
	return &RecordError{Path: path, Line: line, Err: err}
}

// CorruptSource wraps err so that errors.Is(err, ErrCorruptSource) holds.
func CorruptSource(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorruptSource, path, err)
}
