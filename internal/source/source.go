// Package source discovers raw input files and classifies them by format and
// text encoding. A RawFile is immutable once classified; readers open it
// through Open (bytes) or OpenText (decoded to UTF-8).
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format tags the reader responsible for a file. The empty Format means the
// file could not be classified.
type Format string

const (
	FormatUnknown Format = ""
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
	FormatXML     Format = "xml"
	FormatXLSX    Format = "xlsx"
	FormatSQL     Format = "sql"
)

// Binary reports whether the format is read as bytes rather than text.
func (f Format) Binary() bool { return f == FormatParquet || f == FormatXLSX }

// ErrEncodingFailure marks a file whose detected charset could not be decoded;
// the file is read as UTF-8 with invalid bytes replaced.
var ErrEncodingFailure = errors.New("encoding failure")

// RawFile describes one input file.
type RawFile struct {
	Path     string
	Format   Format
	Encoding string // IANA-ish charset name; empty for binary formats
	Size     int64

	// EncodingErr is non-nil (wrapping ErrEncodingFailure) when Encoding
	// could not be honored and UTF-8 replacement decoding is used instead.
	EncodingErr error
}

func (f RawFile) String() string {
	return fmt.Sprintf("%s (%s, %s)", f.Path, f.Format, f.Encoding)
}

// Open returns the raw bytes of the file. A canceled ctx is reported without
// touching the filesystem.
func (f RawFile) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	return fh, nil
}

// OpenText returns the file decoded to UTF-8. A leading byte order mark is
// honored over the detected encoding and stripped.
func (f RawFile) OpenText(ctx context.Context) (io.ReadCloser, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	dec, _ := decoderFor(f.Encoding)
	return &textReader{Reader: decodeReader(rc, f.Encoding, dec), c: rc}, nil
}

type textReader struct {
	io.Reader
	c io.Closer
}

func (t *textReader) Close() error { return t.c.Close() }
