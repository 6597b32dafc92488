package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat marks a file no reader accepts.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Skipped is a file Scan did not classify.
type Skipped struct {
	Path string
	Err  error
}

// Classify stats path and detects its format and encoding. Files whose format
// cannot be determined return an error wrapping ErrUnsupportedFormat.
func Classify(path string) (RawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawFile{}, fmt.Errorf("classify %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return RawFile{}, fmt.Errorf("classify %s: %w", path, err)
	}
	head := make([]byte, SniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return RawFile{}, fmt.Errorf("classify %s: %w", path, err)
	}
	head = head[:n]

	rf := RawFile{Path: path, Size: st.Size()}
	binary := bytes.HasPrefix(head, sigParquet) || bytes.HasPrefix(head, sigZip) || bytes.HasPrefix(head, sigOLE)
	var text []byte
	if !binary {
		rf.Encoding = DetectEncoding(head)
		if _, derr := decoderFor(rf.Encoding); derr != nil {
			rf.EncodingErr = derr
		}
		text = decodeHead(head, rf.Encoding)
	}
	rf.Format = DetectFormat(path, head, text)
	switch {
	case rf.Format == FormatUnknown:
		return rf, fmt.Errorf("classify %s: %w", path, ErrUnsupportedFormat)
	case rf.Format.Binary():
		rf.Encoding, rf.EncodingErr = "", nil
	}
	return rf, nil
}

// excluded reports whether abs is the output path, lies under it, or is one
// of its staging or parked siblings.
func excluded(abs, excl string) bool {
	return abs == excl ||
		strings.HasPrefix(abs, excl+string(filepath.Separator)) ||
		strings.HasPrefix(abs, excl+".staging-") ||
		strings.HasPrefix(abs, excl+".old-")
}

// Scan walks dir recursively in lexical order and classifies every regular
// file. Hidden entries and anything under exclude (the dataset output path and
// its staging siblings) are ignored. Files that cannot be classified are
// returned in skipped rather than failing the scan.
func Scan(ctx context.Context, dir, exclude string) (files []RawFile, skipped []Skipped, err error) {
	var excl string
	if exclude != "" {
		if excl, err = filepath.Abs(exclude); err != nil {
			return nil, nil, err
		}
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if excl != "" {
			abs, aerr := filepath.Abs(path)
			if aerr == nil && excluded(abs, excl) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rf, cerr := Classify(path)
		if cerr != nil {
			skipped = append(skipped, Skipped{Path: path, Err: cerr})
			return nil
		}
		files = append(files, rf)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return files, skipped, nil
}
