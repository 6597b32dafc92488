// Package parsertest holds helpers shared by the reader tests.
package parsertest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

// Result is everything a Stream call produced.
type Result struct {
	Records []records.Record
	Skips   []error
	Lines   []int
	Err     error
}

// WriteFile writes b under a temp dir and classifies it. The format is forced
// so tests do not depend on detection.
func WriteFile(t *testing.T, name string, b []byte, format source.Format) source.RawFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	rf, err := source.Classify(path)
	if err != nil {
		rf = source.RawFile{Path: path, Encoding: "UTF-8", Size: int64(len(b))}
	}
	rf.Format = format
	if format.Binary() {
		rf.Encoding = ""
	}
	return rf
}

// Run streams f through r and collects the output.
func Run(t *testing.T, r parser.Reader, f source.RawFile) Result {
	t.Helper()
	out := make(chan records.Record, 16)
	var res Result
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		for rec := range out {
			res.Records = append(res.Records, rec)
		}
		close(done)
	}()
	res.Err = r.Stream(context.Background(), f, out, func(line int, err error) {
		mu.Lock()
		res.Skips = append(res.Skips, err)
		res.Lines = append(res.Lines, line)
		mu.Unlock()
	})
	close(out)
	<-done
	return res
}
