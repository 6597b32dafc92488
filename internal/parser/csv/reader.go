// Package csv reads delimited text files. The delimiter is sniffed from the
// first lines unless configured, and the first row names the fields.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatCSV, New) }

// Reader streams one record per data row.
//
// Options:
//   - delimiter (string; first rune; default sniffed among , ; \t)
//   - lazy_quotes (bool; default false) -> csv.Reader.LazyQuotes
type Reader struct {
	delim rune
	lazy  bool
}

// New builds a Reader from options.
func New(opt config.Options) (parser.Reader, error) {
	r := &Reader{
		delim: opt.Rune("delimiter", 0),
		lazy:  opt.Bool("lazy_quotes", false),
	}
	if r.delim == '"' || r.delim == '\n' || r.delim == '\r' {
		return nil, fmt.Errorf("csv: invalid delimiter %q", r.delim)
	}
	return r, nil
}

func (r *Reader) Format() source.Format { return source.FormatCSV }

// Stream implements parser.Reader. Rows shorter than the header leave the
// trailing fields absent; longer rows are corrupt records.
func (r *Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	rc, err := f.OpenText(ctx)
	if err != nil {
		return parser.CorruptSource(f.Path, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 64<<10)
	delim := r.delim
	if delim == 0 {
		sample, perr := br.Peek(source.SniffSize)
		if perr != nil && !errors.Is(perr, io.EOF) && !errors.Is(perr, bufio.ErrBufferFull) {
			return parser.CorruptSource(f.Path, perr)
		}
		if len(strings.TrimSpace(string(sample))) == 0 {
			return nil
		}
		var ok bool
		if delim, ok = sniffDelimiter(sample); !ok {
			return parser.CorruptSource(f.Path, errors.New("header has no recognized delimiter"))
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.ReuseRecord = true
	cr.LazyQuotes = r.lazy
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return parser.CorruptSource(f.Path, fmt.Errorf("read header: %w", err))
	}
	header := parser.HeaderNames(hdr)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			report(onErr, line, parser.Corrupt(f.Path, line, err))
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > len(header) {
			report(onErr, line, parser.Corrupt(f.Path, line,
				fmt.Errorf("row has %d fields, header has %d", len(rec), len(header))))
			continue
		}
		row := make(records.Record, len(rec))
		for i, v := range rec {
			row[header[i]] = v
		}
		if err := parser.Emit(ctx, out, row); err != nil {
			return err
		}
	}
}

func report(onErr func(int, error), line int, err error) {
	if onErr != nil {
		onErr(line, err)
	}
}
