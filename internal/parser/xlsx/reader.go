// Package xlsx reads spreadsheet workbooks. Every sheet is read; in each the
// first non-empty row is the header and every later non-empty row a record.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatXLSX, New) }

// Reader streams spreadsheet rows.
//
// Options:
//   - sheets ([]string): restrict reading to these sheet names
type Reader struct {
	sheets map[string]struct{}
}

// New builds a Reader from options.
func New(opt config.Options) (parser.Reader, error) {
	r := &Reader{}
	if names := opt.StringSlice("sheets"); len(names) > 0 {
		r.sheets = make(map[string]struct{}, len(names))
		for _, n := range names {
			r.sheets[n] = struct{}{}
		}
	}
	return r, nil
}

func (r *Reader) Format() source.Format { return source.FormatXLSX }

var errLegacyXLS = errors.New("legacy .xls workbooks are not supported; save as .xlsx")

// Stream implements parser.Reader. Line numbers passed to onErr are 1-based
// row numbers within the sheet named in the error.
func (r *Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(f.Path), ".xls") {
		return parser.CorruptSource(f.Path, errLegacyXLS)
	}
	wb, err := excelize.OpenFile(f.Path)
	if err != nil {
		return parser.CorruptSource(f.Path, err)
	}
	defer wb.Close()

	for _, sheet := range wb.GetSheetList() {
		if r.sheets != nil {
			if _, ok := r.sheets[sheet]; !ok {
				continue
			}
		}
		if err := r.sheet(ctx, wb, f.Path, sheet, out, onErr); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) sheet(ctx context.Context, wb *excelize.File, path, sheet string, out chan<- records.Record, onErr func(int, error)) error {
	rows, err := wb.Rows(sheet)
	if err != nil {
		report(onErr, path, 0, fmt.Errorf("sheet %q: %w", sheet, err))
		return nil
	}
	defer rows.Close()

	var header []string
	for n := 1; rows.Next(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := rows.Columns()
		if err != nil {
			report(onErr, path, n, fmt.Errorf("sheet %q row %d: %w", sheet, n, err))
			continue
		}
		if blank(cells) {
			continue
		}
		if header == nil {
			header = parser.HeaderNames(cells)
			continue
		}
		rec := make(records.Record, len(cells))
		for i, v := range cells {
			name := parser.ColumnName(i)
			if i < len(header) {
				name = header[i]
			}
			if v != "" {
				rec[name] = v
			}
		}
		if err := parser.Emit(ctx, out, rec); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		report(onErr, path, 0, fmt.Errorf("sheet %q: %w", sheet, err))
	}
	return nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func report(onErr func(int, error), path string, line int, err error) {
	if onErr != nil {
		onErr(line, parser.Corrupt(path, line, err))
	}
}
