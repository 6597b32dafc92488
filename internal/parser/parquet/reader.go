// Package parquet reads columnar snapshot files, typically a previous run's
// dataset, yielding every row verbatim with values rendered as text.
package parquet

import (
	"context"

	"unify/internal/columnar"
	"unify/internal/config"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

func init() { parser.Register(source.FormatParquet, New) }

// openDB is a seam for tests.
var openDB = columnar.Open

// Reader streams Parquet rows.
type Reader struct{}

// New builds a Reader. It takes no options.
func New(config.Options) (parser.Reader, error) { return Reader{}, nil }

func (Reader) Format() source.Format { return source.FormatParquet }

// Stream implements parser.Reader. A file DuckDB cannot open is a corrupt
// source; a failure part way through stops the file after the rows already
// emitted and counts as one corrupt record.
func (Reader) Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	n := 0
	err = db.Scan(ctx, f.Path, func(cols, vals []string) error {
		rec := make(records.Record, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		n++
		return parser.Emit(ctx, out, rec)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case n == 0:
		return parser.CorruptSource(f.Path, err)
	default:
		if onErr != nil {
			onErr(n+1, parser.Corrupt(f.Path, n+1, err))
		}
		return nil
	}
}
