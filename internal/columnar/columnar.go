// Package columnar reads and writes Parquet files through an embedded,
// in-memory DuckDB. It is shared by the dataset writer, the dataset reader
// and the Parquet snapshot reader.
package columnar

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
)

// Column types used in written files.
const (
	TypeText      = "VARCHAR"
	TypeTimestamp = "TIMESTAMP"
)

// Column is one output column.
type Column struct {
	Name string
	Type string
}

// DB is an in-memory DuckDB instance. Writes share one native connection and
// are serialized; reads go through database/sql.
type DB struct {
	connector *duckdb.Connector
	db        *sql.DB

	mu   sync.Mutex
	conn *duckdb.Conn
	seq  int
}

// Open starts an in-memory DuckDB.
func Open(ctx context.Context) (*DB, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		connector.Close()
		return nil, fmt.Errorf("duckdb ping: %w", err)
	}
	return &DB{connector: connector, db: db}, nil
}

// Close releases the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	if d.conn != nil {
		errs = append(errs, d.conn.Close())
	}
	errs = append(errs, d.db.Close(), d.connector.Close())
	return errors.Join(errs...)
}

func (d *DB) native(ctx context.Context) (*duckdb.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	c, err := d.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("duckdb native conn: %w", err)
	}
	dc, ok := c.(*duckdb.Conn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("duckdb native conn: unexpected type %T", c)
	}
	d.conn = dc
	return dc, nil
}

// QuoteIdent quotes a DuckDB identifier.
func QuoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// QuoteString quotes a DuckDB string literal.
func QuoteString(s string) string { return `'` + strings.ReplaceAll(s, `'`, `''`) + `'` }

// WriteParquet writes the rows produced by next to path. next returns
// (nil, nil) when there are no more rows; each row holds one value per column
// in order (string for VARCHAR, time.Time for TIMESTAMP). Rows keep their
// order in the file. It returns the number of rows written.
func (d *DB) WriteParquet(ctx context.Context, path string, cols []Column, next func() ([]driver.Value, error)) (int64, error) {
	if len(cols) == 0 {
		return 0, errors.New("columnar: no columns")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.native(ctx)
	if err != nil {
		return 0, err
	}
	d.seq++
	table := fmt.Sprintf("stage_%d", d.seq)

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = QuoteIdent(c.Name) + " " + c.Type
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")), nil); err != nil {
		return 0, fmt.Errorf("columnar: create stage table: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table, nil)

	app, err := duckdb.NewAppenderFromConn(conn, "", table)
	if err != nil {
		return 0, fmt.Errorf("columnar: appender: %w", err)
	}
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			app.Close()
			return n, err
		}
		row, err := next()
		if err != nil {
			app.Close()
			return n, err
		}
		if row == nil {
			break
		}
		if err := app.AppendRow(row...); err != nil {
			app.Close()
			return n, fmt.Errorf("columnar: append row %d: %w", n, err)
		}
		n++
	}
	if err := app.Close(); err != nil {
		return n, fmt.Errorf("columnar: flush appender: %w", err)
	}

	copySQL := fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)", table, QuoteString(path))
	if _, err := conn.ExecContext(ctx, copySQL, nil); err != nil {
		return n, fmt.Errorf("columnar: copy to %s: %w", path, err)
	}
	return n, nil
}

// Columns returns the column names of a Parquet file in file order.
func (d *DB) Columns(ctx context.Context, path string) ([]string, error) {
	src, done, err := literalPath(path)
	if err != nil {
		return nil, err
	}
	defer done()
	q := fmt.Sprintf("SELECT * FROM read_parquet(%s) LIMIT 0", QuoteString(src))
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("columnar: read %s: %w", path, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// literalPath returns a path read_parquet will not glob-expand. A path with
// glob characters is reached through a symlink in a fresh temp directory.
func literalPath(path string) (string, func(), error) {
	if !strings.ContainsAny(path, "*?[{") {
		return path, func() {}, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("columnar: %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", nil, fmt.Errorf("columnar: read %s: %w", path, err)
	}
	tmp, err := os.MkdirTemp("", "columnar-")
	if err != nil {
		return "", nil, fmt.Errorf("columnar: link %s: %w", path, err)
	}
	link := filepath.Join(tmp, "in.parquet")
	if err := os.Symlink(abs, link); err != nil {
		_ = os.RemoveAll(tmp)
		return "", nil, fmt.Errorf("columnar: link %s: %w", path, err)
	}
	return link, func() { _ = os.RemoveAll(tmp) }, nil
}

// Scan streams every row of a Parquet file in file order, rendering values as
// text: NULL as "", timestamps as RFC 3339 in UTC. The vals slice is reused
// between calls.
func (d *DB) Scan(ctx context.Context, path string, fn func(cols, vals []string) error) error {
	src, done, err := literalPath(path)
	if err != nil {
		return err
	}
	defer done()
	q := fmt.Sprintf("SELECT * FROM read_parquet(%s)", QuoteString(src))
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("columnar: read %s: %w", path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	vals := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("columnar: scan %s: %w", path, err)
		}
		for i, v := range raw {
			vals[i] = Text(v)
		}
		if err := fn(cols, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Text renders a scanned value.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}
