// Package mssql implements a Microsoft SQL Server destination using the
// go-mssqldb bulk copy API. Each chunk is bulk-copied inside a transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"unify/internal/ddl"
	"unify/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN   string
	Table string // optionally schema-qualified, e.g. "dbo.master_records"
}

// Dialect is the SQL Server DDL dialect. SQL Server has no IF NOT EXISTS for
// tables or columns; the synchronizer only issues DDL after Describe.
var Dialect = ddl.Dialect{
	Name:      "mssql",
	Quote:     ddl.QuoteBracket,
	Types:     map[ddl.Kind]string{ddl.Text: "NVARCHAR(MAX)", ddl.Timestamp: "DATETIME2"},
	AddColumn: "ADD",
}

// Repository is an MSSQL-backed storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", classify(err))
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// BuildDSN renders a sqlserver:// URL from discrete settings.
func BuildDSN(host string, port int, user, password, database string, secure bool) string {
	if port == 0 {
		port = 1433
	}
	u := url.URL{Scheme: "sqlserver", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	q := url.Values{}
	if database != "" {
		q.Set("database", database)
	}
	if secure {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

// Describe lists the table's columns from INFORMATION_SCHEMA. An unqualified
// table resolves against SCHEMA_NAME().
func (r *Repository) Describe(ctx context.Context) ([]storage.Column, bool, error) {
	schema, table := splitFQN(r.cfg.Table)
	q := `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
	      WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2
	      ORDER BY ORDINAL_POSITION`
	rows, err := r.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("mssql describe: %w", classify(err))
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, false, fmt.Errorf("mssql describe: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("mssql describe: %w", classify(err))
	}
	return cols, len(cols) > 0, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return classify(err)
	}
	return nil
}

// InsertChunk bulk-copies rows into the target table in one transaction.
func (r *Repository) InsertChunk(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", classify(err))
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", classify(err))
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, classify(err))
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", classify(err))
	}
	return n, nil
}

func splitFQN(fqn string) (schema, table string) {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// classify marks deadlock victims (1205), lock timeouts (1222) and
// unavailable-database errors (4060, 40613, 40501, 49918-49920) transient.
func classify(err error) error {
	var me mssql.Error
	if errors.As(err, &me) {
		switch me.Number {
		case 1205, 1222, 4060, 40501, 40613, 49918, 49919, 49920:
			return storage.Transient(err)
		}
	}
	return err
}
