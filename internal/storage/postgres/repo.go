// Package postgres implements a Postgres destination using pgx v5. Chunks are
// loaded with COPY inside a transaction, so a failed chunk leaves no rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"unify/internal/ddl"
	"unify/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // optionally schema-qualified, e.g. "public.master_records"
}

// Dialect is the Postgres DDL dialect.
var Dialect = ddl.Dialect{
	Name:              "postgres",
	Quote:             ddl.QuoteDouble,
	Types:             map[ddl.Kind]string{ddl.Text: "TEXT", ddl.Timestamp: "TIMESTAMPTZ"},
	CreateIfNotExists: true,
	AddColumn:         "ADD COLUMN IF NOT EXISTS",
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgx ping: %w", classify(err))
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// BuildDSN renders a postgres:// URL from discrete settings.
func BuildDSN(host string, port int, user, password, database string, secure bool) string {
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + database,
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	q := url.Values{}
	if secure {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

// Describe lists the table's columns from information_schema. An unqualified
// table resolves against current_schema().
func (r *Repository) Describe(ctx context.Context) ([]storage.Column, bool, error) {
	schema, table := splitFQN(r.cfg.Table)
	q := `SELECT column_name, data_type FROM information_schema.columns
	      WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
	      ORDER BY ordinal_position`
	rows, err := r.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("pg describe: %w", classify(err))
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, false, fmt.Errorf("pg describe: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("pg describe: %w", classify(err))
	}
	return cols, len(cols) > 0, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return classify(err)
	}
	return nil
}

// InsertChunk COPYs rows into the table inside one transaction.
func (r *Repository) InsertChunk(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("pg begin: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	schema, table := splitFQN(r.cfg.Table)
	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}
	n, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("pg copy: %s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
		}
		return 0, fmt.Errorf("pg copy: %w", classify(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("pg commit: %w", classify(err))
	}
	return n, nil
}

// splitFQN splits "schema.table"; schema is empty for a bare name.
func splitFQN(fqn string) (schema, table string) {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// classify marks connection-level and retry-safe server failures transient.
// Class 08 is connection exceptions, 40001/40P01 serialization and deadlock,
// 57P03 cannot-connect-now, 53300 too-many-connections.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return storage.Transient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "57P03", pgErr.Code == "53300":
			return storage.Transient(err)
		}
	}
	return err
}
