// Package clickhouse implements the primary destination: a MergeTree table
// ordered by canonical_key, loaded through the native protocol's batch API.
// A chunk is one PrepareBatch/Send round, so a failed chunk commits nothing.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"unify/internal/ddl"
	"unify/internal/storage"
)

// Config holds ClickHouse repository configuration.
type Config struct {
	Addr     string // host:port
	Database string
	User     string
	Password string
	Secure   bool
	Table    string
	DSN      string // clickhouse://... overrides the fields above
}

const (
	defaultPort       = 9000
	defaultSecurePort = 9440
)

// Dialect is the ClickHouse DDL dialect.
var Dialect = ddl.Dialect{
	Name:              "clickhouse",
	Quote:             ddl.QuoteBacktick,
	Types:             map[ddl.Kind]string{ddl.Text: "String", ddl.Timestamp: "DateTime"},
	CreateIfNotExists: true,
	AddColumn:         "ADD COLUMN IF NOT EXISTS",
	Suffix: func(t ddl.TableDef) string {
		if len(t.OrderBy) == 0 {
			return "ENGINE = MergeTree ORDER BY tuple()"
		}
		keys := make([]string, len(t.OrderBy))
		for i, k := range t.OrderBy {
			keys[i] = ddl.QuoteBacktick(k)
		}
		return "ENGINE = MergeTree ORDER BY (" + strings.Join(keys, ", ") + ")"
	},
}

// Repository is a ClickHouse-backed storage.Repository.
type Repository struct {
	conn driver.Conn
	cfg  Config
}

// openConn is a test hook.
var openConn = func(opt *clickhouse.Options) (driver.Conn, error) { return clickhouse.Open(opt) }

// NewRepository connects and pings the server, returning a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	var (
		opt *clickhouse.Options
		err error
	)
	if cfg.DSN != "" {
		if opt, err = clickhouse.ParseDSN(cfg.DSN); err != nil {
			return nil, nil, fmt.Errorf("clickhouse dsn: %w", err)
		}
		if opt.Auth.Database != "" {
			cfg.Database = opt.Auth.Database
		}
	} else {
		opt = &clickhouse.Options{
			Addr: []string{cfg.Addr},
			Auth: clickhouse.Auth{
				Database: cfg.Database,
				Username: cfg.User,
				Password: cfg.Password,
			},
			DialTimeout: 10 * time.Second,
		}
		if cfg.Secure {
			opt.TLS = &tls.Config{}
		}
	}
	conn, err := openConn(opt)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("clickhouse ping: %w", classify(err))
	}
	closeFn := func() { _ = conn.Close() }
	return &Repository{conn: conn, cfg: cfg}, closeFn, nil
}

// Addr joins host and port, picking the native port for the transport when
// port is zero.
func Addr(host string, port int, secure bool) string {
	if port == 0 {
		port = defaultPort
		if secure {
			port = defaultSecurePort
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

func (r *Repository) fqn() string {
	if r.cfg.Database == "" {
		return Dialect.Quote(r.cfg.Table)
	}
	return Dialect.Quote(r.cfg.Database) + "." + Dialect.Quote(r.cfg.Table)
}

// Describe reads system.columns; an empty result means the table is absent.
func (r *Repository) Describe(ctx context.Context) ([]storage.Column, bool, error) {
	db := r.cfg.Database
	q := "SELECT name, type FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position"
	args := []any{r.cfg.Table}
	if db != "" {
		q = "SELECT name, type FROM system.columns WHERE database = ? AND table = ? ORDER BY position"
		args = []any{db, r.cfg.Table}
	}
	rows, err := r.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("clickhouse describe: %w", classify(err))
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, false, fmt.Errorf("clickhouse describe: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("clickhouse describe: %w", classify(err))
	}
	return cols, len(cols) > 0, nil
}

// Exec runs a DDL statement. Table names in DDL come unqualified from the
// schema synchronizer and resolve against the connection's database.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if err := r.conn.Exec(ctx, sql); err != nil {
		return classify(err)
	}
	return nil
}

// InsertChunk sends rows as one native batch.
func (r *Repository) InsertChunk(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Dialect.Quote(c)
	}
	batch, err := r.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", r.fqn(), strings.Join(quoted, ", ")))
	if err != nil {
		return 0, fmt.Errorf("clickhouse prepare batch: %w", classify(err))
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = batch.Abort()
			return 0, fmt.Errorf("clickhouse: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("clickhouse append row %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("clickhouse send: %w", classify(err))
	}
	return int64(len(rows)), nil
}

// retryable server codes: TIMEOUT_EXCEEDED, TOO_MANY_SIMULTANEOUS_QUERIES,
// NETWORK_ERROR, SOCKET_TIMEOUT, TOO_MANY_PARTS, ALL_CONNECTION_TRIES_FAILED,
// KEEPER_EXCEPTION.
var retryable = map[int32]bool{159: true, 202: true, 210: true, 209: true, 252: true, 279: true, 999: true}

func classify(err error) error {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) && retryable[ex.Code] {
		return storage.Transient(err)
	}
	return err
}
