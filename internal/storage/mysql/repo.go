// Package mysql implements a MySQL destination with go-sql-driver/mysql.
// MySQL has no COPY; each chunk is a sequence of multi-row INSERTs inside one
// transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"unify/internal/ddl"
	"unify/internal/storage"
)

// Config holds MySQL repository configuration.
type Config struct {
	Driver *mysql.Config
	Table  string
}

// maxPlaceholders stays under MySQL's 65535 prepared-statement parameter cap.
const maxPlaceholders = 60000

// Dialect is the MySQL DDL dialect.
var Dialect = ddl.Dialect{
	Name:              "mysql",
	Quote:             ddl.QuoteBacktick,
	Types:             map[ddl.Kind]string{ddl.Text: "LONGTEXT", ddl.Timestamp: "DATETIME"},
	CreateIfNotExists: true,
	AddColumn:         "ADD COLUMN",
}

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a pool through mysql.NewConnector and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	connector, err := mysql.NewConnector(cfg.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql ping: %w", classify(err))
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// DriverConfig builds a driver config from discrete settings, or parses dsn
// when it is set.
func DriverConfig(dsn, host string, port int, user, password, database string, secure bool) (*mysql.Config, error) {
	if dsn != "" {
		return mysql.ParseDSN(dsn)
	}
	if port == 0 {
		port = 3306
	}
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.ParseTime = true
	c.Loc = time.UTC
	if secure {
		c.TLSConfig = "true"
	}
	return c, nil
}

func (r *Repository) Dialect() ddl.Dialect { return Dialect }

// Describe lists the table's columns; an unqualified table resolves against
// DATABASE().
func (r *Repository) Describe(ctx context.Context) ([]storage.Column, bool, error) {
	schema, table := splitFQN(r.cfg.Table)
	q := `SELECT COLUMN_NAME, DATA_TYPE FROM information_schema.COLUMNS
	      WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
	      ORDER BY ORDINAL_POSITION`
	rows, err := r.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("mysql describe: %w", classify(err))
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, false, fmt.Errorf("mysql describe: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("mysql describe: %w", classify(err))
	}
	return cols, len(cols) > 0, nil
}

func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return classify(err)
	}
	return nil
}

// InsertChunk writes rows with multi-row INSERTs in one transaction.
func (r *Repository) InsertChunk(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: columns must not be empty")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Dialect.Quote(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", Dialect.QuoteFQN(r.cfg.Table), strings.Join(quoted, ", "))
	per := max(1, maxPlaceholders/len(columns))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql begin: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		args := make([]any, 0, (end-start)*len(columns))
		tuples := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			if len(rows[i]) != len(columns) {
				return 0, fmt.Errorf("mysql: row %d has %d values for %d columns", i, len(rows[i]), len(columns))
			}
			args = append(args, rows[i]...)
			tuples = append(tuples, tuple)
		}
		res, err := tx.ExecContext(ctx, head+strings.Join(tuples, ","), args...)
		if err != nil {
			return 0, fmt.Errorf("mysql insert: %w", classify(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql commit: %w", classify(err))
	}
	return n, nil
}

func splitFQN(fqn string) (schema, table string) {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// classify marks lock waits (1205), deadlocks (1213), too-many-connections
// (1040) and dropped connections transient.
func classify(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return storage.Transient(err)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1040, 1205, 1213, 2006, 2013:
			return storage.Transient(err)
		}
	}
	return err
}
