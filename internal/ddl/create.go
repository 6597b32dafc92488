// Package ddl defines a small, backend-agnostic model for SQL DDL and a
// Dialect that renders the only two statements the schema synchronizer ever
// issues: CREATE TABLE and an additive ADD COLUMN.
//
// Backends describe their dialect once (quoting, type mapping, optional
// IF NOT EXISTS support, trailing engine clause) and reuse the builders here.
// Nothing in this package drops or retypes a column.
package ddl

import (
	"fmt"
	"strings"
)

// Dialect captures the per-backend differences in DDL rendering.
type Dialect struct {
	Name string

	// Quote quotes a single identifier segment.
	Quote func(string) string

	// Types maps logical kinds to SQL types.
	Types map[Kind]string

	// CreateIfNotExists emits CREATE TABLE IF NOT EXISTS.
	CreateIfNotExists bool

	// AddColumn is the clause used to extend a table, e.g. "ADD COLUMN" or
	// "ADD COLUMN IF NOT EXISTS" or "ADD".
	AddColumn string

	// Suffix, when set, renders a trailing clause (engine, ORDER BY).
	Suffix func(TableDef) string
}

// QuoteFQN quotes a possibly schema-qualified name segment by segment.
func (d Dialect) QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) sqlType(c ColumnDef) (string, error) {
	if t := strings.TrimSpace(c.SQLType); t != "" {
		return t, nil
	}
	t, ok := d.Types[c.Kind]
	if !ok || t == "" {
		return "", fmt.Errorf("ddl: %s has no type for %s column %s", d.Name, c.Kind, c.Name)
	}
	return t, nil
}

func (d Dialect) column(c ColumnDef) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: column with empty name")
	}
	typ, err := d.sqlType(c)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(d.Quote(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if def := strings.TrimSpace(c.Default); def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	return sb.String(), nil
}

// CreateTableSQL renders:
//
//	CREATE TABLE [IF NOT EXISTS] <fqn> (
//	  <col> <type> [NOT NULL] [DEFAULT <expr>],
//	  ...
//	)[ <suffix>]
func (d Dialect) CreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		s, err := d.column(c)
		if err != nil {
			return "", fmt.Errorf("%w (table %s)", err, fqn)
		}
		cols = append(cols, s)
	}

	head := "CREATE TABLE "
	if d.CreateIfNotExists {
		head += "IF NOT EXISTS "
	}
	stmt := fmt.Sprintf("%s%s (\n  %s\n)", head, d.QuoteFQN(fqn), strings.Join(cols, ",\n  "))
	if d.Suffix != nil {
		if s := d.Suffix(t); s != "" {
			stmt += " " + s
		}
	}
	return stmt, nil
}

// AddColumnSQL renders ALTER TABLE <fqn> <AddColumn> <col> <type>.
func (d Dialect) AddColumnSQL(fqn string, c ColumnDef) (string, error) {
	if strings.TrimSpace(fqn) == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	s, err := d.column(c)
	if err != nil {
		return "", err
	}
	clause := d.AddColumn
	if clause == "" {
		clause = "ADD COLUMN"
	}
	return fmt.Sprintf("ALTER TABLE %s %s %s", d.QuoteFQN(fqn), clause, s), nil
}

// QuoteDouble quotes with ANSI double quotes.
func QuoteDouble(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// QuoteBacktick quotes with backticks (MySQL, ClickHouse).
func QuoteBacktick(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

// QuoteBracket quotes with square brackets (SQL Server).
func QuoteBracket(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }
