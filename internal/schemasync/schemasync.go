// Package schemasync brings a destination table up to an artifact's column
// set. It only ever creates the table or adds columns: existing columns are
// never dropped or retyped. Any failure is fatal for the load run and wraps
// ErrSchemaSync.
package schemasync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"unify/internal/ddl"
	"unify/internal/normalize"
	"unify/internal/storage"
)

// ErrSchemaSync marks a failure to confirm or extend the destination schema.
var ErrSchemaSync = errors.New("schema sync failed")

var columnNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CoreColumns are created up front with a new table, ahead of any other
// artifact column.
var CoreColumns = append(append([]string{normalize.KeyColumn}, normalize.CoreFields...), normalize.TimestampColumn)

// Plan is the DDL a sync will issue.
type Plan struct {
	Create bool
	Table  ddl.TableDef    // set when Create
	Add    []ddl.ColumnDef // columns to add to an existing table, artifact order
}

// Empty reports whether the target already matches.
func (p Plan) Empty() bool { return !p.Create && len(p.Add) == 0 }

// Column returns the definition for a column name: text by default,
// temporal for the ingest timestamp, and non-null for the canonical key.
func Column(name string) ddl.ColumnDef {
	switch name {
	case normalize.KeyColumn:
		return ddl.ColumnDef{Name: name, Kind: ddl.Text}
	case normalize.TimestampColumn:
		return ddl.ColumnDef{Name: name, Kind: ddl.Timestamp, Nullable: true}
	default:
		return ddl.ColumnDef{Name: name, Kind: ddl.Text, Nullable: true}
	}
}

// Diff returns the artifact columns absent from target, in artifact order.
// Names compare case-insensitively since some stores fold identifiers.
func Diff(artifact []string, target []storage.Column) []string {
	have := make(map[string]bool, len(target))
	for _, c := range target {
		have[strings.ToLower(c.Name)] = true
	}
	var out []string
	for _, c := range artifact {
		if !have[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks every artifact column is a safe canonical name.
func Validate(cols []string) error {
	var bad []string
	for _, c := range cols {
		if !columnNameRE.MatchString(c) {
			bad = append(bad, fmt.Sprintf("%q", c))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("malformed column names %s (want %s)", strings.Join(bad, ", "), columnNameRE)
	}
	return nil
}

// PlanFor computes the DDL for artifact columns against the described target.
func PlanFor(table string, artifact []string, target []storage.Column, exists bool) (Plan, error) {
	if err := Validate(artifact); err != nil {
		return Plan{}, err
	}
	if !exists {
		return Plan{Create: true, Table: createDef(table, artifact)}, nil
	}
	var p Plan
	for _, c := range Diff(artifact, target) {
		p.Add = append(p.Add, Column(c))
	}
	return p, nil
}

// createDef lays out core columns (timestamp excluded) then the remaining
// artifact columns, with ingest_timestamp last, ordered by canonical_key.
func createDef(table string, artifact []string) ddl.TableDef {
	td := ddl.TableDef{FQN: table, OrderBy: []string{normalize.KeyColumn}}
	seen := make(map[string]bool, len(artifact)+len(CoreColumns))
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			td.Columns = append(td.Columns, Column(name))
		}
	}
	for _, c := range CoreColumns {
		if c != normalize.TimestampColumn {
			add(c)
		}
	}
	for _, c := range artifact {
		if c != normalize.TimestampColumn {
			add(c)
		}
	}
	add(normalize.TimestampColumn)
	return td
}

// Sync describes the target, plans, and applies the DDL one statement at a
// time. It returns the applied plan.
func Sync(ctx context.Context, repo storage.Repository, table string, artifact []string) (Plan, error) {
	target, exists, err := repo.Describe(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: describe %s: %w", ErrSchemaSync, table, err)
	}
	plan, err := PlanFor(table, artifact, target, exists)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s: %w", ErrSchemaSync, table, err)
	}

	d := repo.Dialect()
	if plan.Create {
		stmt, err := d.CreateTableSQL(plan.Table)
		if err != nil {
			return plan, fmt.Errorf("%w: %w", ErrSchemaSync, err)
		}
		if err := repo.Exec(ctx, stmt); err != nil {
			return plan, fmt.Errorf("%w: create %s: %w", ErrSchemaSync, table, err)
		}
		log.Printf("schema: created table=%s columns=%d dialect=%s", table, len(plan.Table.Columns), d.Name)
		return plan, nil
	}

	for _, c := range plan.Add {
		stmt, err := d.AddColumnSQL(table, c)
		if err != nil {
			return plan, fmt.Errorf("%w: %w", ErrSchemaSync, err)
		}
		if err := repo.Exec(ctx, stmt); err != nil {
			return plan, fmt.Errorf("%w: add column %s.%s: %w", ErrSchemaSync, table, c.Name, err)
		}
		log.Printf("schema: added column=%s table=%s type=%s", c.Name, table, c.Kind)
	}
	if plan.Empty() {
		log.Printf("schema: table=%s up to date columns=%d", table, len(target))
	}
	return plan, nil
}
