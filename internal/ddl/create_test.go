package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDialect = Dialect{
	Name:              "test",
	Quote:             QuoteDouble,
	Types:             map[Kind]string{Text: "TEXT", Timestamp: "TIMESTAMPTZ"},
	CreateIfNotExists: true,
	AddColumn:         "ADD COLUMN IF NOT EXISTS",
}

// TestCreateTableSQL verifies rendering and input errors with table-driven
// subtests.
func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "public.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: " "}}},
			errContains: "column with empty name",
		},
		{
			name: "kinds, nullability and quoting",
			def: TableDef{
				FQN: "public.master_records",
				Columns: []ColumnDef{
					{Name: "canonical_key", Kind: Text},
					{Name: `we"ird`, Kind: Text, Nullable: true},
					{Name: "ingest_timestamp", Kind: Timestamp, Nullable: true, Default: "now()"},
				},
			},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"public\".\"master_records\" (\n" +
				"  \"canonical_key\" TEXT NOT NULL,\n" +
				"  \"we\"\"ird\" TEXT,\n" +
				"  \"ingest_timestamp\" TIMESTAMPTZ DEFAULT now()\n)",
		},
		{
			name:    "explicit SQLType wins",
			def:     TableDef{FQN: "t", Columns: []ColumnDef{{Name: "n", SQLType: "BIGINT", Nullable: true}}},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"t\" (\n  \"n\" BIGINT\n)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := testDialect.CreateTableSQL(tt.def)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
		})
	}
}

func TestCreateTableSQL_Suffix(t *testing.T) {
	t.Parallel()
	d := Dialect{
		Name:  "ch",
		Quote: QuoteBacktick,
		Types: map[Kind]string{Text: "String", Timestamp: "DateTime"},
		Suffix: func(td TableDef) string {
			return "ENGINE = MergeTree ORDER BY (" + strings.Join(td.OrderBy, ", ") + ")"
		},
	}
	got, err := d.CreateTableSQL(TableDef{FQN: "db.t", Columns: []ColumnDef{{Name: "k"}}, OrderBy: []string{"k"}})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE `db`.`t` (\n  `k` String NOT NULL\n) ENGINE = MergeTree ORDER BY (k)", got)
}

func TestAddColumnSQL(t *testing.T) {
	t.Parallel()

	got, err := testDialect.AddColumnSQL("t", ColumnDef{Name: "company_name", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "t" ADD COLUMN IF NOT EXISTS "company_name" TEXT`, got)

	ms := Dialect{Name: "mssql", Quote: QuoteBracket, Types: map[Kind]string{Text: "NVARCHAR(MAX)"}, AddColumn: "ADD"}
	got, err = ms.AddColumnSQL("dbo.t", ColumnDef{Name: "a]b", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE [dbo].[t] ADD [a]]b] NVARCHAR(MAX)", got)

	_, err = ms.AddColumnSQL("t", ColumnDef{Name: "ts", Kind: Timestamp})
	assert.ErrorContains(t, err, "no type for timestamp")

	_, err = ms.AddColumnSQL("", ColumnDef{Name: "x"})
	assert.Error(t, err)
}
