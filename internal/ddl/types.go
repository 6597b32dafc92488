package ddl

// Kind is the logical column type. Backends map it to a concrete SQL type.
type Kind int

const (
	// Text is the default for every record field.
	Text Kind = iota
	// Timestamp is used only for the ingest timestamp column.
	Timestamp
)

func (k Kind) String() string {
	if k == Timestamp {
		return "timestamp"
	}
	return "text"
}

// ColumnDef describes a single column.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Kind: logical type; SQLType overrides the dialect mapping when set
//   - Nullable: whether NULL is allowed
//   - Default: raw default expression
type ColumnDef struct {
	Name     string
	Kind     Kind
	SQLType  string
	Nullable bool
	Default  string
}

// TableDef holds the table name and an ordered list of columns. OrderBy is
// the sort key for engines that require one (ClickHouse MergeTree) and is
// ignored elsewhere.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
	OrderBy []string
}
