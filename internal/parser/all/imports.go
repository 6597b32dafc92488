// Package all registers every built-in format reader with the parser
// registry. Import it for side effects only.
package all

import (
	_ "unify/internal/parser/csv"
	_ "unify/internal/parser/json"
	_ "unify/internal/parser/parquet"
	_ "unify/internal/parser/sqldump"
	_ "unify/internal/parser/xlsx"
	_ "unify/internal/parser/xml"
)
