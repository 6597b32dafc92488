// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs each backend's init, which registers its factory with the
// storage package. The kinds made available are:
//
//   - "clickhouse" (unify/internal/storage/clickhouse)
//   - "postgres"   (unify/internal/storage/postgres)
//   - "mssql"      (unify/internal/storage/mssql)
//   - "mysql"      (unify/internal/storage/mysql)
//   - "sqlite"     (unify/internal/storage/sqlite)
//
// Typical usage in a wiring layer:
//
//	import _ "unify/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Destination.Kind, ...})
//
// A binary that needs only a subset can import the backend packages directly
// instead.
package all

import (
	_ "unify/internal/storage/clickhouse"
	_ "unify/internal/storage/mssql"
	_ "unify/internal/storage/mysql"
	_ "unify/internal/storage/postgres"
	_ "unify/internal/storage/sqlite"
)
