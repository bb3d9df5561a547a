// Package storage provides backends for persisting capture records.
//
// Two backends are available:
//
//   - SQLiteStorage: the default. Records are stored in a single table with
//     JSON columns for headers, bodies and errors. WAL mode is enabled for
//     concurrent readers. Either the cgo driver (github.com/mattn/go-sqlite3,
//     driver name "sqlite3") or the pure Go driver (modernc.org/sqlite,
//     driver name "sqlite") may be selected.
//   - MemoryStorage: keeps records in memory. Intended for tests and for
//     running without a data directory.
//
// Both backends are safe for concurrent use.
package storage
