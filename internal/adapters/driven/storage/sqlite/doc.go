// Package sqlite provides a SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements:
//
//   - ProcessRecordStore: pid bookkeeping for spawned extension processes
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha/data/extensions.db
//
// # Thread Safety
//
// All operations are thread-safe. Several hosts may share one database; SQLite
// in WAL mode with a busy timeout serialises their writes.
package sqlite
