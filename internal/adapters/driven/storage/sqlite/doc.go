// Package sqlite persists the local host's document model in SQLite.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database file holds any number of documents with their
// layers; the most recently opened document is the active one.
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.layerforge/data/documents.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
