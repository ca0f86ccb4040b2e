// Package storage persists the relay log so it survives restarts.
//
// Drivers:
//   - file: one JSON Lines file
//   - sqlite: modernc.org/sqlite database file
//   - postgres: pgx connection pool
//
// Writes go through Writer, which queues entries and appends them off the
// caller's goroutine.
package storage
