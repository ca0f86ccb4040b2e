package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by Open when no driver is configured.
var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": database at DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one persisted relay log line.
type Entry struct {
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Store is the persistence API for the relay log.
type Store interface {
	AppendLog(ctx context.Context, e Entry) error
	// RecentLogs returns up to limit newest entries, oldest first.
	// limit <= 0 returns everything.
	RecentLogs(ctx context.Context, limit int) ([]Entry, error)
	// PruneLogs deletes entries older than before and reports how many went.
	PruneLogs(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
