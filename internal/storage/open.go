package storage

import (
	"errors"
	"strings"

	logx "chatrelay/pkg/logx"
)

// Open initializes the configured store.
// It returns ErrDisabled if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// tail keeps the last limit entries of es. limit <= 0 keeps all.
func tail(es []Entry, limit int) []Entry {
	if limit > 0 && len(es) > limit {
		es = es[len(es)-limit:]
	}
	if es == nil {
		es = []Entry{}
	}
	return es
}

// reverse flips newest-first query results into log order.
func reverse(es []Entry) {
	for i, j := 0, len(es)-1; i < j; i, j = i+1, j-1 {
		es[i], es[j] = es[j], es[i]
	}
}
