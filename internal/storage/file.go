package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "chatrelay/pkg/logx"
)

// fileStore keeps the log in one append-only JSON Lines file.
// Pruning rewrites the file through a temp file + rename.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	f      *os.File
	closed bool

	rename func(oldpath, newpath string) error
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f, rename: os.Rename}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.closed = true
	return err
}

// handleLocked returns the append handle, reopening it if a failed prune
// left the store without one.
func (s *fileStore) handleLocked() (*os.File, error) {
	if s.closed {
		return nil, errors.New("log file closed")
	}
	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		s.f = f
	}
	return s.f, nil
}

func (s *fileStore) AppendLog(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.handleLocked()
	if err != nil {
		return err
	}
	return json.NewEncoder(f).Encode(e)
}

func (s *fileStore) RecentLogs(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, err := s.readAllLocked(ctx)
	if err != nil {
		return nil, err
	}
	return tail(es, limit), nil
}

func (s *fileStore) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("log file closed")
	}
	es, err := s.readAllLocked(ctx)
	if err != nil {
		return 0, err
	}
	keep := es[:0]
	for _, e := range es {
		if !e.At.Before(before) {
			keep = append(keep, e)
		}
	}
	removed := int64(len(es) - len(keep))
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	if err := writeEntries(tmp, keep); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	// The handle is released for the rename and reacquired either way.
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	if err := s.rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		if _, rerr := s.handleLocked(); rerr != nil {
			s.log.Error("log file reopen failed", logx.String("path", s.path), logx.Err(rerr))
		}
		return 0, err
	}
	if _, err := s.handleLocked(); err != nil {
		// AppendLog retries the open.
		return removed, err
	}
	return removed, nil
}

func writeEntries(path string, es []Entry) error {
	tf, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(tf)
	enc := json.NewEncoder(bw)
	for _, e := range es {
		if err := enc.Encode(e); err != nil {
			_ = tf.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = tf.Close()
		return err
	}
	return tf.Close()
}

func (s *fileStore) readAllLocked(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// torn write from a crash; skip it
			s.log.Debug("skipping unreadable log line", logx.String("path", s.path), logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
