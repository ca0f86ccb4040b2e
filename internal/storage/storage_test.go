package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "chatrelay/pkg/logx"
)

func openTest(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func drivers(t *testing.T) map[string]Config {
	dir := t.TempDir()
	m := map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(dir, "log", "relay.jsonl")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "db", "relay.db"), BusyTimeout: time.Second},
	}
	if dsn := os.Getenv("CHATRELAY_TEST_POSTGRES_DSN"); dsn != "" {
		m["postgres"] = Config{Driver: "postgres", DSN: dsn}
	}
	return m
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if !errors.Is(err, ErrDisabled) || st != nil {
			t.Fatalf("driver %q: got (%v, %v), want ErrDisabled", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestStoreAppendRecentPrune(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openTest(t, cfg)
			if name == "postgres" {
				if _, err := st.PruneLogs(ctx, time.Now().Add(24*time.Hour)); err != nil {
					t.Fatalf("reset: %v", err)
				}
			}

			got, err := st.RecentLogs(ctx, 10)
			if err != nil || len(got) != 0 || got == nil {
				t.Fatalf("empty store: got %v, %v", got, err)
			}

			for i := 0; i < 5; i++ {
				e := Entry{ID: fmt.Sprintf("id-%d", i), At: base.Add(time.Duration(i) * time.Minute), Text: fmt.Sprintf("line %d", i)}
				if err := st.AppendLog(ctx, e); err != nil {
					t.Fatalf("AppendLog: %v", err)
				}
			}

			got, err = st.RecentLogs(ctx, 3)
			if err != nil {
				t.Fatalf("RecentLogs: %v", err)
			}
			if len(got) != 3 || got[0].Text != "line 2" || got[2].Text != "line 4" {
				t.Fatalf("RecentLogs(3) = %+v", got)
			}
			if !got[0].At.Equal(base.Add(2 * time.Minute)) {
				t.Fatalf("timestamp not preserved: %v", got[0].At)
			}

			all, _ := st.RecentLogs(ctx, 0)
			if len(all) != 5 {
				t.Fatalf("RecentLogs(0) len = %d", len(all))
			}

			n, err := st.PruneLogs(ctx, base.Add(2*time.Minute))
			if err != nil || n != 2 {
				t.Fatalf("PruneLogs = %d, %v; want 2", n, err)
			}
			if err := st.AppendLog(ctx, Entry{ID: "after", At: base.Add(time.Hour), Text: "after prune"}); err != nil {
				t.Fatalf("append after prune: %v", err)
			}
			all, _ = st.RecentLogs(ctx, 0)
			if len(all) != 4 || all[0].Text != "line 2" || all[3].Text != "after prune" {
				t.Fatalf("after prune = %+v", all)
			}
		})
	}
}

func TestFileStoreSurvivesReopenAndTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.AppendLog(context.Background(), Entry{ID: "a", At: time.Now(), Text: "first"})
	_ = st.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.WriteString("{\"id\":\"b\",\"te\n")
	_ = f.Close()

	st = openTest(t, Config{Driver: "file", Path: path})
	got, err := st.RecentLogs(context.Background(), 0)
	if err != nil || len(got) != 1 || got[0].Text != "first" {
		t.Fatalf("reopened = %+v, %v", got, err)
	}
}

func TestFilePruneFailureKeepsAppending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.jsonl")
	st := openTest(t, Config{Driver: "file", Path: path})
	fs := st.(*fileStore)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	_ = st.AppendLog(ctx, Entry{ID: "old", At: old, Text: "old"})
	_ = st.AppendLog(ctx, Entry{ID: "new", At: time.Now(), Text: "new"})

	// rename fails
	fs.rename = func(string, string) error { return errors.New("rename refused") }
	if _, err := st.PruneLogs(ctx, time.Now().Add(-time.Minute)); err == nil {
		t.Fatalf("expected rename error")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	if err := st.AppendLog(ctx, Entry{ID: "after", At: time.Now(), Text: "after rename failure"}); err != nil {
		t.Fatalf("append after failed prune: %v", err)
	}

	// temp path cannot be created
	fs.rename = os.Rename
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := st.PruneLogs(ctx, time.Now().Add(-time.Minute)); err == nil {
		t.Fatalf("expected temp file error")
	}
	if err := st.AppendLog(ctx, Entry{ID: "after2", At: time.Now(), Text: "after temp failure"}); err != nil {
		t.Fatalf("append after failed prune: %v", err)
	}

	got, err := st.RecentLogs(ctx, 0)
	if err != nil || len(got) != 4 || got[3].Text != "after temp failure" {
		t.Fatalf("entries = %+v, %v", got, err)
	}

	// a later prune succeeds once the obstacle is gone
	_ = os.Remove(path + ".tmp")
	if n, err := st.PruneLogs(ctx, time.Now().Add(-time.Minute)); err != nil || n != 1 {
		t.Fatalf("prune = %d, %v", n, err)
	}
	if err := st.AppendLog(ctx, Entry{ID: "last", At: time.Now(), Text: "last"}); err != nil {
		t.Fatalf("append after prune: %v", err)
	}
}

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	fail    bool
}

func (m *memStore) AppendLog(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("boom")
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) RecentLogs(context.Context, int) ([]Entry, error) { return nil, nil }
func (m *memStore) PruneLogs(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (m *memStore) Close() error { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestWriterFlushesOnCancel(t *testing.T) {
	ms := &memStore{}
	w := NewWriter(ms, 16, logx.Nop())
	for i := 0; i < 10; i++ {
		if !w.Enqueue(Entry{ID: fmt.Sprint(i)}) {
			t.Fatalf("enqueue %d dropped", i)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ms.len() != 10 {
		t.Fatalf("flushed %d entries, want 10", ms.len())
	}
	for i, e := range ms.entries {
		if e.ID != fmt.Sprint(i) {
			t.Fatalf("order broken at %d: %s", i, e.ID)
		}
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := NewWriter(&memStore{}, 2, logx.Nop())
	w.Enqueue(Entry{ID: "1"})
	w.Enqueue(Entry{ID: "2"})
	if w.Enqueue(Entry{ID: "3"}) {
		t.Fatalf("third enqueue should drop")
	}
	if _, dropped, _ := w.Stats(); dropped != 1 {
		t.Fatalf("dropped = %d", dropped)
	}
}

func TestWriterCountsFailures(t *testing.T) {
	w := NewWriter(&memStore{fail: true}, 4, logx.Nop())
	w.Enqueue(Entry{ID: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx)
	if written, _, failed := w.Stats(); written != 0 || failed != 1 {
		t.Fatalf("written=%d failed=%d", written, failed)
	}
}
