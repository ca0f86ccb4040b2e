package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLogCapacity bounds the in-memory log when no capacity is configured.
const DefaultLogCapacity = 10000

// Config is the pair of chat identifiers the forwarder works with.
type Config struct {
	Source int64 `json:"source"`
	Target int64 `json:"target"`
}

// Entry is one line of the relay log.
type Entry struct {
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Sink observes appended entries. Record is called outside the store lock,
// in append order per caller, and must not block.
type Sink interface {
	Record(e Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Entry)

func (f SinkFunc) Record(e Entry) { f(e) }

// Store holds the relay configuration and the ordered log.
// It is the only state shared by the HTTP surface and the forwarder.
type Store struct {
	mu         sync.RWMutex
	cfg        Config
	configured bool

	// entries is a ring when capacity > 0: head is the index of the oldest entry.
	entries  []Entry
	head     int
	capacity int

	sink Sink
	now  func() time.Time
}

// NewStore creates a store. capacity <= 0 keeps every entry.
func NewStore(capacity int, sink Sink) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{capacity: capacity, sink: sink, now: time.Now}
}

// SetConfig overwrites both identifiers and logs the change.
func (s *Store) SetConfig(source, target int64) {
	s.mu.Lock()
	s.cfg = Config{Source: source, Target: target}
	s.configured = true
	s.mu.Unlock()

	s.AppendLog(fmt.Sprintf("Bot started with Source: %d, Target: %d", source, target))
}

// Config returns the current identifiers and whether both have been set.
func (s *Store) Config() (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.configured
}

// AppendLog appends a line and returns the stored entry.
func (s *Store) AppendLog(line string) Entry {
	e := Entry{ID: uuid.NewString(), At: s.now(), Text: line}

	s.mu.Lock()
	s.push(e)
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.Record(e)
	}
	return e
}

func (s *Store) push(e Entry) {
	if s.capacity <= 0 || len(s.entries) < s.capacity {
		s.entries = append(s.entries, e)
		return
	}
	s.entries[s.head] = e
	s.head = (s.head + 1) % s.capacity
}

// Restore seeds the log with previously persisted entries (oldest first).
// Restored entries are not passed to the sink again.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.push(e)
	}
}

// Entries returns a snapshot of the log in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	out = append(out, s.entries[s.head:]...)
	out = append(out, s.entries[:s.head]...)
	return out
}

// Logs returns the log lines in insertion order. Never nil.
func (s *Store) Logs() []string {
	entries := s.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
