package storage

import (
	"context"
	"sync/atomic"
	"time"

	logx "chatrelay/pkg/logx"
)

const (
	DefaultWriterQueue = 256
	writeTimeout       = 5 * time.Second
	flushTimeout       = 3 * time.Second
)

// Writer appends entries to a Store from its own goroutine.
// Enqueue never blocks; when the queue is full the entry is dropped and counted.
type Writer struct {
	store Store
	log   logx.Logger
	q     chan Entry

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewWriter(store Store, queue int, log logx.Logger) *Writer {
	if queue <= 0 {
		queue = DefaultWriterQueue
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Writer{store: store, log: log, q: make(chan Entry, queue)}
}

// Enqueue schedules e for persistence. It reports false if e was dropped.
func (w *Writer) Enqueue(e Entry) bool {
	select {
	case w.q <- e:
		return true
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			w.log.Warn("storage queue full; dropping log entries", logx.Int64("dropped", int64(n)))
		}
		return false
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case e := <-w.q:
			w.write(context.Background(), e)
		}
	}
}

func (w *Writer) flush() {
	fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case e := <-w.q:
			w.write(fctx, e)
			if fctx.Err() != nil {
				w.log.Warn("storage flush timed out", logx.Int("pending", len(w.q)))
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(parent context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	if err := w.store.AppendLog(ctx, e); err != nil {
		w.failed.Add(1)
		w.log.Warn("storage append failed", logx.String("id", e.ID), logx.Err(err))
		return
	}
	w.written.Add(1)
}

// Stats returns counters for written, dropped and failed entries.
func (w *Writer) Stats() (written, dropped, failed uint64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}
