package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "chatrelay/pkg/logx"
)

type fakePruner struct {
	mu      sync.Mutex
	befores []time.Time
	n       int64
	err     error
}

func (f *fakePruner) PruneLogs(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.befores)
}

func TestRunOnceCutoff(t *testing.T) {
	p := &fakePruner{n: 3}
	s := New(Config{Retention: 24 * time.Hour}, p, logx.Nop())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if want := now.Add(-24 * time.Hour); !p.befores[0].Equal(want) {
		t.Fatalf("cutoff = %v, want %v", p.befores[0], want)
	}
}

func TestRunOnceError(t *testing.T) {
	p := &fakePruner{err: errors.New("db down")}
	s := New(Config{Retention: time.Hour}, p, logx.Nop())
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDisabled(t *testing.T) {
	p := &fakePruner{}
	s := New(Config{Retention: 0, Schedule: "not a spec"}, p, logx.Nop())
	if s.Enabled() {
		t.Fatalf("zero retention should disable")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start on disabled service: %v", err)
	}
	if n, _ := s.RunOnce(context.Background()); n != 0 || p.calls() != 0 {
		t.Fatalf("disabled service pruned")
	}
	s.Stop(context.Background())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Retention: time.Hour, Schedule: "every tuesday"}, &fakePruner{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestScheduledPrune(t *testing.T) {
	p := &fakePruner{}
	s := New(Config{Retention: time.Hour, Schedule: "@every 1s"}, p, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for p.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if p.calls() == 0 {
		t.Fatalf("scheduled prune never ran")
	}
}
