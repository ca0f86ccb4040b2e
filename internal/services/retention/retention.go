// Package retention prunes persisted relay log entries on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "chatrelay/pkg/logx"
)

const (
	DefaultSchedule = "@hourly"
	pruneTimeout    = time.Minute
)

// Pruner deletes entries older than before.
type Pruner interface {
	PruneLogs(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// Retention is the maximum entry age; 0 disables pruning.
	Retention time.Duration
	// Schedule is a standard cron spec or descriptor ("@hourly").
	Schedule string
}

type Service struct {
	cfg    Config
	pruner Pruner
	log    logx.Logger
	parser cron.Parser
	now    func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, pruner Pruner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		pruner: pruner,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

func (s *Service) Enabled() bool { return s.cfg.Retention > 0 && s.pruner != nil }

// Start registers the prune job. It is a no-op when retention is disabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("retention schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.c.Schedule(sched, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("retention prune failed", logx.Err(err))
		}
	}))
	s.c.Start()
	s.log.Info("retention started",
		logx.String("schedule", spec),
		logx.Duration("retention", s.cfg.Retention),
		logx.Time("next", sched.Next(s.now())),
	)
	return nil
}

// RunOnce prunes entries older than now-Retention.
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	pctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.pruner.PruneLogs(pctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("retention pruned log entries", logx.Int64("removed", n), logx.Time("before", cutoff))
	}
	return n, nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("retention stop timed out; prune still running")
	}
}
