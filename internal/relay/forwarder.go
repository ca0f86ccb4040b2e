package relay

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	logx "chatrelay/pkg/logx"
)

// Copier performs the remote copy-message call.
type Copier interface {
	CopyMessage(ctx context.Context, to, from int64, messageID int) error
}

// Forwarder copies events from the configured source chat into the target chat.
type Forwarder struct {
	store  *Store
	copier Copier
	log    logx.Logger

	limMu   sync.RWMutex
	limiter *rate.Limiter
}

func NewForwarder(store *Store, copier Copier, log logx.Logger) *Forwarder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Forwarder{store: store, copier: copier, log: log}
}

// SetRateLimit throttles copy calls to perSec with the given burst.
// perSec <= 0 removes the limit.
func (f *Forwarder) SetRateLimit(perSec float64, burst int) {
	f.limMu.Lock()
	defer f.limMu.Unlock()
	if perSec <= 0 {
		f.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	if f.limiter == nil {
		f.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		return
	}
	f.limiter.SetLimit(rate.Limit(perSec))
	f.limiter.SetBurst(burst)
}

func (f *Forwarder) currentLimiter() *rate.Limiter {
	f.limMu.RLock()
	defer f.limMu.RUnlock()
	return f.limiter
}

// Handle filters one event and copies it when it originates from the source
// chat. Copy failures are logged to the store and returned in the Result;
// they are never returned as errors.
func (f *Forwarder) Handle(ctx context.Context, ev Event) Result {
	cfg, ok := f.store.Config()
	if !ok || ev.ChatID != cfg.Source {
		return Result{Outcome: OutcomeIgnored}
	}
	if ev.Kind != KindMessage && ev.Kind != KindChannelPost {
		return Result{Outcome: OutcomeIgnored}
	}

	// A copy that was never attempted (shutdown, limiter deadline) leaves no log line.
	if err := f.wait(ctx); err != nil {
		f.log.Debug("copy skipped", logx.Int("message_id", ev.MessageID), logx.Err(err))
		return Result{Outcome: OutcomeIgnored, Err: err}
	}

	if err := f.copier.CopyMessage(ctx, cfg.Target, cfg.Source, ev.MessageID); err != nil {
		e := f.store.AppendLog(fmt.Sprintf("Error copying message: %v", err))
		f.log.Warn("copy failed",
			logx.String("kind", string(ev.Kind)),
			logx.Int64("from", cfg.Source),
			logx.Int64("to", cfg.Target),
			logx.Int("message_id", ev.MessageID),
			logx.Err(err),
		)
		return Result{Outcome: OutcomeFailed, Entry: e, Err: err}
	}

	var line string
	if ev.Kind == KindChannelPost {
		line = fmt.Sprintf("Copied channel post ID %d to target.", ev.MessageID)
	} else {
		line = fmt.Sprintf("Copied message ID %d to target.", ev.MessageID)
	}
	e := f.store.AppendLog(line)
	f.log.Info("message copied",
		logx.String("kind", string(ev.Kind)),
		logx.Int64("from", cfg.Source),
		logx.Int64("to", cfg.Target),
		logx.Int("message_id", ev.MessageID),
	)
	return Result{Outcome: OutcomeCopied, Entry: e}
}

func (f *Forwarder) wait(ctx context.Context) error {
	if lim := f.currentLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Run consumes events until ctx is cancelled or events is closed.
func (f *Forwarder) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			res := f.Handle(ctx, ev)
			if res.Outcome == OutcomeIgnored {
				f.log.Debug("event ignored", logx.String("kind", string(ev.Kind)), logx.Int64("chat_id", ev.ChatID))
			}
		}
	}
}
