package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"chatrelay/internal/relay"
	rtsup "chatrelay/internal/runtime/supervisor"
	logx "chatrelay/pkg/logx"
)

type Config struct {
	Token          string
	PollTimeout    time.Duration
	AllowedUpdates []string

	// DropPendingUpdates discards updates queued while the bot was down.
	DropPendingUpdates bool

	// URL overrides the Bot API endpoint; Offline skips the getMe call.
	// Both exist for tests.
	URL     string
	Offline bool
}

// Adapter turns Telegram updates into relay events and performs copies.
//
// Updates are intercepted at the poller, before telebot's handler routing,
// so every message kind (text, media, service) reaches the forwarder.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- relay.Event
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and the stop watcher; created on Start.
	sup *rtsup.Supervisor

	received atomic.Uint64
	ignored  atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	allowed := cfg.AllowedUpdates
	if len(allowed) == 0 {
		allowed = []string{"message", "channel_post"}
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log}
	var nilOut chan<- relay.Event
	a.out.Store(nilOut)

	poller := tele.NewMiddlewarePoller(
		&tele.LongPoller{Timeout: timeout, AllowedUpdates: allowed},
		a.intercept,
	)
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Poller:  poller,
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	return a, nil
}

// eventFromUpdate extracts the chat and message id the forwarder needs.
// Edited messages and non-message updates yield false.
func eventFromUpdate(u *tele.Update) (relay.Event, bool) {
	if u == nil {
		return relay.Event{}, false
	}
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return relay.Event{Kind: relay.KindMessage, ChatID: u.Message.Chat.ID, MessageID: u.Message.ID}, true
	case u.ChannelPost != nil && u.ChannelPost.Chat != nil:
		return relay.Event{Kind: relay.KindChannelPost, ChatID: u.ChannelPost.Chat.ID, MessageID: u.ChannelPost.ID}, true
	}
	return relay.Event{}, false
}

// intercept runs on the poll goroutine. It always returns false: the update
// is consumed here and never reaches telebot's handler table.
func (a *Adapter) intercept(u *tele.Update) bool {
	a.received.Add(1)
	ev, ok := eventFromUpdate(u)
	if !ok {
		a.ignored.Add(1)
		return false
	}
	out, _ := a.out.Load().(chan<- relay.Event)
	if out == nil {
		a.ignored.Add(1)
		return false
	}

	var done <-chan struct{}
	a.runMu.Lock()
	if a.sup != nil {
		done = a.sup.Context().Done()
	}
	a.runMu.Unlock()
	if done == nil {
		a.ignored.Add(1)
		return false
	}

	// Block rather than drop: holding the poll loop applies backpressure to
	// getUpdates and keeps every update in order.
	select {
	case out <- ev:
	case <-done:
	}
	return false
}

func (a *Adapter) Start(ctx context.Context, out chan<- relay.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	if a.cfg.DropPendingUpdates {
		if err := a.bot.RemoveWebhook(true); err != nil {
			a.log.Warn("dropping pending updates failed", logx.Err(err))
		} else {
			a.log.Debug("pending updates dropped")
		}
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Start only returns after Stop; an early return is restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- relay.Event
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping",
		logx.Int64("updates_received", int64(a.received.Load())),
		logx.Int64("updates_ignored", int64(a.ignored.Load())),
	)
	sup.Cancel()

	// Never hold shutdown on a long-poll request still in flight.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// CopyMessage copies message messageID of chat from into chat to, without
// the "forwarded from" header.
func (a *Adapter) CopyMessage(ctx context.Context, to, from int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: from}
	_, err := a.bot.Copy(&tele.Chat{ID: to}, src)
	return err
}
