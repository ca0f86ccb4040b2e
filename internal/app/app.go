package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/relay"
	"chatrelay/internal/runtime/supervisor"
	"chatrelay/internal/services/retention"
	"chatrelay/internal/storage"
	"chatrelay/internal/transport/httpapi"
	"chatrelay/internal/transport/telegram"
	logx "chatrelay/pkg/logx"
	"chatrelay/pkg/systemd"
)

// App wires the relay store, the Telegram feed and the HTTP control surface.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   *relay.Store
	fwd     *relay.Forwarder
	adapter *telegram.Adapter
	http    *httpapi.Service

	db        storage.Store // nil when storage is disabled
	writer    *storage.Writer
	retention *retention.Service

	events chan relay.Event
}

type options struct {
	telegramURL string
}

type Option func(*options)

// WithTelegramEndpoint points the bot at another Bot API server and skips
// the startup getMe call.
func WithTelegramEndpoint(url string) Option {
	return func(o *options) { o.telegramURL = url }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	token, err := config.ResolveToken(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log, logErr := logx.NewService(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	if logErr != nil {
		appLog.Warn("log file unavailable; logging to console", logx.Err(logErr))
	}

	a := &App{
		cfgm: cfgm,
		log:  appLog,
		logs: logSvc,
	}

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.db = db
		a.writer = storage.NewWriter(db, cfg.Storage.QueueSize, log.With(logx.String("comp", "storage.writer")))
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a.store = relay.NewStore(cfg.Relay.LogCapacity, relay.SinkFunc(a.record))
	if a.db != nil && cfg.Storage.RestoreOnStart {
		if err := a.restoreLog(cfg.Relay.LogCapacity); err != nil {
			appLog.Warn("log restore failed; starting empty", logx.Err(err))
		}
	}

	tcfg, err := mapTelegramConfig(cfg, token)
	if err != nil {
		a.closeEarly()
		return nil, err
	}
	if o.telegramURL != "" {
		tcfg.URL = o.telegramURL
		tcfg.Offline = true
	}
	a.adapter, err = telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		a.closeEarly()
		return nil, err
	}

	a.fwd = relay.NewForwarder(a.store, a.adapter, log.With(logx.String("comp", "relay")))
	a.fwd.SetRateLimit(cfg.Relay.RatePerSec, cfg.Relay.Burst)

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		a.closeEarly()
		return nil, err
	}
	a.http = httpapi.New(hcfg, a.store, log.With(logx.String("comp", "http")))

	rcfg, err := mapRetentionConfig(cfg)
	if err != nil {
		a.closeEarly()
		return nil, err
	}
	var pruner retention.Pruner
	if a.db != nil {
		pruner = a.db
	}
	a.retention = retention.New(rcfg, pruner, log.With(logx.String("comp", "retention")))

	queue := cfg.Relay.QueueSize
	if queue <= 0 {
		queue = config.DefaultQueueSize
	}
	a.events = make(chan relay.Event, queue)

	if src, dst := cfg.Relay.SourceChatID, cfg.Relay.TargetChatID; src != nil && dst != nil {
		a.store.SetConfig(*src, *dst)
	}
	return a, nil
}

// record mirrors each relay log line to storage and to the systemd status.
func (a *App) record(e relay.Entry) {
	if a.writer != nil {
		a.writer.Enqueue(storage.Entry(e))
	}
	if _, err := systemd.Status(e.Text); err != nil {
		a.log.Debug("systemd status failed", logx.Err(err))
	}
}

func relayStatus(store *relay.Store) string {
	cfg, ok := store.Config()
	if !ok {
		return "waiting for POST /start"
	}
	return fmt.Sprintf("relaying %d -> %d", cfg.Source, cfg.Target)
}

func (a *App) restoreLog(limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	es, err := a.db.RecentLogs(ctx, limit)
	if err != nil {
		return err
	}
	out := make([]relay.Entry, len(es))
	for i, e := range es {
		out[i] = relay.Entry(e)
	}
	a.store.Restore(out)
	a.log.Info("relay log restored", logx.Int("entries", len(out)))
	return nil
}

func (a *App) closeEarly() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Store exposes the relay store (tests, diagnostics).
func (a *App) Store() *relay.Store { return a.store }

// HTTPAddr returns the bound control-surface address once listening.
func (a *App) HTTPAddr() string { return a.http.Addr() }

// HTTPReady is closed after the control surface first listens.
func (a *App) HTTPReady() <-chan struct{} { return a.http.Ready() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Logging.File.Enabled {
			dir := filepath.Dir(strings.TrimSpace(cfg.Logging.File.Path))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("logging.file.path: %w", err)
			}
		}
		return nil
	})

	if a.writer != nil {
		a.sup.Go("storage.writer", a.writer.Run)
	}

	a.sup.Go("relay.dispatch", func(c context.Context) error {
		return a.fwd.Run(c, a.events)
	})

	if err := a.adapter.Start(a.sup.Context(), a.events); err != nil {
		return err
	}

	a.sup.GoRestart("http.serve", a.http.Run,
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(true),
	)

	if err := a.retention.Start(a.sup.Context()); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.RunWatchdog(c, a.log.With(logx.String("comp", "systemd")))
	})
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
		_, _ = systemd.Status(relayStatus(a.store))
	}

	a.log.Info("Bot is running...")
	return nil
}

// applyConfig hot-applies logging and relay throttling.
func (a *App) applyConfig(prev, next *config.Config) {
	if next == nil {
		return
	}
	if err := a.logs.Apply(mapLogConfig(next)); err != nil {
		a.log.Warn("logging reconfigure incomplete", logx.Err(err))
	}
	a.fwd.SetRateLimit(next.Relay.RatePerSec, next.Relay.Burst)

	if sections := restartRequired(prev, next); len(sections) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(sections, ",")))
	}
	a.log.Info("config reloaded",
		logx.String("level", next.Logging.Level),
		logx.Any("rate_per_sec", next.Relay.RatePerSec),
		logx.Int("burst", next.Relay.Burst),
	)
}

// Stop shuts every component down. Each step is bounded so one stuck
// component cannot hold the others.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(stepCtx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("telegram.adapter", 3*time.Second, a.adapter.Stop)
	step("retention", 2*time.Second, func(c context.Context) error {
		a.retention.Stop(c)
		return nil
	})

	a.sup.Cancel()
	step("supervisor", 8*time.Second, func(c context.Context) error {
		err := a.sup.Stop(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	counters := a.sup.Counters()
	a.log.Info("supervisor stopped",
		logx.Int64("started", int64(counters.Started)),
		logx.Int64("still_active", counters.Active),
	)

	if a.db != nil {
		step("storage.close", 2*time.Second, func(context.Context) error { return a.db.Close() })
	}
	if a.writer != nil {
		written, dropped, failed := a.writer.Stats()
		a.log.Info("storage writer stats",
			logx.Int64("written", int64(written)),
			logx.Int64("dropped", int64(dropped)),
			logx.Int64("failed", int64(failed)),
		)
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
