package app

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/observability/pprof"
	"chatrelay/internal/services/retention"
	"chatrelay/internal/storage"
	"chatrelay/internal/transport/httpapi"
	"chatrelay/internal/transport/telegram"
	logx "chatrelay/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	path := strings.TrimSpace(cfg.Logging.File.Path)
	if cfg.Logging.File.Enabled && path != "" {
		path = filepath.Clean(path)
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    path,
		},
	}
}

func mapTelegramConfig(cfg *config.Config, token string) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:              token,
		PollTimeout:        timeout,
		AllowedUpdates:     cfg.Telegram.AllowedUpdates,
		DropPendingUpdates: cfg.Telegram.DropPendingUpdates,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	rt, err := config.ParseDuration("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	wt, err := config.ParseDuration("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	it, err := config.ParseDuration("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  it,
		Pprof: pprof.Config{
			Enabled:              cfg.HTTP.Pprof.Enabled,
			Prefix:               cfg.HTTP.Pprof.Prefix,
			Token:                cfg.HTTP.Pprof.Token,
			AllowInsecure:        cfg.HTTP.Pprof.AllowInsecure,
			MutexProfileFraction: cfg.HTTP.Pprof.MutexProfileFraction,
			BlockProfileRate:     cfg.HTTP.Pprof.BlockProfileRate,
		},
	}, nil
}

// mapStorageConfig reports enabled=false when no driver is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := config.StorageDriver(sc)
	if driver == "" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, true, nil
}

func mapRetentionConfig(cfg *config.Config) (retention.Config, error) {
	keep, err := config.ParseDuration("storage.retention", cfg.Storage.Retention)
	if err != nil {
		return retention.Config{}, err
	}
	return retention.Config{Retention: keep, Schedule: cfg.Storage.PruneSchedule}, nil
}

// restartRequired lists changed sections that are only read at startup.
func restartRequired(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	if !reflect.DeepEqual(prev.Telegram, next.Telegram) {
		out = append(out, "telegram")
	}
	if !reflect.DeepEqual(prev.HTTP, next.HTTP) {
		out = append(out, "http")
	}
	if !reflect.DeepEqual(prev.Storage, next.Storage) {
		out = append(out, "storage")
	}
	pr, nr := prev.Relay, next.Relay
	pr.RatePerSec, pr.Burst = 0, 0
	nr.RatePerSec, nr.Burst = 0, 0
	if !reflect.DeepEqual(pr, nr) {
		out = append(out, "relay")
	}
	return out
}
