package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks a fully merged config (file + env). It does not require
// the token; see ResolveToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.HTTP.Addr)); err != nil {
		errs = append(errs, fmt.Errorf("http.addr: %w", err))
	}
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	} {
		if _, err := ParseDuration(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.HTTP.Pprof.MutexProfileFraction < 0 || cfg.HTTP.Pprof.BlockProfileRate < 0 {
		errs = append(errs, errors.New("http.pprof profile rates must be >= 0"))
	}

	if cfg.Relay.LogCapacity < 0 {
		errs = append(errs, errors.New("relay.log_capacity must be >= 0"))
	}
	if cfg.Relay.RatePerSec < 0 {
		errs = append(errs, errors.New("relay.rate_per_sec must be >= 0"))
	}
	if cfg.Relay.Burst < 0 {
		errs = append(errs, errors.New("relay.burst must be >= 0"))
	}
	if cfg.Relay.QueueSize < 0 {
		errs = append(errs, errors.New("relay.queue_size must be >= 0"))
	}
	if (cfg.Relay.SourceChatID == nil) != (cfg.Relay.TargetChatID == nil) {
		errs = append(errs, errors.New("relay.source_chat_id and relay.target_chat_id must be set together"))
	}

	if err := validateStorage(cfg.Storage); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateStorage(sc StorageConfig) error {
	switch StorageDriver(sc) {
	case "":
		return nil
	case "file", "sqlite":
		if strings.TrimSpace(sc.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.driver=%s", sc.Driver)
		}
	case "postgres":
		if strings.TrimSpace(sc.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	if _, err := ParseDuration("storage.busy_timeout", sc.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDuration("storage.retention", sc.Retention); err != nil {
		return err
	}
	if spec := strings.TrimSpace(sc.PruneSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("storage.prune_schedule: invalid %q: %w", spec, err)
		}
	}
	if sc.QueueSize < 0 {
		return errors.New("storage.queue_size must be >= 0")
	}
	return nil
}

// StorageDriver returns the normalized driver name, "" when storage is disabled.
func StorageDriver(sc StorageConfig) string {
	d := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch d {
	case "none":
		return ""
	case "sqlite3":
		return "sqlite"
	case "postgresql", "pg":
		return "postgres"
	}
	return d
}

// ParseDuration parses an optional, non-negative Go duration string.
// path names the config key in errors.
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDuration with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
