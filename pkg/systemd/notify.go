// Package systemd talks to the service manager over sd_notify.
// Every call is a no-op when the process is not run by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "chatrelay/pkg/logx"
)

// Ready reports startup completion. sent is false outside systemd.
func Ready() (sent bool, err error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping reports that shutdown has begun.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(s string) (bool, error) { return daemon.SdNotify(false, "STATUS="+s) }

// WatchdogInterval returns the unit's WatchdogSec, 0 when disabled.
func WatchdogInterval() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }

// RunWatchdog pings the watchdog at half its interval until ctx is done.
// It returns immediately when the watchdog is disabled.
func RunWatchdog(ctx context.Context, log logx.Logger) error {
	every, err := WatchdogInterval()
	if err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}
	every /= 2
	log.Debug("systemd watchdog enabled", logx.Duration("every", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("systemd watchdog ping failed", logx.Err(err))
			}
		}
	}
}
