package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvBotToken = "BOT_TOKEN"
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvConfig   = "CHATRELAY_CONFIG"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Existing variables win; missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	if tok := strings.TrimSpace(getenv(EnvBotToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
	if port := strings.TrimSpace(getenv(EnvPort)); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, port)
		}
		cfg.HTTP.Addr = ":" + strconv.Itoa(n)
	}
	if lvl := strings.TrimSpace(getenv(EnvLogLevel)); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return nil
}
