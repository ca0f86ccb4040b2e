package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrMissingToken is returned when no bot token could be found.
var ErrMissingToken = errors.New(EnvBotToken + " is not set")

// ResolveToken returns the bot token: BOT_TOKEN / telegram.token first
// (already merged into cfg), then the OS keychain when an account is configured.
func ResolveToken(cfg *Config) (string, error) {
	if cfg == nil {
		return "", ErrMissingToken
	}
	if tok := strings.TrimSpace(cfg.Telegram.Token); tok != "" {
		return tok, nil
	}

	account := strings.TrimSpace(cfg.Telegram.KeyringAccount)
	if account == "" {
		return "", ErrMissingToken
	}
	service := strings.TrimSpace(cfg.Telegram.KeyringService)
	if service == "" {
		service = DefaultKeyringName
	}

	tok, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w (keychain %s/%s has no entry)", ErrMissingToken, service, account)
		}
		return "", fmt.Errorf("read keychain %s/%s: %w", service, account, err)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// StoreToken saves a token in the OS keychain for later ResolveToken calls.
func StoreToken(service, account, token string) error {
	if strings.TrimSpace(service) == "" {
		service = DefaultKeyringName
	}
	return keyring.Set(service, account, token)
}
