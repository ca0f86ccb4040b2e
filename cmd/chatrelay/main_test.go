package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"chatrelay/internal/config"
	"chatrelay/internal/storage"
	logx "chatrelay/pkg/logx"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLogsCommand(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "relay.jsonl")
	st, err := storage.Open(storage.Config{Driver: "file", Path: logPath}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, line := range []string{"a", "b", "c"} {
		_ = st.AppendLog(context.Background(), storage.Entry{ID: line, At: time.Now(), Text: line})
	}
	_ = st.Close()

	cfgPath := filepath.Join(dir, "c.json")
	body := `{"logging":{"console":false},"storage":{"driver":"file","path":"` + filepath.ToSlash(logPath) + `"}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvPort, "")

	out, err := run(t, "", "logs", "--config", cfgPath, "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "b\nc\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestLogsCommandStorageDisabled(t *testing.T) {
	t.Setenv(config.EnvPort, "")
	_, err := run(t, "", "logs", "--config", "")
	if err == nil || !strings.Contains(err.Error(), "storage is disabled") {
		t.Fatalf("want disabled error, got %v", err)
	}
}

func TestTokenSet(t *testing.T) {
	keyring.MockInit()
	if _, err := run(t, "secret-token\n", "token", "set", "--account", "ops"); err != nil {
		t.Fatalf("token set: %v", err)
	}
	got, err := keyring.Get(config.DefaultKeyringName, "ops")
	if err != nil || got != "secret-token" {
		t.Fatalf("keychain = %q, %v", got, err)
	}
	if _, err := run(t, "\n", "token", "set"); err == nil {
		t.Fatalf("empty token accepted")
	}
}
