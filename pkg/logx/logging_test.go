package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFieldsAndWith(t *testing.T) {
	var buf bytes.Buffer
	log := Logger{base: zerolog.New(&buf), hasBase: true}.With(String("comp", "relay"))

	log.Info("copied", Int64("chat_id", -100123), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "relay" {
		t.Fatalf("comp = %v, want relay", m["comp"])
	}
	if m["chat_id"] != float64(-100123) {
		t.Fatalf("chat_id = %v, want -100123", m["chat_id"])
	}
	if m["message"] != "copied" {
		t.Fatalf("message = %v, want copied", m["message"])
	}
	if _, ok := m[zerolog.CallerFieldName]; !ok {
		t.Fatal("expected caller field")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	// Must not panic.
	l.Info("nothing")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestServiceFileSinkAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	svc, log, err := NewService(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	log.Debug("first")
	if err := svc.Apply(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	log.Info("suppressed")
	log.Warn("second")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"first"`) || !strings.Contains(out, `"second"`) {
		t.Fatalf("missing expected lines: %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
}

func TestApplyKeepsFileSinkWhenNewPathFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.log")
	var console bytes.Buffer
	svc, log, err := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}, ConsoleOut: &console})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	bad := filepath.Join(dir, "missing", "relay.log")
	if err := svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: bad}, ConsoleOut: &console}); err == nil {
		t.Fatal("expected open error")
	}
	log.Info("still on file")

	b, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(b), "still on file") {
		t.Fatalf("file sink lost: %q, %v", b, err)
	}
}

func TestConsoleFallbackAndOutput(t *testing.T) {
	var console bytes.Buffer
	bad := filepath.Join(t.TempDir(), "missing", "relay.log")
	svc, log, err := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: bad}, ConsoleOut: &console})
	if err == nil {
		t.Fatal("expected open error")
	}
	t.Cleanup(func() { _ = svc.Close() })

	log.With(String("comp", "relay")).Info("copied")
	if out := console.String(); !strings.Contains(out, "copied") || !strings.Contains(out, "relay") {
		t.Fatalf("console = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" INFO ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
