package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig

	// ConsoleOut receives console output; nil means stdout.
	ConsoleOut io.Writer
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./chatrelay.log"
)

var globalsOnce sync.Once

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.TimeFieldFormat = consoleTimeFormat
	})
}

// Service owns the sinks behind every Logger it hands out. The JSON file
// sink and the level can be swapped at runtime with Apply.
type Service struct {
	mu       sync.Mutex
	file     *os.File
	filePath string

	root atomic.Pointer[zerolog.Logger]
}

// NewService applies cfg and returns the service with its live root Logger.
// A sink error is returned alongside a usable service that logs to the
// console instead.
func NewService(cfg Config) (*Service, Logger, error) {
	setGlobals()
	s := &Service{}
	boot := consoleLogger(consoleOut(cfg), parseLevel(cfg.Level, zerolog.InfoLevel))
	s.root.Store(&boot)
	err := s.Apply(cfg)
	return s, Logger{svc: s}, err
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the sinks for cfg. The new root is published before the
// previous file is closed. When the log file cannot be opened the previous
// file sink (if any) is kept and the error is returned.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		openErr error
		next    *os.File
		keep    bool
	)
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		switch {
		case s.file != nil && path == s.filePath:
			next, keep = s.file, true
		default:
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				openErr = fmt.Errorf("logx: open log file %q: %w", path, err)
				next, keep = s.file, s.file != nil
			} else {
				next, s.filePath = f, path
			}
		}
	}

	writers := make([]io.Writer, 0, 2)
	if cfg.Console || next == nil {
		writers = append(writers, consoleWriter(consoleOut(cfg)))
	}
	if next != nil {
		writers = append(writers, zerolog.SyncWriter(next))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	if prev := s.file; prev != nil && !keep {
		_ = prev.Close()
	}
	s.file = next
	if next == nil {
		s.filePath = ""
	}
	return openErr
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file, s.filePath = nil, ""
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func consoleOut(cfg Config) io.Writer {
	if cfg.ConsoleOut != nil {
		return cfg.ConsoleOut
	}
	return os.Stdout
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func consoleLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(consoleWriter(w)).Level(lvl).With().Timestamp().Logger()
}

// parseLevel maps a config string to a level; unknown values yield def.
func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}
