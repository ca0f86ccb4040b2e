package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/observability/pprof"
	"chatrelay/internal/relay"
	logx "chatrelay/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Config controls the control-surface listener.
type Config struct {
	Addr        string
	CORSOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Pprof pprof.Config
}

// Service serves the control surface. Run owns one listen/serve cycle and is
// meant to be driven by a supervisor restart loop.
type Service struct {
	cfg     Config
	log     logx.Logger
	handler http.Handler

	mu    sync.Mutex
	bound string
	ready chan struct{}
}

func New(cfg Config, store *relay.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := NewRouter(store, cfg.CORSOrigins, log)
	if err := pprof.Mount(r, cfg.Pprof, listenAddr(cfg.Addr), log.With(logx.String("comp", "pprof"))); err != nil {
		log.Error("pprof refused to mount", logx.Err(err))
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		handler: r,
		ready:   make(chan struct{}),
	}
}

func (s *Service) Handler() http.Handler { return s.handler }

// Addr returns the bound listen address, "" before the first successful listen.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Ready is closed once the server has listened at least once.
func (s *Service) Ready() <-chan struct{} { return s.ready }

func listenAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":5000"
	}
	return addr
}

// Run listens and serves until ctx is done, then shuts down gracefully.
// A listen or serve failure is returned so the caller can retry.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", listenAddr(s.cfg.Addr))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.bound = ln.Addr().String()
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		_ = srv.Close()
	}
	<-errCh
	s.log.Info("http stopped")
	return nil
}
