// Package pprof mounts net/http/pprof on the control-surface router.
//
// The handlers are off by default. When the listener is not bound to a
// loopback address a token (or AllowInsecure) is required.
package pprof

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"

	logx "chatrelay/pkg/logx"
)

const DefaultPrefix = "/debug/pprof/"

// ErrInsecure is returned by Mount when the handlers would be reachable
// from other hosts without a token.
var ErrInsecure = errors.New("pprof: non-loopback addr requires token or allow_insecure")

type Config struct {
	Enabled       bool
	Prefix        string
	Token         string
	AllowInsecure bool

	MutexProfileFraction int
	BlockProfileRate     int
}

// Mount registers the profiling endpoints on r. listenAddr is the address
// the router is served on and is only used for the exposure check.
// A disabled config mounts nothing and returns nil.
func Mount(r gin.IRouter, cfg Config, listenAddr string, log logx.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" && !isLoopbackAddr(listenAddr) {
		if !cfg.AllowInsecure {
			return ErrInsecure
		}
		log.Warn("pprof exposed without token on non-loopback addr (insecure)", logx.String("addr", listenAddr))
	}
	applyRuntimeRates(cfg)

	prefix := NormalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	g := r.Group(base, withAuth(tok))
	g.GET("/", gin.WrapF(indexAt(prefix)))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	g.GET("/:profile", gin.WrapF(indexAt(prefix)))

	log.Info("pprof mounted", logx.String("prefix", prefix), logx.Bool("token_set", tok != ""))
	return nil
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			if ah, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				got = strings.TrimSpace(ah)
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Next()
	}
}

func NormalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" || p == "/" {
		return DefaultPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// hpprof.Index resolves named profiles relative to /debug/pprof/.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		r2 := r.Clone(r.Context())
		r2.URL.Path = DefaultPrefix + suffix
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
