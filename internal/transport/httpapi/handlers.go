package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chatrelay/internal/relay"
	logx "chatrelay/pkg/logx"
)

const (
	msgStarted    = "Bot started successfully!"
	msgMissingIDs = "Missing source or target chat ID"
	msgInvalidIDs = "Invalid chat IDs"
)

// maxBodyBytes caps POST /start bodies; a valid one is a few dozen bytes.
const maxBodyBytes = 64 << 10

type handlers struct {
	store *relay.Store
	log   logx.Logger
}

// NewRouter builds the control surface on store.
func NewRouter(store *relay.Store, corsOrigins []string, log logx.Logger) *gin.Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{store: store, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	if c, ok := corsConfig(corsOrigins); ok {
		r.Use(cors.New(c))
	}

	r.POST("/start", h.start)
	r.GET("/logs", h.logs)
	r.GET("/healthz", h.health)
	return r
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = origins
	return c, true
}

func (h *handlers) start(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		body = nil
	}

	source, target, err := parseStartBody(body)
	switch {
	case errors.Is(err, errMissingIDs):
		c.JSON(http.StatusBadRequest, gin.H{"message": msgMissingIDs})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidIDs})
		return
	}

	h.store.SetConfig(source, target)
	h.log.Info("relay configured", logx.Int64("source", source), logx.Int64("target", target))
	c.JSON(http.StatusOK, gin.H{"message": msgStarted})
}

func (h *handlers) logs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": h.store.Logs()})
}

func (h *handlers) health(c *gin.Context) {
	_, configured := h.store.Config()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "configured": configured})
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		)
	}
}
