// Package api serves the engine's health and status endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/pool"
	"github.com/candlewatch/engine/internal/store"
)

// statusTimeout bounds a round trip through the pool loop.
const statusTimeout = 2 * time.Second

// StatusProvider reports the pool state.
type StatusProvider interface {
	Status(ctx context.Context) (pool.Status, error)
}

// StatusHandler exposes pool and metrics state over HTTP.
type StatusHandler struct {
	Pool    StatusProvider
	Tracker *metrics.Tracker

	// TopMovers is how many movers /stats returns
	TopMovers int
}

// Register mounts the handler's routes.
func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
	r.GET("/shards", h.shards)
	r.GET("/stats", h.stats)
}

// NewRouter builds a gin engine serving h.
func NewRouter(h *StatusHandler, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	h.Register(engine)
	return engine
}

func (h *StatusHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *StatusHandler) ready(c *gin.Context) {
	st, ok := h.poolStatus(c)
	if !ok {
		return
	}
	if !st.Initialized {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_initialized", "shards": len(st.Shards)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "live_shards": st.LiveShards})
}

func (h *StatusHandler) shards(c *gin.Context) {
	st, ok := h.poolStatus(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st)
}

type moverResponse struct {
	Symbol        string    `json:"symbol"`
	Timeframe     string    `json:"timeframe"`
	PercentChange float64   `json:"percent_change"`
	Close         float64   `json:"close"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type statsResponse struct {
	MessagesTotal     int64           `json:"messages_total"`
	CandlesTotal      int64           `json:"candles_total"`
	ParseErrors       int64           `json:"parse_errors"`
	AlertsAbove       int64           `json:"alerts_above"`
	AlertsBelow       int64           `json:"alerts_below"`
	StatusAlerts      int64           `json:"status_alerts"`
	ShardConnects     int64           `json:"shard_connects"`
	ShardDisconnects  int64           `json:"shard_disconnects"`
	DiscoveryFailures int64           `json:"discovery_failures"`
	DedupResets       int64           `json:"dedup_resets"`
	MessageRate       float64         `json:"message_rate"`
	UptimeSeconds     int64           `json:"uptime_seconds"`
	LastMessage       time.Time       `json:"last_message,omitzero"`
	TopMovers         []moverResponse `json:"top_movers"`
}

func (h *StatusHandler) stats(c *gin.Context) {
	s := h.Tracker.Snapshot(h.TopMovers)

	resp := statsResponse{
		MessagesTotal:     s.MessagesTotal,
		CandlesTotal:      s.CandlesTotal,
		ParseErrors:       s.ParseErrors,
		AlertsAbove:       s.AlertsByDirection[store.DirectionAbove],
		AlertsBelow:       s.AlertsByDirection[store.DirectionBelow],
		StatusAlerts:      s.StatusAlerts,
		ShardConnects:     s.ShardConnects,
		ShardDisconnects:  s.ShardDisconnects,
		DiscoveryFailures: s.DiscoveryFailures,
		DedupResets:       s.DedupResets,
		MessageRate:       s.MessageRate,
		UptimeSeconds:     int64(s.Uptime.Seconds()),
		LastMessage:       s.LastMessage,
		TopMovers:         make([]moverResponse, 0, len(s.TopMovers)),
	}
	for _, m := range s.TopMovers {
		resp.TopMovers = append(resp.TopMovers, moverResponse(m))
	}

	c.JSON(http.StatusOK, resp)
}

// poolStatus writes a 503 and returns false when the pool cannot answer.
func (h *StatusHandler) poolStatus(c *gin.Context) (pool.Status, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusTimeout)
	defer cancel()

	st, err := h.Pool.Status(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return pool.Status{}, false
	}
	return st, true
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
