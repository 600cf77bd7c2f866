package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gold-rate-alerts/internal/calendar"
	"gold-rate-alerts/internal/registry"
	"gold-rate-alerts/internal/watcher"
)

// Options configure the HTTP read surface.
type Options struct {
	Port int
}

// Deps are the engine components the server exposes read-only views over.
// Promo and Calendar may be nil when those features are disabled.
type Deps struct {
	Registry  *registry.SubscriptionSet
	Prices    *watcher.PriceWatcher
	Promo     *watcher.StatusWatcher
	Calendar  *calendar.Client
	LogTail   func(n int) []string
	Ready     func() bool
	StartedAt time.Time
}

// Server is the diagnostic HTTP surface. It never mutates engine state.
type Server struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
	srv    *http.Server
}

// New constructs the server and its routes.
func New(opts Options, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "server").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.GET("/stats", s.handleStats)
	engine.GET("/calendar", s.handleCalendar)
	engine.GET("/chart", s.handleChart)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: engine,
	}
	return s
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "goldwatcher up")
}

func (s *Server) handleHealth(c *gin.Context) {
	ready := s.deps.Ready()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"timestamp":     time.Now().UnixMilli(),
		"uptime":        int(time.Since(s.deps.StartedAt).Seconds()),
		"ready":         ready,
		"subscriptions": s.deps.Registry.Len(),
		"wsConnected":   ready,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.deps.Prices.Stats()

	payload := gin.H{
		"status":         readyEmoji(s.deps.Ready()),
		"uptime":         int(time.Since(s.deps.StartedAt).Seconds()),
		"subs":           s.deps.Registry.Len(),
		"broadcastCount": stats.BroadcastCount,
		"isPriceStale":   stats.Stale,
		"staleThreshold": stats.StaleAfter.Minutes(),
	}

	if !stats.LastKnown.IsZero() {
		payload["lastPrice"] = gin.H{
			"buy":  stats.LastKnown.Buy.String(),
			"sell": stats.LastKnown.Sell.String(),
		}
	}
	if !stats.LastBroadcast.IsZero() {
		payload["lastBroadcasted"] = gin.H{
			"buy":  stats.LastBroadcast.Buy.String(),
			"sell": stats.LastBroadcast.Sell.String(),
		}
	}
	if !stats.LastBroadcastAt.IsZero() {
		payload["lastBroadcastTime"] = stats.LastBroadcastAt.UTC().Format(time.RFC3339)
		payload["timeSinceLastBroadcast"] = int(time.Since(stats.LastBroadcastAt).Seconds())
	}
	if !stats.LastPriceUpdate.IsZero() {
		payload["lastPriceUpdateTime"] = stats.LastPriceUpdate.UTC().Format(time.RFC3339)
		payload["timeSinceLastPriceUpdate"] = int(time.Since(stats.LastPriceUpdate).Seconds())
	}
	if s.deps.Promo != nil {
		payload["promoStatus"] = s.deps.Promo.Current().String()
	}
	if s.deps.LogTail != nil {
		payload["logs"] = s.deps.LogTail(20)
	}

	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleCalendar(c *gin.Context) {
	if s.deps.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "calendar disabled"})
		return
	}

	events, err := s.deps.Calendar.Events(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     len(events),
		"events":    events,
		"formatted": calendar.Format(events, time.Now()),
	})
}

func readyEmoji(ready bool) string {
	if ready {
		return "🟢"
	}
	return "🔴"
}
