package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-alerts/internal/promo"
)

// StatusFetcher reads the current promotional status.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (promo.Status, error)
}

// StatusPublisher receives debounced status changes.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, status promo.Status)
}

// StatusWatcherOptions tune the promo poll loop.
type StatusWatcherOptions struct {
	// Cooldown suppresses re-announcement of rapid flips.
	Cooldown time.Duration
	// FetchTimeout bounds the status feed call.
	FetchTimeout time.Duration
}

// StatusWatcher polls the promotional status and announces transitions. The
// first observation after start arms the watcher without broadcasting, so a
// restart never replays the standing status as news.
type StatusWatcher struct {
	fetch      StatusFetcher
	publisher  StatusPublisher
	recipients func() int
	opts       StatusWatcherOptions
	logger     zerolog.Logger
	clock      func() time.Time

	mu                  sync.Mutex
	armed               bool
	current             promo.Status
	lastBroadcastStatus promo.Status
	lastBroadcastAt     time.Time
}

// NewStatusWatcher constructs the watcher. recipients reports the current
// subscriber count; broadcasts are pointless with nobody listening.
func NewStatusWatcher(fetch StatusFetcher, publisher StatusPublisher, recipients func() int, opts StatusWatcherOptions, logger zerolog.Logger) *StatusWatcher {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 60 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &StatusWatcher{
		fetch:      fetch,
		publisher:  publisher,
		recipients: recipients,
		opts:       opts,
		logger:     logger.With().Str("component", "status_watcher").Logger(),
		clock:      time.Now,
	}
}

// Tick runs one poll cycle. A fetch failure is observed as OFF: an
// unreachable promo API means the promotion cannot be claimed.
func (w *StatusWatcher) Tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	status, err := w.fetch.FetchStatus(fetchCtx)
	cancel()
	if err != nil {
		w.logger.Debug().Err(err).Msg("status fetch failed, treating as OFF")
		status = promo.StatusOff
	}

	w.mu.Lock()
	w.current = status

	if !w.armed {
		w.armed = true
		w.lastBroadcastStatus = status
		w.mu.Unlock()
		w.logger.Info().Str("status", status.String()).Msg("initial promo status observed, broadcast suppressed")
		return
	}

	if status == w.lastBroadcastStatus {
		w.mu.Unlock()
		return
	}

	now := w.clock()
	if now.Sub(w.lastBroadcastAt) < w.opts.Cooldown {
		w.mu.Unlock()
		// A flip back before the cooldown expires cancels the announcement.
		w.logger.Debug().Str("status", status.String()).Msg("status change within cooldown, deferred")
		return
	}
	if w.recipients() == 0 {
		w.mu.Unlock()
		w.logger.Debug().Str("status", status.String()).Msg("status change with no recipients, skipped")
		return
	}

	w.lastBroadcastStatus = status
	w.lastBroadcastAt = now
	w.mu.Unlock()

	w.logger.Info().Str("status", status.String()).Msg("broadcasting promo status change")
	w.publisher.PublishStatusChange(ctx, status)
}

// Current returns the most recently observed status.
func (w *StatusWatcher) Current() promo.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
