package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
)

// PricePublisher receives gate-approved price changes. Implementations may
// dispatch asynchronously; the watcher's state is final before the call.
type PricePublisher interface {
	PublishPriceChange(ctx context.Context, snap fetcher.PriceSnapshot, deltaBuy decimal.Decimal, validity Validity)
}

// PriceWatcherOptions tune change detection.
type PriceWatcherOptions struct {
	// MinChange is the absolute rate movement below which a change is
	// absorbed without broadcasting.
	MinChange decimal.Decimal
	// Cooldown is the nominal minimum interval between broadcasts.
	Cooldown time.Duration
	// StaleAfter marks the watcher stale when no broadcast happened for this
	// long; a stale watcher broadcasts the next qualifying change immediately.
	StaleAfter time.Duration
	// FetchTimeout bounds the primary feed call.
	FetchTimeout time.Duration
	// RingSize bounds the retained snapshot history.
	RingSize int
}

// PriceStats is a read-only view of the watcher for the HTTP surface.
type PriceStats struct {
	LastKnown        fetcher.PriceSnapshot
	LastBroadcast    fetcher.PriceSnapshot
	LastPriceUpdate  time.Time
	LastBroadcastAt  time.Time
	BroadcastCount   int64
	Stale            bool
	StaleAfter       time.Duration
}

// PriceWatcher polls the primary rate feed, tracks the last-known and
// last-broadcast snapshots, and decides when a change is announced.
type PriceWatcher struct {
	rates     fetcher.RateFetcher
	market    func() feed.MarketData
	publisher PricePublisher
	opts      PriceWatcherOptions
	logger    zerolog.Logger
	clock     func() time.Time
	ring      *SnapshotRing

	mu              sync.Mutex
	lastKnown       fetcher.PriceSnapshot
	lastBroadcast   fetcher.PriceSnapshot
	lastPriceUpdate time.Time
	lastBroadcastAt time.Time
	broadcasts      int64
	lastStatus      PriceStatus
}

// NewPriceWatcher constructs the watcher. market provides the current
// reference data without blocking; publisher receives approved changes.
func NewPriceWatcher(rates fetcher.RateFetcher, market func() feed.MarketData, publisher PricePublisher, opts PriceWatcherOptions, logger zerolog.Logger) *PriceWatcher {
	if opts.MinChange.IsZero() {
		opts.MinChange = decimal.NewFromInt(1)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 50 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 3 * time.Second
	}
	return &PriceWatcher{
		rates:     rates,
		market:    market,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With().Str("component", "price_watcher").Logger(),
		clock:     time.Now,
		ring:      NewSnapshotRing(opts.RingSize),
	}
}

// Tick runs one poll cycle. Fetch failures are transient skips; all state
// stays untouched so the staleness clock keeps running.
func (w *PriceWatcher) Tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	snap, err := w.rates.FetchRate(fetchCtx)
	cancel()
	if err != nil {
		w.logger.Debug().Err(err).Msg("rate fetch failed, skipping tick")
		return
	}

	w.ring.Append(snap)
	validity := Classify(snap, w.market())

	now := w.clock()

	w.mu.Lock()
	w.observeValidity(validity)

	// First successful poll seeds both slots and never broadcasts.
	if w.lastKnown.IsZero() {
		w.lastKnown = snap
		w.lastBroadcast = snap
		w.lastPriceUpdate = now
		w.mu.Unlock()
		w.logger.Info().
			Str("buy", snap.Buy.String()).
			Str("sell", snap.Sell.String()).
			Msg("seeded initial price")
		return
	}

	if snap.SameRates(w.lastKnown) {
		w.lastKnown = snap
		lastUpdate := w.lastPriceUpdate
		w.mu.Unlock()
		if now.Sub(lastUpdate) >= w.opts.StaleAfter {
			w.logger.Debug().Time("last_update", lastUpdate).Msg("price feed stale")
		}
		return
	}

	// Delta is measured against the last broadcast so absorbed changes
	// accumulate until they are announced.
	deltaBuy := snap.Buy.Sub(w.lastBroadcast.Buy)
	deltaSell := snap.Sell.Sub(w.lastBroadcast.Sell)
	if deltaBuy.Abs().LessThan(w.opts.MinChange) && deltaSell.Abs().LessThan(w.opts.MinChange) {
		w.lastKnown = snap
		w.lastPriceUpdate = now
		w.mu.Unlock()
		return
	}

	if !w.gateOpen(now) {
		w.lastKnown = snap
		w.lastPriceUpdate = now
		w.mu.Unlock()
		w.logger.Debug().
			Str("delta_buy", deltaBuy.String()).
			Msg("change recorded, gate closed")
		return
	}

	// Gate passed: commit state before dispatching so a delivery failure can
	// never replay the same delta.
	w.lastKnown = snap
	w.lastPriceUpdate = now
	w.lastBroadcast = snap
	w.lastBroadcastAt = now
	w.broadcasts++
	w.mu.Unlock()

	w.logger.Info().
		Str("delta_buy", deltaBuy.String()).
		Str("delta_sell", deltaSell.String()).
		Msg("broadcasting price change")
	w.publisher.PublishPriceChange(ctx, snap, deltaBuy, validity)
}

// gateOpen decides whether a qualifying change is announced now. Stale
// watchers fire immediately; otherwise the cooldown must have elapsed or the
// wall-clock minute advanced since the last broadcast. The minute-boundary
// alternative intentionally allows a faster cadence right after rollover.
func (w *PriceWatcher) gateOpen(now time.Time) bool {
	if w.lastBroadcastAt.IsZero() {
		return true
	}
	since := now.Sub(w.lastBroadcastAt)
	if since >= w.opts.StaleAfter {
		return true
	}
	if since >= w.opts.Cooldown {
		return true
	}
	return !now.Truncate(time.Minute).Equal(w.lastBroadcastAt.Truncate(time.Minute))
}

// observeValidity logs NORMAL/ABNORMAL transitions. Must hold w.mu.
func (w *PriceWatcher) observeValidity(v Validity) {
	if v.Status == StatusIndeterminate || v.Status == w.lastStatus {
		return
	}
	if w.lastStatus != StatusIndeterminate {
		w.logger.Warn().
			Str("from", w.lastStatus.String()).
			Str("to", v.Status.String()).
			Msg("price validity transition")
	}
	w.lastStatus = v.Status
}

// Stats returns a consistent snapshot of the watcher state.
func (w *PriceWatcher) Stats() PriceStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stale := false
	if !w.lastPriceUpdate.IsZero() {
		stale = w.clock().Sub(w.lastPriceUpdate) >= w.opts.StaleAfter
	}
	return PriceStats{
		LastKnown:       w.lastKnown,
		LastBroadcast:   w.lastBroadcast,
		LastPriceUpdate: w.lastPriceUpdate,
		LastBroadcastAt: w.lastBroadcastAt,
		BroadcastCount:  w.broadcasts,
		Stale:           stale,
		StaleAfter:      w.opts.StaleAfter,
	}
}

// History exposes the retained snapshot ring, oldest first.
func (w *PriceWatcher) History() []fetcher.PriceSnapshot {
	return w.ring.Points()
}
