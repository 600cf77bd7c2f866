package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MarketData is the auxiliary market context used for price-validity banding.
// Either field may be nil when its feed has never produced a value; analysis
// then degrades to indeterminate rather than failing.
type MarketData struct {
	SpotUSD   *decimal.Decimal
	FXRate    *decimal.Decimal
	FetchedAt time.Time
}

// MarketFeed keeps the XAU/USD spot and USD/IDR rate warm in the background
// so broadcast rendering never waits on a scrape.
type MarketFeed struct {
	spot     *Cached
	fx       *Cached
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// MarketFeedOptions tune the refresher loop.
type MarketFeedOptions struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

// NewMarketFeed constructs the feed over the two cached quantities.
func NewMarketFeed(spot, fx *Cached, opts MarketFeedOptions, logger zerolog.Logger) *MarketFeed {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &MarketFeed{
		spot:     spot,
		fx:       fx,
		interval: opts.RefreshInterval,
		timeout:  opts.FetchTimeout,
		logger:   logger.With().Str("component", "market_feed").Logger(),
	}
}

// Run refreshes both quantities until ctx is cancelled. Each cache enforces
// its own freshness window, so most ticks are no-ops.
func (m *MarketFeed) Run(ctx context.Context) {
	m.refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *MarketFeed) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.spot.Get(fetchCtx); err != nil {
		m.logger.Debug().Err(err).Msg("spot refresh failed, keeping old value")
	}
	if _, err := m.fx.Get(fetchCtx); err != nil {
		m.logger.Debug().Err(err).Msg("fx refresh failed, keeping old value")
	}
}

// Snapshot returns the current reference data without touching upstreams.
func (m *MarketFeed) Snapshot() MarketData {
	var md MarketData
	if v, at, ok := m.spot.Peek(); ok {
		spot := v
		md.SpotUSD = &spot
		md.FetchedAt = at
	}
	if v, at, ok := m.fx.Peek(); ok {
		fx := v
		md.FXRate = &fx
		if at.After(md.FetchedAt) {
			md.FetchedAt = at
		}
	}
	return md
}
