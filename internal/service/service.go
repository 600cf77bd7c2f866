package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gold-rate-alerts/internal/broadcast"
	"gold-rate-alerts/internal/calendar"
	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
	"gold-rate-alerts/internal/promo"
	"gold-rate-alerts/internal/registry"
	"gold-rate-alerts/internal/render"
	"gold-rate-alerts/internal/scheduler"
	"gold-rate-alerts/internal/storage"
	"gold-rate-alerts/internal/watcher"
)

// Options configure the orchestrator's loops.
type Options struct {
	PriceInterval time.Duration
	PromoInterval time.Duration
	// DeliveryTimeout bounds one complete fan-out.
	DeliveryTimeout time.Duration
	// RetentionMaxAge caps how long audit rows are kept.
	RetentionMaxAge time.Duration
}

// Service owns the watcher loops and routes their decisions into the
// fan-out. It implements the publisher capabilities of both watchers and the
// on-demand reporter for the command surface.
type Service struct {
	opts     Options
	rates    fetcher.RateFetcher
	market   *feed.MarketFeed
	fanout   *broadcast.Fanout
	registry *registry.SubscriptionSet
	calendar *calendar.Client
	store    storage.BroadcastStore
	logger   zerolog.Logger

	prices *watcher.PriceWatcher
	status *watcher.StatusWatcher

	mu      sync.Mutex
	baseCtx context.Context
}

// New constructs the service. calendar, promoClient, and store may be nil
// when the corresponding feature is disabled.
func New(
	opts Options,
	rates fetcher.RateFetcher,
	market *feed.MarketFeed,
	fanout *broadcast.Fanout,
	reg *registry.SubscriptionSet,
	cal *calendar.Client,
	promoClient watcher.StatusFetcher,
	store storage.BroadcastStore,
	priceOpts watcher.PriceWatcherOptions,
	statusOpts watcher.StatusWatcherOptions,
	logger zerolog.Logger,
) *Service {
	if opts.PriceInterval <= 0 {
		opts.PriceInterval = time.Second
	}
	if opts.PromoInterval <= 0 {
		opts.PromoInterval = time.Second
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = time.Minute
	}
	if opts.RetentionMaxAge <= 0 {
		opts.RetentionMaxAge = 30 * 24 * time.Hour
	}

	s := &Service{
		opts:     opts,
		rates:    rates,
		market:   market,
		fanout:   fanout,
		registry: reg,
		calendar: cal,
		store:    store,
		logger:   logger.With().Str("component", "service").Logger(),
		baseCtx:  context.Background(),
	}

	s.prices = watcher.NewPriceWatcher(rates, market.Snapshot, s, priceOpts, logger)
	if promoClient != nil {
		s.status = watcher.NewStatusWatcher(promoClient, s, reg.Len, statusOpts, logger)
	}
	return s
}

// Prices exposes the price watcher for the HTTP surface.
func (s *Service) Prices() *watcher.PriceWatcher { return s.prices }

// Status exposes the promo watcher; nil when promo is disabled.
func (s *Service) Status() *watcher.StatusWatcher { return s.status }

// Run starts every loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	var wg sync.WaitGroup

	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	run(s.market.Run)
	run(s.fanout.PruneLoop)

	priceLoop := scheduler.New("price", scheduler.Options{Interval: s.opts.PriceInterval}, s.logger)
	run(func(ctx context.Context) {
		if err := priceLoop.Run(ctx, s.prices.Tick); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("price loop terminated")
		}
	})

	if s.status != nil {
		promoLoop := scheduler.New("promo", scheduler.Options{Interval: s.opts.PromoInterval}, s.logger)
		run(func(ctx context.Context) {
			if err := promoLoop.Run(ctx, s.status.Tick); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("promo loop terminated")
			}
		})
	}

	if s.calendar != nil {
		// Keeps the cache warm so broadcasts can decorate without waiting.
		calendarLoop := scheduler.New("calendar", scheduler.Options{Interval: time.Minute}, s.logger)
		run(func(ctx context.Context) {
			_ = calendarLoop.Run(ctx, func(ctx context.Context) {
				if _, err := s.calendar.Events(ctx); err != nil {
					s.logger.Debug().Err(err).Msg("calendar refresh failed")
				}
			})
		})
	}

	if s.store != nil {
		retentionLoop := scheduler.New("retention", scheduler.Options{Interval: time.Hour}, s.logger)
		run(func(ctx context.Context) {
			_ = retentionLoop.Run(ctx, func(ctx context.Context) {
				cutoff := time.Now().Add(-s.opts.RetentionMaxAge)
				if err := s.store.DeleteBroadcastsBefore(ctx, cutoff); err != nil {
					s.logger.Error().Err(err).Msg("audit retention sweep failed")
				}
			})
		})
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// PublishPriceChange renders and fans out a gate-approved price change. The
// watcher's state is already committed; delivery runs detached so a slow
// transport can never stall the poll loop.
func (s *Service) PublishPriceChange(ctx context.Context, snap fetcher.PriceSnapshot, deltaBuy decimal.Decimal, validity watcher.Validity) {
	text := render.PriceMessage(render.PriceMessageParams{
		Snapshot:        snap,
		DeltaBuy:        deltaBuy,
		StatusLine:      validity.Line(),
		Market:          s.market.Snapshot(),
		CalendarSection: s.calendarSection(),
	})

	go s.deliver(storage.KindPrice, text, snap, deltaBuy)
}

// PublishStatusChange fans out the minimal promo message.
func (s *Service) PublishStatusChange(ctx context.Context, status promo.Status) {
	text := render.PromoMessage(status == promo.StatusOn)
	go s.deliver(storage.KindPromo, text, fetcher.PriceSnapshot{}, decimal.Zero)
}

func (s *Service) deliver(kind, text string, snap fetcher.PriceSnapshot, deltaBuy decimal.Decimal) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.opts.DeliveryTimeout)
	defer cancel()

	recipients := s.registry.List()
	if len(recipients) == 0 {
		s.logger.Debug().Str("kind", kind).Msg("no recipients, broadcast dropped")
		return
	}

	res, err := s.fanout.Send(ctx, text, recipients, broadcast.SendOptions{Pin: kind == storage.KindPromo})
	if err != nil {
		if errors.Is(err, broadcast.ErrBusy) {
			s.logger.Debug().Str("kind", kind).Msg("fan-out busy, dropped")
			return
		}
		s.logger.Error().Err(err).Str("kind", kind).Msg("fan-out aborted")
		return
	}

	s.audit(ctx, kind, snap, deltaBuy, res)
}

// audit records the outcome best-effort; a storage failure is never more
// than a log line.
func (s *Service) audit(ctx context.Context, kind string, snap fetcher.PriceSnapshot, deltaBuy decimal.Decimal, res broadcast.Result) {
	if s.store == nil {
		return
	}
	_, err := s.store.InsertBroadcast(ctx, storage.BroadcastRecord{
		SentAt:   time.Now().UTC(),
		Kind:     kind,
		Buy:      snap.Buy,
		Sell:     snap.Sell,
		DeltaBuy: deltaBuy,
		Sent:     res.Sent,
		Skipped:  res.Skipped,
		Failed:   res.Failed,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("failed to persist broadcast record")
	}
}

// Report produces the on-demand price message for the trigger word. A fetch
// failure degrades to the fixed fallback string, never an error.
func (s *Service) Report(ctx context.Context) string {
	snap, err := s.rates.FetchRate(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("on-demand fetch failed")
		return render.Unavailable
	}

	market := s.market.Snapshot()
	return render.PriceMessage(render.PriceMessageParams{
		Snapshot:        snap,
		StatusLine:      watcher.Classify(snap, market).Line(),
		Market:          market,
		CalendarSection: s.calendarSection(),
	})
}

func (s *Service) calendarSection() string {
	if s.calendar == nil {
		return ""
	}
	// Cached events only; a broadcast never waits on the calendar upstream.
	return calendar.Format(s.calendar.Cached(), time.Now())
}
