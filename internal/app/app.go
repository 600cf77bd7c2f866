package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gold-rate-alerts/internal/broadcast"
	"gold-rate-alerts/internal/calendar"
	"gold-rate-alerts/internal/config"
	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
	"gold-rate-alerts/internal/logging"
	"gold-rate-alerts/internal/promo"
	"gold-rate-alerts/internal/registry"
	"gold-rate-alerts/internal/render"
	"gold-rate-alerts/internal/server"
	"gold-rate-alerts/internal/service"
	"gold-rate-alerts/internal/source"
	"gold-rate-alerts/internal/storage"
	"gold-rate-alerts/internal/transport"
	"gold-rate-alerts/internal/watcher"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	LogRing *logging.Ring
}

// NewApp constructs a new application handle. ring may be nil for commands
// that do not expose the log tail.
func NewApp(cfg *config.Config, logger zerolog.Logger, ring *logging.Ring) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		LogRing: ring,
	}
}

func (a *App) newRates() *fetcher.Treasury {
	return fetcher.NewTreasury(fetcher.TreasuryOptions{
		URL:       a.Config.Treasury.URL,
		Timeout:   a.Config.Treasury.RequestTimeout,
		UserAgent: a.Config.Treasury.UserAgent,
	}, a.Logger)
}

// newMarket assembles the multi-source XAU/USD and USD/IDR feeds behind
// their caches. The FX cache is minute-aligned because the upstream
// republishes the rate once per minute.
func (a *App) newMarket() (*feed.Cached, *feed.Cached, *feed.MarketFeed) {
	spotResolver := source.NewResolver("xau_usd", resolverOptions(a.Config.Spot), []source.Source{
		source.NewTradingViewXAU(source.HTTPOptions{Timeout: a.Config.Spot.SourceTimeout}),
		source.NewInvestingXAU(source.HTTPOptions{Timeout: a.Config.Spot.SourceTimeout}),
		source.NewGoogleFinance("XAU-USD", 3, source.HTTPOptions{Timeout: a.Config.Spot.SourceTimeout}),
	}, a.Logger)

	fxResolver := source.NewResolver("usd_idr", resolverOptions(a.Config.FX), []source.Source{
		source.NewGoogleFinance("USD-IDR", 1, source.HTTPOptions{Timeout: a.Config.FX.SourceTimeout}),
		source.NewExchangeRateFX(source.HTTPOptions{Timeout: a.Config.FX.SourceTimeout}),
	}, a.Logger)

	spot := feed.NewCached(feed.CachedOptions{TTL: a.Config.Spot.CacheTTL}, spotResolver.Resolve)
	fx := feed.NewCached(feed.CachedOptions{TTL: a.Config.FX.CacheTTL, AlignMinute: true}, fxResolver.Resolve)

	market := feed.NewMarketFeed(spot, fx, feed.MarketFeedOptions{}, a.Logger)
	return spot, fx, market
}

func resolverOptions(cfg config.ResolverConfig) source.ResolverOptions {
	return source.ResolverOptions{
		Min:           decimal.NewFromFloat(cfg.Min),
		Max:           decimal.NewFromFloat(cfg.Max),
		Tolerance:     decimal.NewFromFloat(cfg.Tolerance),
		SourceTimeout: cfg.SourceTimeout,
	}
}

func (a *App) newCalendar() *calendar.Client {
	if !a.Config.Calendar.Enabled {
		return nil
	}
	return calendar.New(calendar.Options{
		URL:       a.Config.Calendar.URL,
		Timeout:   a.Config.Calendar.RequestTimeout,
		CacheTTL:  a.Config.Calendar.CacheTTL,
		MaxEvents: a.Config.Calendar.MaxEvents,
		HideAfter: a.Config.Calendar.HideAfter,
	}, a.Logger)
}

func (a *App) newPromoClient() *promo.Client {
	if !a.Config.Promo.Enabled {
		return nil
	}
	cfg := a.Config.Promo
	return promo.NewClient(promo.Options{
		NominalURL:   cfg.NominalURL,
		SignInURL:    cfg.SignInURL,
		Email:        cfg.Email,
		Password:     cfg.Password,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		DeviceID:     cfg.DeviceID,
	}, promo.NewFileTokenStore(cfg.TokenPath), a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running watcher service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	reg := registry.New()
	rates := a.newRates()
	_, _, market := a.newMarket()
	cal := a.newCalendar()

	var tg *transport.Telegram
	var tr broadcast.Transport
	if a.Config.Telegram.Enabled {
		tg, err = transport.NewTelegram(transport.TelegramOptions{
			Token:       a.Config.Telegram.BotToken,
			PollTimeout: a.Config.Telegram.PollTimeout,
		}, a.Logger)
		if err != nil {
			return err
		}
		tr = tg
	} else {
		a.Logger.Warn().Msg("telegram disabled; broadcasts go to the log only")
		tr = transport.NewLogSink(a.Logger)
	}

	fanout := broadcast.New(tr, broadcast.Options{
		DedupWindow:   a.Config.Broadcast.DedupWindow,
		SendRate:      rate.Every(a.Config.Broadcast.SendSpacing),
		PruneInterval: a.Config.Broadcast.PruneInterval,
	}, a.Logger)

	var bstore storage.BroadcastStore
	if store != nil {
		bstore = store
	}
	var promoFetcher watcher.StatusFetcher
	if client := a.newPromoClient(); client != nil {
		promoFetcher = client
	}

	svc := service.New(
		service.Options{
			PriceInterval: a.Config.Watcher.Interval,
			PromoInterval: a.Config.Promo.Interval,
		},
		rates, market, fanout, reg, cal, promoFetcher, bstore,
		watcher.PriceWatcherOptions{
			MinChange:    decimal.NewFromFloat(a.Config.Watcher.MinChange),
			Cooldown:     a.Config.Watcher.Cooldown,
			StaleAfter:   a.Config.Watcher.StaleAfter,
			FetchTimeout: a.Config.Treasury.RequestTimeout,
			RingSize:     a.Config.Watcher.RingSize,
		},
		watcher.StatusWatcherOptions{Cooldown: a.Config.Promo.Cooldown},
		a.Logger,
	)

	commands := transport.NewCommands(reg, svc, transport.CommandsOptions{
		ChatCooldown:  a.Config.Commands.ChatCooldown,
		GlobalSpacing: a.Config.Commands.GlobalSpacing,
	}, a.Logger)
	if tg != nil {
		tg.AttachCommands(commands)
	}

	logTail := func(n int) []string { return nil }
	if a.LogRing != nil {
		logTail = a.LogRing.Tail
	}

	srv := server.New(server.Options{Port: a.Config.Server.Port}, server.Deps{
		Registry:  reg,
		Prices:    svc.Prices(),
		Promo:     svc.Status(),
		Calendar:  cal,
		LogTail:   logTail,
		Ready:     func() bool { return tg != nil },
		StartedAt: time.Now(),
	}, a.Logger)

	go commands.PruneLoop(ctx)
	if tg != nil {
		go tg.Run(ctx)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- svc.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	a.Logger.Info().Msg("starting gold watcher")
	err = <-errCh
	cancel()
	<-errCh

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("gold watcher stopped")
	return nil
}

// Report fetches the current rate once and renders the price message, for the
// one-shot CLI command. Reference-feed failures degrade the report rather
// than failing it.
func (a *App) Report(ctx context.Context) (string, error) {
	rates := a.newRates()
	spot, fx, market := a.newMarket()

	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := spot.Get(warmCtx); err != nil {
		a.Logger.Debug().Err(err).Msg("spot unavailable for report")
	}
	if _, err := fx.Get(warmCtx); err != nil {
		a.Logger.Debug().Err(err).Msg("fx unavailable for report")
	}

	snap, err := rates.FetchRate(ctx)
	if err != nil {
		return "", err
	}

	md := market.Snapshot()
	return render.PriceMessage(render.PriceMessageParams{
		Snapshot:   snap,
		StatusLine: watcher.Classify(snap, md).Line(),
		Market:     md,
	}), nil
}
