package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gold-rate-alerts/internal/broadcast"
	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
	"gold-rate-alerts/internal/promo"
	"gold-rate-alerts/internal/registry"
	"gold-rate-alerts/internal/render"
	"gold-rate-alerts/internal/watcher"
)

type stubRates struct {
	snap fetcher.PriceSnapshot
	err  error
}

func (s stubRates) FetchRate(ctx context.Context) (fetcher.PriceSnapshot, error) {
	return s.snap, s.err
}

type recordingTransport struct {
	mu    sync.Mutex
	texts []string
	chats []string
	pins  int
}

func (t *recordingTransport) SendText(ctx context.Context, chatID, text string) (broadcast.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	t.chats = append(t.chats, chatID)
	return broadcast.MessageRef{ID: "1", Chat: -100}, nil
}

func (t *recordingTransport) Pin(ctx context.Context, ref broadcast.MessageRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pins++
	return nil
}

func (t *recordingTransport) IsGroup(chatID string) bool { return strings.HasPrefix(chatID, "-") }

func (t *recordingTransport) wait(tst *testing.T, n int) {
	tst.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		t.mu.Lock()
		got := len(t.texts)
		t.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			tst.Fatalf("timed out waiting for %d sends, got %d", n, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func snapAt(buy, sell int64) fetcher.PriceSnapshot {
	return fetcher.PriceSnapshot{
		Buy:       decimal.NewFromInt(buy),
		Sell:      decimal.NewFromInt(sell),
		AsOf:      time.Now(),
		FetchedAt: time.Now(),
	}
}

func newService(rates fetcher.RateFetcher, tr broadcast.Transport, reg *registry.SubscriptionSet) *Service {
	market := feed.NewMarketFeed(
		feed.NewCached(feed.CachedOptions{TTL: time.Hour}, func(context.Context) (decimal.Decimal, error) {
			return decimal.Decimal{}, errors.New("no spot")
		}),
		feed.NewCached(feed.CachedOptions{TTL: time.Hour}, func(context.Context) (decimal.Decimal, error) {
			return decimal.Decimal{}, errors.New("no fx")
		}),
		feed.MarketFeedOptions{},
		zerolog.Nop(),
	)
	fanout := broadcast.New(tr, broadcast.Options{SendRate: rate.Inf}, zerolog.Nop())
	return New(Options{}, rates, market, fanout, reg, nil, nil, nil,
		watcher.PriceWatcherOptions{}, watcher.StatusWatcherOptions{}, zerolog.Nop())
}

func TestPublishPriceChangeFansOut(t *testing.T) {
	tr := &recordingTransport{}
	reg := registry.New()
	reg.Add("111")
	reg.Add("222")

	s := newService(stubRates{snap: snapAt(100, 98)}, tr, reg)

	s.PublishPriceChange(context.Background(), snapAt(105, 103), decimal.NewFromInt(5), watcher.Validity{})
	tr.wait(t, 2)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !strings.Contains(tr.texts[0], "NAIK") || !strings.Contains(tr.texts[0], "+Rp5") {
		t.Fatalf("message missing banner: %q", tr.texts[0])
	}
	if tr.pins != 0 {
		t.Fatal("price broadcasts must not pin")
	}
}

func TestPublishStatusChangePinsGroups(t *testing.T) {
	tr := &recordingTransport{}
	reg := registry.New()
	reg.Add("-100")

	s := newService(stubRates{snap: snapAt(100, 98)}, tr, reg)

	s.PublishStatusChange(context.Background(), promo.StatusOn)
	tr.wait(t, 1)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.texts[0] != "🟢 ON" {
		t.Fatalf("unexpected promo message %q", tr.texts[0])
	}
	if tr.pins != 1 {
		t.Fatalf("expected 1 pin, got %d", tr.pins)
	}
}

func TestPublishWithNoRecipientsIsDropped(t *testing.T) {
	tr := &recordingTransport{}
	s := newService(stubRates{snap: snapAt(100, 98)}, tr, registry.New())

	s.PublishPriceChange(context.Background(), snapAt(105, 103), decimal.NewFromInt(5), watcher.Validity{})
	time.Sleep(50 * time.Millisecond)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.texts) != 0 {
		t.Fatal("broadcast with empty registry must be dropped")
	}
}

func TestReportRendersCurrentPrice(t *testing.T) {
	s := newService(stubRates{snap: snapAt(1_970_000, 1_910_000)}, &recordingTransport{}, registry.New())

	got := s.Report(context.Background())
	if !strings.Contains(got, "💰 Beli Rp1.970.000/gr") {
		t.Fatalf("report missing price line: %q", got)
	}
	if strings.Contains(got, "NAIK") || strings.Contains(got, "TURUN") {
		t.Fatalf("on-demand report must not carry a banner: %q", got)
	}
}

func TestReportFallsBackWhenFetchFails(t *testing.T) {
	s := newService(stubRates{err: errors.New("down")}, &recordingTransport{}, registry.New())

	if got := s.Report(context.Background()); got != render.Unavailable {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newService(stubRates{snap: snapAt(100, 98)}, &recordingTransport{}, registry.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
