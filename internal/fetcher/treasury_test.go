package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestTreasuryFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"buying_rate":  1950000,
				"selling_rate": 1890000,
				"updated_at":   "2025-03-14 10:22:31",
			},
		})
	}))
	defer srv.Close()

	f := NewTreasury(TreasuryOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	snap, err := f.FetchRate(context.Background())
	if err != nil {
		t.Fatalf("FetchRate: %v", err)
	}
	if snap.Buy.IntPart() != 1950000 || snap.Sell.IntPart() != 1890000 {
		t.Fatalf("unexpected rates: buy=%s sell=%s", snap.Buy, snap.Sell)
	}
	if snap.AsOf.Hour() != 10 || snap.AsOf.Minute() != 22 {
		t.Fatalf("updated_at not parsed: %s", snap.AsOf)
	}
	if snap.FetchedAt.IsZero() {
		t.Fatal("FetchedAt should be set")
	}
}

func TestTreasuryFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewTreasury(TreasuryOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchRate(context.Background()); err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}

func TestTreasuryFetchMissingRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"buying_rate": 0}})
	}))
	defer srv.Close()

	f := NewTreasury(TreasuryOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchRate(context.Background()); err == nil {
		t.Fatal("expected error when rates are missing")
	}
}

func TestSnapshotSameRates(t *testing.T) {
	a := PriceSnapshot{Buy: dec(100), Sell: dec(98), FetchedAt: time.Now()}
	b := PriceSnapshot{Buy: dec(100), Sell: dec(98), FetchedAt: time.Now().Add(time.Second)}
	if !a.SameRates(b) {
		t.Fatal("snapshots with equal rates should compare equal")
	}
	b.Sell = dec(97)
	if a.SameRates(b) {
		t.Fatal("differing sell rate should not compare equal")
	}
}
