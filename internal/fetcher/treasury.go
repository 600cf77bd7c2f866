package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Jakarta time; the dealer stamps updated_at in WIB without an offset.
var jakartaTZ = time.FixedZone("WIB", 7*60*60)

// TreasuryOptions parameterise the dealer rate fetcher.
type TreasuryOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Treasury fetches the gold buy/sell rate from the dealer API.
type Treasury struct {
	opts   TreasuryOptions
	logger zerolog.Logger
	client *http.Client
}

// NewTreasury constructs a dealer rate fetcher.
func NewTreasury(opts TreasuryOptions, logger zerolog.Logger) *Treasury {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Treasury{
		opts:   opts,
		logger: logger.With().Str("component", "treasury_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Data struct {
		BuyingRate  json.Number `json:"buying_rate"`
		SellingRate json.Number `json:"selling_rate"`
		UpdatedAt   string      `json:"updated_at"`
	} `json:"data"`
}

// FetchRate retrieves the current buy/sell rate. The endpoint answers to an
// empty JSON POST.
func (t *Treasury) FetchRate(ctx context.Context) (PriceSnapshot, error) {
	if t.opts.URL == "" {
		return PriceSnapshot{}, errors.New("treasury url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.URL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return PriceSnapshot{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return PriceSnapshot{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return PriceSnapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return PriceSnapshot{}, fmt.Errorf("treasury api status %d", resp.StatusCode)
	}

	var decoded rateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return PriceSnapshot{}, fmt.Errorf("decode treasury response: %w", err)
	}

	buy, err := decimal.NewFromString(decoded.Data.BuyingRate.String())
	if err != nil || buy.IsZero() {
		return PriceSnapshot{}, errors.New("treasury response missing buying_rate")
	}
	sell, err := decimal.NewFromString(decoded.Data.SellingRate.String())
	if err != nil || sell.IsZero() {
		return PriceSnapshot{}, errors.New("treasury response missing selling_rate")
	}

	now := time.Now()
	snap := PriceSnapshot{
		Buy:       buy,
		Sell:      sell,
		AsOf:      parseUpdatedAt(decoded.Data.UpdatedAt, now),
		FetchedAt: now,
	}
	return snap, nil
}

func parseUpdatedAt(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, jakartaTZ); err == nil {
		return ts
	}
	return fallback
}

var _ RateFetcher = (*Treasury)(nil)
