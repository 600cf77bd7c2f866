package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is an immutable point-in-time reading of the dealer's
// buy/sell rate in IDR per gram.
type PriceSnapshot struct {
	Buy       decimal.Decimal
	Sell      decimal.Decimal
	AsOf      time.Time
	FetchedAt time.Time
}

// SameRates reports whether both rates are unchanged relative to other.
// Timestamps are ignored.
func (s PriceSnapshot) SameRates(other PriceSnapshot) bool {
	return s.Buy.Equal(other.Buy) && s.Sell.Equal(other.Sell)
}

// IsZero reports whether the snapshot has never been populated.
func (s PriceSnapshot) IsZero() bool {
	return s.FetchedAt.IsZero()
}

// RateFetcher retrieves the current gold buy/sell rate from the primary feed.
type RateFetcher interface {
	FetchRate(ctx context.Context) (PriceSnapshot, error)
}
