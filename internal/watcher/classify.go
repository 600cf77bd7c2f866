package watcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
	"gold-rate-alerts/internal/render"
)

// PriceStatus classifies the dealer's sell rate against the international
// reference price. Derived, never stored.
type PriceStatus int

const (
	StatusIndeterminate PriceStatus = iota
	StatusNormal
	StatusAbnormal
)

func (s PriceStatus) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusAbnormal:
		return "ABNORMAL"
	default:
		return "INDETERMINATE"
	}
}

var (
	troyOunceGrams = decimal.NewFromFloat(31.1035)
	marginLow      = decimal.NewFromFloat(1.0097)
	marginHigh     = decimal.NewFromFloat(1.0125)
)

// Validity is the outcome of one classification.
type Validity struct {
	Status PriceStatus
	// Difference is the distance to the violated band edge; zero when the
	// rate is inside the band or the reference data is incomplete.
	Difference decimal.Decimal
}

// Classify derives the validity of a snapshot from reference market data.
// Missing spot or FX degrades to indeterminate rather than failing.
func Classify(snap fetcher.PriceSnapshot, market feed.MarketData) Validity {
	if market.SpotUSD == nil || market.FXRate == nil {
		return Validity{Status: StatusIndeterminate}
	}

	base := market.SpotUSD.Mul(*market.FXRate).Div(troyOunceGrams)
	lower := base.Mul(marginLow)
	upper := base.Mul(marginHigh)

	switch {
	case snap.Sell.LessThan(lower):
		return Validity{Status: StatusAbnormal, Difference: snap.Sell.Sub(lower)}
	case snap.Sell.GreaterThan(upper):
		return Validity{Status: StatusAbnormal, Difference: snap.Sell.Sub(upper)}
	default:
		return Validity{Status: StatusNormal}
	}
}

// Line renders the message decoration for this validity. Indeterminate
// renders empty so the line is omitted entirely.
func (v Validity) Line() string {
	switch v.Status {
	case StatusNormal:
		return "✅ NORMAL"
	case StatusAbnormal:
		sign := "+"
		diff := v.Difference
		if diff.Sign() < 0 {
			sign = "-"
			diff = diff.Abs()
		}
		return fmt.Sprintf("⚠️ TIDAK NORMAL (%sRp%s)", sign, render.FormatRupiah(diff))
	default:
		return ""
	}
}
