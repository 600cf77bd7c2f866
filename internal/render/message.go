package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gold-rate-alerts/internal/feed"
	"gold-rate-alerts/internal/fetcher"
)

// Unavailable is the graceful fallback for on-demand requests that fail.
const Unavailable = "❌ Gagal mengambil data harga."

var jakartaTZ = time.FixedZone("WIB", 7*60*60)

var dayNamesID = []string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

// PriceMessageParams carry everything a full price message shows.
type PriceMessageParams struct {
	Snapshot fetcher.PriceSnapshot
	// DeltaBuy is the cumulative buy-rate change since the last broadcast.
	// Zero suppresses the direction banner.
	DeltaBuy decimal.Decimal
	// StatusLine is the price-validity line; empty omits it.
	StatusLine string
	Market     feed.MarketData
	// CalendarSection is the preformatted events block; empty omits it.
	CalendarSection string
}

// PriceMessage renders the outbound broadcast body.
func PriceMessage(p PriceMessageParams) string {
	var b strings.Builder

	if !p.DeltaBuy.IsZero() {
		amount := FormatRupiah(p.DeltaBuy.Abs())
		if p.DeltaBuy.Sign() > 0 {
			b.WriteString(fmt.Sprintf("🚀 🚀 NAIK 🚀 🚀 (+Rp%s)\n", amount))
		} else {
			b.WriteString(fmt.Sprintf("🔻 🔻 TURUN 🔻 🔻 (-Rp%s)\n", amount))
		}
	}

	if !p.Snapshot.AsOf.IsZero() {
		wib := p.Snapshot.AsOf.In(jakartaTZ)
		b.WriteString(fmt.Sprintf("%s %02d:%02d:%02d WIB",
			dayNamesID[wib.Weekday()], wib.Hour(), wib.Minute(), wib.Second()))
	}

	if p.StatusLine != "" {
		b.WriteString("\n" + p.StatusLine)
	}

	b.WriteString(fmt.Sprintf("\n\n💰 Beli Rp%s/gr | Jual Rp%s/gr (%s)\n",
		FormatRupiah(p.Snapshot.Buy), FormatRupiah(p.Snapshot.Sell), spreadPercent(p.Snapshot)))
	b.WriteString(marketLine(p.Market))
	b.WriteString("\n\n")

	for _, amount := range scenarioAmounts {
		sc := Profit(p.Snapshot.Buy, p.Snapshot.Sell, decimal.NewFromInt(amount))
		sign := "+"
		profit := sc.Profit
		if profit.Sign() < 0 {
			sign = "-"
			profit = profit.Abs()
		}
		b.WriteString(fmt.Sprintf("🎁 %djt→%sgr (%sRp%s)\n",
			amount/1_000_000, FormatGrams(sc.Grams), sign, FormatRupiah(profit)))
	}

	if p.CalendarSection != "" {
		b.WriteString(p.CalendarSection)
	}
	b.WriteString("⚡ Auto-update")

	return b.String()
}

// PromoMessage is the minimal status-change broadcast body.
func PromoMessage(on bool) string {
	if on {
		return "🟢 ON"
	}
	return "🔴 OFF"
}

// spreadPercent renders the sell-back spread relative to the buy rate. The
// sell rate sits below the buy rate, so the spread reads as a loss.
func spreadPercent(s fetcher.PriceSnapshot) string {
	if s.Buy.IsZero() {
		return "-"
	}
	pct := s.Sell.Sub(s.Buy).Div(s.Buy).Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("-%s%%", pct.Abs().StringFixed(2))
}

func marketLine(m feed.MarketData) string {
	line := "💱 USD -"
	if m.FXRate != nil {
		line = fmt.Sprintf("💱 USD Rp%s", FormatRupiah(*m.FXRate))
	}
	if m.SpotUSD != nil {
		line += fmt.Sprintf(" | XAU $%s", m.SpotUSD.StringFixed(2))
	}
	return line
}
