package render

import "github.com/shopspring/decimal"

// Preset nominal amounts shown in every price message, in rupiah.
var scenarioAmounts = []int64{20_000_000, 30_000_000, 40_000_000, 50_000_000}

var (
	minDiscount = decimal.NewFromInt(5000)

	rateSmall  = decimal.NewFromFloat(0.5)
	rateTiny   = decimal.NewFromFloat(0.0299)
	rateMid    = decimal.NewFromFloat(0.0343)
	rateUpper  = decimal.NewFromFloat(0.034)
	rateLarge  = decimal.NewFromFloat(0.03275)
	largeExtra = decimal.NewFromInt(37500)
)

// Discount returns the purchase discount for an investment amount, following
// the dealer's published tier schedule.
func Discount(amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch {
	case amount.LessThanOrEqual(decimal.NewFromInt(10_000)):
		d = decimal.Max(amount.Mul(rateSmall), minDiscount)
	case amount.LessThanOrEqual(decimal.NewFromInt(250_000)):
		d = amount.Mul(rateTiny)
	case amount.LessThanOrEqual(decimal.NewFromInt(20_000_000)):
		d = amount.Mul(rateMid)
	case amount.LessThanOrEqual(decimal.NewFromInt(30_000_000)):
		d = amount.Mul(rateUpper)
	default:
		d = amount.Mul(rateLarge).Add(largeExtra)
	}
	return d.Round(0)
}

// Scenario is the illustrative outcome of buying at the current rate and
// selling straight back.
type Scenario struct {
	Amount decimal.Decimal
	Grams  decimal.Decimal
	Profit decimal.Decimal
}

// Profit computes a scenario for one investment amount. The discount reduces
// the effective purchase price; the grams bought are then valued at the
// sell-back rate.
func Profit(buy, sell, amount decimal.Decimal) Scenario {
	discounted := amount.Sub(Discount(amount))
	grams := amount.Div(buy)
	sellValue := grams.Mul(sell)
	return Scenario{
		Amount: amount,
		Grams:  grams,
		Profit: sellValue.Sub(discounted),
	}
}
