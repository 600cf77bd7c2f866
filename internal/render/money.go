package render

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRupiah renders a value with Indonesian thousands grouping, rounded
// to whole rupiah: 1234567 -> "1.234.567".
func FormatRupiah(v decimal.Decimal) string {
	s := v.Round(0).String()

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatGrams renders a gold weight with four decimals.
func FormatGrams(v decimal.Decimal) string {
	return v.StringFixed(4)
}
