package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// BroadcastRecord captures the outcome of one completed fan-out for auditing.
// Best-effort only; the engine never reads these rows back on the hot path.
type BroadcastRecord struct {
	ID        int64
	SentAt    time.Time
	Kind      string
	Buy       decimal.Decimal
	Sell      decimal.Decimal
	DeltaBuy  decimal.Decimal
	Sent      int
	Skipped   int
	Failed    int
	CreatedAt time.Time
}

// Broadcast kinds.
const (
	KindPrice = "price"
	KindPromo = "promo"
)
