package quotecache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Amount and slippage precision used in keys. Callers normalize inputs to
// at most this precision so a cached quote always matches the request.
const (
	AmountPrecision   int32 = 8
	SlippagePrecision int32 = 2
)

// Cache stores recent quotes. Implementations must treat a quote whose
// QuoteValidUntil has passed as absent, and may evict it on read.
// Concurrent misses on one key are allowed to call the aggregator twice.
type Cache interface {
	Get(ctx context.Context, key Key) (*model.Quote, bool)
	Put(ctx context.Context, key Key, quote *model.Quote)
}

// Key identifies equivalent quote requests.
type Key struct {
	FromToken string
	ToToken   string
	Amount    decimal.Decimal
	Slippage  decimal.Decimal
}

// String renders the normalized key, e.g.
// swap:quote:0x41e9...:0x360a...:100.00000000:1.00
func (k Key) String() string {
	return fmt.Sprintf("swap:quote:%s:%s:%s:%s",
		strings.ToLower(strings.TrimSpace(k.FromToken)),
		strings.ToLower(strings.TrimSpace(k.ToToken)),
		k.Amount.StringFixed(AmountPrecision),
		k.Slippage.StringFixed(SlippagePrecision))
}

// Entry is what backends hold: the quote, its key and when it was stored.
type Entry struct {
	Key        string       `json:"key"`
	Quote      *model.Quote `json:"quote"`
	InsertedAt time.Time    `json:"insertedAt"`
}
