package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
)

// PriceSource is the synchronous, local price cache lookup the rate resolver
// consults. It is populated out-of-band by the market-data layer; the ledger
// only ever reads it. The boolean reports whether a price is known for the
// pair (e.g. "BTCUSDT").
type PriceSource interface {
	Price(pair string) (decimal.Decimal, bool)
}

// PriceSink is the write side of the price cache, used by market-data
// adapters feeding it.
type PriceSink interface {
	SetPrice(pair string, price decimal.Decimal)
}

// EventFeed delivers the ordered stream of domain events the ledger pipeline
// consumes. Implementations own their transport (websocket, replay file, ...).
type EventFeed interface {
	// Stream starts delivery into out. It blocks until ctx is canceled or the
	// feed fails; the caller owns the channel and closes nothing.
	Stream(ctx context.Context, out chan<- domain.Event) error
}
