package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/ports"
)

// RateResolver supplies the settlement-currency value of one unit of any
// asset, from an injected price cache. Resolution order:
//
//  1. the settlement currency itself is always exactly 1;
//  2. a cached price for asset/settlement, if present;
//  3. a zero sentinel rate plus a warning log.
//
// The ledger keeps recording entries during a price-feed outage: a
// zero-valued line still balances against another zero-valued line for the
// same asset, and cross-asset entries surface as imbalance warnings for later
// reconciliation.
type RateResolver struct {
	prices          ports.PriceSource
	logger          ports.Logger
	settlementAsset string
}

// NewRateResolver creates a resolver over the given price cache.
func NewRateResolver(prices ports.PriceSource, logger ports.Logger, settlementAsset string) (*RateResolver, error) {
	if prices == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for RateResolver")
	}
	if settlementAsset == "" {
		return nil, fmt.Errorf("settlement asset must be set")
	}
	return &RateResolver{prices: prices, logger: logger, settlementAsset: settlementAsset}, nil
}

// SettlementAsset returns the asset all entries are valued in.
func (r *RateResolver) SettlementAsset() string {
	return r.settlementAsset
}

// Rate returns the settlement rate for one unit of asset at the given time.
// The timestamp is currently unused (the cache holds latest prices only) but
// kept in the contract for historical-rate lookups.
func (r *RateResolver) Rate(ctx context.Context, asset string, at time.Time) decimal.Decimal {
	if asset == r.settlementAsset {
		return decimal.NewFromInt(1)
	}
	if rate, ok := r.prices.Price(asset + r.settlementAsset); ok {
		return rate
	}
	r.logger.Warn(ctx, "no settlement rate available, recording zero-valued legs",
		map[string]interface{}{"asset": asset, "settlement": r.settlementAsset, "at": at})
	return decimal.Zero
}
