package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of a fill (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Scope pins an event to an operating mode and wallet.
type Scope struct {
	Mode  string // e.g. "TESTNET", "PRODUCTION"
	Venue Venue
}

// EventMeta carries the fields every domain event shares.
type EventMeta struct {
	ID     string
	Time   time.Time
	Scope  Scope
	Source string // originating system (WEBSOCKET, REST, BOT, ...)
}

// Event is the closed union of domain events the ledger consumes. Each
// concrete type below is one known event kind; anything else arrives as
// UnrecognizedEvent and goes through the quarantine path. The entry builder
// type-switches over this set, so adding a kind forces a handler decision.
type Event interface {
	Meta() EventMeta
}

// FillExecuted reports an executed trade (full or partial fill).
type FillExecuted struct {
	EventMeta
	Symbol          string
	Side            OrderSide
	Quantity        decimal.Decimal
	Price           decimal.Decimal // fill price in settlement currency per unit
	Commission      decimal.Decimal
	CommissionAsset string
	RealizedPnL     decimal.Decimal // non-zero when the fill reduces/closes a position
	IsMaker         bool
	TradeID         string
	OrderID         string
}

// FundingApplied reports a funding payment on a perpetual position.
// Amount is settlement-currency-denominated: positive means paid (cost),
// negative means received.
type FundingApplied struct {
	EventMeta
	Symbol string
	Amount decimal.Decimal
}

// FeeCharged reports a standalone fee not attached to a fill.
type FeeCharged struct {
	EventMeta
	FeeType string // e.g. "TRADING", "NETWORK"
	Asset   string
	Amount  decimal.Decimal
}

// TransferCompleted reports an internal transfer between the operator's own
// venues (e.g. spot wallet to futures wallet).
type TransferCompleted struct {
	EventMeta
	FromVenue Venue
	ToVenue   Venue
	Asset     string
	Amount    decimal.Decimal
}

// DepositCompleted reports funds arriving from outside the system.
type DepositCompleted struct {
	EventMeta
	Asset  string
	Amount decimal.Decimal
	TxID   string
	Origin string
}

// WithdrawalCompleted reports funds leaving the system. Amount is the gross
// amount debited from the internal wallet; Fee is the part kept by the
// network/exchange, so the counterparty receives Amount minus Fee.
type WithdrawalCompleted struct {
	EventMeta
	Asset       string
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	TxID        string
	Destination string
}

// BalanceChanged reports an exchange-observed balance delta with no matching
// trade/transfer record. Delta may be negative.
type BalanceChanged struct {
	EventMeta
	Asset string
	Delta decimal.Decimal
}

// UnrecognizedEvent carries any event type without a dedicated rule. The raw
// payload is preserved so quarantined entries stay auditable.
type UnrecognizedEvent struct {
	EventMeta
	Type string
	Raw  json.RawMessage
}

func (m EventMeta) Meta() EventMeta { return m }

// nonFinancialEventTypes are event type names known to have no financial
// effect. They are ignored by the ledger instead of being quarantined.
var nonFinancialEventTypes = map[string]struct{}{
	"OrderCreated":            {},
	"OrderCancelled":          {},
	"OrderUpdated":            {},
	"OrderPlaced":             {},
	"OrderRejected":           {},
	"PositionUpdated":         {},
	"PositionChanged":         {},
	"HeartbeatReceived":       {},
	"ConnectionEstablished":   {},
	"StrategyStarted":         {},
	"StrategyStopped":         {},
	"StrategyError":           {},
	"ConfigChanged":           {},
	"EngineStarted":           {},
	"EngineStopped":           {},
	"EnginePaused":            {},
	"EngineResumed":           {},
	"WsConnected":             {},
	"WsDisconnected":          {},
	"WsReconnected":           {},
	"DriftDetected":           {},
	"ReconciliationPerformed": {},
}

// IsNonFinancial reports whether an unrecognized event type is known to carry
// no financial effect.
func IsNonFinancial(eventType string) bool {
	_, ok := nonFinancialEventTypes[eventType]
	return ok
}
