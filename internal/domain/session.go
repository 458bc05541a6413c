package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus represents the lifecycle state of a position session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// PositionSide is the direction of a position session.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// TradeAction classifies a fill's effect on its position session.
type TradeAction string

const (
	ActionEntry  TradeAction = "ENTRY"
	ActionAdd    TradeAction = "ADD"
	ActionReduce TradeAction = "REDUCE"
	ActionExit   TradeAction = "EXIT"
)

// PositionSession tracks the open/closed lifecycle of one position built from
// a sequence of fills: created by the fill that opens the position, updated on
// every subsequent fill, closed when the quantity returns to zero.
type PositionSession struct {
	ID              string
	ScopeMode       string
	ScopeVenue      Venue
	Symbol          string
	Side            PositionSide
	Status          SessionStatus
	OpenedAt        time.Time
	ClosedAt        time.Time // zero while open
	InitialQty      decimal.Decimal
	MaxQty          decimal.Decimal
	Quantity        decimal.Decimal // current open quantity
	RealizedPnL     decimal.Decimal
	TotalCommission decimal.Decimal
	TradeCount      int
	CloseReason     string
}

// IsOpen checks if the session status is open.
func (s *PositionSession) IsOpen() bool {
	return s.Status == SessionOpen
}

// SessionTrade is one fill's contribution to a position session, linked to the
// journal entry the fill produced.
type SessionTrade struct {
	ID             int64
	SessionID      string
	TradeEventID   string
	JournalEntryID string
	Action         TradeAction
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	RealizedPnL    decimal.Decimal
	Commission     decimal.Decimal
	QtyAfter       decimal.Decimal
	CreatedAt      time.Time
}
