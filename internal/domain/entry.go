package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a journal line (double-entry debit/credit).
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// TransactionType tags a journal entry with the business event it records.
type TransactionType string

const (
	TxTrade            TransactionType = "TRADE"
	TxDeposit          TransactionType = "DEPOSIT"
	TxWithdrawal       TransactionType = "WITHDRAWAL"
	TxInternalTransfer TransactionType = "INTERNAL_TRANSFER"
	TxFeeTrading       TransactionType = "FEE_TRADING"
	TxFeeFunding       TransactionType = "FEE_FUNDING"
	TxFeeWithdrawal    TransactionType = "FEE_WITHDRAWAL"
	TxFundingReceived  TransactionType = "FUNDING_RECEIVED"
	TxAdjustment       TransactionType = "ADJUSTMENT"
	TxUnknown          TransactionType = "UNKNOWN"
	TxCorrection       TransactionType = "CORRECTION"
)

// BalanceTolerance is the maximum allowed absolute difference between total
// debit and total credit settlement values of an entry. It absorbs rounding
// from rate conversion when an entry mixes assets.
var BalanceTolerance = decimal.RequireFromString("0.01")

// JournalLine is one leg of a journal entry.
//
// Amount is the quantity of the line's native asset and is always positive;
// the side carries the direction. SettlementValue is the value of that amount
// in the settlement currency at entry time, using SettlementRate
// (1 unit of Asset = SettlementRate units of settlement currency). Entries
// mixing assets balance on SettlementValue, never on Amount.
type JournalLine struct {
	AccountID       string
	Side            Side
	Amount          decimal.Decimal
	Asset           string
	SettlementValue decimal.Decimal
	SettlementRate  decimal.Decimal
	Memo            string
}

// JournalEntry is one atomic business event recorded as a balanced set of
// debit/credit lines. Entries are immutable once persisted; corrections are
// new entries, never mutations of history.
type JournalEntry struct {
	ID        string
	Time      time.Time
	Type      TransactionType
	ScopeMode string // operating mode the entry belongs to (e.g. TESTNET, PRODUCTION)

	Lines []JournalLine

	// correlation with the originating trading objects, where known
	TradeID    string
	OrderID    string
	PositionID string
	Symbol     string

	SourceEventID string
	Source        string

	Description string
	Memo        string
	RawData     []byte // original event payload, kept for quarantined entries
}

// DebitTotal sums the settlement value of all debit lines.
func (e *JournalEntry) DebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		if l.Side == Debit {
			total = total.Add(l.SettlementValue)
		}
	}
	return total
}

// CreditTotal sums the settlement value of all credit lines.
func (e *JournalEntry) CreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		if l.Side == Credit {
			total = total.Add(l.SettlementValue)
		}
	}
	return total
}

// Imbalance returns debit total minus credit total in settlement currency.
func (e *JournalEntry) Imbalance() decimal.Decimal {
	return e.DebitTotal().Sub(e.CreditTotal())
}

// IsBalanced reports whether the entry satisfies the balance invariant:
// |sum(debit settlement value) - sum(credit settlement value)| < tolerance.
func (e *JournalEntry) IsBalanced() bool {
	return e.Imbalance().Abs().LessThan(BalanceTolerance)
}

// AccountBalance is the materialized running balance of one account within one
// scope. It is a fold over all lines touching the account: debit-positive for
// every account type, with readers interpreting the sign per account type.
type AccountBalance struct {
	AccountID   string
	ScopeMode   string
	Balance     decimal.Decimal
	LastEntryID string
	LastEntryAt time.Time
	UpdatedAt   time.Time
}

// LedgerLine is one line of an account's history joined with its entry header,
// as returned by history queries.
type LedgerLine struct {
	EntryID         string
	Time            time.Time
	Type            TransactionType
	Description     string
	Symbol          string
	AccountID       string
	Side            Side
	Amount          decimal.Decimal
	Asset           string
	SettlementValue decimal.Decimal
}

// DailyPnL aggregates one trading day within a scope.
type DailyPnL struct {
	Date        string // YYYY-MM-DD
	ScopeMode   string
	TradeCount  int
	RealizedPnL decimal.Decimal
	TradingFees decimal.Decimal
	FundingFees decimal.Decimal
	WinCount    int
	LossCount   int
}
