package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
	"cryptoLedgerBot/pkg/id"
)

// EntryBuilder converts domain events into balanced journal entries. It is
// pure apart from registry and rate lookups: it never persists anything and
// never fails on an unexpected event shape. Events with no financial effect
// map to nil; financial events with no dedicated rule are quarantined into a
// balanced SUSPENSE entry instead of being dropped.
type EntryBuilder struct {
	registry ports.AccountRegistry
	rates    *RateResolver
	logger   ports.Logger
}

// NewEntryBuilder creates a builder over the given collaborators.
func NewEntryBuilder(registry ports.AccountRegistry, rates *RateResolver, logger ports.Logger) (*EntryBuilder, error) {
	if registry == nil || rates == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for EntryBuilder")
	}
	return &EntryBuilder{registry: registry, rates: rates, logger: logger}, nil
}

// FromEvent maps one domain event to zero or one journal entry.
// A nil entry with nil error means the event has no financial effect.
func (b *EntryBuilder) FromEvent(ctx context.Context, ev domain.Event) (*domain.JournalEntry, error) {
	switch e := ev.(type) {
	case *domain.FillExecuted:
		return b.fromFill(ctx, e)
	case *domain.FundingApplied:
		return b.fromFunding(ctx, e)
	case *domain.FeeCharged:
		return b.fromFee(ctx, e)
	case *domain.TransferCompleted:
		return b.fromTransfer(ctx, e)
	case *domain.DepositCompleted:
		return b.fromDeposit(ctx, e)
	case *domain.WithdrawalCompleted:
		return b.fromWithdrawal(ctx, e)
	case *domain.BalanceChanged:
		return b.fromBalanceChanged(ctx, e)
	case *domain.UnrecognizedEvent:
		return b.quarantine(ctx, e)
	default:
		// A new event kind without a handler still must not drop money.
		return b.quarantine(ctx, &domain.UnrecognizedEvent{
			EventMeta: ev.Meta(),
			Type:      fmt.Sprintf("%T", ev),
		})
	}
}

// baseAsset extracts the base asset from a symbol quoted in the settlement
// currency (e.g. "BTCUSDT" -> "BTC").
func (b *EntryBuilder) baseAsset(symbol string) string {
	base := strings.TrimSuffix(symbol, b.rates.SettlementAsset())
	if base == "" {
		return symbol
	}
	return base
}

func (b *EntryBuilder) fromFill(ctx context.Context, e *domain.FillExecuted) (*domain.JournalEntry, error) {
	settlement := b.rates.SettlementAsset()
	venue := e.Scope.Venue
	base := b.baseAsset(e.Symbol)
	quoteAmount := e.Quantity.Mul(e.Price)
	one := decimal.NewFromInt(1)

	baseAcct, err := b.registry.EnsureAssetAccount(ctx, venue, base)
	if err != nil {
		return nil, err
	}
	quoteAcct, err := b.registry.EnsureAssetAccount(ctx, venue, settlement)
	if err != nil {
		return nil, err
	}

	var lines []domain.JournalLine
	if e.Side == domain.Buy {
		lines = append(lines,
			domain.JournalLine{AccountID: baseAcct, Side: domain.Debit, Amount: e.Quantity, Asset: base, SettlementValue: quoteAmount, SettlementRate: e.Price},
			domain.JournalLine{AccountID: quoteAcct, Side: domain.Credit, Amount: quoteAmount, Asset: settlement, SettlementValue: quoteAmount, SettlementRate: one},
		)
	} else {
		lines = append(lines,
			domain.JournalLine{AccountID: quoteAcct, Side: domain.Debit, Amount: quoteAmount, Asset: settlement, SettlementValue: quoteAmount, SettlementRate: one},
			domain.JournalLine{AccountID: baseAcct, Side: domain.Credit, Amount: e.Quantity, Asset: base, SettlementValue: quoteAmount, SettlementRate: e.Price},
		)
	}

	if e.Commission.IsPositive() {
		commAcct, err := b.registry.EnsureAssetAccount(ctx, venue, e.CommissionAsset)
		if err != nil {
			return nil, err
		}
		feeAcct := domain.AccountTakerFee
		if e.IsMaker {
			feeAcct = domain.AccountMakerFee
		}
		rate := b.rates.Rate(ctx, e.CommissionAsset, e.Time)
		value := e.Commission.Mul(rate)
		lines = append(lines,
			domain.JournalLine{AccountID: feeAcct, Side: domain.Debit, Amount: e.Commission, Asset: e.CommissionAsset, SettlementValue: value, SettlementRate: rate},
			domain.JournalLine{AccountID: commAcct, Side: domain.Credit, Amount: e.Commission, Asset: e.CommissionAsset, SettlementValue: value, SettlementRate: rate},
		)
	}

	// Realized PnL settles in the settlement currency: a gain debits the
	// wallet and credits income, a loss the reverse.
	if !e.RealizedPnL.IsZero() {
		pnl := e.RealizedPnL.Abs()
		asset := domain.JournalLine{AccountID: quoteAcct, Amount: pnl, Asset: settlement, SettlementValue: pnl, SettlementRate: one}
		income := domain.JournalLine{AccountID: domain.AccountRealizedPnL, Amount: pnl, Asset: settlement, SettlementValue: pnl, SettlementRate: one}
		if e.RealizedPnL.IsPositive() {
			asset.Side, income.Side = domain.Debit, domain.Credit
		} else {
			asset.Side, income.Side = domain.Credit, domain.Debit
		}
		lines = append(lines, asset, income)
	}

	return &domain.JournalEntry{
		ID:            id.NewEntryID(),
		Time:          e.Time,
		Type:          domain.TxTrade,
		ScopeMode:     e.Scope.Mode,
		Lines:         lines,
		TradeID:       e.TradeID,
		OrderID:       e.OrderID,
		Symbol:        e.Symbol,
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("%s %s %s @ %s", e.Side, e.Quantity, base, e.Price),
	}, nil
}

func (b *EntryBuilder) fromFunding(ctx context.Context, e *domain.FundingApplied) (*domain.JournalEntry, error) {
	if e.Amount.IsZero() {
		return nil, nil
	}
	settlement := b.rates.SettlementAsset()
	one := decimal.NewFromInt(1)
	amount := e.Amount.Abs()

	walletAcct, err := b.registry.EnsureAssetAccount(ctx, e.Scope.Venue, settlement)
	if err != nil {
		return nil, err
	}

	var (
		lines  []domain.JournalLine
		txType domain.TransactionType
		verb   string
	)
	if e.Amount.IsPositive() {
		// funding paid: expense up, wallet down
		txType, verb = domain.TxFeeFunding, "paid"
		lines = []domain.JournalLine{
			{AccountID: domain.AccountFundingPaid, Side: domain.Debit, Amount: amount, Asset: settlement, SettlementValue: amount, SettlementRate: one},
			{AccountID: walletAcct, Side: domain.Credit, Amount: amount, Asset: settlement, SettlementValue: amount, SettlementRate: one},
		}
	} else {
		txType, verb = domain.TxFundingReceived, "received"
		lines = []domain.JournalLine{
			{AccountID: walletAcct, Side: domain.Debit, Amount: amount, Asset: settlement, SettlementValue: amount, SettlementRate: one},
			{AccountID: domain.AccountFundingReceived, Side: domain.Credit, Amount: amount, Asset: settlement, SettlementValue: amount, SettlementRate: one},
		}
	}

	return &domain.JournalEntry{
		ID:            id.NewEntryID(),
		Time:          e.Time,
		Type:          txType,
		ScopeMode:     e.Scope.Mode,
		Lines:         lines,
		Symbol:        e.Symbol,
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Funding %s %s %s", verb, amount, settlement),
	}, nil
}

func (b *EntryBuilder) fromFee(ctx context.Context, e *domain.FeeCharged) (*domain.JournalEntry, error) {
	if !e.Amount.IsPositive() {
		return nil, nil
	}
	walletAcct, err := b.registry.EnsureAssetAccount(ctx, e.Scope.Venue, e.Asset)
	if err != nil {
		return nil, err
	}
	// Fee types are open-ended; the expense account must exist before the
	// store sees a line on it.
	feeAcct, err := b.registry.EnsureFeeAccount(ctx, e.FeeType)
	if err != nil {
		return nil, err
	}
	rate := b.rates.Rate(ctx, e.Asset, e.Time)
	value := e.Amount.Mul(rate)

	return &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      e.Time,
		Type:      domain.TxFeeTrading,
		ScopeMode: e.Scope.Mode,
		Lines: []domain.JournalLine{
			{AccountID: feeAcct, Side: domain.Debit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
			{AccountID: walletAcct, Side: domain.Credit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
		},
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Fee %s %s (%s)", e.Amount, e.Asset, e.FeeType),
	}, nil
}

func (b *EntryBuilder) fromTransfer(ctx context.Context, e *domain.TransferCompleted) (*domain.JournalEntry, error) {
	fromAcct, err := b.registry.EnsureAssetAccount(ctx, e.FromVenue, e.Asset)
	if err != nil {
		return nil, err
	}
	toAcct, err := b.registry.EnsureAssetAccount(ctx, e.ToVenue, e.Asset)
	if err != nil {
		return nil, err
	}
	rate := b.rates.Rate(ctx, e.Asset, e.Time)
	value := e.Amount.Mul(rate)

	return &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      e.Time,
		Type:      domain.TxInternalTransfer,
		ScopeMode: e.Scope.Mode,
		Lines: []domain.JournalLine{
			{AccountID: toAcct, Side: domain.Debit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
			{AccountID: fromAcct, Side: domain.Credit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
		},
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Transfer %s %s from %s to %s", e.Amount, e.Asset, e.FromVenue, e.ToVenue),
	}, nil
}

func (b *EntryBuilder) fromDeposit(ctx context.Context, e *domain.DepositCompleted) (*domain.JournalEntry, error) {
	intAcct, err := b.registry.EnsureAssetAccount(ctx, e.Scope.Venue, e.Asset)
	if err != nil {
		return nil, err
	}
	extAcct, err := b.registry.EnsureAssetAccount(ctx, domain.VenueExternal, e.Asset)
	if err != nil {
		return nil, err
	}
	// Both legs use the same rate so the entry balances for any asset.
	rate := b.rates.Rate(ctx, e.Asset, e.Time)
	value := e.Amount.Mul(rate)

	return &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      e.Time,
		Type:      domain.TxDeposit,
		ScopeMode: e.Scope.Mode,
		Lines: []domain.JournalLine{
			{AccountID: intAcct, Side: domain.Debit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
			{AccountID: extAcct, Side: domain.Credit, Amount: e.Amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate},
		},
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Deposit %s %s", e.Amount, e.Asset),
		Memo:          e.Origin,
	}, nil
}

func (b *EntryBuilder) fromWithdrawal(ctx context.Context, e *domain.WithdrawalCompleted) (*domain.JournalEntry, error) {
	intAcct, err := b.registry.EnsureAssetAccount(ctx, e.Scope.Venue, e.Asset)
	if err != nil {
		return nil, err
	}
	extAcct, err := b.registry.EnsureAssetAccount(ctx, domain.VenueExternal, e.Asset)
	if err != nil {
		return nil, err
	}
	rate := b.rates.Rate(ctx, e.Asset, e.Time)

	// gross = net + fee: the wallet is credited the gross amount sent out,
	// the counterparty receives the net, the fee is a separate expense leg.
	// A fee at or above the gross amount means the payload is suspect, so the
	// whole event goes to suspense instead of producing a non-positive leg.
	net := e.Amount.Sub(e.Fee)
	if !net.IsPositive() {
		b.logger.Warn(ctx, "withdrawal fee meets or exceeds amount, quarantining",
			map[string]interface{}{"eventID": e.ID, "asset": e.Asset, "amount": e.Amount.String(), "fee": e.Fee.String()})
		raw, _ := json.Marshal(map[string]string{"amount": e.Amount.String(), "asset": e.Asset, "fee": e.Fee.String()})
		return b.quarantine(ctx, &domain.UnrecognizedEvent{
			EventMeta: e.EventMeta,
			Type:      "WithdrawalCompleted",
			Raw:       raw,
		})
	}
	lines := []domain.JournalLine{
		{AccountID: extAcct, Side: domain.Debit, Amount: net, Asset: e.Asset, SettlementValue: net.Mul(rate), SettlementRate: rate},
		{AccountID: intAcct, Side: domain.Credit, Amount: e.Amount, Asset: e.Asset, SettlementValue: e.Amount.Mul(rate), SettlementRate: rate},
	}
	if e.Fee.IsPositive() {
		lines = append(lines, domain.JournalLine{
			AccountID: domain.AccountWithdrawalFee, Side: domain.Debit,
			Amount: e.Fee, Asset: e.Asset, SettlementValue: e.Fee.Mul(rate), SettlementRate: rate,
		})
	}

	return &domain.JournalEntry{
		ID:            id.NewEntryID(),
		Time:          e.Time,
		Type:          domain.TxWithdrawal,
		ScopeMode:     e.Scope.Mode,
		Lines:         lines,
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Withdraw %s %s (fee: %s)", e.Amount, e.Asset, e.Fee),
		Memo:          e.Destination,
	}, nil
}

// fromBalanceChanged pairs an unattributed balance delta against SUSPENSE so
// total system value stays internally consistent even though the cause is
// unexplained.
func (b *EntryBuilder) fromBalanceChanged(ctx context.Context, e *domain.BalanceChanged) (*domain.JournalEntry, error) {
	if e.Delta.IsZero() {
		b.logger.Debug(ctx, "balance change with zero delta ignored", map[string]interface{}{"eventID": e.ID})
		return nil, nil
	}
	walletAcct, err := b.registry.EnsureAssetAccount(ctx, e.Scope.Venue, e.Asset)
	if err != nil {
		return nil, err
	}
	rate := b.rates.Rate(ctx, e.Asset, e.Time)
	amount := e.Delta.Abs()
	value := amount.Mul(rate)

	wallet := domain.JournalLine{AccountID: walletAcct, Amount: amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate}
	suspense := domain.JournalLine{AccountID: domain.AccountSuspense, Amount: amount, Asset: e.Asset, SettlementValue: value, SettlementRate: rate}
	if e.Delta.IsPositive() {
		wallet.Side, suspense.Side = domain.Debit, domain.Credit
	} else {
		wallet.Side, suspense.Side = domain.Credit, domain.Debit
	}

	b.logger.Warn(ctx, "unattributed balance change routed to suspense",
		map[string]interface{}{"eventID": e.ID, "asset": e.Asset, "delta": e.Delta.String()})

	return &domain.JournalEntry{
		ID:            id.NewEntryID(),
		Time:          e.Time,
		Type:          domain.TxAdjustment,
		ScopeMode:     e.Scope.Mode,
		Lines:         []domain.JournalLine{wallet, suspense},
		SourceEventID: e.ID,
		Source:        e.Source,
		Description:   fmt.Sprintf("Unattributed balance change: %s %s", e.Asset, e.Delta),
	}, nil
}

// quarantine handles events with no dedicated rule. Non-financial types are
// ignored; everything else becomes a balanced UNKNOWN entry on SUSPENSE with
// the raw payload preserved for manual follow-up.
func (b *EntryBuilder) quarantine(ctx context.Context, e *domain.UnrecognizedEvent) (*domain.JournalEntry, error) {
	if domain.IsNonFinancial(e.Type) {
		b.logger.Debug(ctx, "non-financial event ignored", map[string]interface{}{"eventType": e.Type, "eventID": e.ID})
		return nil, nil
	}

	b.logger.Warn(ctx, "unrecognized financial event quarantined to suspense",
		map[string]interface{}{"eventType": e.Type, "eventID": e.ID})

	// Best effort: if the payload carries an amount we record its magnitude on
	// both suspense legs so it is visible for triage; the net is zero either way.
	amount, asset := extractAmount(e.Raw)
	rate := decimal.Zero
	value := decimal.Zero
	if asset != "" {
		rate = b.rates.Rate(ctx, asset, e.Time)
		value = amount.Mul(rate)
	} else {
		asset = "UNKNOWN"
	}

	memo := "Unhandled: " + e.Type
	return &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      e.Time,
		Type:      domain.TxUnknown,
		ScopeMode: e.Scope.Mode,
		Lines: []domain.JournalLine{
			{AccountID: domain.AccountSuspense, Side: domain.Debit, Amount: amount, Asset: asset, SettlementValue: value, SettlementRate: rate, Memo: memo},
			{AccountID: domain.AccountSuspense, Side: domain.Credit, Amount: amount, Asset: asset, SettlementValue: value, SettlementRate: rate, Memo: memo},
		},
		SourceEventID: e.ID,
		Source:        "FALLBACK",
		Description:   "Unhandled event: " + e.Type,
		Memo:          "event_type=" + e.Type,
		RawData:       e.Raw,
	}, nil
}

// extractAmount pulls an amount/asset pair out of an arbitrary payload if one
// is present. Returns zero and "" when nothing parseable is found.
func extractAmount(raw json.RawMessage) (decimal.Decimal, string) {
	if len(raw) == 0 {
		return decimal.Zero, ""
	}
	var payload struct {
		Amount string `json:"amount"`
		Asset  string `json:"asset"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Amount == "" || payload.Asset == "" {
		return decimal.Zero, ""
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, ""
	}
	return amount, payload.Asset
}
