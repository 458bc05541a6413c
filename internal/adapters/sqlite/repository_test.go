package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
	"cryptoLedgerBot/pkg/id"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "ledger-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath:          dbPath,
		Logger:          &mockLogger{},
		SettlementAsset: "USDT",
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// tradeEntry builds a balanced 0.1 BTC buy against USDT for tests.
func tradeEntry(scopeMode, sourceEventID string) *domain.JournalEntry {
	return &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Type:      domain.TxTrade,
		ScopeMode: scopeMode,
		Lines: []domain.JournalLine{
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "BTC"), Side: domain.Debit, Amount: dec("0.1"), Asset: "BTC", SettlementValue: dec("5000"), SettlementRate: dec("50000")},
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "USDT"), Side: domain.Credit, Amount: dec("5000"), Asset: "USDT", SettlementValue: dec("5000"), SettlementRate: dec("1")},
		},
		TradeID:       "t-1",
		OrderID:       "o-1",
		Symbol:        "BTCUSDT",
		SourceEventID: sourceEventID,
		Source:        "WEBSOCKET",
		Description:   "BUY 0.1 BTC @ 50000",
	}
}

func TestRepository_EnsureAssetAccountIdempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id1, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "ASSET:BINANCE_FUTURES:BTC", id1)

	id2, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	accounts, err := repo.KnownAccounts(ctx)
	require.NoError(t, err)
	count := 0
	for _, a := range accounts {
		if a.ID == id1 {
			count++
			assert.Equal(t, domain.AccountAsset, a.Type)
			assert.Equal(t, domain.VenueFutures, a.Venue)
			assert.Equal(t, "BTC", a.Asset)
		}
	}
	assert.Equal(t, 1, count, "repeated creation must not duplicate the account")
}

func TestRepository_SeedsInitialAccounts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	accounts, err := repo.KnownAccounts(context.Background())
	require.NoError(t, err)

	ids := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		ids[a.ID] = true
	}
	for _, want := range []string{
		domain.AccountSuspense,
		domain.AccountTakerFee,
		domain.AccountRealizedPnL,
		domain.AssetAccountID(domain.VenueFutures, "USDT"),
	} {
		assert.True(t, ids[want], "missing seeded account %s", want)
	}
}

func TestRepository_SaveAndGetEntry(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)

	entry := tradeEntry("TESTNET", "evt-1")
	entryID, err := repo.SaveEntry(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, entryID)

	got, err := repo.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, domain.TxTrade, got.Type)
	assert.Equal(t, "TESTNET", got.ScopeMode)
	assert.Equal(t, "evt-1", got.SourceEventID)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].Amount.Equal(dec("0.1")))
	assert.True(t, got.Lines[0].SettlementRate.Equal(dec("50000")))
	assert.True(t, got.IsBalanced())
}

func TestRepository_GetEntryNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := repo.GetEntry(context.Background(), "no-such-entry")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_SaveEntryRejectsUnbalanced(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	entry := tradeEntry("TESTNET", "evt-bad")
	entry.Lines[1].SettlementValue = dec("4999") // force imbalance

	_, err := repo.SaveEntry(ctx, entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUnbalancedEntry))

	// nothing may have been written
	got, err := repo.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_SaveEntryRejectsEmpty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	entry := tradeEntry("TESTNET", "evt-empty")
	entry.Lines = nil
	_, err := repo.SaveEntry(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrEmptyEntry))
}

func TestRepository_SaveEntryDeduplicatesSourceEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)

	first := tradeEntry("TESTNET", "evt-dup")
	_, err = repo.SaveEntry(ctx, first)
	require.NoError(t, err)

	second := tradeEntry("TESTNET", "evt-dup") // fresh entry id, same source event
	_, err = repo.SaveEntry(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrEntryExists))

	// replaying must not double the balances
	balance, err := repo.GetBalance(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "TESTNET")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.1")), "balance = %s", balance)
}

func TestRepository_BalancesFollowEntries(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)

	_, err = repo.SaveEntry(ctx, tradeEntry("TESTNET", "evt-b1"))
	require.NoError(t, err)

	btc, err := repo.GetBalance(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "TESTNET")
	require.NoError(t, err)
	assert.True(t, btc.Equal(dec("0.1")))

	// debit adds, credit subtracts, uniformly
	usdt, err := repo.GetBalance(ctx, domain.AssetAccountID(domain.VenueFutures, "USDT"), "TESTNET")
	require.NoError(t, err)
	assert.True(t, usdt.Equal(dec("-5000")))

	// a second buy accumulates
	_, err = repo.SaveEntry(ctx, tradeEntry("TESTNET", "evt-b2"))
	require.NoError(t, err)
	btc, err = repo.GetBalance(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "TESTNET")
	require.NoError(t, err)
	assert.True(t, btc.Equal(dec("0.2")))
}

func TestRepository_BalancesAreScopedByMode(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)

	_, err = repo.SaveEntry(ctx, tradeEntry("TESTNET", "evt-s1"))
	require.NoError(t, err)

	prod, err := repo.GetBalance(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "PRODUCTION")
	require.NoError(t, err)
	assert.True(t, prod.IsZero(), "entries in one scope must not leak into another")
}

func TestRepository_GetBalanceUnknownAccount(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	balance, err := repo.GetBalance(context.Background(), "ASSET:BINANCE_FUTURES:NOPE", "TESTNET")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestRepository_TrialBalance(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)
	_, err = repo.SaveEntry(ctx, tradeEntry("TESTNET", "evt-t1"))
	require.NoError(t, err)

	balances, err := repo.TrialBalance(ctx, "TESTNET")
	require.NoError(t, err)
	require.NotEmpty(t, balances)

	byID := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		byID[b.AccountID] = b.Balance
	}
	assert.True(t, byID[domain.AssetAccountID(domain.VenueFutures, "BTC")].Equal(dec("0.1")))
	assert.True(t, byID[domain.AssetAccountID(domain.VenueFutures, "USDT")].Equal(dec("-5000")))
	// untouched seeded accounts report zero instead of being omitted
	suspense, ok := byID[domain.AccountSuspense]
	require.True(t, ok)
	assert.True(t, suspense.IsZero())
}

func TestRepository_EntriesByAccountNewestFirst(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)

	older := tradeEntry("TESTNET", "evt-h1")
	older.Time = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	_, err = repo.SaveEntry(ctx, older)
	require.NoError(t, err)

	newer := tradeEntry("TESTNET", "evt-h2")
	newer.Time = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	_, err = repo.SaveEntry(ctx, newer)
	require.NoError(t, err)

	lines, err := repo.EntriesByAccount(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "TESTNET", 10, 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, newer.ID, lines[0].EntryID)
	assert.Equal(t, older.ID, lines[1].EntryID)

	// limit and offset page through
	page, err := repo.EntriesByAccount(ctx, domain.AssetAccountID(domain.VenueFutures, "BTC"), "TESTNET", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].EntryID)
}

func TestRepository_SuspenseEntries(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	entry := &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      time.Now().UTC(),
		Type:      domain.TxUnknown,
		ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			{AccountID: domain.AccountSuspense, Side: domain.Debit, Amount: dec("12.5"), Asset: "USDT", SettlementValue: dec("12.5"), SettlementRate: dec("1")},
			{AccountID: domain.AccountSuspense, Side: domain.Credit, Amount: dec("12.5"), Asset: "USDT", SettlementValue: dec("12.5"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-q1",
		Source:        "FALLBACK",
		Description:   "Unhandled event: MysteryRebate",
		RawData:       []byte(`{"amount":"12.5","asset":"USDT"}`),
	}
	_, err := repo.SaveEntry(ctx, entry)
	require.NoError(t, err)

	lines, err := repo.SuspenseEntries(ctx, "TESTNET", 10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Equal(t, domain.AccountSuspense, l.AccountID)
		assert.Equal(t, domain.TxUnknown, l.Type)
	}

	// quarantined raw payload survives the round trip
	got, err := repo.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.RawData, got.RawData)
}

func TestRepository_DailyPnL(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	day := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	win := &domain.JournalEntry{
		ID: id.NewEntryID(), Time: day, Type: domain.TxTrade, ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "USDT"), Side: domain.Debit, Amount: dec("10"), Asset: "USDT", SettlementValue: dec("10"), SettlementRate: dec("1")},
			{AccountID: domain.AccountRealizedPnL, Side: domain.Credit, Amount: dec("10"), Asset: "USDT", SettlementValue: dec("10"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-p1", Source: "WEBSOCKET",
	}
	loss := &domain.JournalEntry{
		ID: id.NewEntryID(), Time: day.Add(time.Hour), Type: domain.TxTrade, ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			{AccountID: domain.AccountRealizedPnL, Side: domain.Debit, Amount: dec("4"), Asset: "USDT", SettlementValue: dec("4"), SettlementRate: dec("1")},
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "USDT"), Side: domain.Credit, Amount: dec("4"), Asset: "USDT", SettlementValue: dec("4"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-p2", Source: "WEBSOCKET",
	}
	fee := &domain.JournalEntry{
		ID: id.NewEntryID(), Time: day.Add(2 * time.Hour), Type: domain.TxFeeTrading, ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			{AccountID: domain.AccountTakerFee, Side: domain.Debit, Amount: dec("0.5"), Asset: "USDT", SettlementValue: dec("0.5"), SettlementRate: dec("1")},
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "USDT"), Side: domain.Credit, Amount: dec("0.5"), Asset: "USDT", SettlementValue: dec("0.5"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-p3", Source: "WEBSOCKET",
	}
	for _, e := range []*domain.JournalEntry{win, loss, fee} {
		_, err := repo.SaveEntry(ctx, e)
		require.NoError(t, err)
	}

	days, err := repo.DailyPnL(ctx, "TESTNET", 7)
	require.NoError(t, err)
	require.Len(t, days, 1)

	d := days[0]
	assert.Equal(t, "2026-08-30", d.Date)
	assert.Equal(t, 2, d.TradeCount)
	assert.Equal(t, 1, d.WinCount)
	assert.Equal(t, 1, d.LossCount)
	// aggregation stays in exact decimal arithmetic
	assert.True(t, d.RealizedPnL.Equal(dec("6")), "realized pnl = %s", d.RealizedPnL)
	assert.True(t, d.TradingFees.Equal(dec("0.5")), "trading fees = %s", d.TradingFees)
	assert.True(t, d.FundingFees.IsZero())
}

func TestRepository_EnsureFeeAccount(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id1, err := repo.EnsureFeeAccount(ctx, "TRADING")
	require.NoError(t, err)
	assert.Equal(t, "EXPENSE:FEE:TRADING", id1)

	id2, err := repo.EnsureFeeAccount(ctx, "TRADING")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	accounts, err := repo.KnownAccounts(ctx)
	require.NoError(t, err)
	count := 0
	for _, a := range accounts {
		if a.ID == id1 {
			count++
			assert.Equal(t, domain.AccountExpense, a.Type)
			assert.Equal(t, domain.VenueSystem, a.Venue)
		}
	}
	assert.Equal(t, 1, count, "repeated creation must not duplicate the account")
}

func TestRepository_SaveEntryWithUnseededFeeAccount(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// a fee type outside the seeded catalog works once registered
	feeAcct, err := repo.EnsureFeeAccount(ctx, "TRADING")
	require.NoError(t, err)

	entry := &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      time.Now().UTC(),
		Type:      domain.TxFeeTrading,
		ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			{AccountID: feeAcct, Side: domain.Debit, Amount: dec("1.5"), Asset: "USDT", SettlementValue: dec("1.5"), SettlementRate: dec("1")},
			{AccountID: domain.AssetAccountID(domain.VenueFutures, "USDT"), Side: domain.Credit, Amount: dec("1.5"), Asset: "USDT", SettlementValue: dec("1.5"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-fee1",
		Source:        "WEBSOCKET",
		Description:   "Fee 1.5 USDT (TRADING)",
	}
	_, err = repo.SaveEntry(ctx, entry)
	require.NoError(t, err)

	balance, err := repo.GetBalance(ctx, feeAcct, "TESTNET")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1.5")))
}

func TestRepository_SaveEntryAtomicOnLineFailure(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	wallet := domain.AssetAccountID(domain.VenueFutures, "USDT")
	entry := &domain.JournalEntry{
		ID:        id.NewEntryID(),
		Time:      time.Now().UTC(),
		Type:      domain.TxAdjustment,
		ScopeMode: "TESTNET",
		Lines: []domain.JournalLine{
			// first leg lands on a seeded account, second violates the
			// account foreign key mid-transaction
			{AccountID: wallet, Side: domain.Debit, Amount: dec("10"), Asset: "USDT", SettlementValue: dec("10"), SettlementRate: dec("1")},
			{AccountID: "ASSET:NOWHERE:FAKE", Side: domain.Credit, Amount: dec("10"), Asset: "USDT", SettlementValue: dec("10"), SettlementRate: dec("1")},
		},
		SourceEventID: "evt-atomic",
		Source:        "WEBSOCKET",
	}
	_, err := repo.SaveEntry(ctx, entry)
	require.Error(t, err)

	// neither the header, the good line, nor its balance delta may survive
	got, err := repo.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	balance, err := repo.GetBalance(ctx, wallet, "TESTNET")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance = %s", balance)
}

func TestRepository_BalanceReconstructsFromLineHistory(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.EnsureAssetAccount(ctx, domain.VenueFutures, "BTC")
	require.NoError(t, err)
	for i, src := range []string{"evt-r1", "evt-r2", "evt-r3"} {
		entry := tradeEntry("TESTNET", src)
		entry.Time = entry.Time.Add(time.Duration(i) * time.Hour)
		_, err := repo.SaveEntry(ctx, entry)
		require.NoError(t, err)
	}

	// the materialized balance must equal a fold over the raw line history
	for _, acct := range []string{
		domain.AssetAccountID(domain.VenueFutures, "BTC"),
		domain.AssetAccountID(domain.VenueFutures, "USDT"),
	} {
		lines, err := repo.EntriesByAccount(ctx, acct, "TESTNET", 1000, 0)
		require.NoError(t, err)
		require.NotEmpty(t, lines)

		folded := decimal.Zero
		for _, l := range lines {
			if l.Side == domain.Debit {
				folded = folded.Add(l.Amount)
			} else {
				folded = folded.Sub(l.Amount)
			}
		}
		balance, err := repo.GetBalance(ctx, acct, "TESTNET")
		require.NoError(t, err)
		assert.True(t, balance.Equal(folded), "account %s: materialized %s != folded %s", acct, balance, folded)
	}
}
