package domain

import (
	"fmt"
	"time"
)

// AccountType classifies an account in the chart of accounts.
// Liability accounts are not used by the bot's books.
type AccountType string

const (
	AccountAsset   AccountType = "ASSET"
	AccountExpense AccountType = "EXPENSE"
	AccountIncome  AccountType = "INCOME"
	AccountEquity  AccountType = "EQUITY"
)

// Venue identifies a wallet/sub-ledger the money sits in.
// EXTERNAL and SYSTEM are pseudo-venues: EXTERNAL is everything outside the
// operator (deposit/withdrawal counterparties), SYSTEM holds the non-venue
// expense/income/equity accounts.
type Venue string

const (
	VenueSpot     Venue = "BINANCE_SPOT"
	VenueFutures  Venue = "BINANCE_FUTURES"
	VenueExternal Venue = "EXTERNAL"
	VenueSystem   Venue = "SYSTEM"
)

// Well-known system account IDs. Asset account IDs are derived via
// AssetAccountID instead.
const (
	AccountTakerFee          = "EXPENSE:FEE:TRADING:TAKER"
	AccountMakerFee          = "EXPENSE:FEE:TRADING:MAKER"
	AccountFundingPaid       = "EXPENSE:FEE:FUNDING:PAID"
	AccountWithdrawalFee     = "EXPENSE:FEE:WITHDRAWAL"
	AccountNetworkFee        = "EXPENSE:FEE:NETWORK"
	AccountRealizedPnL       = "INCOME:TRADING:REALIZED_PNL"
	AccountFundingReceived   = "INCOME:FUNDING:RECEIVED"
	AccountRebate            = "INCOME:REBATE"
	AccountInitialCapital    = "EQUITY:INITIAL_CAPITAL"
	AccountRetainedEarnings  = "EQUITY:RETAINED_EARNINGS"
	AccountSuspense          = "EQUITY:SUSPENSE"
	AccountOpeningAdjustment = "EQUITY:OPENING_ADJUSTMENT"
)

// AssetAccountID derives the deterministic account id for an asset balance at a
// venue. Callers may compute candidate ids directly, but must still register the
// account through the registry before first use.
func AssetAccountID(venue Venue, asset string) string {
	return fmt.Sprintf("%s:%s:%s", AccountAsset, venue, asset)
}

// FeeAccountID derives the expense account id for a fee category
// (e.g. "TRADING:TAKER" -> "EXPENSE:FEE:TRADING:TAKER").
func FeeAccountID(feeType string) string {
	return fmt.Sprintf("%s:FEE:%s", AccountExpense, feeType)
}

// Account is one row in the chart of accounts. Accounts are never deleted;
// retired ones are marked inactive.
type Account struct {
	ID        string
	Type      AccountType
	Venue     Venue
	Asset     string // empty for non-asset-specific accounts
	Name      string
	Active    bool
	CreatedAt time.Time
}

// InitialAccounts returns the bootstrap chart of accounts seeded at schema
// initialization. Asset accounts for new assets are created lazily afterwards.
func InitialAccounts(settlementAsset string) []Account {
	accounts := []Account{
		{ID: AssetAccountID(VenueSpot, settlementAsset), Type: AccountAsset, Venue: VenueSpot, Asset: settlementAsset, Name: "Spot " + settlementAsset},
		{ID: AssetAccountID(VenueFutures, settlementAsset), Type: AccountAsset, Venue: VenueFutures, Asset: settlementAsset, Name: "Futures " + settlementAsset},
		{ID: AssetAccountID(VenueExternal, settlementAsset), Type: AccountAsset, Venue: VenueExternal, Asset: settlementAsset, Name: "External " + settlementAsset},

		{ID: AccountTakerFee, Type: AccountExpense, Venue: VenueSystem, Name: "Taker Fee"},
		{ID: AccountMakerFee, Type: AccountExpense, Venue: VenueSystem, Name: "Maker Fee"},
		{ID: AccountFundingPaid, Type: AccountExpense, Venue: VenueSystem, Name: "Funding Fee Paid"},
		{ID: AccountWithdrawalFee, Type: AccountExpense, Venue: VenueSystem, Name: "Withdrawal Fee"},
		{ID: AccountNetworkFee, Type: AccountExpense, Venue: VenueSystem, Name: "Network Fee"},

		{ID: AccountRealizedPnL, Type: AccountIncome, Venue: VenueSystem, Name: "Realized PnL"},
		{ID: AccountFundingReceived, Type: AccountIncome, Venue: VenueSystem, Name: "Funding Fee Received"},
		{ID: AccountRebate, Type: AccountIncome, Venue: VenueSystem, Name: "Trading Rebate"},

		{ID: AccountInitialCapital, Type: AccountEquity, Venue: VenueSystem, Name: "Initial Capital"},
		{ID: AccountRetainedEarnings, Type: AccountEquity, Venue: VenueSystem, Name: "Retained Earnings"},
		{ID: AccountSuspense, Type: AccountEquity, Venue: VenueSystem, Name: "Suspense Account"},
		{ID: AccountOpeningAdjustment, Type: AccountEquity, Venue: VenueSystem, Name: "Opening Balance Adjustment"},
	}
	for i := range accounts {
		accounts[i].Active = true
	}
	return accounts
}
