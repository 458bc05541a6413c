package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
)

// AccountRegistry defines the chart-of-accounts operations the entry builder
// depends on. Creation is idempotent: concurrent identical creations must not
// fail or duplicate.
type AccountRegistry interface {
	// EnsureAssetAccount creates the asset account for (venue, asset) if it
	// does not exist yet and returns its id either way.
	EnsureAssetAccount(ctx context.Context, venue domain.Venue, asset string) (string, error)
	// EnsureFeeAccount creates the expense account for a fee category if it
	// does not exist yet and returns its id either way.
	EnsureFeeAccount(ctx context.Context, feeType string) (string, error)
	// KnownAccounts retrieves all active accounts.
	KnownAccounts(ctx context.Context) ([]domain.Account, error)
}

// LedgerStore defines the persistence interface for journal entries and the
// derived balances/aggregates read by reporting tools.
type LedgerStore interface {
	// SaveEntry persists the entry header, its lines and the balance deltas
	// they imply as a single atomic unit, and returns the entry id.
	// The entry must already balance; the store re-validates and rejects an
	// unbalanced entry with ErrUnbalancedEntry before touching storage.
	SaveEntry(ctx context.Context, entry *domain.JournalEntry) (string, error)

	// GetEntry retrieves one entry with its lines. Returns nil, nil if not found.
	GetEntry(ctx context.Context, entryID string) (*domain.JournalEntry, error)

	// GetBalance returns the running balance of an account within a scope,
	// zero if the account has never been touched.
	GetBalance(ctx context.Context, accountID, scopeMode string) (decimal.Decimal, error)

	// TrialBalance returns the balance of every active account within a scope.
	TrialBalance(ctx context.Context, scopeMode string) ([]domain.AccountBalance, error)

	// EntriesByAccount retrieves the lines touching an account within a scope,
	// newest first.
	EntriesByAccount(ctx context.Context, accountID, scopeMode string, limit, offset int) ([]domain.LedgerLine, error)

	// SuspenseEntries retrieves the lines touching the suspense account within
	// a scope, newest first. Accumulation here is the operational signal that
	// manual reconciliation or a new event rule is due.
	SuspenseEntries(ctx context.Context, scopeMode string, limit int) ([]domain.LedgerLine, error)

	// DailyPnL aggregates realized PnL, fees and win/loss counts per trading
	// day within a scope, newest day first.
	DailyPnL(ctx context.Context, scopeMode string, days int) ([]domain.DailyPnL, error)
}

// SessionRepository defines storage for position sessions and their trades.
type SessionRepository interface {
	// FindOpenSession retrieves the open session for a symbol, if any.
	// Returns nil, nil if no open session exists.
	FindOpenSession(ctx context.Context, scopeMode string, venue domain.Venue, symbol string) (*domain.PositionSession, error)
	// CreateSession saves a new session.
	CreateSession(ctx context.Context, s *domain.PositionSession) error
	// UpdateSession modifies an existing session.
	UpdateSession(ctx context.Context, s *domain.PositionSession) error
	// RecordSessionTrade appends one fill's contribution to a session.
	RecordSessionTrade(ctx context.Context, t *domain.SessionTrade) error
	// FindSessions retrieves sessions for a scope, newest first.
	FindSessions(ctx context.Context, scopeMode string, limit int) ([]*domain.PositionSession, error)
}
