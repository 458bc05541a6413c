package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
)

// saveRetries bounds transparent retries of SaveEntry on write conflicts.
const saveRetries = 3

// Repository implements ports.AccountRegistry, ports.LedgerStore and
// ports.SessionRepository on SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
	// SettlementAsset seeds the bootstrap chart of accounts.
	SettlementAsset string
}

// NewRepository creates a new SQLite repository instance and initializes the
// ledger schema, including the bootstrap chart of accounts.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	if cfg.SettlementAsset == "" {
		return nil, fmt.Errorf("settlement asset is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ledger.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL keeps the single writer from blocking dashboard readers.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1) // SQLite handles concurrency internally; the Go driver benefits from one connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background(), cfg.SettlementAsset); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize ledger schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Ledger database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context, settlementAsset string) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS account (
		account_id   TEXT PRIMARY KEY,
		account_type TEXT NOT NULL,
		venue        TEXT NOT NULL,
		asset        TEXT,
		name         TEXT NOT NULL,
		is_active    INTEGER NOT NULL DEFAULT 1,
		created_at   TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(account_type, venue, asset)
	);

	CREATE TABLE IF NOT EXISTS journal_entry (
		entry_id            TEXT PRIMARY KEY,
		ts                  TIMESTAMP NOT NULL,
		transaction_type    TEXT NOT NULL,
		scope_mode          TEXT NOT NULL,
		related_trade_id    TEXT,
		related_order_id    TEXT,
		related_position_id TEXT,
		symbol              TEXT,
		source_event_id     TEXT,
		source              TEXT NOT NULL,
		description         TEXT,
		memo                TEXT,
		raw_data            BLOB,
		created_at          TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS journal_line (
		line_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id         TEXT NOT NULL,
		account_id       TEXT NOT NULL,
		side             TEXT NOT NULL,
		amount           TEXT NOT NULL,
		asset            TEXT NOT NULL,
		settlement_value TEXT NOT NULL,
		settlement_rate  TEXT NOT NULL,
		memo             TEXT,
		line_order       INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (entry_id) REFERENCES journal_entry(entry_id),
		FOREIGN KEY (account_id) REFERENCES account(account_id)
	);

	CREATE TABLE IF NOT EXISTS account_balance (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id    TEXT NOT NULL,
		scope_mode    TEXT NOT NULL,
		balance       TEXT NOT NULL DEFAULT '0',
		last_entry_id TEXT,
		last_entry_ts TIMESTAMP,
		updated_at    TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(account_id, scope_mode),
		FOREIGN KEY (account_id) REFERENCES account(account_id)
	);

	CREATE TABLE IF NOT EXISTS position_session (
		session_id       TEXT PRIMARY KEY,
		scope_mode       TEXT NOT NULL,
		scope_venue      TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		side             TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'OPEN',
		opened_at        TIMESTAMP NOT NULL,
		closed_at        TIMESTAMP,
		initial_qty      TEXT NOT NULL,
		max_qty          TEXT NOT NULL,
		quantity         TEXT NOT NULL,
		realized_pnl     TEXT NOT NULL DEFAULT '0',
		total_commission TEXT NOT NULL DEFAULT '0',
		trade_count      INTEGER NOT NULL DEFAULT 0,
		close_reason     TEXT
	);

	CREATE TABLE IF NOT EXISTS position_trade (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id       TEXT NOT NULL,
		trade_event_id   TEXT NOT NULL,
		journal_entry_id TEXT,
		action           TEXT NOT NULL,
		qty              TEXT NOT NULL,
		price            TEXT NOT NULL,
		realized_pnl     TEXT,
		commission       TEXT,
		qty_after        TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES position_session(session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entry_ts ON journal_entry (ts);
	CREATE INDEX IF NOT EXISTS idx_journal_entry_type ON journal_entry (transaction_type, scope_mode);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_journal_entry_source_event ON journal_entry (source_event_id) WHERE source_event_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_journal_line_entry ON journal_line (entry_id);
	CREATE INDEX IF NOT EXISTS idx_journal_line_account ON journal_line (account_id);
	CREATE INDEX IF NOT EXISTS idx_account_balance_account ON account_balance (account_id, scope_mode);
	CREATE INDEX IF NOT EXISTS idx_position_session_open ON position_session (scope_mode, scope_venue, symbol, status);
	CREATE INDEX IF NOT EXISTS idx_position_trade_session ON position_trade (session_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}

	for _, acct := range domain.InitialAccounts(settlementAsset) {
		if err := r.insertAccount(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing ledger database connection")
		return r.db.Close()
	}
	return nil
}

// --- AccountRegistry Implementation ---

func (r *Repository) insertAccount(ctx context.Context, acct domain.Account) error {
	const query = `
	INSERT INTO account (account_id, account_type, venue, asset, name, is_active)
	VALUES (?, ?, ?, NULLIF(?, ''), ?, 1)
	ON CONFLICT(account_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, acct.ID, acct.Type, acct.Venue, acct.Asset, acct.Name); err != nil {
		return fmt.Errorf("failed to insert account %s: %w", acct.ID, err)
	}
	return nil
}

// EnsureAssetAccount creates the asset account for (venue, asset) if absent
// and returns its deterministic id. The upsert makes concurrent identical
// creations succeed without duplicating rows.
func (r *Repository) EnsureAssetAccount(ctx context.Context, venue domain.Venue, asset string) (string, error) {
	acctID := domain.AssetAccountID(venue, asset)
	err := r.insertAccount(ctx, domain.Account{
		ID:    acctID,
		Type:  domain.AccountAsset,
		Venue: venue,
		Asset: asset,
		Name:  fmt.Sprintf("%s %s", venue, asset),
	})
	if err != nil {
		return "", err
	}
	return acctID, nil
}

// EnsureFeeAccount creates the expense account for a fee category if absent
// and returns its deterministic id. Only a handful of fee accounts are seeded;
// fee types outside that catalog get theirs registered on first use.
func (r *Repository) EnsureFeeAccount(ctx context.Context, feeType string) (string, error) {
	acctID := domain.FeeAccountID(feeType)
	err := r.insertAccount(ctx, domain.Account{
		ID:    acctID,
		Type:  domain.AccountExpense,
		Venue: domain.VenueSystem,
		Name:  fmt.Sprintf("%s Fee", feeType),
	})
	if err != nil {
		return "", err
	}
	return acctID, nil
}

// KnownAccounts retrieves all active accounts.
func (r *Repository) KnownAccounts(ctx context.Context) ([]domain.Account, error) {
	const query = `
	SELECT account_id, account_type, venue, COALESCE(asset, ''), name, is_active
	FROM account
	WHERE is_active = 1
	ORDER BY account_type, venue, asset`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		var active int
		if err := rows.Scan(&a.ID, &a.Type, &a.Venue, &a.Asset, &a.Name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		a.Active = active != 0
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// --- LedgerStore Implementation ---

// SaveEntry persists the entry header, its lines and the implied balance
// deltas in one transaction. It is the last line of defense for the balance
// invariant: an unbalanced entry is rejected before any write. Write conflicts
// are retried a bounded number of times, then surfaced as ErrTxConflict.
func (r *Repository) SaveEntry(ctx context.Context, entry *domain.JournalEntry) (string, error) {
	if len(entry.Lines) == 0 {
		return "", fmt.Errorf("entry %s: %w", entry.ID, ports.ErrEmptyEntry)
	}
	if !entry.IsBalanced() {
		r.logger.Error(ctx, ports.ErrUnbalancedEntry, "rejecting unbalanced entry", map[string]interface{}{
			"entryID":   entry.ID,
			"type":      entry.Type,
			"imbalance": entry.Imbalance().String(),
			"rawData":   string(entry.RawData),
		})
		return "", fmt.Errorf("entry %s (imbalance %s): %w", entry.ID, entry.Imbalance(), ports.ErrUnbalancedEntry)
	}

	var err error
	for attempt := 0; attempt < saveRetries; attempt++ {
		if err = r.saveEntryTx(ctx, entry); err == nil {
			r.logger.Debug(ctx, "Journal entry saved", map[string]interface{}{"entryID": entry.ID, "type": entry.Type})
			return entry.ID, nil
		}
		if isDuplicate(err) {
			return "", fmt.Errorf("entry %s (source event %s): %w", entry.ID, entry.SourceEventID, ports.ErrEntryExists)
		}
		if !isBusy(err) {
			return "", err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		case <-ctx.Done():
			return "", fmt.Errorf("save entry %s: %w", entry.ID, ports.ErrContextCanceled)
		}
	}
	return "", fmt.Errorf("save entry %s: %w: %v", entry.ID, ports.ErrTxConflict, err)
}

func (r *Repository) saveEntryTx(ctx context.Context, entry *domain.JournalEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const entryQuery = `
	INSERT INTO journal_entry (
		entry_id, ts, transaction_type, scope_mode,
		related_trade_id, related_order_id, related_position_id, symbol,
		source_event_id, source, description, memo, raw_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, entryQuery,
		entry.ID, entry.Time.UTC(), entry.Type, entry.ScopeMode,
		nullString(entry.TradeID), nullString(entry.OrderID), nullString(entry.PositionID), nullString(entry.Symbol),
		nullString(entry.SourceEventID), entry.Source, entry.Description, entry.Memo, entry.RawData)
	if err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", entry.ID, err)
	}

	const lineQuery = `
	INSERT INTO journal_line (entry_id, account_id, side, amount, asset, settlement_value, settlement_rate, memo, line_order)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, line := range entry.Lines {
		_, err = tx.ExecContext(ctx, lineQuery,
			entry.ID, line.AccountID, line.Side,
			line.Amount.String(), line.Asset,
			line.SettlementValue.String(), line.SettlementRate.String(),
			line.Memo, i)
		if err != nil {
			return fmt.Errorf("failed to insert line %d of entry %s: %w", i, entry.ID, err)
		}
		if err = applyBalanceDelta(ctx, tx, entry, line); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry %s: %w", entry.ID, err)
	}
	return nil
}

// applyBalanceDelta folds one line into its account's running balance within
// the surrounding transaction. Debit adds, credit subtracts, uniformly across
// account types; readers interpret the sign per account type.
func applyBalanceDelta(ctx context.Context, tx *sql.Tx, entry *domain.JournalEntry, line domain.JournalLine) error {
	var current string
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM account_balance WHERE account_id = ? AND scope_mode = ?`,
		line.AccountID, entry.ScopeMode).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read balance of %s: %w", line.AccountID, err)
	}
	balance := decimal.Zero
	if current != "" {
		if balance, err = decimal.NewFromString(current); err != nil {
			return fmt.Errorf("corrupt balance for %s: %w", line.AccountID, err)
		}
	}
	if line.Side == domain.Debit {
		balance = balance.Add(line.Amount)
	} else {
		balance = balance.Sub(line.Amount)
	}

	const upsert = `
	INSERT INTO account_balance (account_id, scope_mode, balance, last_entry_id, last_entry_ts, updated_at)
	VALUES (?, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT(account_id, scope_mode) DO UPDATE SET
		balance = excluded.balance,
		last_entry_id = excluded.last_entry_id,
		last_entry_ts = excluded.last_entry_ts,
		updated_at = excluded.updated_at`

	if _, err = tx.ExecContext(ctx, upsert, line.AccountID, entry.ScopeMode, balance.String(), entry.ID, entry.Time.UTC()); err != nil {
		return fmt.Errorf("failed to update balance of %s: %w", line.AccountID, err)
	}
	return nil
}

// GetEntry retrieves one entry with its lines. Returns nil, nil if not found.
func (r *Repository) GetEntry(ctx context.Context, entryID string) (*domain.JournalEntry, error) {
	const query = `
	SELECT entry_id, ts, transaction_type, scope_mode,
	       COALESCE(related_trade_id, ''), COALESCE(related_order_id, ''), COALESCE(related_position_id, ''),
	       COALESCE(symbol, ''), COALESCE(source_event_id, ''), source,
	       COALESCE(description, ''), COALESCE(memo, ''), raw_data
	FROM journal_entry WHERE entry_id = ?`

	e := &domain.JournalEntry{}
	err := r.db.QueryRowContext(ctx, query, entryID).Scan(
		&e.ID, &e.Time, &e.Type, &e.ScopeMode,
		&e.TradeID, &e.OrderID, &e.PositionID,
		&e.Symbol, &e.SourceEventID, &e.Source,
		&e.Description, &e.Memo, &e.RawData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query entry %s: %w", entryID, err)
	}

	const lineQuery = `
	SELECT account_id, side, amount, asset, settlement_value, settlement_rate, COALESCE(memo, '')
	FROM journal_line WHERE entry_id = ? ORDER BY line_order`

	rows, err := r.db.QueryContext(ctx, lineQuery, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines of entry %s: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.JournalLine
		var amount, value, rate string
		if err := rows.Scan(&l.AccountID, &l.Side, &amount, &l.Asset, &value, &rate, &l.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan line of entry %s: %w", entryID, err)
		}
		if l.Amount, l.SettlementValue, l.SettlementRate, err = parseDecimals(amount, value, rate); err != nil {
			return nil, fmt.Errorf("corrupt line of entry %s: %w", entryID, err)
		}
		e.Lines = append(e.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines of entry %s: %w", entryID, err)
	}
	return e, nil
}

// GetBalance returns the running balance of an account within a scope, zero
// if the account has never been touched.
func (r *Repository) GetBalance(ctx context.Context, accountID, scopeMode string) (decimal.Decimal, error) {
	var balance string
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM account_balance WHERE account_id = ? AND scope_mode = ?`,
		accountID, scopeMode).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to query balance of %s: %w", accountID, err)
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for %s: %w", accountID, err)
	}
	return d, nil
}

// TrialBalance returns every active account with its balance within a scope.
func (r *Repository) TrialBalance(ctx context.Context, scopeMode string) ([]domain.AccountBalance, error) {
	const query = `
	SELECT a.account_id, COALESCE(ab.balance, '0'), COALESCE(ab.last_entry_id, ''), ab.last_entry_ts
	FROM account a
	LEFT JOIN account_balance ab ON a.account_id = ab.account_id AND ab.scope_mode = ?
	WHERE a.is_active = 1
	ORDER BY a.account_type, a.venue, a.asset`

	rows, err := r.db.QueryContext(ctx, query, scopeMode)
	if err != nil {
		return nil, fmt.Errorf("failed to query trial balance: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AccountBalance, 0)
	for rows.Next() {
		var ab domain.AccountBalance
		var balance string
		var lastEntryAt sql.NullTime
		if err := rows.Scan(&ab.AccountID, &balance, &ab.LastEntryID, &lastEntryAt); err != nil {
			return nil, fmt.Errorf("failed to scan trial balance row: %w", err)
		}
		if lastEntryAt.Valid {
			ab.LastEntryAt = lastEntryAt.Time
		}
		if ab.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("corrupt balance for %s: %w", ab.AccountID, err)
		}
		ab.ScopeMode = scopeMode
		result = append(result, ab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trial balance rows: %w", err)
	}
	return result, nil
}

// EntriesByAccount retrieves the lines touching an account within a scope,
// newest first.
func (r *Repository) EntriesByAccount(ctx context.Context, accountID, scopeMode string, limit, offset int) ([]domain.LedgerLine, error) {
	const query = `
	SELECT je.entry_id, je.ts, je.transaction_type, COALESCE(je.description, ''), COALESCE(je.symbol, ''),
	       jl.account_id, jl.side, jl.amount, jl.asset, jl.settlement_value
	FROM journal_entry je
	JOIN journal_line jl ON je.entry_id = jl.entry_id
	WHERE jl.account_id = ? AND je.scope_mode = ?
	ORDER BY je.ts DESC, jl.line_id DESC
	LIMIT ? OFFSET ?`

	return r.queryLedgerLines(ctx, query, accountID, scopeMode, limit, offset)
}

// SuspenseEntries retrieves the lines touching the suspense account within a
// scope, newest first.
func (r *Repository) SuspenseEntries(ctx context.Context, scopeMode string, limit int) ([]domain.LedgerLine, error) {
	return r.EntriesByAccount(ctx, domain.AccountSuspense, scopeMode, limit, 0)
}

func (r *Repository) queryLedgerLines(ctx context.Context, query string, args ...interface{}) ([]domain.LedgerLine, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.LedgerLine, 0)
	for rows.Next() {
		var l domain.LedgerLine
		var amount, value string
		if err := rows.Scan(&l.EntryID, &l.Time, &l.Type, &l.Description, &l.Symbol,
			&l.AccountID, &l.Side, &amount, &l.Asset, &value); err != nil {
			return nil, fmt.Errorf("failed to scan ledger line: %w", err)
		}
		if l.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount in entry %s: %w", l.EntryID, err)
		}
		if l.SettlementValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("corrupt settlement value in entry %s: %w", l.EntryID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger lines: %w", err)
	}
	return lines, nil
}

// DailyPnL aggregates realized PnL, fees and win/loss counts per trading day,
// newest day first. The lines are folded in Go so the aggregation stays in
// exact decimal arithmetic like the rest of the books.
func (r *Repository) DailyPnL(ctx context.Context, scopeMode string, days int) ([]domain.DailyPnL, error) {
	const query = `
	SELECT DATE(je.ts), je.entry_id, je.transaction_type, jl.account_id, jl.side, jl.amount, jl.settlement_value
	FROM journal_entry je
	JOIN journal_line jl ON je.entry_id = jl.entry_id
	WHERE je.scope_mode = ?
	ORDER BY je.ts DESC`

	rows, err := r.db.QueryContext(ctx, query, scopeMode)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily pnl lines: %w", err)
	}
	defer rows.Close()

	type dayAgg struct {
		pnl          domain.DailyPnL
		tradeEntries map[string]struct{}
		winEntries   map[string]struct{}
		lossEntries  map[string]struct{}
	}
	byDate := make(map[string]*dayAgg)
	order := make([]string, 0)

	for rows.Next() {
		var date, entryID, accountID string
		var txType domain.TransactionType
		var side domain.Side
		var amountStr, valueStr string
		if err := rows.Scan(&date, &entryID, &txType, &accountID, &side, &amountStr, &valueStr); err != nil {
			return nil, fmt.Errorf("failed to scan daily pnl line: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount in entry %s: %w", entryID, err)
		}
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt settlement value in entry %s: %w", entryID, err)
		}

		agg, ok := byDate[date]
		if !ok {
			// rows are newest-first, so first sight of a date keeps that order
			agg = &dayAgg{
				pnl:          domain.DailyPnL{Date: date, ScopeMode: scopeMode},
				tradeEntries: make(map[string]struct{}),
				winEntries:   make(map[string]struct{}),
				lossEntries:  make(map[string]struct{}),
			}
			byDate[date] = agg
			order = append(order, date)
		}

		if txType == domain.TxTrade {
			agg.tradeEntries[entryID] = struct{}{}
		}
		switch {
		case accountID == domain.AccountRealizedPnL:
			if side == domain.Credit {
				agg.pnl.RealizedPnL = agg.pnl.RealizedPnL.Add(amount)
				agg.winEntries[entryID] = struct{}{}
			} else {
				agg.pnl.RealizedPnL = agg.pnl.RealizedPnL.Sub(amount)
				agg.lossEntries[entryID] = struct{}{}
			}
		case strings.HasPrefix(accountID, "EXPENSE:FEE:TRADING"):
			agg.pnl.TradingFees = agg.pnl.TradingFees.Add(value)
		case strings.HasPrefix(accountID, "EXPENSE:FEE:FUNDING"):
			agg.pnl.FundingFees = agg.pnl.FundingFees.Add(value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily pnl lines: %w", err)
	}

	if len(order) > days {
		order = order[:days]
	}
	result := make([]domain.DailyPnL, 0, len(order))
	for _, date := range order {
		agg := byDate[date]
		agg.pnl.TradeCount = len(agg.tradeEntries)
		agg.pnl.WinCount = len(agg.winEntries)
		agg.pnl.LossCount = len(agg.lossEntries)
		result = append(result, agg.pnl)
	}
	return result, nil
}

// --- Helpers ---

// isBusy reports whether the error is a SQLite lock/busy conflict worth retrying.
func isBusy(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
	}
	return false
}

// isDuplicate detects unique constraint violations, which for journal entries
// mean the source event was already booked.
func isDuplicate(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseDecimals(amount, value, rate string) (a, v, rt decimal.Decimal, err error) {
	if a, err = decimal.NewFromString(amount); err != nil {
		return
	}
	if v, err = decimal.NewFromString(value); err != nil {
		return
	}
	rt, err = decimal.NewFromString(rate)
	return
}
