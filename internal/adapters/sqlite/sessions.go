package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
)

// --- SessionRepository Implementation ---

// FindOpenSession retrieves the open position session for a symbol, if any.
func (r *Repository) FindOpenSession(ctx context.Context, scopeMode string, venue domain.Venue, symbol string) (*domain.PositionSession, error) {
	const query = `
	SELECT session_id, scope_mode, scope_venue, symbol, side, status,
	       opened_at, closed_at, initial_qty, max_qty, quantity,
	       realized_pnl, total_commission, trade_count, COALESCE(close_reason, '')
	FROM position_session
	WHERE scope_mode = ? AND scope_venue = ? AND symbol = ? AND status = ?
	ORDER BY opened_at DESC
	LIMIT 1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, scopeMode, venue, symbol, domain.SessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open session for %s: %w", symbol, err)
	}
	return s, nil
}

// CreateSession saves a new position session.
func (r *Repository) CreateSession(ctx context.Context, s *domain.PositionSession) error {
	const query = `
	INSERT INTO position_session (
		session_id, scope_mode, scope_venue, symbol, side, status,
		opened_at, initial_qty, max_qty, quantity, realized_pnl, total_commission, trade_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ScopeMode, s.ScopeVenue, s.Symbol, s.Side, s.Status,
		s.OpenedAt.UTC(), s.InitialQty.String(), s.MaxQty.String(), s.Quantity.String(),
		s.RealizedPnL.String(), s.TotalCommission.String(), s.TradeCount)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	r.logger.Debug(ctx, "Position session created", map[string]interface{}{"sessionID": s.ID, "symbol": s.Symbol, "side": s.Side})
	return nil
}

// UpdateSession modifies an existing position session.
func (r *Repository) UpdateSession(ctx context.Context, s *domain.PositionSession) error {
	const query = `
	UPDATE position_session
	SET status = ?, closed_at = ?, max_qty = ?, quantity = ?,
	    realized_pnl = ?, total_commission = ?, trade_count = ?, close_reason = NULLIF(?, '')
	WHERE session_id = ?`

	var closedAt sql.NullTime
	if !s.ClosedAt.IsZero() {
		closedAt = sql.NullTime{Time: s.ClosedAt.UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		s.Status, closedAt, s.MaxQty.String(), s.Quantity.String(),
		s.RealizedPnL.String(), s.TotalCommission.String(), s.TradeCount, s.CloseReason,
		s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for session %s: %w", s.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found for update: %w", s.ID, ports.ErrNotFound)
	}
	return nil
}

// RecordSessionTrade appends one fill's contribution to a session.
func (r *Repository) RecordSessionTrade(ctx context.Context, t *domain.SessionTrade) error {
	const query = `
	INSERT INTO position_trade (session_id, trade_event_id, journal_entry_id, action, qty, price, realized_pnl, commission, qty_after, created_at)
	VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := r.db.ExecContext(ctx, query,
		t.SessionID, t.TradeEventID, t.JournalEntryID, t.Action,
		t.Quantity.String(), t.Price.String(), t.RealizedPnL.String(), t.Commission.String(),
		t.QtyAfter.String(), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session trade for %s: %w", t.SessionID, err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert ID for session trade: %w", err)
	}
	return nil
}

// FindSessions retrieves sessions for a scope, newest first.
func (r *Repository) FindSessions(ctx context.Context, scopeMode string, limit int) ([]*domain.PositionSession, error) {
	const query = `
	SELECT session_id, scope_mode, scope_venue, symbol, side, status,
	       opened_at, closed_at, initial_qty, max_qty, quantity,
	       realized_pnl, total_commission, trade_count, COALESCE(close_reason, '')
	FROM position_session
	WHERE scope_mode = ?
	ORDER BY opened_at DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, scopeMode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.PositionSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(sc scanner) (*domain.PositionSession, error) {
	s := &domain.PositionSession{}
	var closedAt sql.NullTime
	var initialQty, maxQty, qty, pnl, commission string
	err := sc.Scan(
		&s.ID, &s.ScopeMode, &s.ScopeVenue, &s.Symbol, &s.Side, &s.Status,
		&s.OpenedAt, &closedAt, &initialQty, &maxQty, &qty,
		&pnl, &commission, &s.TradeCount, &s.CloseReason)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	if closedAt.Valid {
		s.ClosedAt = closedAt.Time
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&s.InitialQty, initialQty},
		{&s.MaxQty, maxQty},
		{&s.Quantity, qty},
		{&s.RealizedPnL, pnl},
		{&s.TotalCommission, commission},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("corrupt decimal in session %s: %w", s.ID, err)
		}
	}
	return s, nil
}
