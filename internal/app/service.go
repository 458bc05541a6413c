package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ledger"
	"cryptoLedgerBot/internal/ports"
)

const defaultEventBuffer = 256

// LedgerService orchestrates the bookkeeping pipeline: it consumes domain
// events from the feed, turns each one into a balanced journal entry, persists
// it, and projects fills onto position sessions.
type LedgerService struct {
	logger      ports.Logger
	builder     *ledger.EntryBuilder
	store       ports.LedgerStore
	sessions    ports.SessionRepository
	feed        ports.EventFeed
	eventBuffer int
}

// NewLedgerService creates the application service instance.
func NewLedgerService(
	logger ports.Logger,
	builder *ledger.EntryBuilder,
	store ports.LedgerStore,
	sessions ports.SessionRepository,
	feed ports.EventFeed,
) (*LedgerService, error) {
	if logger == nil || builder == nil || store == nil || sessions == nil || feed == nil {
		return nil, fmt.Errorf("missing required dependencies for LedgerService")
	}
	return &LedgerService{
		logger:      logger,
		builder:     builder,
		store:       store,
		sessions:    sessions,
		feed:        feed,
		eventBuffer: defaultEventBuffer,
	}, nil
}

// Run starts the event loop and blocks until the context is canceled, a
// shutdown signal arrives, or the feed fails permanently.
func (s *LedgerService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting ledger service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	events := make(chan domain.Event, s.eventBuffer)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- s.feed.Stream(ctx, events)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Ledger service stopping")
			return nil
		case err := <-feedErr:
			if errors.Is(err, ports.ErrContextCanceled) || ctx.Err() != nil {
				s.logger.Info(ctx, "Event feed stopped")
				return nil
			}
			return fmt.Errorf("event feed failed: %w", err)
		case ev := <-events:
			if err := s.ProcessEvent(ctx, ev); err != nil {
				// One bad event must not stop the books for everything
				// behind it in the stream.
				s.logger.Error(ctx, err, "Event processing failed", map[string]interface{}{"eventID": ev.Meta().ID})
			}
		}
	}
}

// ProcessEvent books one event: build the journal entry, persist it, and for
// fills update the position session. Events with no financial effect are
// dropped; an already-booked source event is skipped without error.
func (s *LedgerService) ProcessEvent(ctx context.Context, ev domain.Event) error {
	entry, err := s.builder.FromEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to build entry for event %s: %w", ev.Meta().ID, err)
	}
	if entry == nil {
		return nil
	}

	entryID, err := s.store.SaveEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, ports.ErrEntryExists) {
			s.logger.Debug(ctx, "Source event already booked, skipping", map[string]interface{}{"eventID": ev.Meta().ID})
			return nil
		}
		return fmt.Errorf("failed to save entry for event %s: %w", ev.Meta().ID, err)
	}

	if fill, ok := ev.(*domain.FillExecuted); ok {
		if err := s.projectFill(ctx, fill, entryID); err != nil {
			// The books are already written; session state is a derived view
			// and can be rebuilt, so this is logged rather than returned.
			s.logger.Error(ctx, err, "Position session update failed", map[string]interface{}{"eventID": fill.ID, "symbol": fill.Symbol})
		}
	}
	return nil
}

// projectFill folds one fill into its position session: the first fill on a
// flat symbol opens a session, same-direction fills add to it, opposite fills
// reduce it, and the session closes when the open quantity returns to zero.
func (s *LedgerService) projectFill(ctx context.Context, fill *domain.FillExecuted, entryID string) error {
	if !fill.Quantity.IsPositive() {
		return nil
	}

	session, err := s.sessions.FindOpenSession(ctx, fill.Scope.Mode, fill.Scope.Venue, fill.Symbol)
	if err != nil {
		return err
	}
	if session == nil {
		return s.openSession(ctx, fill, entryID)
	}
	return s.updateSession(ctx, session, fill, entryID)
}

func (s *LedgerService) openSession(ctx context.Context, fill *domain.FillExecuted, entryID string) error {
	side := domain.Long
	if fill.Side == domain.Sell {
		side = domain.Short
	}
	session := &domain.PositionSession{
		ID:              uuid.NewString(),
		ScopeMode:       fill.Scope.Mode,
		ScopeVenue:      fill.Scope.Venue,
		Symbol:          fill.Symbol,
		Side:            side,
		Status:          domain.SessionOpen,
		OpenedAt:        fill.Time,
		InitialQty:      fill.Quantity,
		MaxQty:          fill.Quantity,
		Quantity:        fill.Quantity,
		RealizedPnL:     fill.RealizedPnL,
		TotalCommission: fill.Commission,
		TradeCount:      1,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return err
	}
	return s.sessions.RecordSessionTrade(ctx, &domain.SessionTrade{
		SessionID:      session.ID,
		TradeEventID:   fill.ID,
		JournalEntryID: entryID,
		Action:         domain.ActionEntry,
		Quantity:       fill.Quantity,
		Price:          fill.Price,
		RealizedPnL:    fill.RealizedPnL,
		Commission:     fill.Commission,
		QtyAfter:       fill.Quantity,
		CreatedAt:      fill.Time,
	})
}

func (s *LedgerService) updateSession(ctx context.Context, session *domain.PositionSession, fill *domain.FillExecuted, entryID string) error {
	sameDirection := (session.Side == domain.Long && fill.Side == domain.Buy) ||
		(session.Side == domain.Short && fill.Side == domain.Sell)

	var action domain.TradeAction
	var newQty decimal.Decimal
	if sameDirection {
		action = domain.ActionAdd
		newQty = session.Quantity.Add(fill.Quantity)
	} else {
		newQty = session.Quantity.Sub(fill.Quantity)
		if newQty.IsNegative() {
			newQty = decimal.Zero
		}
		if newQty.IsPositive() {
			action = domain.ActionReduce
		} else {
			action = domain.ActionExit
		}
	}

	session.Quantity = newQty
	if newQty.GreaterThan(session.MaxQty) {
		session.MaxQty = newQty
	}
	session.RealizedPnL = session.RealizedPnL.Add(fill.RealizedPnL)
	session.TotalCommission = session.TotalCommission.Add(fill.Commission)
	session.TradeCount++
	if action == domain.ActionExit {
		session.Status = domain.SessionClosed
		session.ClosedAt = fill.Time
		session.CloseReason = "TRADE"
	}

	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return err
	}
	if err := s.sessions.RecordSessionTrade(ctx, &domain.SessionTrade{
		SessionID:      session.ID,
		TradeEventID:   fill.ID,
		JournalEntryID: entryID,
		Action:         action,
		Quantity:       fill.Quantity,
		Price:          fill.Price,
		RealizedPnL:    fill.RealizedPnL,
		Commission:     fill.Commission,
		QtyAfter:       newQty,
		CreatedAt:      fill.Time,
	}); err != nil {
		return err
	}

	if action == domain.ActionExit {
		s.logger.Info(ctx, "Position session closed", map[string]interface{}{
			"sessionID":   session.ID,
			"symbol":      session.Symbol,
			"realizedPnL": session.RealizedPnL.String(),
			"commission":  session.TotalCommission.String(),
			"trades":      session.TradeCount,
			"duration":    fill.Time.Sub(session.OpenedAt).Round(time.Second).String(),
		})
	}
	return nil
}
