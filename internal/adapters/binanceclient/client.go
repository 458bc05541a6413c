// Package binanceclient is the exchange edge of the ledger: it feeds the
// price cache from the futures mark price stream and turns user data stream
// messages into domain events for the bookkeeping pipeline.
package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
	"cryptoLedgerBot/pkg/id"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	listenKeyKeepalive = 30 * time.Minute
)

// Client streams Binance USD-M futures market and account data. It implements
// ports.EventFeed and writes observed mark prices into a ports.PriceSink.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	prices               ports.PriceSink
	scope                domain.Scope
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	Prices               ports.PriceSink
	ScopeMode            string // stamped onto every emitted event
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// New creates a new Binance adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrConfigurationError)
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("price sink is required for Binance client: %w", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("API key and secret are required for the user data stream: %w", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "scopeMode": cfg.ScopeMode})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		prices:               cfg.Prices,
		scope:                domain.Scope{Mode: cfg.ScopeMode, Venue: domain.VenueFutures},
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -2014, -2015: // Invalid API key / permissions
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// WarmPrices seeds the price cache with a REST snapshot of the mark price for
// each symbol, so valuations work before the first stream tick arrives.
func (c *Client) WarmPrices(ctx context.Context, symbols []string) error {
	op := "WarmPrices"
	for _, symbol := range symbols {
		tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		if err != nil {
			return c.handleError(ctx, err, op)
		}
		if len(tickers) == 0 {
			return c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
		}
		price, err := decimal.NewFromString(tickers[0].MarkPrice)
		if err != nil {
			return c.handleError(ctx, fmt.Errorf("could not parse mark price '%s': %w", tickers[0].MarkPrice, err), op)
		}
		c.prices.SetPrice(symbol, price)
		c.logger.Debug(ctx, op+": price seeded", map[string]interface{}{"symbol": symbol, "price": price.String()})
	}
	return nil
}

// StreamMarkPrices keeps the price cache current from the mark price
// WebSocket stream, one connection per symbol, reconnecting on failure.
// It returns after starting the background loops; they stop when ctx is done.
func (c *Client) StreamMarkPrices(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		symbol := symbol
		handler := func(event *futures.WsMarkPriceEvent) {
			if event == nil {
				return
			}
			price, err := decimal.NewFromString(event.MarkPrice)
			if err != nil {
				c.logger.Warn(ctx, "Dropping unparseable mark price tick", map[string]interface{}{"symbol": event.Symbol, "markPrice": event.MarkPrice})
				return
			}
			c.prices.SetPrice(event.Symbol, price)
		}
		go c.runStream(ctx, "StreamMarkPrices "+symbol, func(errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
			return futures.WsMarkPriceServe(symbol, handler, errHandler)
		})
	}
}

// Stream implements ports.EventFeed over the futures user data stream. It
// blocks until ctx is canceled or the listen key cannot be obtained.
func (c *Client) Stream(ctx context.Context, out chan<- domain.Event) error {
	op := "UserDataStream"

	listenKey, err := c.futuresClient.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op+" start")
	}
	c.logger.Info(ctx, op+": listen key obtained")

	// The listen key expires unless refreshed periodically.
	go c.keepAliveLoop(ctx, listenKey)

	handler := func(event *futures.WsUserDataEvent) {
		for _, ev := range c.translateUserDataEvent(ctx, event) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
	c.runStream(ctx, op, func(errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		return futures.WsUserDataServe(listenKey, handler, errHandler)
	})

	if ctx.Err() != nil {
		return fmt.Errorf("%s stopped: %w", op, ports.ErrContextCanceled)
	}
	return fmt.Errorf("%s stopped: %w", op, ports.ErrConnectionFailed)
}

// runStream runs one WebSocket connect/serve loop with bounded, backed-off
// reconnection. It blocks until ctx is done or attempts are exhausted.
func (c *Client) runStream(ctx context.Context, op string, serve func(futures.ErrHandler) (chan struct{}, chan struct{}, error)) {
	errHandler := func(err error) {
		c.logger.Warn(ctx, op+": WebSocket error reported", map[string]interface{}{"error": err.Error()})
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, op+": Context cancelled, stopping connection attempts.")
			return
		default:
		}

		c.logger.Info(ctx, op+": Attempting WebSocket connection...", map[string]interface{}{"attempt": attempt + 1})
		doneCh, stopCh, connectErr := serve(errHandler)
		if connectErr != nil {
			c.handleError(ctx, connectErr, op+" connection attempt")
			attempt++
			if attempt >= c.maxReconnectAttempts {
				c.logger.Error(ctx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
				return
			}
			delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info(ctx, op+": Connection failed, retrying...", map[string]interface{}{"attempt": attempt + 1, "delay": delay.String()})
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		c.logger.Info(ctx, op+": WebSocket connection established.")
		attempt = 0

		select {
		case <-doneCh:
			c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly. Reconnecting...")
		case <-ctx.Done():
			select {
			case stopCh <- struct{}{}:
			default:
			}
			return
		}
	}
}

func (c *Client) keepAliveLoop(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.futuresClient.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				c.handleError(ctx, err, "KeepaliveUserStream")
			} else {
				c.logger.Debug(ctx, "Listen key refreshed")
			}
		}
	}
}

// --- Translation ---

// translateUserDataEvent maps one user data stream message to zero or more
// domain events. Messages with no financial meaning return nil.
func (c *Client) translateUserDataEvent(ctx context.Context, event *futures.WsUserDataEvent) []domain.Event {
	if event == nil {
		return nil
	}
	eventTime := time.UnixMilli(event.Time)

	switch event.Event {
	case futures.UserDataEventTypeOrderTradeUpdate:
		u := event.OrderTradeUpdate
		if u.ExecutionType != futures.OrderExecutionTypeTrade {
			return nil // order lifecycle updates carry no fill
		}
		fill := &domain.FillExecuted{
			EventMeta: domain.EventMeta{
				ID:     fmt.Sprintf("fill-%s-%d", u.Symbol, u.TradeID),
				Time:   eventTime,
				Scope:  c.scope,
				Source: "WEBSOCKET",
			},
			Symbol:          u.Symbol,
			Side:            domain.OrderSide(u.Side),
			Quantity:        c.parseDecimal(ctx, u.LastFilledQty, "lastFilledQty"),
			Price:           c.parseDecimal(ctx, u.LastFilledPrice, "lastFilledPrice"),
			Commission:      c.parseDecimal(ctx, u.Commission, "commission"),
			CommissionAsset: u.CommissionAsset,
			RealizedPnL:     c.parseDecimal(ctx, u.RealizedPnL, "realizedPnL"),
			IsMaker:         u.IsMaker,
			TradeID:         strconv.FormatInt(u.TradeID, 10),
			OrderID:         strconv.FormatInt(u.ID, 10),
		}
		return []domain.Event{fill}

	case futures.UserDataEventTypeAccountUpdate:
		return c.translateAccountUpdate(ctx, event, eventTime)

	case futures.UserDataEventTypeListenKeyExpired:
		c.logger.Warn(ctx, "Listen key expired, stream will reconnect")
		return nil

	default:
		raw, err := json.Marshal(event)
		if err != nil {
			raw = []byte(fmt.Sprintf(`{"event":%q}`, event.Event))
		}
		return []domain.Event{&domain.UnrecognizedEvent{
			EventMeta: domain.EventMeta{
				ID:     id.NewEntryID(),
				Time:   eventTime,
				Scope:  c.scope,
				Source: "WEBSOCKET",
			},
			Type: string(event.Event),
			Raw:  raw,
		}}
	}
}

// translateAccountUpdate maps ACCOUNT_UPDATE balance deltas by reason code.
// Fills also trigger ACCOUNT_UPDATE with reason ORDER; those deltas are
// already booked from the fill itself and are skipped here.
func (c *Client) translateAccountUpdate(ctx context.Context, event *futures.WsUserDataEvent, eventTime time.Time) []domain.Event {
	update := event.AccountUpdate
	var events []domain.Event
	for _, bal := range update.Balances {
		delta := c.parseDecimal(ctx, bal.ChangeBalance, "changeBalance")
		if delta.IsZero() {
			continue
		}
		meta := domain.EventMeta{
			ID:     id.NewEntryID(),
			Time:   eventTime,
			Scope:  c.scope,
			Source: "WEBSOCKET",
		}
		switch update.Reason {
		case futures.UserDataEventReasonTypeOrder:
			continue
		case futures.UserDataEventReasonTypeFundingFee:
			// Funding fee deltas are negative when paid; the domain event
			// uses positive-means-paid.
			events = append(events, &domain.FundingApplied{
				EventMeta: meta,
				Amount:    delta.Neg(),
			})
		case futures.UserDataEventReasonTypeDeposit:
			events = append(events, &domain.DepositCompleted{
				EventMeta: meta,
				Asset:     bal.Asset,
				Amount:    delta,
			})
		case futures.UserDataEventReasonTypeWithdraw:
			events = append(events, &domain.WithdrawalCompleted{
				EventMeta: meta,
				Asset:     bal.Asset,
				Amount:    delta.Abs(),
			})
		default:
			events = append(events, &domain.BalanceChanged{
				EventMeta: meta,
				Asset:     bal.Asset,
				Delta:     delta,
			})
		}
	}
	return events
}

func (c *Client) parseDecimal(ctx context.Context, s, field string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		c.logger.Warn(ctx, "Unparseable decimal in stream payload, using zero", map[string]interface{}{"field": field, "value": s})
		return decimal.Zero
	}
	return d
}
