package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedgerBot/internal/domain"
	"cryptoLedgerBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	warnings []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnings = append(m.warnings, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type noopSink struct{}

func (noopSink) SetPrice(pair string, price decimal.Decimal) {}

func newTestClient() (*Client, *mockLogger) {
	log := &mockLogger{}
	return &Client{
		logger: log,
		prices: noopSink{},
		scope:  domain.Scope{Mode: "TESTNET", Venue: domain.VenueFutures},
	}, log
}

func TestNew_Validation(t *testing.T) {
	log := &mockLogger{}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing logger", Config{Prices: noopSink{}, APIKey: "k", SecretKey: "s"}},
		{"missing price sink", Config{Logger: log, APIKey: "k", SecretKey: "s"}},
		{"missing api key", Config{Logger: log, Prices: noopSink{}, SecretKey: "s"}},
		{"missing secret", Config{Logger: log, Prices: noopSink{}, APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}
}

func TestTranslate_OrderTradeUpdateFill(t *testing.T) {
	c, _ := newTestClient()
	now := time.Now().UnixMilli()

	ev := &futures.WsUserDataEvent{
		Event: futures.UserDataEventTypeOrderTradeUpdate,
		Time:  now,
	}
	ev.OrderTradeUpdate = futures.WsOrderTradeUpdate{
		Symbol:          "ETHUSDT",
		Side:            futures.SideTypeBuy,
		ExecutionType:   futures.OrderExecutionTypeTrade,
		LastFilledQty:   "0.5",
		LastFilledPrice: "3000.25",
		Commission:      "0.06",
		CommissionAsset: "USDT",
		RealizedPnL:     "12.5",
		IsMaker:         true,
		TradeID:         42,
		ID:              7,
	}
	events := c.translateUserDataEvent(context.Background(), ev)

	require.Len(t, events, 1)
	fill, ok := events[0].(*domain.FillExecuted)
	require.True(t, ok)
	assert.Equal(t, "fill-ETHUSDT-42", fill.Meta().ID)
	assert.Equal(t, "WEBSOCKET", fill.Meta().Source)
	assert.Equal(t, "TESTNET", fill.Meta().Scope.Mode)
	assert.Equal(t, domain.Buy, fill.Side)
	assert.True(t, fill.Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, fill.Price.Equal(decimal.RequireFromString("3000.25")))
	assert.True(t, fill.Commission.Equal(decimal.RequireFromString("0.06")))
	assert.True(t, fill.RealizedPnL.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, fill.IsMaker)
	assert.Equal(t, "42", fill.TradeID)
	assert.Equal(t, "7", fill.OrderID)
}

func TestTranslate_OrderLifecycleUpdatesIgnored(t *testing.T) {
	c, _ := newTestClient()

	ev := &futures.WsUserDataEvent{Event: futures.UserDataEventTypeOrderTradeUpdate}
	ev.OrderTradeUpdate = futures.WsOrderTradeUpdate{
		Symbol:        "ETHUSDT",
		ExecutionType: futures.OrderExecutionTypeNew,
	}
	assert.Nil(t, c.translateUserDataEvent(context.Background(), ev))
}

func TestTranslate_AccountUpdateReasons(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	makeEvent := func(reason futures.UserDataEventReasonType, change string) *futures.WsUserDataEvent {
		ev := &futures.WsUserDataEvent{
			Event: futures.UserDataEventTypeAccountUpdate,
			Time:  time.Now().UnixMilli(),
		}
		ev.AccountUpdate = futures.WsAccountUpdate{
			Reason: reason,
			Balances: []futures.WsBalance{
				{Asset: "USDT", ChangeBalance: change},
			},
		}
		return ev
	}

	t.Run("funding fee paid becomes positive amount", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeFundingFee, "-0.25"))
		require.Len(t, events, 1)
		funding, ok := events[0].(*domain.FundingApplied)
		require.True(t, ok)
		assert.True(t, funding.Amount.Equal(decimal.RequireFromString("0.25")))
	})

	t.Run("funding fee received becomes negative amount", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeFundingFee, "0.1"))
		require.Len(t, events, 1)
		funding, ok := events[0].(*domain.FundingApplied)
		require.True(t, ok)
		assert.True(t, funding.Amount.Equal(decimal.RequireFromString("-0.1")))
	})

	t.Run("deposit", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeDeposit, "100"))
		require.Len(t, events, 1)
		dep, ok := events[0].(*domain.DepositCompleted)
		require.True(t, ok)
		assert.Equal(t, "USDT", dep.Asset)
		assert.True(t, dep.Amount.Equal(decimal.RequireFromString("100")))
	})

	t.Run("withdrawal amount is absolute", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeWithdraw, "-50"))
		require.Len(t, events, 1)
		wd, ok := events[0].(*domain.WithdrawalCompleted)
		require.True(t, ok)
		assert.True(t, wd.Amount.Equal(decimal.RequireFromString("50")))
	})

	t.Run("order deltas are skipped", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeOrder, "-3000"))
		assert.Empty(t, events)
	})

	t.Run("zero deltas are skipped", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeFundingFee, "0"))
		assert.Empty(t, events)
	})

	t.Run("unknown reason becomes balance change", func(t *testing.T) {
		events := c.translateUserDataEvent(ctx, makeEvent(futures.UserDataEventReasonTypeAdjustment, "1.5"))
		require.Len(t, events, 1)
		bc, ok := events[0].(*domain.BalanceChanged)
		require.True(t, ok)
		assert.Equal(t, "USDT", bc.Asset)
		assert.True(t, bc.Delta.Equal(decimal.RequireFromString("1.5")))
	})
}

func TestTranslate_ListenKeyExpired(t *testing.T) {
	c, log := newTestClient()

	events := c.translateUserDataEvent(context.Background(), &futures.WsUserDataEvent{
		Event: futures.UserDataEventTypeListenKeyExpired,
	})
	assert.Nil(t, events)
	assert.Len(t, log.warnings, 1)
}

func TestTranslate_UnknownEventTypePreserved(t *testing.T) {
	c, _ := newTestClient()

	events := c.translateUserDataEvent(context.Background(), &futures.WsUserDataEvent{
		Event: futures.UserDataEventType("MARGIN_CALL"),
		Time:  time.Now().UnixMilli(),
	})
	require.Len(t, events, 1)
	unk, ok := events[0].(*domain.UnrecognizedEvent)
	require.True(t, ok)
	assert.Equal(t, "MARGIN_CALL", unk.Type)
	assert.NotEmpty(t, unk.Raw)
	assert.NotEmpty(t, unk.Meta().ID)
}

func TestParseDecimal(t *testing.T) {
	c, log := newTestClient()
	ctx := context.Background()

	assert.True(t, c.parseDecimal(ctx, "1.25", "f").Equal(decimal.RequireFromString("1.25")))
	assert.True(t, c.parseDecimal(ctx, "", "f").IsZero())
	assert.Empty(t, log.warnings)

	assert.True(t, c.parseDecimal(ctx, "not-a-number", "f").IsZero())
	assert.Len(t, log.warnings, 1)
}

func TestHandleError_APIErrorMapping(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	tests := []struct {
		name string
		code int64
		want error
	}{
		{"rate limit", -1003, ports.ErrRateLimited},
		{"recv window", -1021, ports.ErrTimeout},
		{"bad signature", -1022, ports.ErrAuthenticationFailed},
		{"bad api key", -2015, ports.ErrAuthenticationFailed},
		{"unmapped", -4000, ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.handleError(ctx, &common.APIError{Code: tt.code, Message: "boom"}, "TestOp")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHandleError_NonAPIErrors(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	assert.NoError(t, c.handleError(ctx, nil, "TestOp"))
	assert.ErrorIs(t, c.handleError(ctx, context.DeadlineExceeded, "TestOp"), ports.ErrTimeout)
	assert.ErrorIs(t, c.handleError(ctx, context.Canceled, "TestOp"), ports.ErrContextCanceled)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("dial tcp: connection refused"), "TestOp"), ports.ErrConnectionFailed)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("something else"), "TestOp"), ports.ErrUnknown)
}
