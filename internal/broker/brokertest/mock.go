// File: internal/broker/brokertest/mock.go
// ============================================
package brokertest

import (
	"context"
	"time"

	"invest-scalp-bot/pkg/types"

	"github.com/stretchr/testify/mock"
)

// Broker is a testify mock of broker.Broker.
type Broker struct {
	mock.Mock
}

func (m *Broker) GetPositions(ctx context.Context, accountID string) (types.Portfolio, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(types.Portfolio), args.Error(1)
}

func (m *Broker) GetOrderBook(ctx context.Context, instrument types.InstrumentConfig, depth int) (*types.OrderBook, error) {
	args := m.Called(ctx, instrument, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.OrderBook), args.Error(1)
}

func (m *Broker) GetCandles(ctx context.Context, instrument types.InstrumentConfig, interval string, from, to time.Time) ([]types.Candle, error) {
	args := m.Called(ctx, instrument, interval, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Candle), args.Error(1)
}

func (m *Broker) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Broker) GetOrderState(ctx context.Context, accountID, orderID string) (types.OrderState, error) {
	args := m.Called(ctx, accountID, orderID)
	return args.Get(0).(types.OrderState), args.Error(1)
}

func (m *Broker) CancelOrder(ctx context.Context, accountID, orderID string) error {
	args := m.Called(ctx, accountID, orderID)
	return args.Error(0)
}

func (m *Broker) GetOpenOrders(ctx context.Context, accountID string) ([]types.Order, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Order), args.Error(1)
}

// Notifier records every message sent through it.
type Notifier struct {
	Messages []string
	Err      error
}

func (n *Notifier) SendText(text string) error {
	n.Messages = append(n.Messages, text)
	return n.Err
}
