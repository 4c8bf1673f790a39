// File: internal/broker/broker.go
// ============================================
package broker

import (
	"context"
	"fmt"
	"time"

	"invest-scalp-bot/pkg/types"
)

// Broker is the order-management and market-data surface the bot needs.
// Authentication and tracing metadata are the implementation's concern.
type Broker interface {
	GetPositions(ctx context.Context, accountID string) (types.Portfolio, error)
	GetOrderBook(ctx context.Context, instrument types.InstrumentConfig, depth int) (*types.OrderBook, error)
	GetCandles(ctx context.Context, instrument types.InstrumentConfig, interval string, from, to time.Time) ([]types.Candle, error)
	PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (string, error)
	GetOrderState(ctx context.Context, accountID, orderID string) (types.OrderState, error)
	CancelOrder(ctx context.Context, accountID, orderID string) error
	GetOpenOrders(ctx context.Context, accountID string) ([]types.Order, error)
}

// APIError is a non-2xx answer from the broker.
type APIError struct {
	Method  string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: broker returned %d (code %s): %s", e.Method, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: broker returned %d: %s", e.Method, e.Status, e.Message)
}
