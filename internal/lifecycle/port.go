// File: internal/lifecycle/port.go
// ============================================
package lifecycle

import (
	"context"
	"errors"

	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

var (
	// ErrUnsupportedMarketData is returned by a strategy handed data of a
	// mode it cannot evaluate.
	ErrUnsupportedMarketData = errors.New("market data mode not supported by strategy")

	// ErrStorage marks failures to persist the order-id counter or the
	// trade ledger. The process must not keep trading after one.
	ErrStorage = errors.New("persistence failure")
)

// MarketData is either an order book snapshot or a candle series.
type MarketData struct {
	OrderBook *types.OrderBook
	Candles   []types.Candle
}

// Empty reports a snapshot without data, i.e. the market is closed.
func (d MarketData) Empty() bool {
	if d.OrderBook != nil {
		return d.OrderBook.Empty()
	}
	return len(d.Candles) == 0
}

type Strategy interface {
	Evaluate(data MarketData, state State) (Action, error)
	// TakeProfitFor is called once per filled entry with the fill price
	// and lots. It returns the exit price, lots and direction.
	TakeProfitFor(entry money.Money, lots int64) (money.Money, int64, types.Direction)
	Configuration() types.InstrumentConfig
}

type Notifier interface {
	SendText(text string) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, state State) error
}

type Ledger interface {
	Record(ctx context.Context, rec stats.TradeRecord) error
	Today() stats.DailyStat
}

type IDSource interface {
	Next(ctx context.Context) (string, error)
}
