// File: internal/strategy/scalp.go
// ============================================
package strategy

import (
	"fmt"

	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

const (
	DefaultWindowSize = 40

	ratioBidSide = 3.0
	ratioAskSide = 0.35
)

type signal int

const (
	signalHold signal = iota
	signalAsk
	signalBid
)

func (s signal) String() string {
	switch s {
	case signalAsk:
		return "ask"
	case signalBid:
		return "bid"
	default:
		return "hold"
	}
}

// ScalpStrategy trades imbalances at the top of the order book. Entries
// are Buy limits at the best ask and the take profit sells one tick
// higher.
type ScalpStrategy struct {
	cfg  types.InstrumentConfig
	asks *Window
	bids *Window
}

func NewScalpStrategy(cfg types.InstrumentConfig, windowSize int) *ScalpStrategy {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &ScalpStrategy{
		cfg:  cfg,
		asks: NewWindow(windowSize),
		bids: NewWindow(windowSize),
	}
}

func (s *ScalpStrategy) Configuration() types.InstrumentConfig { return s.cfg }

func (s *ScalpStrategy) Evaluate(data lifecycle.MarketData, state lifecycle.State) (lifecycle.Action, error) {
	if data.OrderBook == nil {
		return lifecycle.HoldAction(), fmt.Errorf("scalp needs an order book: %w", lifecycle.ErrUnsupportedMarketData)
	}
	book := data.OrderBook
	if book.Empty() {
		return lifecycle.HoldAction(), nil
	}

	askQ, bidQ := book.Asks[0].Quantity, book.Bids[0].Quantity
	spike := s.updateHistory(askQ, bidQ)
	ratio := quantityRatio(askQ, bidQ)
	logger.Debugf("📊 %s ask %d bid %d avg %d/%d spike=%s ratio=%s",
		s.cfg.Ticker, askQ, bidQ, s.asks.Average(), s.bids.Average(), spike, ratio)

	if spike != ratio {
		return lifecycle.HoldAction(), nil
	}

	switch st := state.(type) {
	case lifecycle.Seeking:
		if spike != signalAsk {
			break
		}
		price := book.Asks[0].Price
		lots := s.lotsFor(st.Balance, price)
		if lots <= 0 {
			return lifecycle.HoldAction(), nil
		}
		return lifecycle.OpenAction(price, lots, types.Buy), nil
	case lifecycle.InPosition:
		if spike != signalBid {
			break
		}
		pos := st.Position
		return lifecycle.CloseAction(pos.PriceIn, pos.Lots, pos.Direction.Opposite()), nil
	}
	return lifecycle.HoldAction(), nil
}

// TakeProfitFor exits one tick above the entry.
func (s *ScalpStrategy) TakeProfitFor(entry money.Money, lots int64) (money.Money, int64, types.Direction) {
	return entry.Add(s.cfg.TickSize), lots, types.Sell
}

func (s *ScalpStrategy) updateHistory(askQ, bidQ int64) signal {
	askSpike := s.asks.Spike(askQ)
	s.asks.Push(askQ)
	bidSpike := s.bids.Spike(bidQ)
	s.bids.Push(bidQ)

	switch {
	case askSpike && !bidSpike:
		return signalAsk
	case bidSpike && !askSpike:
		return signalBid
	default:
		return signalHold
	}
}

func quantityRatio(askQ, bidQ int64) signal {
	if bidQ <= 0 {
		if askQ > 0 {
			return signalBid
		}
		return signalHold
	}
	r := float64(askQ) / float64(bidQ)
	switch {
	case r > ratioBidSide:
		return signalBid
	case r < ratioAskSide:
		return signalAsk
	default:
		return signalHold
	}
}

func (s *ScalpStrategy) lotsFor(balance, price money.Money) int64 {
	lotSize := s.cfg.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	return balance.DivFloor(price.MulInt(lotSize))
}
