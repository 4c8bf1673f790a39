// File: internal/lifecycle/machine.go
// ============================================
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"invest-scalp-bot/internal/broker"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/internal/risk"
	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

type Deps struct {
	Broker     broker.Broker
	Strategy   Strategy
	IDs        IDSource
	Ledger     Ledger
	Risk       *risk.Manager
	Reconciler Reconciler
	Notifier   Notifier
	Now        func() time.Time
}

// Machine owns the lifecycle state of the one traded instrument.
// It is driven from a single goroutine.
type Machine struct {
	cfg    types.InstrumentConfig
	broker broker.Broker
	strat  Strategy
	ids    IDSource
	ledger Ledger
	risk   *risk.Manager
	recon  Reconciler
	notify Notifier
	now    func() time.Time

	state   State
	balance money.Money
}

func NewMachine(d Deps) *Machine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		cfg:    d.Strategy.Configuration(),
		broker: d.Broker,
		strat:  d.Strategy,
		ids:    d.IDs,
		ledger: d.Ledger,
		risk:   d.Risk,
		recon:  d.Reconciler,
		notify: d.Notifier,
		now:    now,
		state:  Seeking{},
	}
}

func (m *Machine) State() State { return m.state }

// Balance is the last known cash balance.
func (m *Machine) Balance() money.Money { return m.balance }

// Start reads the cash balance and enters Seeking.
func (m *Machine) Start(ctx context.Context) error {
	bal, err := m.RefreshBalance(ctx)
	if err != nil {
		return err
	}
	m.state = Seeking{Balance: bal}
	return nil
}

// RefreshBalance reads cash in the instrument currency from the broker.
func (m *Machine) RefreshBalance(ctx context.Context) (money.Money, error) {
	pf, err := m.broker.GetPositions(ctx, m.cfg.AccountID)
	if err != nil {
		return money.Zero, fmt.Errorf("get positions: %w", err)
	}
	cash, ok := pf.CashIn(m.cfg.Currency)
	if !ok {
		return money.Zero, fmt.Errorf("no %s cash in portfolio of account %s", m.cfg.Currency, m.cfg.AccountID)
	}
	m.balance = cash
	return cash, nil
}

// Apply acts on a strategy decision while Seeking. Other states ignore it.
func (m *Machine) Apply(ctx context.Context, a Action) error {
	if _, ok := m.state.(Seeking); !ok {
		return nil
	}
	if a.Kind == ActionHold {
		return nil
	}
	if a.Lots <= 0 {
		logger.Debugf("⏸️ %s %s ignored: zero lots", a.Direction, m.cfg.Ticker)
		return nil
	}
	if ok, reason := m.risk.CanOpenPosition(m.ledger.Today()); !ok {
		logger.Warnf("⚠️ Cannot open new positions: %s", reason)
		return nil
	}

	orderID, err := m.place(ctx, a.Lots, a.Price, a.Direction)
	if err != nil {
		return err
	}
	m.state = InPosition{Position: Position{
		Sub:          WaitOpen,
		PriceIn:      a.Price,
		Lots:         a.Lots,
		Direction:    a.Direction,
		EntryOrderID: orderID,
		OpenedAt:     m.now(),
	}}
	logger.Infof("📈 Entry order %s placed: %s %d lots %s @ %s", orderID, a.Direction, a.Lots, m.cfg.Ticker, a.Price)
	m.send(fmt.Sprintf("📈 <b>ENTRY ORDER</b>\n\n%s <b>%s</b> %d lots @ <code>%s</code>", a.Direction, m.cfg.Ticker, a.Lots, a.Price))
	return nil
}

// Poll queries the order the current sub-state waits on and advances.
func (m *Machine) Poll(ctx context.Context) error {
	in, ok := m.state.(InPosition)
	if !ok {
		return nil
	}
	pos := in.Position
	if pos.Sub == Hold {
		// entry filled earlier but the exit order could not be placed
		return m.placeExit(ctx, pos)
	}

	orderID := pos.EntryOrderID
	if pos.Sub.Closing() {
		orderID = pos.ExitOrderID
	}
	st, err := m.broker.GetOrderState(ctx, m.cfg.AccountID, orderID)
	if err != nil {
		return fmt.Errorf("order %s state: %w", orderID, err)
	}

	switch st.Status {
	case types.StatusFilled:
		if pos.Sub.Closing() {
			return m.closed(ctx, pos, st)
		}
		return m.entryFilled(ctx, pos, st)
	case types.StatusPartiallyFilled:
		if pos.Sub.Closing() {
			pos.Sub = PartialClose
		} else {
			pos.Sub = PartialOpen
			if st.AvgFillPrice != nil && !st.AvgFillPrice.IsZero() {
				pos.PriceIn = *st.AvgFillPrice
			}
			if st.LotsExecuted > 0 {
				pos.Lots = st.LotsExecuted
			}
		}
		m.state = InPosition{Position: pos}
		logger.Debugf("⏳ Order %s partially filled: %d/%d lots", orderID, st.LotsExecuted, st.LotsRequested)
		return nil
	case types.StatusNew:
		return nil
	default:
		return m.anomaly(ctx, pos, orderID, st.Status)
	}
}

func (m *Machine) entryFilled(ctx context.Context, pos Position, st types.OrderState) error {
	if st.AvgFillPrice != nil && !st.AvgFillPrice.IsZero() {
		pos.PriceIn = *st.AvgFillPrice
	}
	if st.LotsExecuted > 0 {
		pos.Lots = st.LotsExecuted
	}
	if st.OrderTime != nil {
		pos.OpenedAt = *st.OrderTime
	}
	pos.Sub = Hold
	pos.PriceOut, pos.ExitLots, pos.ExitDirection = m.strat.TakeProfitFor(pos.PriceIn, pos.Lots)
	m.state = InPosition{Position: pos}
	logger.Infof("✅ Entry %s filled: %d lots @ %s, take profit %s", pos.EntryOrderID, pos.Lots, pos.PriceIn, pos.PriceOut)
	return m.placeExit(ctx, pos)
}

func (m *Machine) placeExit(ctx context.Context, pos Position) error {
	orderID, err := m.place(ctx, pos.ExitLots, pos.PriceOut, pos.ExitDirection)
	if err != nil {
		return err
	}
	pos.ExitOrderID = orderID
	pos.Sub = WaitClose
	m.state = InPosition{Position: pos}
	m.send(fmt.Sprintf("🎯 <b>POSITION OPENED</b>\n\n<b>%s</b> %s %d lots @ <code>%s</code>\nTake Profit: <code>%s</code>",
		m.cfg.Ticker, pos.Direction, pos.Lots, pos.PriceIn, pos.PriceOut))
	return nil
}

func (m *Machine) closed(ctx context.Context, pos Position, st types.OrderState) error {
	priceOut := pos.PriceOut
	if st.AvgFillPrice != nil && !st.AvgFillPrice.IsZero() {
		priceOut = *st.AvgFillPrice
	}
	timeOut := m.now()
	if st.OrderTime != nil {
		timeOut = *st.OrderTime
	}
	turnover, profit := m.risk.RoundTrip(pos.Direction, pos.PriceIn, priceOut, pos.Lots)

	// balance first: if it fails the next poll sees the fill again
	bal, err := m.RefreshBalance(ctx)
	if err != nil {
		return err
	}

	rec := stats.TradeRecord{
		TimeIn:    pos.OpenedAt,
		TimeOut:   timeOut,
		PriceIn:   pos.PriceIn,
		PriceOut:  priceOut,
		Direction: pos.Direction,
		Lots:      pos.Lots,
		Turnover:  turnover,
		Profit:    profit,
	}
	if err := m.ledger.Record(ctx, rec); err != nil {
		return fmt.Errorf("%w: record trade: %w", ErrStorage, err)
	}
	m.state = Seeking{Balance: bal}

	emoji := "✅"
	if profit.AfterFees.Sign() < 0 {
		emoji = "❌"
	}
	logger.Infof("%s Position closed: %s %d lots %s -> %s, profit %s", emoji, pos.Direction, pos.Lots, pos.PriceIn, priceOut, profit)
	m.send(fmt.Sprintf("%s <b>POSITION CLOSED</b>\n\n<b>%s</b> %d lots %s → %s\nProfit: <b>%s</b>\nBalance: %s",
		emoji, m.cfg.Ticker, pos.Lots, pos.PriceIn, priceOut, profit, bal))
	return nil
}

// anomaly reconciles after a rejected, cancelled or unknown order. Only a
// clean reconciliation moves to Seeking: a transport failure keeps the
// position so the next cycle queries the order again, and drift is
// reported by the caller's halt alert.
func (m *Machine) anomaly(ctx context.Context, pos Position, orderID string, status types.OrderStatus) error {
	logger.Warnf("⚠️ Order %s is %s in state %q, reconciling", orderID, status, pos.Sub)
	if err := m.recon.Reconcile(ctx, m.state); err != nil {
		return err
	}
	m.state = Seeking{Balance: m.balance}
	return nil
}

// Sleep pauses trading for d starting at now. An open position is kept
// in the sleeping state.
func (m *Machine) Sleep(now time.Time, d time.Duration) {
	switch m.state.(type) {
	case Seeking, InPosition:
		m.state = Sleeping{Since: now, For: d, Balance: m.balance, Prev: m.state}
		logger.Infof("😴 Sleeping for %s", d.Round(time.Second))
	}
}

// Wake leaves Sleeping for the state returned by Sleeping.Resume.
func (m *Machine) Wake() {
	if s, ok := m.state.(Sleeping); ok {
		m.state = s.Resume()
		logger.Infof("⏰ Woke up: %s", m.state)
	}
}

func (m *Machine) place(ctx context.Context, lots int64, price money.Money, dir types.Direction) (string, error) {
	clientID, err := m.ids.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: next order id: %w", ErrStorage, err)
	}
	orderID, err := m.broker.PlaceOrder(ctx, types.PlaceOrderRequest{
		AccountID:     m.cfg.AccountID,
		Figi:          m.cfg.Figi,
		InstrumentID:  m.cfg.UID,
		Direction:     dir,
		Lots:          lots,
		Price:         price,
		ClientOrderID: clientID,
	})
	if err != nil {
		return "", fmt.Errorf("place %s %d lots @ %s (client id %s): %w", dir, lots, price, clientID, err)
	}
	return orderID, nil
}

func (m *Machine) send(text string) {
	if m.notify == nil {
		return
	}
	if err := m.notify.SendText(text); err != nil {
		logger.Warnf("❌ notification failed: %v", err)
	}
}
