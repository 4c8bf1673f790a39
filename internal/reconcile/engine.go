// File: internal/reconcile/engine.go
// ============================================
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"invest-scalp-bot/internal/broker"
	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/pkg/types"
)

// DriftError means the account disagrees with the lifecycle state.
// Trading must stop after one.
type DriftError struct {
	State    string
	Problems []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("account drift in state %q: %s", e.State, strings.Join(e.Problems, "; "))
}

// Engine compares the broker's view of the account with the lifecycle state.
type Engine struct {
	broker broker.Broker
	cfg    types.InstrumentConfig
}

func New(b broker.Broker, cfg types.InstrumentConfig) *Engine {
	return &Engine{broker: b, cfg: cfg}
}

// Reconcile checks held lots and resting orders. Stray orders are
// cancelled best-effort. A disagreement yields *DriftError; broker
// transport failures are returned as they are.
func (e *Engine) Reconcile(ctx context.Context, state lifecycle.State) error {
	var problems []string

	p, err := e.checkPortfolio(ctx, state)
	if err != nil {
		return err
	}
	problems = append(problems, p...)

	p, err = e.checkOrders(ctx, state)
	if err != nil {
		return err
	}
	problems = append(problems, p...)

	if len(problems) > 0 {
		return &DriftError{State: state.String(), Problems: problems}
	}
	logger.Debugf("🔎 Account consistent with state: %s", state)
	return nil
}

func (e *Engine) checkPortfolio(ctx context.Context, state lifecycle.State) ([]string, error) {
	pf, err := e.broker.GetPositions(ctx, e.cfg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("reconcile positions: %w", err)
	}
	lotSize := e.cfg.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	held := pf.Held(e.cfg.Figi, e.cfg.UID)
	if held < 0 {
		held = -held
	}
	heldLots := held / lotSize

	var want int64
	if in, ok := state.(lifecycle.InPosition); ok {
		want = in.Position.Lots
	}
	if heldLots != want {
		logger.Errorf("❌ %s holds %d lots, expected %d", e.cfg.Ticker, heldLots, want)
		return []string{fmt.Sprintf("holding %d lots of %s, expected %d", heldLots, e.cfg.Ticker, want)}, nil
	}
	return nil, nil
}

func (e *Engine) checkOrders(ctx context.Context, state lifecycle.State) ([]string, error) {
	all, err := e.broker.GetOpenOrders(ctx, e.cfg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("reconcile orders: %w", err)
	}
	var orders []types.Order
	for _, o := range all {
		if o.Figi == "" || o.Figi == e.cfg.Figi {
			orders = append(orders, o)
		}
	}

	in, inPosition := state.(lifecycle.InPosition)
	switch {
	case !inPosition && len(orders) == 0:
		return nil, nil
	case !inPosition:
		e.cancelAll(ctx, orders)
		return []string{fmt.Sprintf("%d resting orders while flat", len(orders))}, nil
	case in.Position.Sub == lifecycle.Hold && len(orders) == 0:
		return nil, nil
	case in.Position.Sub == lifecycle.Hold:
		// no exit order is placed in Hold, anything resting is stray
		e.cancelAll(ctx, orders)
		return []string{fmt.Sprintf("%d resting orders while %s", len(orders), in.Position.Sub)}, nil
	case len(orders) == 0:
		return []string{fmt.Sprintf("no resting order while %s", in.Position.Sub)}, nil
	}
	return nil, nil
}

func (e *Engine) cancelAll(ctx context.Context, orders []types.Order) {
	for _, o := range orders {
		if err := e.broker.CancelOrder(ctx, e.cfg.AccountID, o.OrderID); err != nil {
			logger.Errorf("❌ cancel stray order %s: %v", o.OrderID, err)
			continue
		}
		logger.Warnf("🗑️ Cancelled stray order %s (%s %d lots @ %s)", o.OrderID, o.Direction, o.Lots, o.Price)
	}
}
