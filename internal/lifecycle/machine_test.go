package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"invest-scalp-bot/internal/broker/brokertest"
	"invest-scalp-bot/internal/orderid"
	"invest-scalp-bot/internal/risk"
	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/internal/store"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const account = "acc-1"

type fakeStrategy struct {
	cfg     types.InstrumentConfig
	tpCalls int
}

func (f *fakeStrategy) Evaluate(MarketData, State) (Action, error) { return HoldAction(), nil }

// exit one tick in the favourable direction
func (f *fakeStrategy) TakeProfitFor(entry money.Money, lots int64) (money.Money, int64, types.Direction) {
	f.tpCalls++
	return entry.Sub(money.MustParse("0.01")), lots, types.Buy
}

func (f *fakeStrategy) Configuration() types.InstrumentConfig { return f.cfg }

type fakeReconciler struct {
	calls []State
	err   error
}

func (r *fakeReconciler) Reconcile(_ context.Context, s State) error {
	r.calls = append(r.calls, s)
	return r.err
}

type harness struct {
	m      *Machine
	broker *brokertest.Broker
	strat  *fakeStrategy
	recon  *fakeReconciler
	ledger *stats.Ledger
	notify *brokertest.Notifier
}

var clock = time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemoryStore()
	ids, err := orderid.Load(ctx, mem, orderid.DefaultSeed)
	require.NoError(t, err)
	now := func() time.Time { return clock }
	ledger, err := stats.Open(ctx, mem, time.UTC, now)
	require.NoError(t, err)

	cfg := types.InstrumentConfig{
		AccountID: account,
		Ticker:    "TRUR",
		Figi:      "BBG000000001",
		UID:       "uid-1",
		Currency:  "rub",
		LotSize:   1,
		TickSize:  money.MustParse("0.01"),
		TaxRate:   money.MustParse("0.13"),
	}
	h := &harness{
		broker: &brokertest.Broker{},
		strat:  &fakeStrategy{cfg: cfg},
		recon:  &fakeReconciler{},
		ledger: ledger,
		notify: &brokertest.Notifier{},
	}
	h.m = NewMachine(Deps{
		Broker:     h.broker,
		Strategy:   h.strat,
		IDs:        ids,
		Ledger:     ledger,
		Risk:       risk.NewManager(cfg, money.Zero),
		Reconciler: h.recon,
		Notifier:   h.notify,
		Now:        now,
	})
	return h
}

func cash(amount string) types.Portfolio {
	return types.Portfolio{Cash: []types.CurrencyAmount{{Currency: "rub", Amount: money.MustParse(amount)}}}
}

func (h *harness) start(t *testing.T, balance string) {
	t.Helper()
	h.broker.On("GetPositions", mock.Anything, account).Return(cash(balance), nil).Once()
	require.NoError(t, h.m.Start(context.Background()))
}

func filled(price string, lots int64) types.OrderState {
	p := money.MustParse(price)
	return types.OrderState{Status: types.StatusFilled, AvgFillPrice: &p, LotsRequested: lots, LotsExecuted: lots}
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")
	assert.Equal(t, Seeking{Balance: money.MustParse("1000")}, h.m.State())

	h.broker.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(r types.PlaceOrderRequest) bool {
		return r.Direction == types.Sell && r.Lots == 8 && r.ClientOrderID == "1000001" && r.Figi == "BBG000000001"
	})).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Sell)))

	pos := h.m.State().(InPosition).Position
	assert.Equal(t, WaitOpen, pos.Sub)
	assert.Equal(t, "entry-1", pos.EntryOrderID)

	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(filled("5.90", 8), nil).Once()
	h.broker.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(r types.PlaceOrderRequest) bool {
		return r.Direction == types.Buy && r.Lots == 8 && r.Price == money.MustParse("5.89") && r.ClientOrderID == "1000002"
	})).Return("exit-1", nil).Once()
	require.NoError(t, h.m.Poll(ctx))

	pos = h.m.State().(InPosition).Position
	assert.Equal(t, WaitClose, pos.Sub)
	assert.Equal(t, "exit-1", pos.ExitOrderID)
	assert.Equal(t, money.MustParse("5.89"), pos.PriceOut)
	assert.Equal(t, 1, h.strat.tpCalls)

	h.broker.On("GetOrderState", mock.Anything, account, "exit-1").Return(filled("5.89", 8), nil).Once()
	h.broker.On("GetPositions", mock.Anything, account).Return(cash("1000.08"), nil).Once()
	require.NoError(t, h.m.Poll(ctx))

	assert.Equal(t, Seeking{Balance: money.MustParse("1000.08")}, h.m.State())
	today := h.ledger.Today()
	require.Len(t, today.Trades, 1)
	rec := today.Trades[0]
	assert.Equal(t, money.MustParse("94.32"), rec.Turnover)
	assert.Equal(t, money.MustParse("0.08"), rec.Profit.Gross)
	assert.Equal(t, money.MustParse("0.0696"), rec.Profit.AfterTax)
	assert.Equal(t, types.Sell, rec.Direction)
	assert.Equal(t, 1, h.strat.tpCalls)
	h.broker.AssertExpectations(t)
}

func TestPartialEntryFillWaits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy)))

	p := money.MustParse("5.91")
	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(types.OrderState{
		Status: types.StatusPartiallyFilled, AvgFillPrice: &p, LotsRequested: 8, LotsExecuted: 3,
	}, nil).Once()
	require.NoError(t, h.m.Poll(ctx))

	pos := h.m.State().(InPosition).Position
	assert.Equal(t, PartialOpen, pos.Sub)
	assert.Equal(t, int64(3), pos.Lots)
	assert.Equal(t, p, pos.PriceIn)
	assert.Empty(t, pos.ExitOrderID)
	assert.Zero(t, h.strat.tpCalls)
	h.broker.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestNewOrderLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy)))
	before := h.m.State()

	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(types.OrderState{Status: types.StatusNew}, nil).Once()
	require.NoError(t, h.m.Poll(ctx))
	assert.Equal(t, before, h.m.State())
}

func TestRejectedOrderReconciles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy)))

	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(types.OrderState{Status: types.StatusRejected}, nil).Once()
	require.NoError(t, h.m.Poll(ctx))

	require.Len(t, h.recon.calls, 1)
	assert.IsType(t, InPosition{}, h.recon.calls[0])
	assert.Equal(t, Seeking{Balance: money.MustParse("1000")}, h.m.State())
}

func TestReconcileFailurePropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")
	drift := errors.New("drift")
	h.recon.err = drift

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy)))
	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(types.OrderState{Status: types.StatusCancelled}, nil).Once()

	err := h.m.Poll(ctx)
	assert.ErrorIs(t, err, drift)
	assert.IsType(t, InPosition{}, h.m.State())
}

func TestTransportErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
	err := h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.IsType(t, Seeking{}, h.m.State())
}

func TestExitPlacementRetriedFromHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Sell)))

	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(filled("5.90", 8), nil).Once()
	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("", errors.New("unavailable")).Once()
	require.Error(t, h.m.Poll(ctx))
	assert.Equal(t, Hold, h.m.State().(InPosition).Position.Sub)

	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("exit-1", nil).Once()
	require.NoError(t, h.m.Poll(ctx))
	pos := h.m.State().(InPosition).Position
	assert.Equal(t, WaitClose, pos.Sub)
	assert.Equal(t, "exit-1", pos.ExitOrderID)
	assert.Equal(t, 1, h.strat.tpCalls)
	h.broker.AssertNumberOfCalls(t, "GetOrderState", 1)
}

func TestHoldAndZeroLotsDoNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")

	require.NoError(t, h.m.Apply(ctx, HoldAction()))
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 0, types.Buy)))
	assert.IsType(t, Seeking{}, h.m.State())
	h.broker.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestDailyLossGuardBlocksEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.Record(ctx, stats.TradeRecord{
		TimeIn: clock, TimeOut: clock,
		Profit: stats.ProfitStat{Gross: money.MustParse("-60"), AfterFees: money.MustParse("-60"), AfterTax: money.MustParse("-60")},
	}))
	h.m.risk = risk.NewManager(h.strat.cfg, money.MustParse("50"))
	h.start(t, "1000")

	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Buy)))
	assert.IsType(t, Seeking{}, h.m.State())
	h.broker.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestSleepAndWake(t *testing.T) {
	h := newHarness(t)
	h.start(t, "1000")

	h.m.Sleep(clock, time.Hour)
	s, ok := h.m.State().(Sleeping)
	require.True(t, ok)
	assert.False(t, s.Due(clock.Add(59*time.Minute)))
	assert.True(t, s.Due(clock.Add(time.Hour)))

	require.NoError(t, h.m.Apply(context.Background(), OpenAction(money.MustParse("5.90"), 8, types.Buy)))
	h.broker.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)

	assert.Equal(t, Seeking{Balance: money.MustParse("1000")}, s.Resume())
	h.m.Wake()
	assert.Equal(t, Seeking{Balance: money.MustParse("1000")}, h.m.State())
}

func TestStorageFailureIsMarked(t *testing.T) {
	h := newHarness(t)
	h.start(t, "1000")
	h.m.ids = failingIDs{}

	err := h.m.Apply(context.Background(), OpenAction(money.MustParse("5.90"), 8, types.Buy))
	assert.ErrorIs(t, err, ErrStorage)
	h.broker.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func (h *harness) openAndPlaceExit(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("entry-1", nil).Once()
	require.NoError(t, h.m.Apply(ctx, OpenAction(money.MustParse("5.90"), 8, types.Sell)))
	h.broker.On("GetOrderState", mock.Anything, account, "entry-1").Return(filled("5.90", 8), nil).Once()
	h.broker.On("PlaceOrder", mock.Anything, mock.Anything).Return("exit-1", nil).Once()
	require.NoError(t, h.m.Poll(ctx))
	require.Equal(t, WaitClose, h.m.State().(InPosition).Position.Sub)
}

func TestPartialExitThenFillCloses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "1000")
	h.openAndPlaceExit(t)

	h.broker.On("GetOrderState", mock.Anything, account, "exit-1").Return(types.OrderState{
		Status: types.StatusPartiallyFilled, LotsRequested: 8, LotsExecuted: 3,
	}, nil).Once()
	require.NoError(t, h.m.Poll(ctx))
	pos := h.m.State().(InPosition).Position
	assert.Equal(t, PartialClose, pos.Sub)
	assert.Equal(t, int64(8), pos.Lots)
	assert.Equal(t, "exit-1", pos.ExitOrderID)
	assert.Empty(t, h.ledger.Today().Trades)

	h.broker.On("GetOrderState", mock.Anything, account, "exit-1").Return(filled("5.89", 8), nil).Once()
	h.broker.On("GetPositions", mock.Anything, account).Return(cash("1000.08"), nil).Once()
	require.NoError(t, h.m.Poll(ctx))

	assert.Equal(t, Seeking{Balance: money.MustParse("1000.08")}, h.m.State())
	require.Len(t, h.ledger.Today().Trades, 1)
	assert.Equal(t, money.MustParse("0.08"), h.ledger.Today().Trades[0].Profit.Gross)
	h.broker.AssertNumberOfCalls(t, "PlaceOrder", 2)
	h.broker.AssertExpectations(t)
}

func TestSleepKeepsOpenPosition(t *testing.T) {
	h := newHarness(t)
	h.start(t, "1000")
	h.openAndPlaceExit(t)
	held := h.m.State()

	h.m.Sleep(clock, time.Hour)
	s, ok := h.m.State().(Sleeping)
	require.True(t, ok)
	assert.Equal(t, held, s.Prev)
	assert.Equal(t, held, s.Resume())
	assert.Contains(t, s.String(), "take profit 5.89")

	h.m.Wake()
	assert.Equal(t, held, h.m.State())
	assert.Empty(t, h.recon.calls)
}

type failingIDs struct{}

func (failingIDs) Next(context.Context) (string, error) { return "", errors.New("disk full") }
