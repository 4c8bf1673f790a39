package reconcile

import (
	"context"
	"errors"
	"testing"

	"invest-scalp-bot/internal/broker/brokertest"
	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const account = "acc-1"

var cfg = types.InstrumentConfig{AccountID: account, Ticker: "TRUR", Figi: "BBG000000001", UID: "uid-1", LotSize: 1}

func holding(pieces int64) types.Portfolio {
	return types.Portfolio{Instruments: []types.InstrumentBalance{{Figi: cfg.Figi, UID: cfg.UID, Balance: pieces}}}
}

func inPosition(sub lifecycle.SubState, lots int64) lifecycle.State {
	return lifecycle.InPosition{Position: lifecycle.Position{Sub: sub, Lots: lots, PriceIn: money.MustParse("5.9"), Direction: types.Buy}}
}

func TestFlatAndQuietIsConsistent(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(types.Portfolio{}, nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{}, nil)

	assert.NoError(t, New(b, cfg).Reconcile(context.Background(), lifecycle.Seeking{}))
}

func TestHeldLotsWhileFlatIsDrift(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(holding(8), nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{}, nil)

	err := New(b, cfg).Reconcile(context.Background(), lifecycle.Seeking{})
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Len(t, drift.Problems, 1)
	assert.Contains(t, drift.Problems[0], "holding 8 lots")
}

func TestStrayOrdersAreCancelled(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(types.Portfolio{}, nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{
		{OrderID: "o-1", Figi: cfg.Figi},
		{OrderID: "o-2", Figi: cfg.Figi},
		{OrderID: "other", Figi: "BBG999"},
	}, nil)
	b.On("CancelOrder", mock.Anything, account, "o-1").Return(nil)
	b.On("CancelOrder", mock.Anything, account, "o-2").Return(errors.New("gone"))

	err := New(b, cfg).Reconcile(context.Background(), lifecycle.Sleeping{})
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	b.AssertExpectations(t)
	b.AssertNotCalled(t, "CancelOrder", mock.Anything, account, "other")
}

func TestInPositionConsistent(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(holding(8), nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{{OrderID: "exit-1", Figi: cfg.Figi}}, nil)

	assert.NoError(t, New(b, cfg).Reconcile(context.Background(), inPosition(lifecycle.WaitClose, 8)))
}

func TestInPositionWithoutOrderIsDrift(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(holding(8), nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{}, nil)

	err := New(b, cfg).Reconcile(context.Background(), inPosition(lifecycle.WaitClose, 8))
	var drift *DriftError
	assert.ErrorAs(t, err, &drift)

	assert.NoError(t, New(b, cfg).Reconcile(context.Background(), inPosition(lifecycle.Hold, 8)))
}

func TestRejectedEntryIsDrift(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(types.Portfolio{}, nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{}, nil)

	err := New(b, cfg).Reconcile(context.Background(), inPosition(lifecycle.WaitOpen, 8))
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Len(t, drift.Problems, 2)
}

func TestLotSizeDividesPieces(t *testing.T) {
	c := cfg
	c.LotSize = 10
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(holding(30), nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{{OrderID: "x", Figi: cfg.Figi}}, nil)

	assert.NoError(t, New(b, c).Reconcile(context.Background(), inPosition(lifecycle.WaitOpen, 3)))
}

func TestTransportErrorIsNotDrift(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(types.Portfolio{}, errors.New("timeout"))

	err := New(b, cfg).Reconcile(context.Background(), lifecycle.Seeking{})
	require.Error(t, err)
	var drift *DriftError
	assert.False(t, errors.As(err, &drift))
}

func TestRestingOrderInHoldIsCancelled(t *testing.T) {
	b := &brokertest.Broker{}
	b.On("GetPositions", mock.Anything, account).Return(holding(8), nil)
	b.On("GetOpenOrders", mock.Anything, account).Return([]types.Order{{OrderID: "stray-1", Figi: cfg.Figi}}, nil)
	b.On("CancelOrder", mock.Anything, account, "stray-1").Return(nil).Once()

	err := New(b, cfg).Reconcile(context.Background(), inPosition(lifecycle.Hold, 8))
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	require.Len(t, drift.Problems, 1)
	assert.Contains(t, drift.Problems[0], "while holding")
	b.AssertExpectations(t)
}
