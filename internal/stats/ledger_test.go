package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"invest-scalp-bot/internal/store"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sampleTrade(in time.Time) TradeRecord {
	return TradeRecord{
		TimeIn:    in,
		TimeOut:   in.Add(90 * time.Second),
		PriceIn:   money.MustParse("5.90"),
		PriceOut:  money.MustParse("5.91"),
		Direction: types.Buy,
		Lots:      8,
		Turnover:  money.MustParse("94.48"),
		Profit: ProfitStat{
			Gross:     money.MustParse("0.08"),
			AfterFees: money.MustParse("0.08"),
			AfterTax:  money.MustParse("0.0696"),
		},
	}
}

func TestOpenCreatesDefaults(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	l, err := Open(ctx, s, time.UTC, c.now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", l.Today().Date)
	assert.Equal(t, "2024-03-01", l.Cumulative().BotStartDate)

	for _, key := range []string{CumulativeKey, DailyKey} {
		_, ok, err := s.Read(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestRecordPersistsBothBlobs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := Open(ctx, s, time.UTC, c.now)
	require.NoError(t, err)

	require.NoError(t, l.Record(ctx, sampleTrade(c.t)))
	require.NoError(t, l.Record(ctx, sampleTrade(c.t)))

	reopened, err := Open(ctx, s, time.UTC, c.now)
	require.NoError(t, err)
	today := reopened.Today()
	assert.Equal(t, 2, today.TradesCount)
	assert.Len(t, today.Trades, 2)
	assert.Equal(t, money.MustParse("188.96"), today.Turnover)
	assert.Equal(t, money.MustParse("0.1392"), today.Profit.AfterTax)

	total := reopened.Cumulative()
	assert.Equal(t, 2, total.TradesCount)
	assert.Equal(t, int64(180), total.TradeSecs)

	raw, _, err := s.Read(ctx, DailyKey)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "trades_count")
	assert.Contains(t, decoded, "profit")
}

func TestDayRollover(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)}
	l, err := Open(ctx, store.NewMemoryStore(), time.UTC, c.now)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, sampleTrade(c.t)))

	c.t = c.t.Add(6 * time.Hour)
	assert.Equal(t, "2024-03-02", l.Today().Date)
	assert.Zero(t, l.Today().TradesCount)

	require.NoError(t, l.Record(ctx, sampleTrade(c.t)))
	assert.Equal(t, 1, l.Today().TradesCount)
	assert.Equal(t, 2, l.Cumulative().TradesCount)
}

func TestProfitString(t *testing.T) {
	assert.Equal(t, "0", ProfitStat{}.String())
	p := ProfitStat{Gross: money.MustParse("1.5"), AfterFees: money.MustParse("1.4"), AfterTax: money.MustParse("1.218")}
	assert.Equal(t, "1.5 -> 1.4 -> 1.218", p.String())
}
