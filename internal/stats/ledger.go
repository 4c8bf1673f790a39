// File: internal/stats/ledger.go
// ============================================
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"invest-scalp-bot/internal/store"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

const (
	CumulativeKey = "stat.json"
	DailyKey      = "today.json"
	dateLayout    = "2006-01-02"
)

type ProfitStat struct {
	Gross     money.Money `json:"gross"`
	AfterFees money.Money `json:"after_fees"`
	AfterTax  money.Money `json:"after_tax"`
}

func (p ProfitStat) Add(o ProfitStat) ProfitStat {
	return ProfitStat{
		Gross:     p.Gross.Add(o.Gross),
		AfterFees: p.AfterFees.Add(o.AfterFees),
		AfterTax:  p.AfterTax.Add(o.AfterTax),
	}
}

func (p ProfitStat) String() string {
	if p.Gross.IsZero() && p.AfterFees.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%s -> %s -> %s", p.Gross, p.AfterFees, p.AfterTax)
}

// TradeRecord is one closed round trip.
type TradeRecord struct {
	TimeIn    time.Time       `json:"time_in"`
	TimeOut   time.Time       `json:"time_out"`
	PriceIn   money.Money     `json:"price_in"`
	PriceOut  money.Money     `json:"price_out"`
	Direction types.Direction `json:"direction"`
	Lots      int64           `json:"lots"`
	Turnover  money.Money     `json:"turnover"`
	Profit    ProfitStat      `json:"profit"`
}

type DailyStat struct {
	Date        string        `json:"date"`
	Turnover    money.Money   `json:"turnover"`
	Profit      ProfitStat    `json:"profit"`
	Trades      []TradeRecord `json:"trades"`
	TradesCount int           `json:"trades_count"`
}

func (d DailyStat) String() string {
	return fmt.Sprintf("Today: %s\nTrades: %d, Turnover: %s, Profit: %s",
		d.Date, d.TradesCount, d.Turnover, d.Profit)
}

type CumulativeStat struct {
	BotStartDate string        `json:"bot_start_date"`
	TradeSecs    int64         `json:"trade_secs"`
	Turnover     money.Money   `json:"turnover"`
	Profit       ProfitStat    `json:"profit"`
	Trades       []TradeRecord `json:"trades"`
	TradesCount  int           `json:"trades_count"`
}

func (c CumulativeStat) String() string {
	return fmt.Sprintf("Since %s: %d trades, %s in position, Turnover: %s, Profit: %s",
		c.BotStartDate, c.TradesCount, time.Duration(c.TradeSecs)*time.Second, c.Turnover, c.Profit)
}

// Ledger is the append-only trade journal behind today.json and stat.json.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
	loc   *time.Location
	now   func() time.Time
	daily DailyStat
	total CumulativeStat
}

// Open loads both blobs, writing zeroed defaults for missing ones.
func Open(ctx context.Context, s store.Store, loc *time.Location, now func() time.Time) (*Ledger, error) {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	l := &Ledger{store: s, loc: loc, now: now}
	today := l.today()

	found, err := l.load(ctx, CumulativeKey, &l.total)
	if err != nil {
		return nil, err
	}
	if !found {
		l.total = CumulativeStat{BotStartDate: today}
		if err := l.save(ctx, CumulativeKey, l.total); err != nil {
			return nil, err
		}
	}

	found, err = l.load(ctx, DailyKey, &l.daily)
	if err != nil {
		return nil, err
	}
	if !found {
		l.daily = DailyStat{Date: today}
		if err := l.save(ctx, DailyKey, l.daily); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) today() string {
	return l.now().In(l.loc).Format(dateLayout)
}

func (l *Ledger) load(ctx context.Context, key string, into any) (bool, error) {
	data, ok, err := l.store.Read(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (l *Ledger) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return l.store.Write(ctx, key, data)
}

func (l *Ledger) rolled() DailyStat {
	if today := l.today(); l.daily.Date != today {
		return DailyStat{Date: today}
	}
	return l.daily
}

// Record appends rec to today's and the cumulative stats and rewrites both.
func (l *Ledger) Record(ctx context.Context, rec TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	daily := l.rolled()
	daily.Trades = append(append([]TradeRecord(nil), daily.Trades...), rec)
	daily.TradesCount++
	daily.Turnover = daily.Turnover.Add(rec.Turnover)
	daily.Profit = daily.Profit.Add(rec.Profit)

	total := l.total
	total.Trades = append(append([]TradeRecord(nil), total.Trades...), rec)
	total.TradesCount++
	total.Turnover = total.Turnover.Add(rec.Turnover)
	total.Profit = total.Profit.Add(rec.Profit)
	if held := rec.TimeOut.Sub(rec.TimeIn); held > 0 {
		total.TradeSecs += int64(held / time.Second)
	}

	if err := l.save(ctx, CumulativeKey, total); err != nil {
		return err
	}
	if err := l.save(ctx, DailyKey, daily); err != nil {
		return err
	}
	l.total, l.daily = total, daily
	return nil
}

// Today returns today's stat; a stale day reads as empty.
func (l *Ledger) Today() DailyStat {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.rolled()
	d.Trades = append([]TradeRecord(nil), d.Trades...)
	return d
}

func (l *Ledger) Cumulative() CumulativeStat {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.total
	c.Trades = append([]TradeRecord(nil), c.Trades...)
	return c
}
