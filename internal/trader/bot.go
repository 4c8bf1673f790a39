// File: internal/trader/bot.go
// ============================================
package trader

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"invest-scalp-bot/internal/broker"
	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/internal/reconcile"
	"invest-scalp-bot/internal/schedule"
	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/pkg/types"
)

const defaultPeriod = 60 * time.Second

type LoopConfig struct {
	CyclePeriod  time.Duration
	RetryBackoff time.Duration
	SleepPoll    time.Duration
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.CyclePeriod <= 0 {
		c.CyclePeriod = defaultPeriod
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultPeriod
	}
	if c.SleepPoll <= 0 {
		c.SleepPoll = defaultPeriod
	}
	return c
}

// StatSource answers the stat command.
type StatSource interface {
	Today() stats.DailyStat
	Cumulative() stats.CumulativeStat
}

type Options struct {
	Broker     broker.Broker
	Machine    *lifecycle.Machine
	Strategy   lifecycle.Strategy
	Schedule   *schedule.Schedule
	Reconciler lifecycle.Reconciler
	Stats      StatSource
	Notifier   lifecycle.Notifier
	Requests   <-chan Request
	Loop       LoopConfig
	Now        func() time.Time
}

// Bot is the control loop around one lifecycle machine.
type Bot struct {
	broker   broker.Broker
	machine  *lifecycle.Machine
	strategy lifecycle.Strategy
	instr    types.InstrumentConfig
	schedule *schedule.Schedule
	recon    lifecycle.Reconciler
	stats    StatSource
	notify   lifecycle.Notifier
	requests <-chan Request
	loop     LoopConfig
	now      func() time.Time
}

func New(o Options) *Bot {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return &Bot{
		broker:   o.Broker,
		machine:  o.Machine,
		strategy: o.Strategy,
		instr:    o.Strategy.Configuration(),
		schedule: o.Schedule,
		recon:    o.Reconciler,
		stats:    o.Stats,
		notify:   o.Notifier,
		requests: o.Requests,
		loop:     o.Loop.withDefaults(),
		now:      now,
	}
}

// Run drives the bot until a stop request (ErrStopped), a fatal
// condition (*FatalError, operator alerted) or ctx cancellation.
func (b *Bot) Run(ctx context.Context) error {
	err := b.run(ctx)
	var fatal *FatalError
	if errors.As(err, &fatal) {
		logger.Errorf("🚨 %v", fatal)
		b.send(fmt.Sprintf("🚨 <b>Bot halted</b>\n\n<code>%s</code>\n\n⚠️ Manual intervention required", html.EscapeString(fatal.Error())))
	}
	return err
}

func (b *Bot) run(ctx context.Context) error {
	if err := b.machine.Start(ctx); err != nil {
		return &FatalError{Op: "startup", Err: err}
	}
	if err := b.recon.Reconcile(ctx, b.machine.State()); err != nil {
		return &FatalError{Op: "startup reconciliation", Err: err}
	}
	logger.Infof("🚀 Trading %s, balance %s", b.instr.Ticker, b.machine.Balance())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := b.now()
		if err := b.drain(ctx); err != nil {
			return err
		}

		period := b.loop.CyclePeriod
		if err := b.step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isFatal(err) {
				return &FatalError{Op: "cycle", Err: err}
			}
			logger.Warnf("⚠️ Cycle failed, retrying in %s: %v", b.loop.RetryBackoff, err)
			period = b.loop.RetryBackoff
		}
		if _, sleeping := b.machine.State().(lifecycle.Sleeping); sleeping {
			period = b.loop.SleepPoll
		}

		if err := b.wait(ctx, start, period); err != nil {
			return err
		}
	}
}

func (b *Bot) step(ctx context.Context) error {
	now := b.now()

	if s, ok := b.machine.State().(lifecycle.Sleeping); ok {
		if !s.Due(now) {
			return nil
		}
		// an open position is checked by the next order poll instead, its
		// exit may have filled while asleep
		if next, ok := s.Resume().(lifecycle.Seeking); ok {
			if err := b.recon.Reconcile(ctx, next); err != nil {
				return err
			}
		}
		b.machine.Wake()
	}

	if _, ok := b.machine.State().(lifecycle.Seeking); ok && !b.schedule.IsOpen(now) {
		b.machine.Sleep(now, b.schedule.UntilNextOpen(now))
		return nil
	}

	data, err := b.marketData(ctx, now)
	if err != nil {
		return err
	}
	if data.Empty() {
		logger.Infof("🌙 Empty market snapshot for %s", b.instr.Ticker)
		b.machine.Sleep(now, b.schedule.UntilNextOpen(now))
		return nil
	}

	action, err := b.strategy.Evaluate(data, b.machine.State())
	if err != nil {
		return err
	}
	switch b.machine.State().(type) {
	case lifecycle.Seeking:
		return b.machine.Apply(ctx, action)
	case lifecycle.InPosition:
		return b.machine.Poll(ctx)
	}
	return nil
}

func (b *Bot) marketData(ctx context.Context, now time.Time) (lifecycle.MarketData, error) {
	mode := b.instr.MarketData
	if mode.Kind == types.CandleData {
		local := now.In(b.schedule.Location())
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
		candles, err := b.broker.GetCandles(ctx, b.instr, mode.Interval, dayStart, now)
		if err != nil {
			return lifecycle.MarketData{}, fmt.Errorf("get candles: %w", err)
		}
		return lifecycle.MarketData{Candles: candles}, nil
	}
	ob, err := b.broker.GetOrderBook(ctx, b.instr, mode.Depth)
	if err != nil {
		return lifecycle.MarketData{}, fmt.Errorf("get order book: %w", err)
	}
	return lifecycle.MarketData{OrderBook: ob}, nil
}

func isFatal(err error) bool {
	var drift *reconcile.DriftError
	return errors.As(err, &drift) ||
		errors.Is(err, lifecycle.ErrStorage) ||
		errors.Is(err, lifecycle.ErrUnsupportedMarketData)
}

// drain answers queued requests without blocking.
func (b *Bot) drain(ctx context.Context) error {
	for {
		select {
		case req, ok := <-b.requests:
			if !ok {
				b.requests = nil
				return nil
			}
			if err := b.handle(ctx, req); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// wait blocks until period has passed since start, answering requests meanwhile.
func (b *Bot) wait(ctx context.Context, start time.Time, period time.Duration) error {
	for {
		remaining := period - b.now().Sub(start)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			return nil
		case req, ok := <-b.requests:
			timer.Stop()
			if !ok {
				b.requests = nil
				continue
			}
			if err := b.handle(ctx, req); err != nil {
				return err
			}
		}
	}
}

func (b *Bot) send(text string) {
	if b.notify == nil {
		return
	}
	if err := b.notify.SendText(text); err != nil {
		logger.Warnf("❌ notification failed: %v", err)
	}
}
