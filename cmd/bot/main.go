// File: cmd/bot/main.go
// ============================================
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"invest-scalp-bot/internal/config"
	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/internal/orderid"
	"invest-scalp-bot/internal/reconcile"
	"invest-scalp-bot/internal/risk"
	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/internal/store"
	"invest-scalp-bot/internal/strategy"
	"invest-scalp-bot/internal/telegram"
	"invest-scalp-bot/internal/tinkoff"
	"invest-scalp-bot/internal/trader"

	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := os.Getenv("BOT_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		f, err := setupLogOutput(cfg.Log.File)
		if err != nil {
			log.Printf("Failed to open log file: %v", err)
			return 1
		}
		defer f.Close()
	}

	instrument, err := config.Instrument(cfg)
	if err != nil {
		logger.Errorf("❌ Invalid instrument setup: %v", err)
		return 1
	}
	sched, err := config.Schedule(instrument)
	if err != nil {
		logger.Errorf("❌ Invalid trading hours: %v", err)
		return 1
	}
	maxLoss, err := config.MaxDailyLoss(cfg)
	if err != nil {
		logger.Errorf("❌ Invalid risk setup: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		logger.Errorf("❌ Failed to open %s store: %v", cfg.Store.Driver, err)
		return 1
	}
	defer st.Close()

	ids, err := orderid.Load(ctx, st, cfg.Store.OrderIDSeed)
	if err != nil {
		logger.Errorf("❌ Order id counter: %v", err)
		return 1
	}
	ledger, err := stats.Open(ctx, st, instrument.Timezone, nil)
	if err != nil {
		logger.Errorf("❌ Statistics: %v", err)
		return 1
	}

	client := tinkoff.NewClient(cfg.Tinkoff.Token, cfg.Tinkoff.BaseURL, cfg.Tinkoff.AppName)
	notifier := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled, cfg.Telegram.APIBase)
	strat := strategy.NewScalpStrategy(instrument, cfg.Strategy.WindowSize)
	recon := reconcile.New(client, instrument)

	machine := lifecycle.NewMachine(lifecycle.Deps{
		Broker:     client,
		Strategy:   strat,
		IDs:        ids,
		Ledger:     ledger,
		Risk:       risk.NewManager(instrument, maxLoss),
		Reconciler: recon,
		Notifier:   notifier,
	})
	requests := make(chan trader.Request, cfg.Loop.QueueSize)
	bot := trader.New(trader.Options{
		Broker:     client,
		Machine:    machine,
		Strategy:   strat,
		Schedule:   sched,
		Reconciler: recon,
		Stats:      ledger,
		Notifier:   notifier,
		Requests:   requests,
		Loop: trader.LoopConfig{
			CyclePeriod:  cfg.Loop.CyclePeriod,
			RetryBackoff: cfg.Loop.RetryBackoff,
			SleepPoll:    cfg.Loop.SleepPoll,
		},
	})

	logger.Infof("🚀 Scalp bot starting: %s (%s), hours %v, store %s", instrument.Ticker, instrument.Figi, sched.Windows(), cfg.Store.Driver)
	notifier.NotifyStart(instrument.Ticker, instrument.TradingHours)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return bot.Run(gctx)
	})
	if notifier.Enabled() {
		poller := telegram.NewPoller(notifier, cfg.Telegram.PollTimeout)
		group.Go(func() error {
			return poller.Run(gctx, requests)
		})
	}

	err = group.Wait()
	switch {
	case err == nil, errors.Is(err, trader.ErrStopped), errors.Is(err, context.Canceled):
		logger.Infof("👋 Bot stopped")
		return 0
	default:
		logger.Errorf("❌ Bot terminated: %v", err)
		return 1
	}
}

func setupLogOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
