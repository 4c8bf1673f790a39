// File: internal/config/config.go
// ============================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"invest-scalp-bot/internal/orderid"
	"invest-scalp-bot/internal/schedule"
	"invest-scalp-bot/internal/strategy"
	"invest-scalp-bot/internal/tinkoff"
	"invest-scalp-bot/internal/trader"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

// Load reads .env (if present), the yaml file and environment overrides,
// then fills defaults and validates.
func Load(path string) (*types.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *types.Config) {
	if v := os.Getenv("TOKEN_BOT"); v != "" {
		cfg.Tinkoff.Token = v
	}
	if v := os.Getenv("T_ACCOUNT_ID"); v != "" {
		cfg.Tinkoff.AccountID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("BOT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
}

func applyDefaults(cfg *types.Config) {
	setString(&cfg.Tinkoff.BaseURL, tinkoff.DefaultBaseURL)
	setString(&cfg.Tinkoff.AppName, tinkoff.DefaultAppName)
	setString(&cfg.Tinkoff.Currency, "rub")

	s := &cfg.Strategy
	setString(&s.Name, "scalp")
	setString(&s.TickSize, "0.01")
	setString(&s.Timezone, "Europe/Moscow")
	setString(&s.FeeRate, "0")
	setString(&s.TaxRate, "0.13")
	if s.LotSize <= 0 {
		s.LotSize = 1
	}
	if len(s.TradingHours) == 0 {
		s.TradingHours = []string{"10:00-18:40"}
	}
	if s.OrderBookDepth <= 0 {
		s.OrderBookDepth = 10
	}
	if s.WindowSize <= 0 {
		s.WindowSize = strategy.DefaultWindowSize
	}

	setString(&cfg.Risk.MaxDailyLoss, "0")

	l := &cfg.Loop
	setDuration(&l.CyclePeriod, 60*time.Second)
	setDuration(&l.RetryBackoff, 60*time.Second)
	setDuration(&l.SleepPoll, 60*time.Second)
	if l.QueueSize <= 0 {
		l.QueueSize = trader.QueueSize
	}

	setString(&cfg.Store.Driver, "file")
	if cfg.Store.Driver == "sqlite" {
		setString(&cfg.Store.Path, "add_info/bot.db")
	}
	setString(&cfg.Store.Path, "add_info")
	if cfg.Store.OrderIDSeed <= 0 {
		cfg.Store.OrderIDSeed = orderid.DefaultSeed
	}

	setString(&cfg.Log.Level, "info")
	if cfg.Telegram.PollTimeout <= 0 {
		cfg.Telegram.PollTimeout = 30
	}
}

func validate(cfg *types.Config) error {
	if cfg.Tinkoff.Token == "" {
		return errors.New("broker token is required (tinkoff.token or TOKEN_BOT)")
	}
	if cfg.Tinkoff.AccountID == "" {
		return errors.New("account id is required (tinkoff.account_id or T_ACCOUNT_ID)")
	}
	if cfg.Strategy.Figi == "" && cfg.Strategy.UID == "" {
		return errors.New("strategy.figi or strategy.uid is required")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram is enabled but bot_token or chat_id is missing")
	}
	if cfg.Strategy.Name != "scalp" {
		return fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}
	return nil
}

// Instrument builds the per-run instrument setup from the strategy section.
func Instrument(cfg *types.Config) (types.InstrumentConfig, error) {
	s := cfg.Strategy
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return types.InstrumentConfig{}, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	tick, err := money.Parse(s.TickSize)
	if err != nil {
		return types.InstrumentConfig{}, fmt.Errorf("tick_size: %w", err)
	}
	fee, err := money.Parse(s.FeeRate)
	if err != nil {
		return types.InstrumentConfig{}, fmt.Errorf("fee_rate: %w", err)
	}
	tax, err := money.Parse(s.TaxRate)
	if err != nil {
		return types.InstrumentConfig{}, fmt.Errorf("tax_rate: %w", err)
	}

	mode := types.MarketDataMode{Kind: types.OrderBookData, Depth: s.OrderBookDepth}
	if s.CandleInterval != "" {
		mode = types.MarketDataMode{Kind: types.CandleData, Interval: s.CandleInterval}
	}
	return types.InstrumentConfig{
		AccountID:    cfg.Tinkoff.AccountID,
		Ticker:       s.Ticker,
		Figi:         s.Figi,
		UID:          s.UID,
		ClassCode:    s.ClassCode,
		Currency:     cfg.Tinkoff.Currency,
		LotSize:      s.LotSize,
		TickSize:     tick,
		TradingHours: s.TradingHours,
		Timezone:     loc,
		MarketData:   mode,
		FeeRate:      fee,
		TaxRate:      tax,
	}, nil
}

// Schedule builds the trading schedule of an instrument.
func Schedule(instrument types.InstrumentConfig) (*schedule.Schedule, error) {
	windows := make([]schedule.Window, 0, len(instrument.TradingHours))
	for _, h := range instrument.TradingHours {
		w, err := schedule.ParseWindow(h)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return schedule.New(windows, instrument.Timezone)
}

// MaxDailyLoss parses the risk section.
func MaxDailyLoss(cfg *types.Config) (money.Money, error) {
	m, err := money.Parse(cfg.Risk.MaxDailyLoss)
	if err != nil {
		return money.Zero, fmt.Errorf("max_daily_loss: %w", err)
	}
	return m, nil
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
