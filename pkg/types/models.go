// File: pkg/types/models.go
// ============================================
package types

import (
	"time"

	"invest-scalp-bot/pkg/money"
)

// Config represents the bot configuration
type Config struct {
	Tinkoff struct {
		Token     string `yaml:"token"`
		AccountID string `yaml:"account_id"`
		BaseURL   string `yaml:"base_url"`
		AppName   string `yaml:"app_name"`
		Currency  string `yaml:"currency"`
	} `yaml:"tinkoff"`

	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		ChatID      string `yaml:"chat_id"`
		Enabled     bool   `yaml:"enabled"`
		APIBase     string `yaml:"api_base"`
		PollTimeout int    `yaml:"poll_timeout_seconds"`
	} `yaml:"telegram"`

	Strategy struct {
		Name           string   `yaml:"name"`
		Ticker         string   `yaml:"ticker"`
		Figi           string   `yaml:"figi"`
		UID            string   `yaml:"uid"`
		ClassCode      string   `yaml:"class_code"`
		LotSize        int64    `yaml:"lot_size"`
		TickSize       string   `yaml:"tick_size"`
		TradingHours   []string `yaml:"trading_hours"`
		Timezone       string   `yaml:"timezone"`
		OrderBookDepth int      `yaml:"order_book_depth"`
		CandleInterval string   `yaml:"candle_interval"`
		FeeRate        string   `yaml:"fee_rate"`
		TaxRate        string   `yaml:"tax_rate"`
		WindowSize     int      `yaml:"window_size"`
	} `yaml:"strategy"`

	Risk struct {
		MaxDailyLoss string `yaml:"max_daily_loss"`
	} `yaml:"risk"`

	Loop struct {
		CyclePeriod  time.Duration `yaml:"cycle_period"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
		SleepPoll    time.Duration `yaml:"sleep_poll"`
		QueueSize    int           `yaml:"queue_size"`
	} `yaml:"loop"`

	Store struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		OrderIDSeed int64  `yaml:"order_id_seed"`
	} `yaml:"store"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Direction is the side of an order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the closing side for d.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the execution state reported by the broker.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusUnknown         OrderStatus = "UNKNOWN"
)

// MarketDataKind selects what the strategy consumes.
type MarketDataKind string

const (
	OrderBookData MarketDataKind = "orderbook"
	CandleData    MarketDataKind = "candles"
)

// MarketDataMode is either an order book of Depth levels or candles of Interval.
type MarketDataMode struct {
	Kind     MarketDataKind
	Depth    int
	Interval string
}

// InstrumentConfig is the static per-run setup exposed by a strategy.
type InstrumentConfig struct {
	AccountID    string
	Ticker       string
	Figi         string
	UID          string
	ClassCode    string
	Currency     string
	LotSize      int64
	TickSize     money.Money
	TradingHours []string
	Timezone     *time.Location
	MarketData   MarketDataMode
	FeeRate      money.Money
	TaxRate      money.Money
}

type OrderBookLevel struct {
	Price    money.Money
	Quantity int64
}

type OrderBook struct {
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp *time.Time
}

// Empty reports a snapshot taken while the market is closed.
func (ob *OrderBook) Empty() bool {
	return ob == nil || ob.Timestamp == nil || len(ob.Bids) == 0 || len(ob.Asks) == 0
}

type Candle struct {
	Time       time.Time
	Open       money.Money
	High       money.Money
	Low        money.Money
	Close      money.Money
	Volume     int64
	IsComplete bool
}

type CurrencyAmount struct {
	Currency string
	Amount   money.Money
}

type InstrumentBalance struct {
	Figi    string
	UID     string
	Balance int64
	Blocked int64
}

type Portfolio struct {
	Cash        []CurrencyAmount
	Instruments []InstrumentBalance
}

// CashIn returns the cash balance in currency.
func (p Portfolio) CashIn(currency string) (money.Money, bool) {
	for _, c := range p.Cash {
		if c.Currency == currency {
			return c.Amount, true
		}
	}
	return money.Zero, false
}

// Held returns balance+blocked pieces of the instrument.
func (p Portfolio) Held(figi, uid string) int64 {
	for _, b := range p.Instruments {
		if (figi != "" && b.Figi == figi) || (uid != "" && b.UID == uid) {
			return b.Balance + b.Blocked
		}
	}
	return 0
}

type PlaceOrderRequest struct {
	AccountID     string
	Figi          string
	InstrumentID  string
	Direction     Direction
	Lots          int64
	Price         money.Money
	ClientOrderID string
}

type OrderState struct {
	OrderID       string
	Status        OrderStatus
	AvgFillPrice  *money.Money
	LotsRequested int64
	LotsExecuted  int64
	Direction     Direction
	OrderTime     *time.Time
}

type Order struct {
	OrderID   string
	Figi      string
	Direction Direction
	Lots      int64
	Price     money.Money
	Status    OrderStatus
}
