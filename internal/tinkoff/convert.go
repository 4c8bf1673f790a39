// File: internal/tinkoff/convert.go
// ============================================
package tinkoff

import (
	"fmt"
	"strings"

	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"

	"github.com/tidwall/gjson"
)

// int64 fields arrive as JSON strings, gjson's Int() reads both forms
func parseMoney(r gjson.Result) money.Money {
	return money.New(r.Get("units").Int(), int32(r.Get("nano").Int()))
}

func quotation(m money.Money) map[string]any {
	return map[string]any{"units": fmt.Sprint(m.Units), "nano": m.Nano}
}

func parseLevels(r gjson.Result) []types.OrderBookLevel {
	var levels []types.OrderBookLevel
	for _, l := range r.Array() {
		levels = append(levels, types.OrderBookLevel{
			Price:    parseMoney(l.Get("price")),
			Quantity: l.Get("quantity").Int(),
		})
	}
	return levels
}

func parseStatus(r gjson.Result) types.OrderStatus {
	if r.Type == gjson.Number {
		switch r.Int() {
		case 1:
			return types.StatusFilled
		case 2:
			return types.StatusRejected
		case 3:
			return types.StatusCancelled
		case 4:
			return types.StatusNew
		case 5:
			return types.StatusPartiallyFilled
		}
		return types.StatusUnknown
	}
	switch r.String() {
	case "EXECUTION_REPORT_STATUS_FILL":
		return types.StatusFilled
	case "EXECUTION_REPORT_STATUS_REJECTED":
		return types.StatusRejected
	case "EXECUTION_REPORT_STATUS_CANCELLED":
		return types.StatusCancelled
	case "EXECUTION_REPORT_STATUS_NEW":
		return types.StatusNew
	case "EXECUTION_REPORT_STATUS_PARTIALLYFILL":
		return types.StatusPartiallyFilled
	}
	return types.StatusUnknown
}

func orderDirection(d types.Direction) string {
	if d == types.Sell {
		return "ORDER_DIRECTION_SELL"
	}
	return "ORDER_DIRECTION_BUY"
}

func parseDirection(r gjson.Result) types.Direction {
	if r.String() == "ORDER_DIRECTION_SELL" || (r.Type == gjson.Number && r.Int() == 2) {
		return types.Sell
	}
	return types.Buy
}

var intervals = map[string]string{
	"1m":  "CANDLE_INTERVAL_1_MIN",
	"5m":  "CANDLE_INTERVAL_5_MIN",
	"15m": "CANDLE_INTERVAL_15_MIN",
	"1h":  "CANDLE_INTERVAL_HOUR",
	"1d":  "CANDLE_INTERVAL_DAY",
}

func candleInterval(s string) string {
	if v, ok := intervals[strings.ToLower(s)]; ok {
		return v
	}
	return s
}
