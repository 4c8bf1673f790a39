// File: internal/tinkoff/client.go
// ============================================
package tinkoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"invest-scalp-bot/internal/broker"
	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/pkg/types"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://invest-public-api.tinkoff.ru/rest"
	DefaultAppName = "invest-scalp-bot"

	servicePrefix = "tinkoff.public.invest.api.contract.v1."
)

// Client talks to the broker's REST gateway. Every call is a JSON POST.
type Client struct {
	token      string
	baseURL    string
	appName    string
	httpClient *http.Client
}

var _ broker.Broker = (*Client)(nil)

func NewClient(token, baseURL, appName string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if appName == "" {
		appName = DefaultAppName
	}
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, service, method string, payload any) (gjson.Result, error) {
	name := service + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: encode request: %w", name, err)
	}

	url := fmt.Sprintf("%s/%s%s", c.baseURL, servicePrefix, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", name, err)
	}
	trackingID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-tracking-id", trackingID)
	req.Header.Set("x-app-name", c.appName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		res := gjson.ParseBytes(data)
		msg := res.Get("message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		logger.Warnf("❌ %s failed (%d, tracking %s): %s", name, resp.StatusCode, trackingID, msg)
		return gjson.Result{}, &broker.APIError{
			Method:  name,
			Status:  resp.StatusCode,
			Code:    res.Get("description").String(),
			Message: msg,
		}
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%s: malformed response body", name)
	}
	return gjson.ParseBytes(data), nil
}

func (c *Client) GetPositions(ctx context.Context, accountID string) (types.Portfolio, error) {
	res, err := c.call(ctx, "OperationsService", "GetPositions", map[string]any{"accountId": accountID})
	if err != nil {
		return types.Portfolio{}, err
	}
	var pf types.Portfolio
	for _, m := range res.Get("money").Array() {
		pf.Cash = append(pf.Cash, types.CurrencyAmount{
			Currency: strings.ToLower(m.Get("currency").String()),
			Amount:   parseMoney(m),
		})
	}
	for _, s := range res.Get("securities").Array() {
		pf.Instruments = append(pf.Instruments, types.InstrumentBalance{
			Figi:    s.Get("figi").String(),
			UID:     s.Get("instrumentUid").String(),
			Balance: s.Get("balance").Int(),
			Blocked: s.Get("blocked").Int(),
		})
	}
	return pf, nil
}

func (c *Client) GetOrderBook(ctx context.Context, instrument types.InstrumentConfig, depth int) (*types.OrderBook, error) {
	res, err := c.call(ctx, "MarketDataService", "GetOrderBook", map[string]any{
		"figi":         instrument.Figi,
		"instrumentId": instrument.UID,
		"depth":        depth,
	})
	if err != nil {
		return nil, err
	}
	ob := &types.OrderBook{
		Bids: parseLevels(res.Get("bids")),
		Asks: parseLevels(res.Get("asks")),
	}
	if ts := res.Get("orderbookTs"); ts.Exists() && ts.String() != "" {
		t := ts.Time()
		ob.Timestamp = &t
	}
	return ob, nil
}

func (c *Client) GetCandles(ctx context.Context, instrument types.InstrumentConfig, interval string, from, to time.Time) ([]types.Candle, error) {
	res, err := c.call(ctx, "MarketDataService", "GetCandles", map[string]any{
		"figi":         instrument.Figi,
		"instrumentId": instrument.UID,
		"from":         from.UTC().Format(time.RFC3339Nano),
		"to":           to.UTC().Format(time.RFC3339Nano),
		"interval":     candleInterval(interval),
	})
	if err != nil {
		return nil, err
	}
	var candles []types.Candle
	for _, k := range res.Get("candles").Array() {
		candles = append(candles, types.Candle{
			Time:       k.Get("time").Time(),
			Open:       parseMoney(k.Get("open")),
			High:       parseMoney(k.Get("high")),
			Low:        parseMoney(k.Get("low")),
			Close:      parseMoney(k.Get("close")),
			Volume:     k.Get("volume").Int(),
			IsComplete: k.Get("isComplete").Bool(),
		})
	}
	return candles, nil
}

// PlaceOrder posts a limit order and returns the broker's order id.
func (c *Client) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (string, error) {
	res, err := c.call(ctx, "OrdersService", "PostOrder", map[string]any{
		"accountId":    req.AccountID,
		"figi":         req.Figi,
		"instrumentId": req.InstrumentID,
		"quantity":     fmt.Sprint(req.Lots),
		"price":        quotation(req.Price),
		"direction":    orderDirection(req.Direction),
		"orderType":    "ORDER_TYPE_LIMIT",
		"orderId":      req.ClientOrderID,
	})
	if err != nil {
		return "", err
	}
	orderID := res.Get("orderId").String()
	if orderID == "" {
		return "", fmt.Errorf("OrdersService/PostOrder: response without orderId")
	}
	logger.Debugf("📤 Order %s accepted with status %s", orderID, parseStatus(res.Get("executionReportStatus")))
	return orderID, nil
}

func (c *Client) GetOrderState(ctx context.Context, accountID, orderID string) (types.OrderState, error) {
	res, err := c.call(ctx, "OrdersService", "GetOrderState", map[string]any{
		"accountId": accountID,
		"orderId":   orderID,
	})
	if err != nil {
		return types.OrderState{}, err
	}
	st := types.OrderState{
		OrderID:       res.Get("orderId").String(),
		Status:        parseStatus(res.Get("executionReportStatus")),
		LotsRequested: res.Get("lotsRequested").Int(),
		LotsExecuted:  res.Get("lotsExecuted").Int(),
		Direction:     parseDirection(res.Get("direction")),
	}
	if avg := res.Get("averagePositionPrice"); avg.Exists() {
		p := parseMoney(avg)
		st.AvgFillPrice = &p
	}
	if ts := res.Get("orderDate"); ts.Exists() && ts.String() != "" {
		t := ts.Time()
		st.OrderTime = &t
	}
	return st, nil
}

func (c *Client) CancelOrder(ctx context.Context, accountID, orderID string) error {
	_, err := c.call(ctx, "OrdersService", "CancelOrder", map[string]any{
		"accountId": accountID,
		"orderId":   orderID,
	})
	return err
}

func (c *Client) GetOpenOrders(ctx context.Context, accountID string) ([]types.Order, error) {
	res, err := c.call(ctx, "OrdersService", "GetOrders", map[string]any{"accountId": accountID})
	if err != nil {
		return nil, err
	}
	var orders []types.Order
	for _, o := range res.Get("orders").Array() {
		orders = append(orders, types.Order{
			OrderID:   o.Get("orderId").String(),
			Figi:      o.Get("figi").String(),
			Direction: parseDirection(o.Get("direction")),
			Lots:      o.Get("lotsRequested").Int(),
			Price:     parseMoney(o.Get("initialSecurityPrice")),
			Status:    parseStatus(o.Get("executionReportStatus")),
		})
	}
	return orders, nil
}
