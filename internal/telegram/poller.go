// File: internal/telegram/poller.go
// ============================================
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"invest-scalp-bot/internal/logger"
	"invest-scalp-bot/internal/trader"

	"github.com/tidwall/gjson"
)

const (
	defaultPollTimeout = 30
	errorPause         = 5 * time.Second
)

const helpText = "📋 <b>Supported commands</b>\n\n" +
	"/help - this message\n" +
	"/state - position, orders, today's statistics\n" +
	"/stat - trading statistics\n" +
	"/stop - stop the bot"

// Poller long-polls getUpdates and turns operator messages into requests.
type Poller struct {
	n       *Notifier
	timeout int
	offset  int64
	client  *http.Client
}

func NewPoller(n *Notifier, timeoutSeconds int) *Poller {
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultPollTimeout
	}
	return &Poller{
		n:       n,
		timeout: timeoutSeconds,
		client:  &http.Client{Timeout: time.Duration(timeoutSeconds+10) * time.Second},
	}
}

// Run polls until ctx is done. Requests that do not fit in out are refused.
func (p *Poller) Run(ctx context.Context, out chan<- trader.Request) error {
	logger.Infof("📡 Listening for Telegram commands")
	for {
		updates, err := p.fetch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warnf("⚠️ getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorPause):
			}
			continue
		}
		for _, u := range updates {
			p.handle(u, out)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]gjson.Result, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(p.offset, 10))
	q.Set("timeout", strconv.Itoa(p.timeout))
	q.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.n.endpoint("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if resp.StatusCode != http.StatusOK || !res.Get("ok").Bool() {
		return nil, fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, res.Get("description").String())
	}

	updates := res.Get("result").Array()
	for _, u := range updates {
		if id := u.Get("update_id").Int(); id >= p.offset {
			p.offset = id + 1
		}
	}
	return updates, nil
}

func (p *Poller) handle(u gjson.Result, out chan<- trader.Request) {
	msg := u.Get("message")
	if !msg.Exists() {
		return
	}
	chatID := msg.Get("chat.id").String()
	if chatID != p.n.chatID {
		logger.Warnf("🔕 Ignoring message from chat %s", chatID)
		return
	}

	text := strings.TrimSpace(msg.Get("text").String())
	if isCommand(text, "help") || isCommand(text, "start") {
		_ = p.n.SendText(helpText)
		return
	}

	req, ack := ParseRequest(text)
	select {
	case out <- req:
		if ack != "" {
			_ = p.n.SendText(ack)
		}
	default:
		logger.Warnf("⚠️ Request queue full, dropping %s", req)
		_ = p.n.SendText("⏳ Busy, try again in a minute")
	}
}

// ParseRequest maps a chat message onto a loop request and its acknowledgement.
func ParseRequest(text string) (trader.Request, string) {
	switch {
	case isCommand(text, "state"):
		return trader.RequestState, "🔍 Requesting portfolio state"
	case isCommand(text, "stat"):
		return trader.RequestStat, "🔍 Requesting statistics"
	case isCommand(text, "stop"):
		return trader.RequestStop, "🛑 Requesting stop"
	default:
		return trader.RequestUnknown, ""
	}
}

// isCommand matches "/name" and "/name@botname", case-insensitively.
func isCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.EqualFold(cmd, name)
}
