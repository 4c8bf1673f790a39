// File: internal/telegram/notifier.go
// ============================================
package telegram

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"invest-scalp-bot/internal/logger"
)

const DefaultAPIBase = "https://api.telegram.org"

type Notifier struct {
	botToken string
	chatID   string
	enabled  bool
	apiBase  string
	client   *http.Client
}

func NewNotifier(botToken, chatID string, enabled bool, apiBase string) *Notifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled,
		apiBase:  strings.TrimRight(apiBase, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.enabled }

func (n *Notifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.apiBase, n.botToken, method)
}

// SendText delivers an HTML message to the operator chat.
func (n *Notifier) SendText(message string) error {
	if !n.enabled {
		logger.Debugf("⚠️ Telegram disabled, message dropped: %s", firstLine(message))
		return nil
	}

	data := url.Values{}
	data.Set("chat_id", n.chatID)
	data.Set("text", message)
	data.Set("parse_mode", "HTML")
	data.Set("disable_web_page_preview", "true")

	resp, err := n.client.PostForm(n.endpoint("sendMessage"), data)
	if err != nil {
		logger.Errorf("❌ Telegram API error: %v", err)
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		logger.Errorf("❌ Telegram API response (%d): %s", resp.StatusCode, string(body))
		return fmt.Errorf("telegram API error: %s", string(body))
	}
	logger.Debugf("✅ Telegram message sent")
	return nil
}

func (n *Notifier) NotifyStart(ticker string, windows []string) {
	msg := "🤖 <b>Trading Bot Started</b>\n\n"
	msg += fmt.Sprintf("💎 Instrument: <b>%s</b>\n", ticker)
	msg += fmt.Sprintf("⏰ Trading hours: %s\n", strings.Join(windows, ", "))
	msg += "📋 Commands: /state /stat /stop /help"
	_ = n.SendText(msg)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
