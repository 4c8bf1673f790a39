// File: internal/trader/commands.go
// ============================================
package trader

import (
	"context"
	"fmt"
	"strings"

	"invest-scalp-bot/internal/lifecycle"
	"invest-scalp-bot/internal/logger"
)

func (b *Bot) handle(ctx context.Context, req Request) error {
	logger.Infof("📥 Operator request: %s", req)
	switch req {
	case RequestState:
		b.send(b.describeState(ctx))
	case RequestStat:
		b.send(b.describeStats())
	case RequestStop:
		if in, ok := b.machine.State().(lifecycle.InPosition); ok {
			b.send(fmt.Sprintf("⚠️ <b>Position left open</b>\n\n%s", in))
		}
		b.send("👋 <b>Trading Bot Stopped</b>")
		return ErrStopped
	default:
		b.send("🤷 Unrecognized request, see /help")
	}
	return nil
}

func (b *Bot) describeState(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>State</b>\n\n")
	fmt.Fprintf(&sb, "💎 %s\n", b.instr.Ticker)
	fmt.Fprintf(&sb, "%s\n", b.machine.State())
	fmt.Fprintf(&sb, "💰 Balance: %s\n", b.machine.Balance())

	orders, err := b.broker.GetOpenOrders(ctx, b.instr.AccountID)
	if err != nil {
		fmt.Fprintf(&sb, "📋 Orders: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(&sb, "📋 Resting orders: %d\n", len(orders))
		for _, o := range orders {
			fmt.Fprintf(&sb, "• %s %s %d @ %s\n", o.OrderID, o.Direction, o.Lots, o.Price)
		}
	}
	if b.stats != nil {
		sb.WriteString("\n" + b.stats.Today().String())
	}
	return sb.String()
}

func (b *Bot) describeStats() string {
	if b.stats == nil {
		return "📈 No statistics available"
	}
	return fmt.Sprintf("📈 <b>Statistics</b>\n\n%s\n\n%s", b.stats.Today(), b.stats.Cumulative())
}
