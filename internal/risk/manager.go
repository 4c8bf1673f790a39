// File: internal/risk/manager.go
// ============================================
package risk

import (
	"fmt"

	"invest-scalp-bot/internal/stats"
	"invest-scalp-bot/pkg/money"
	"invest-scalp-bot/pkg/types"
)

type Manager struct {
	feeRate      money.Money
	taxRate      money.Money
	lotSize      int64
	maxDailyLoss money.Money
}

// NewManager takes fee/tax multipliers from the instrument setup.
// A zero maxDailyLoss disables the daily loss guard.
func NewManager(instrument types.InstrumentConfig, maxDailyLoss money.Money) *Manager {
	lotSize := instrument.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	return &Manager{
		feeRate:      instrument.FeeRate,
		taxRate:      instrument.TaxRate,
		lotSize:      lotSize,
		maxDailyLoss: maxDailyLoss.Abs(),
	}
}

func (m *Manager) CanOpenPosition(today stats.DailyStat) (bool, string) {
	if m.maxDailyLoss.IsZero() {
		return true, ""
	}
	if today.Profit.AfterFees.Cmp(m.maxDailyLoss.Neg()) <= 0 {
		return false, fmt.Sprintf("Daily loss limit reached: %s", today.Profit.AfterFees)
	}
	return true, ""
}

// RoundTrip computes turnover and the three profit tiers of a closed
// trade entered in direction dir.
func (m *Manager) RoundTrip(dir types.Direction, priceIn, priceOut money.Money, lots int64) (money.Money, stats.ProfitStat) {
	pieces := money.FromInt(lots * m.lotSize)

	perPiece := priceOut.Sub(priceIn)
	if dir == types.Sell {
		perPiece = priceIn.Sub(priceOut)
	}
	gross := perPiece.Mul(pieces)
	turnover := priceIn.Add(priceOut).Mul(pieces)

	afterFees := gross.Sub(turnover.Mul(m.feeRate))
	afterTax := afterFees
	if afterFees.Sign() > 0 {
		afterTax = afterFees.Sub(afterFees.Mul(m.taxRate))
	}
	return turnover, stats.ProfitStat{Gross: gross, AfterFees: afterFees, AfterTax: afterTax}
}
