package risk

import (
	"math"
	"time"

	"hybrid-grid-bot-go/internal/models"
)

// Exposure is the notional of p at mark as a percentage of equity.
// Without positive equity any open position counts as unbounded risk.
func Exposure(p models.Position, mark, equity float64) float64 {
	notional := math.Abs(p.Quantity) * mark
	if notional == 0 {
		return 0
	}
	if equity <= 0 {
		return math.Inf(1)
	}
	return notional / equity * 100
}

// BuildSnapshot marks every open position at mark and folds in the
// ledger's trade statistics.
func BuildSnapshot(account models.AccountSnapshot, mark float64, ledger *Ledger, now time.Time) models.RiskSnapshot {
	var snap models.RiskSnapshot
	for _, p := range account.Positions {
		if p.Quantity == 0 {
			continue
		}
		exp := Exposure(p, mark, account.Equity)
		snap.PortfolioRiskPct += exp
		if exp > snap.LargestPositionRiskPct {
			snap.LargestPositionRiskPct = exp
		}
		snap.ActiveTradeCount++
	}
	if ledger != nil {
		snap.DailyPnL = ledger.DailyPnL(now)
		snap.WinRatePct = ledger.WinRatePct()
	}
	return snap
}

// LargestPosition returns the open position with the biggest exposure.
func LargestPosition(account models.AccountSnapshot, mark float64) (models.Position, bool) {
	var (
		best    models.Position
		bestExp = -1.0
	)
	for _, p := range account.Positions {
		if p.Quantity == 0 {
			continue
		}
		if exp := Exposure(p, mark, account.Equity); exp > bestExp {
			best, bestExp = p, exp
		}
	}
	return best, bestExp >= 0
}
