// Package risk turns account exposure, trade statistics and market
// conditions into a per-bar trading permission.
package risk

import (
	"fmt"
	"math"

	"hybrid-grid-bot-go/internal/indicators"
	"hybrid-grid-bot-go/internal/models"
)

// Rule names, in evaluation order.
const (
	RulePortfolioRisk = "portfolio_risk"
	RuleSingleRisk    = "single_position_risk"
	RuleConcurrency   = "concurrent_trades"
	RuleVolatility    = "volatility"
	RuleTrend         = "trend"
	RuleStress        = "market_stress"
)

const (
	// TrendLimitPct is the trend strength above which profile-adaptive grids pause.
	TrendLimitPct = 5.0
	// SqueezeWidth is the band width below which the market counts as squeezed.
	SqueezeWidth  = 0.05
	RSIOverbought = 80.0
	RSIOversold   = 20.0
	// StressSizeMultiplier scales position size while recovering from stress.
	StressSizeMultiplier = 0.5
)

// Evaluate runs every rule and reports all that trigger.
func Evaluate(snap models.RiskSnapshot, cfg models.StrategyConfig, ind indicators.Snapshot) models.TradingGate {
	gate := models.TradingGate{CanTrade: true}
	block := func(rule, format string, args ...interface{}) {
		gate.CanTrade = false
		gate.Restrictions = append(gate.Restrictions, models.Restriction{Rule: rule, Reason: fmt.Sprintf(format, args...)})
	}

	if snap.PortfolioRiskPct > cfg.MaxPortfolioRisk {
		block(RulePortfolioRisk, "portfolio risk %.2f%% exceeds limit %.2f%%", snap.PortfolioRiskPct, cfg.MaxPortfolioRisk)
	}
	if snap.LargestPositionRiskPct > cfg.MaxSinglePosition {
		block(RuleSingleRisk, "largest position %.2f%% exceeds single position limit %.2f%%", snap.LargestPositionRiskPct, cfg.MaxSinglePosition)
	}
	if snap.ActiveTradeCount >= cfg.MaxConcurrentTrades {
		block(RuleConcurrency, "%d active trades reached limit %d", snap.ActiveTradeCount, cfg.MaxConcurrentTrades)
	}
	if cfg.EnableVolatilityFilter && ind.VolatilityRatio > cfg.VolatilityThreshold {
		block(RuleVolatility, "volatility ratio %.2f exceeds threshold %.2f", ind.VolatilityRatio, cfg.VolatilityThreshold)
	}
	if cfg.EnableTrendFilter && cfg.GridMode == models.GridModeProfileAdaptive && math.Abs(ind.TrendStrengthPct) > TrendLimitPct {
		block(RuleTrend, "trend strength %.2f%% too strong for a profile grid", ind.TrendStrengthPct)
	}
	if Stressed(ind) {
		gate.Stressed = true
		block(RuleStress, "market stress: band width %.4f, RSI %.1f", ind.BandWidth, ind.RSI)
	}
	return gate
}

// Stressed reports a band squeeze or an RSI extreme.
func Stressed(ind indicators.Snapshot) bool {
	return ind.BandWidth < SqueezeWidth || ind.RSI > RSIOverbought || ind.RSI < RSIOversold
}

