package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStrategyConfigIsWithinBounds(t *testing.T) {
	def := DefaultStrategyConfig()
	assert.Equal(t, def, def.Clamp(), "defaults should survive clamping unchanged")
}

func TestClampOutOfRangeValues(t *testing.T) {
	cfg := StrategyConfig{
		GridMode:            "martingale",
		BaseGridCount:       40,
		BaseSpacingPct:      0.01,
		ATRPeriod:           1,
		ATRMultiplier:       9,
		MaxPortfolioRisk:    100,
		MaxSinglePosition:   0,
		MaxConcurrentTrades: 1,
		StopLossATR:         0.2,
		TakeProfitATR:       20,
		VolatilityThreshold: 0,
		TrendPeriod:         500,
		ValueAreaPct:        99,
		WarmupBars:          1,
		StatusInterval:      10,
		MinOrderSize:        50,
		MaxOrderSize:        5,
		StressCooldownBars:  -3,
	}

	c := cfg.Clamp()
	assert.Equal(t, GridModeATR, c.GridMode)
	assert.Equal(t, 15, c.BaseGridCount)
	assert.Equal(t, 0.2, c.BaseSpacingPct)
	assert.Equal(t, 5, c.ATRPeriod)
	assert.Equal(t, 3.0, c.ATRMultiplier)
	assert.Equal(t, 30.0, c.MaxPortfolioRisk)
	assert.Equal(t, 1.0, c.MaxSinglePosition)
	assert.Equal(t, 3, c.MaxConcurrentTrades)
	assert.Equal(t, 1.0, c.StopLossATR)
	assert.Equal(t, 8.0, c.TakeProfitATR)
	assert.Equal(t, 1.0, c.VolatilityThreshold)
	assert.Equal(t, 200, c.TrendPeriod)
	assert.Equal(t, 90.0, c.ValueAreaPct)
	assert.Equal(t, 50, c.WarmupBars)
	assert.Equal(t, 50, c.StatusInterval)
	assert.Equal(t, 50.0, c.MaxOrderSize)
	assert.Equal(t, 0, c.StressCooldownBars)
}

func TestLevelsPerSideIsCapped(t *testing.T) {
	c := DefaultStrategyConfig()
	c.BaseGridCount = 12
	assert.Equal(t, MaxLevelsPerSide, c.LevelsPerSide())
	c.BaseGridCount = 3
	assert.Equal(t, 3, c.LevelsPerSide())
}

func TestTradingGateReasons(t *testing.T) {
	g := TradingGate{Restrictions: []Restriction{{Rule: "a", Reason: "first"}, {Rule: "b", Reason: "second"}}}
	assert.Equal(t, []string{"first", "second"}, g.Reasons())
	assert.Nil(t, TradingGate{CanTrade: true}.Reasons())
}
