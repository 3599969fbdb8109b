package models

// GridMode 决定网格间距的计算方式
type GridMode string

const (
	GridModeFixed           GridMode = "fixed"
	GridModeATR             GridMode = "atr"
	GridModeProfileAdaptive GridMode = "profile-adaptive"
)

// MaxLevelsPerSide 每一侧最多的网格档位数
const MaxLevelsPerSide = 8

// StrategyConfig 网格策略参数，在一次运行中不可变
type StrategyConfig struct {
	EnableGrid             bool     `json:"enable_grid" yaml:"enable_grid"`
	GridMode               GridMode `json:"grid_mode" yaml:"grid_mode"`
	BaseGridCount          int      `json:"base_grid_count" yaml:"base_grid_count"`           // 每侧档位数 3-15，实际最多 8
	BaseSpacingPct         float64  `json:"base_spacing_pct" yaml:"base_spacing_pct"`         // 固定间距百分比
	ATRPeriod              int      `json:"atr_period" yaml:"atr_period"`                     // ATR 周期
	ATRMultiplier          float64  `json:"atr_multiplier" yaml:"atr_multiplier"`             // ATR 间距倍数
	MaxPortfolioRisk       float64  `json:"max_portfolio_risk" yaml:"max_portfolio_risk"`     // 组合风险上限 (%)
	MaxSinglePosition      float64  `json:"max_single_position" yaml:"max_single_position"`   // 单仓风险上限 (%)
	MaxConcurrentTrades    int      `json:"max_concurrent_trades" yaml:"max_concurrent_trades"`
	StopLossATR            float64  `json:"stop_loss_atr" yaml:"stop_loss_atr"`
	TakeProfitATR          float64  `json:"take_profit_atr" yaml:"take_profit_atr"`
	EnableVolatilityFilter bool     `json:"enable_volatility_filter" yaml:"enable_volatility_filter"`
	VolatilityThreshold    float64  `json:"volatility_threshold" yaml:"volatility_threshold"` // ATR / ATR均值 上限
	EnableTrendFilter      bool     `json:"enable_trend_filter" yaml:"enable_trend_filter"`
	TrendPeriod            int      `json:"trend_period" yaml:"trend_period"`             // 趋势 EMA 周期
	ValueAreaPct           float64  `json:"mp_value_area_pct" yaml:"mp_value_area_pct"`   // 价值区覆盖比例 (%)

	// 引擎参数
	SpotOnly           bool    `json:"spot_only" yaml:"spot_only"`                       // 现货市场不开空
	WarmupBars         int     `json:"warmup_bars" yaml:"warmup_bars"`                   // 预热K线数
	StatusInterval     int     `json:"status_interval" yaml:"status_interval"`           // 状态事件间隔 (K线数)
	MinOrderSize       float64 `json:"min_order_size" yaml:"min_order_size"`             // 单笔最小名义金额
	MaxOrderSize       float64 `json:"max_order_size" yaml:"max_order_size"`             // 单笔最大名义金额
	StressCooldownBars int     `json:"stress_cooldown_bars" yaml:"stress_cooldown_bars"` // 压力解除后减半仓位的K线数
}

// DefaultStrategyConfig 返回全部默认参数
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		EnableGrid:             true,
		GridMode:               GridModeATR,
		BaseGridCount:          8,
		BaseSpacingPct:         1.0,
		ATRPeriod:              14,
		ATRMultiplier:          1.5,
		MaxPortfolioRisk:       15,
		MaxSinglePosition:      5,
		MaxConcurrentTrades:    8,
		StopLossATR:            2.0,
		TakeProfitATR:          3.0,
		EnableVolatilityFilter: true,
		VolatilityThreshold:    2.0,
		EnableTrendFilter:      true,
		TrendPeriod:            50,
		ValueAreaPct:           70,
		WarmupBars:             100,
		StatusInterval:         50,
		MinOrderSize:           10,
		MaxOrderSize:           10000,
		StressCooldownBars:     5,
	}
}

// Clamp 将越界参数截断到允许范围内，从不报错
func (c StrategyConfig) Clamp() StrategyConfig {
	switch c.GridMode {
	case GridModeFixed, GridModeATR, GridModeProfileAdaptive:
	default:
		c.GridMode = GridModeATR
	}
	c.BaseGridCount = clampInt(c.BaseGridCount, 3, 15)
	c.BaseSpacingPct = clampFloat(c.BaseSpacingPct, 0.2, 3.0)
	c.ATRPeriod = clampInt(c.ATRPeriod, 5, 50)
	c.ATRMultiplier = clampFloat(c.ATRMultiplier, 0.5, 3.0)
	c.MaxPortfolioRisk = clampFloat(c.MaxPortfolioRisk, 5, 30)
	c.MaxSinglePosition = clampFloat(c.MaxSinglePosition, 1, 10)
	c.MaxConcurrentTrades = clampInt(c.MaxConcurrentTrades, 3, 20)
	c.StopLossATR = clampFloat(c.StopLossATR, 1, 5)
	c.TakeProfitATR = clampFloat(c.TakeProfitATR, 1.5, 8)
	c.VolatilityThreshold = clampFloat(c.VolatilityThreshold, 1, 5)
	c.TrendPeriod = clampInt(c.TrendPeriod, 20, 200)
	c.ValueAreaPct = clampFloat(c.ValueAreaPct, 50, 90)
	c.WarmupBars = clampInt(c.WarmupBars, 50, 500)
	c.StatusInterval = clampInt(c.StatusInterval, 50, 100)
	c.StressCooldownBars = clampInt(c.StressCooldownBars, 0, 50)
	if c.MinOrderSize < 0 {
		c.MinOrderSize = 0
	}
	if c.MaxOrderSize < c.MinOrderSize {
		c.MaxOrderSize = c.MinOrderSize
	}
	return c
}

// LevelsPerSide 实际每侧档位数
func (c StrategyConfig) LevelsPerSide() int {
	if c.BaseGridCount > MaxLevelsPerSide {
		return MaxLevelsPerSide
	}
	return c.BaseGridCount
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
