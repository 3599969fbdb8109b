package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileBuckets 是市场轮廓直方图的固定桶数
const ProfileBuckets = 20

// GridLevel 代表网格中的一个价格档位
type GridLevel struct {
	Index         int             `json:"index"`    // 1..N，距离基准价的档数
	Side          Side            `json:"side"`     // 交易方向 (Buy/Sell)
	Price         decimal.Decimal `json:"price"`    // 目标价格
	Active        bool            `json:"active"`   // 现货模式下卖出档位不激活
	Executed      bool            `json:"executed"` // 本周期内是否已触发
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// GridState 是单个交易对网格的完整状态
type GridState struct {
	BasePrice   decimal.Decimal `json:"base_price"`
	Spacing     decimal.Decimal `json:"spacing"`
	Initialized bool            `json:"initialized"`
	Levels      []GridLevel     `json:"levels"`      // 先买后卖，各自按 Index 升序
	TradeCount  int             `json:"trade_count"` // 累计触发次数
	Rebalances  int             `json:"rebalances"`
	CycleID     string          `json:"cycle_id"` // 每次(重新)初始化生成新的UUID
}

// SessionProfile 当日的TPO市场轮廓
type SessionProfile struct {
	Day        string              `json:"day"` // UTC 日期 YYYY-MM-DD
	High       float64             `json:"high"`
	Low        float64             `json:"low"`
	Bars       int                 `json:"bars"`
	Histogram  [ProfileBuckets]int `json:"histogram"`
	POC        float64             `json:"poc"`
	VAH        float64             `json:"vah"`
	VAL        float64             `json:"val"`
	VARangePct float64             `json:"va_range_pct"`
	Valid      bool                `json:"valid"`
}

// RiskSnapshot 每根K线根据账户和头寸重新计算
type RiskSnapshot struct {
	PortfolioRiskPct       float64 `json:"portfolio_risk_pct"`
	LargestPositionRiskPct float64 `json:"largest_position_risk_pct"`
	ActiveTradeCount       int     `json:"active_trade_count"`
	DailyPnL               float64 `json:"daily_pnl"`
	WinRatePct             float64 `json:"win_rate_pct"`
}

// Restriction 是风控规则给出的一条限制
type Restriction struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// TradingGate 每根K线重新计算，不保留历史
type TradingGate struct {
	CanTrade     bool          `json:"can_trade"`
	Stressed     bool          `json:"stressed"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// Reasons 按规则顺序返回所有限制原因
func (g TradingGate) Reasons() []string {
	if len(g.Restrictions) == 0 {
		return nil
	}
	reasons := make([]string, len(g.Restrictions))
	for i, r := range g.Restrictions {
		reasons[i] = r.Reason
	}
	return reasons
}

// LedgerState 交易绩效计数器，不保存逐笔历史
type LedgerState struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	DailyPnL      float64 `json:"daily_pnl"`
	Day           string  `json:"day"`
}

// BotState 定义了需要持久化的所有关键数据
type BotState struct {
	BotID          string         `json:"bot_id"`  // Bot的唯一标识符
	Symbol         string         `json:"symbol"`  // 交易对, e.g., "BNBUSDT"
	Version        int            `json:"version"` // 状态模型的版本号，用于未来迁移
	Grid           GridState      `json:"grid"`
	Profile        SessionProfile `json:"profile"`
	Ledger         LedgerState    `json:"ledger"`
	StressCooldown int            `json:"stress_cooldown"`
	BarsProcessed  int            `json:"bars_processed"`
	LastBarTime    time.Time      `json:"last_bar_time"`
	LastStatus     *StatusEvent   `json:"last_status,omitempty"`
	LastUpdateTime time.Time      `json:"last_update_time"` // 状态最后更新的时间戳
}
