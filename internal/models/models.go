package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbol        string         `json:"symbol" yaml:"symbol"`                 // 交易对，如 "BTCUSDT"
	Interval      string         `json:"interval" yaml:"interval"`             // K线周期，如 "1m"
	Strategy      string         `json:"strategy" yaml:"strategy"`             // 注册表中的策略名称
	DBPath        string         `json:"db_path" yaml:"db_path"`               // 状态快照数据库路径，为空则只保存在内存中
	InitialEquity float64        `json:"initial_equity" yaml:"initial_equity"` // 模拟账户初始权益 (USDT)
	Leverage      float64        `json:"leverage" yaml:"leverage"`             // 模拟账户允许的最大名义杠杆
	HistoryWindow int            `json:"history_window" yaml:"history_window"` // 传给引擎的K线窗口长度
	MetricsAddr   string         `json:"metrics_addr" yaml:"metrics_addr"`     // Prometheus 监听地址，为空则不启动
	WSBaseURL     string         `json:"ws_base_url" yaml:"ws_base_url"`       // WebSocket基础地址
	Grid          StrategyConfig `json:"grid" yaml:"grid"`                     // 网格策略参数
	LogConfig     LogConfig      `json:"log" yaml:"log"`                       // 日志配置

	// 模拟成交特定配置
	TakerFeeRate     float64 `json:"taker_fee_rate" yaml:"taker_fee_rate"`         // 吃单手续费率
	SlippageRate     float64 `json:"slippage_rate" yaml:"slippage_rate"`           // 滑点率
	MinNotionalValue float64 `json:"min_notional_value" yaml:"min_notional_value"` // 交易所最小订单名义价值
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}

// Bar 是一根OHLCV K线
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Position 是执行方报告的一笔未平仓头寸
type Position struct {
	Tag        string    `json:"tag"`         // 开仓网格标签，如 "GridBuy_1"
	Side       Side      `json:"side"`        // Buy 为多头，Sell 为空头
	Quantity   float64   `json:"quantity"`    // 基础货币数量，始终为正
	EntryPrice float64   `json:"entry_price"` // 平均开仓价
	OpenedAt   time.Time `json:"opened_at"`
}

// AccountSnapshot 是调用方在每根K线前提供的账户状态
type AccountSnapshot struct {
	Equity    float64    `json:"equity"`
	Positions []Position `json:"positions"`
}

// OpenIntent 是网格档位被触发后发给执行方的开仓意图
type OpenIntent struct {
	Tag           string          `json:"tag"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	LevelIndex    int             `json:"level_index"`
	CycleID       string          `json:"cycle_id"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"` // 计价货币名义金额
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit    decimal.Decimal `json:"take_profit"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CloseReason 平仓原因
type CloseReason string

const (
	ReasonRebalance  CloseReason = "rebalance"
	ReasonStopLoss   CloseReason = "stop_loss"
	ReasonTakeProfit CloseReason = "take_profit"
	ReasonRiskLimit  CloseReason = "risk_limit"
)

// ScopeAll 表示平掉全部头寸
const ScopeAll = "all"

// CloseAllIntent 平仓意图，Scope 为 ScopeAll 或某个头寸标签
type CloseAllIntent struct {
	Tag       string      `json:"tag"`
	Symbol    string      `json:"symbol"`
	Scope     string      `json:"scope"`
	Reason    CloseReason `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

// StatusKind 状态事件类型
type StatusKind string

const (
	StatusPeriodic        StatusKind = "periodic"
	StatusGridInitialized StatusKind = "grid_initialized"
	StatusRebalanced      StatusKind = "rebalanced"
	StatusDiagnostic      StatusKind = "diagnostic"
)

// StatusEvent 供外部日志/监控消费，引擎自身不解读
type StatusEvent struct {
	Kind             StatusKind `json:"kind"`
	Symbol           string     `json:"symbol"`
	Time             time.Time  `json:"time"`
	Price            float64    `json:"price"`
	BasePrice        float64    `json:"base_price"`
	TradeCount       int        `json:"trade_count"`
	TrendDirection   int        `json:"trend_direction"`
	PortfolioRiskPct float64    `json:"portfolio_risk_pct"`
	ActiveTrades     int        `json:"active_trades"`
	WinRatePct       float64    `json:"win_rate_pct"`
	ProfileValid     bool       `json:"profile_valid"`
	POC              float64    `json:"poc,omitempty"`
	VARangePct       float64    `json:"va_range_pct,omitempty"`
	Reasons          []string   `json:"reasons,omitempty"`
	Message          string     `json:"message,omitempty"`
}

// TradeRecord 记录一笔已平仓交易
type TradeRecord struct {
	Tag          string        `json:"tag"`
	Side         Side          `json:"side"`
	Quantity     float64       `json:"quantity"`
	EntryPrice   float64       `json:"entry_price"`
	ExitPrice    float64       `json:"exit_price"`
	EntryTime    time.Time     `json:"entry_time"`
	ExitTime     time.Time     `json:"exit_time"`
	HoldDuration time.Duration `json:"hold_duration"`
	Profit       float64       `json:"profit"` // 已扣除手续费
	Fee          float64       `json:"fee"`
	Reason       CloseReason   `json:"reason"`
}
