package reporter

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"hybrid-grid-bot-go/internal/exchange"
	"hybrid-grid-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Metrics 存储计算出的所有运行绩效指标
type Metrics struct {
	InitialBalance   float64
	FinalBalance     float64
	TotalProfit      float64
	ProfitPercentage float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	AvgProfitLoss    float64 // 平均盈利 / 平均亏损
	MaxDrawdown      float64 // 百分比
	TotalFees        float64
	AvgHold          time.Duration
	ByReason         map[models.CloseReason]ReasonStats
}

// ReasonStats 按平仓原因汇总
type ReasonStats struct {
	Trades int
	Profit float64
}

// RunInfo 描述一次运行的上下文
type RunInfo struct {
	Symbol     string
	Source     string
	Start      time.Time
	End        time.Time
	Bars       int
	Rebalances int
	Rejected   int
}

// Calculate 根据交易记录和权益曲线计算绩效指标
func Calculate(initial, final float64, trades []models.TradeRecord, equityCurve []float64) *Metrics {
	m := &Metrics{
		InitialBalance: initial,
		FinalBalance:   final,
		TotalTrades:    len(trades),
		ByReason:       make(map[models.CloseReason]ReasonStats),
	}

	var totalProfit, totalLoss float64
	var hold time.Duration
	for _, trade := range trades {
		if trade.Profit > 0 {
			m.WinningTrades++
			totalProfit += trade.Profit
		} else {
			m.LosingTrades++
			totalLoss += trade.Profit
		}
		m.TotalFees += trade.Fee
		hold += trade.HoldDuration

		rs := m.ByReason[trade.Reason]
		rs.Trades++
		rs.Profit += trade.Profit
		m.ByReason[trade.Reason] = rs
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.AvgHold = hold / time.Duration(m.TotalTrades)
	}
	if m.LosingTrades > 0 && m.WinningTrades > 0 && totalLoss != 0 {
		avgWin := totalProfit / float64(m.WinningTrades)
		avgLoss := math.Abs(totalLoss / float64(m.LosingTrades))
		m.AvgProfitLoss = avgWin / avgLoss
	}

	m.TotalProfit = m.FinalBalance - m.InitialBalance
	if m.InitialBalance != 0 {
		m.ProfitPercentage = m.TotalProfit / m.InitialBalance * 100
	}
	m.MaxDrawdown = calculateMaxDrawdown(equityCurve) * 100
	return m
}

// GenerateReport 根据模拟账户的状态计算并输出绩效报告
func GenerateReport(w io.Writer, ex *exchange.PaperExchange, info RunInfo) *Metrics {
	m := Calculate(ex.InitialBalance, ex.AccountSnapshot().Equity, ex.Trades(), ex.Equity())
	Render(w, m, info, ex.GetMaxWalletExposure())
	return m
}

// Render 以表格形式输出报告
func Render(w io.Writer, m *Metrics, info RunInfo, maxExposure float64) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.SetTitle("运行结果报告 " + info.Symbol)
	summary.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	summary.AppendRows([]table.Row{
		{"数据来源", info.Source},
		{"运行周期", fmt.Sprintf("%s 到 %s", info.Start.UTC().Format("2006-01-02 15:04"), info.End.UTC().Format("2006-01-02 15:04"))},
		{"K线数量", info.Bars},
	})
	summary.AppendSeparator()
	summary.AppendRows([]table.Row{
		{"初始资金", fmt.Sprintf("%.2f", m.InitialBalance)},
		{"最终权益", fmt.Sprintf("%.2f", m.FinalBalance)},
		{"总利润", fmt.Sprintf("%.2f", m.TotalProfit)},
		{"收益率", fmt.Sprintf("%.2f%%", m.ProfitPercentage)},
		{"最大回撤", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
		{"最大钱包风险暴露", fmt.Sprintf("%.2f%%", maxExposure*100)},
		{"总手续费", fmt.Sprintf("%.4f", m.TotalFees)},
	})
	summary.AppendSeparator()
	summary.AppendRows([]table.Row{
		{"总交易次数", m.TotalTrades},
		{"盈利次数", m.WinningTrades},
		{"亏损次数", m.LosingTrades},
		{"胜率", fmt.Sprintf("%.2f%%", m.WinRate)},
		{"平均盈亏比", fmt.Sprintf("%.2f", m.AvgProfitLoss)},
		{"平均持仓时间", m.AvgHold.Round(time.Second).String()},
		{"网格重置次数", info.Rebalances},
		{"被拒绝的开仓", info.Rejected},
	})
	summary.Render()

	if len(m.ByReason) == 0 {
		return
	}
	reasons := make([]string, 0, len(m.ByReason))
	for r := range m.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	byReason := table.NewWriter()
	byReason.SetOutputMirror(w)
	byReason.SetStyle(table.StyleLight)
	byReason.AppendHeader(table.Row{"平仓原因", "次数", "利润"})
	for _, r := range reasons {
		rs := m.ByReason[models.CloseReason(r)]
		byReason.AppendRow(table.Row{r, rs.Trades, fmt.Sprintf("%.4f", rs.Profit)})
	}
	byReason.Render()
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0.0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}
