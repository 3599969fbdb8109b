package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hybrid-grid-bot-go/internal/engine"
	"hybrid-grid-bot-go/internal/exchange"
	"hybrid-grid-bot-go/internal/metrics"
	"hybrid-grid-bot-go/internal/models"
	"hybrid-grid-bot-go/internal/statemanager"

	"go.uber.org/zap"
)

// liquidatable 由能够报告强平状态的执行方实现
type liquidatable interface {
	IsLiquidated() bool
}

// Runner 把K线送入引擎，再把引擎的意图交给执行方，
// 并将拒单与平仓结果回报给引擎
type Runner struct {
	symbol   string
	window   int
	strategy engine.Strategy
	exchange exchange.Exchange
	state    *statemanager.StateManager
	logger   *zap.Logger

	history    []models.Bar
	resumeAt   time.Time
	bars       int
	rebalances int
	rejected   int
	halted     bool
}

// NewRunner 创建运行器，state 可以为 nil（不持久化）
func NewRunner(cfg *models.Config, strategy engine.Strategy, ex exchange.Exchange, state *statemanager.StateManager, logger *zap.Logger) *Runner {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 600
	}
	return &Runner{
		symbol:   cfg.Symbol,
		window:   window,
		strategy: strategy,
		exchange: ex,
		state:    state,
		logger:   logger,
		history:  make([]models.Bar, 0, window),
	}
}

// Seed 预先填入历史K线，使第一根实时K线即可通过预热
func (r *Runner) Seed(bars []models.Bar) {
	for _, b := range bars {
		r.push(b)
	}
	r.logger.Sugar().Infof("已预载 %d 根历史K线", len(r.history))
}

// Restore 恢复引擎快照。之后不晚于快照时间的K线只填充窗口，不再交给引擎
func (r *Runner) Restore(state *models.BotState) {
	if state == nil {
		return
	}
	r.strategy.Restore(state)
	r.resumeAt = state.LastBarTime
	r.logger.Sugar().Infof("已恢复快照，上次处理到 %s", state.LastBarTime.Format(time.RFC3339))
}

// ProcessBar 处理一根已收盘的K线：先平仓后开仓
func (r *Runner) ProcessBar(bar models.Bar) (*engine.Decision, error) {
	if r.halted {
		return nil, exchange.ErrLiquidated
	}
	if n := len(r.history); n > 0 && !bar.Timestamp.After(r.history[n-1].Timestamp) {
		r.logger.Sugar().Debugf("忽略重复或过期的K线 %s", bar.Timestamp.Format(time.RFC3339))
		return nil, nil
	}
	if !r.resumeAt.IsZero() && !bar.Timestamp.After(r.resumeAt) {
		r.push(bar)
		return nil, nil
	}

	r.exchange.SetPrice(bar)
	if l, ok := r.exchange.(liquidatable); ok && l.IsLiquidated() {
		r.halted = true
		r.logger.Warn("检测到爆仓，停止处理K线。")
		return nil, exchange.ErrLiquidated
	}

	evicted, slid := r.push(bar)
	r.bars++

	account := r.exchange.AccountSnapshot()
	d, err := r.strategy.Process(r.history, account)
	if err != nil {
		r.unpush(evicted, slid)
		return nil, fmt.Errorf("处理K线 %s 失败: %w", bar.Timestamp.Format(time.RFC3339), err)
	}
	metrics.ObserveDecision(r.symbol, d)

	if !d.Skipped {
		r.execute(d)
	} else if errors.Is(d.SkipReason, engine.ErrDuplicateBar) {
		r.unpush(evicted, slid)
	}

	for _, ev := range d.Events {
		r.logStatus(ev)
		if ev.Kind == models.StatusRebalanced {
			r.rebalances++
		}
		if r.state != nil {
			r.state.DispatchEvent(statemanager.NormalizedEvent{Type: statemanager.StatusEvent, Timestamp: bar.Timestamp, Data: ev})
		}
	}

	metrics.SetEquity(r.symbol, r.exchange.AccountSnapshot().Equity)
	if r.state != nil && !d.Skipped {
		r.state.DispatchEvent(statemanager.NormalizedEvent{Type: statemanager.SnapshotEvent, Timestamp: bar.Timestamp, Data: r.strategy.Snapshot()})
	}
	return d, nil
}

func (r *Runner) execute(d *engine.Decision) {
	for _, ci := range d.Closes {
		trades, err := r.exchange.CloseAll(ci)
		if err != nil {
			r.logger.Sugar().Errorf("平仓意图 %s 执行失败: %v", ci.Tag, err)
			continue
		}
		for _, t := range trades {
			r.strategy.RecordTrade(t)
			metrics.ObserveTrade(r.symbol, t)
			r.logger.Info("仓位已平",
				zap.String("tag", t.Tag),
				zap.String("reason", string(t.Reason)),
				zap.Float64("entry", t.EntryPrice),
				zap.Float64("exit", t.ExitPrice),
				zap.Float64("profit", t.Profit),
			)
		}
	}

	for _, oi := range d.Opens {
		if err := r.exchange.PlaceOpen(oi); err != nil {
			r.rejected++
			metrics.ObserveRejection(r.symbol)
			if !r.strategy.Reject(oi.ClientOrderID) {
				r.logger.Sugar().Warnf("拒单 %s 未找到对应网格档位", oi.ClientOrderID)
			}
			r.logger.Sugar().Warnf("开仓意图 %s 被拒绝: %v", oi.Tag, err)
			continue
		}
		r.logger.Info("开仓意图已成交",
			zap.String("tag", oi.Tag),
			zap.String("client_order_id", oi.ClientOrderID),
			zap.String("price", oi.Price.String()),
			zap.String("size", oi.Size.String()),
			zap.String("stop_loss", oi.StopLoss.String()),
			zap.String("take_profit", oi.TakeProfit.String()),
		)
	}
}

// RunBacktest 依次回放全部K线，爆仓时提前结束
func (r *Runner) RunBacktest(bars []models.Bar) error {
	r.logger.Sugar().Infof("开始回放 %d 根K线...", len(bars))
	for _, bar := range bars {
		if _, err := r.ProcessBar(bar); err != nil {
			if errors.Is(err, exchange.ErrLiquidated) {
				r.logger.Warn("检测到爆仓，提前终止回放。")
				return nil
			}
			return err
		}
	}
	r.logger.Info("回放结束。")
	return nil
}

// Run 处理实时K线直到ctx结束或通道关闭
func (r *Runner) Run(ctx context.Context, bars <-chan models.Bar) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			if _, err := r.ProcessBar(bar); err != nil {
				if errors.Is(err, exchange.ErrLiquidated) {
					return err
				}
				r.logger.Sugar().Errorf("%v", err)
			}
		}
	}
}

// Stats 返回处理过的K线数、网格重置次数和被拒绝的开仓数
func (r *Runner) Stats() (bars, rebalances, rejected int) {
	return r.bars, r.rebalances, r.rejected
}

// push 追加K线，窗口已满时返回被挤出的最旧K线
func (r *Runner) push(bar models.Bar) (evicted models.Bar, slid bool) {
	if len(r.history) >= r.window {
		// 滑动窗口，复用底层数组
		evicted, slid = r.history[0], true
		copy(r.history, r.history[1:])
		r.history = r.history[:len(r.history)-1]
	}
	r.history = append(r.history, bar)
	return evicted, slid
}

// unpush 撤销最近一次 push，窗口恢复原状
func (r *Runner) unpush(evicted models.Bar, slid bool) {
	r.history = r.history[:len(r.history)-1]
	if !slid {
		return
	}
	r.history = append(r.history, models.Bar{})
	copy(r.history[1:], r.history)
	r.history[0] = evicted
}

func (r *Runner) logStatus(ev models.StatusEvent) {
	fields := []interface{}{
		"symbol", ev.Symbol,
		"time", ev.Time.UTC().Format(time.RFC3339),
		"price", ev.Price,
		"base", ev.BasePrice,
		"trades", ev.TradeCount,
		"trend", ev.TrendDirection,
		"risk_pct", ev.PortfolioRiskPct,
		"active", ev.ActiveTrades,
		"win_rate", ev.WinRatePct,
	}
	if ev.ProfileValid {
		fields = append(fields, "poc", ev.POC, "va_range_pct", ev.VARangePct)
	}
	if len(ev.Reasons) > 0 {
		fields = append(fields, "blocked", ev.Reasons)
	}

	switch ev.Kind {
	case models.StatusDiagnostic:
		r.logger.Sugar().Warnw("指标异常，跳过K线: "+ev.Message, fields...)
	case models.StatusGridInitialized:
		r.logger.Sugar().Infow("网格已初始化", fields...)
	case models.StatusRebalanced:
		r.logger.Sugar().Infow("网格已重置", fields...)
	default:
		r.logger.Sugar().Infow("========== 机器人状态 ==========", fields...)
	}
}
