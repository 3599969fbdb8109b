package exchange

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

// ReasonLiquidation 标记因权益归零而被强制平掉的仓位
const ReasonLiquidation models.CloseReason = "liquidation"

const dust = 1e-9

type paperPosition struct {
	models.Position
	entryFee float64
}

// PaperExchange 以意图价格加滑点立即成交，模拟一个按标签记账的多空账户。
// 回放和实时模拟都使用它。
type PaperExchange struct {
	Symbol         string
	InitialBalance float64
	Cash           float64 // 初始资金 + 已实现盈亏 - 手续费
	CurrentPrice   float64
	CurrentTime    time.Time
	TradeLog       []models.TradeRecord
	EquityCurve    []float64

	TakerFeeRate      float64
	SlippageRate      float64
	MinNotionalValue  float64
	Leverage          float64
	TotalFees         float64
	MaxWalletExposure float64

	positions    map[string]*paperPosition
	dailyEquity  map[string]float64
	rejected     int
	isLiquidated bool
	mu           sync.Mutex
	logger       *zap.Logger
}

// NewPaperExchange 使用配置中的初始权益和费率创建模拟账户
func NewPaperExchange(cfg *models.Config, logger *zap.Logger) *PaperExchange {
	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	return &PaperExchange{
		Symbol:           cfg.Symbol,
		InitialBalance:   cfg.InitialEquity,
		Cash:             cfg.InitialEquity,
		TradeLog:         make([]models.TradeRecord, 0),
		EquityCurve:      make([]float64, 0, 10000),
		TakerFeeRate:     cfg.TakerFeeRate,
		SlippageRate:     cfg.SlippageRate,
		MinNotionalValue: cfg.MinNotionalValue,
		Leverage:         leverage,
		positions:        make(map[string]*paperPosition),
		dailyEquity:      make(map[string]float64),
		logger:           logger,
	}
}

// SetPrice 更新标记价格、记录权益曲线，权益耗尽时强制平仓
func (e *PaperExchange) SetPrice(bar models.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.CurrentTime = bar.Timestamp
	e.CurrentPrice = bar.Close
	if e.isLiquidated {
		return
	}

	if len(e.positions) > 0 && e.equity() <= 0 {
		e.handleLiquidation()
	}
	e.updateEquity()
}

func (e *PaperExchange) PlaceOpen(intent models.OpenIntent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isLiquidated {
		return ErrLiquidated
	}
	if intent.Symbol != "" && intent.Symbol != e.Symbol {
		e.rejected++
		return fmt.Errorf("%w: %s", ErrSymbolMismatch, intent.Symbol)
	}

	notional := intent.Size.InexactFloat64()
	if notional < e.MinNotionalValue || notional <= 0 {
		e.rejected++
		return fmt.Errorf("%w: %.4f < %.4f", ErrMinNotional, notional, e.MinNotionalValue)
	}

	limit := intent.Price.InexactFloat64()
	execPrice := e.slipped(limit, intent.Side)
	if execPrice <= 0 {
		e.rejected++
		return fmt.Errorf("invalid fill price %.8f for %s", execPrice, intent.Tag)
	}

	equity := e.equity()
	if e.grossExposure()+notional > equity*e.Leverage {
		e.rejected++
		return fmt.Errorf("%w: exposure %.2f + %.2f exceeds %.2f", ErrInsufficientMargin, e.grossExposure(), notional, equity*e.Leverage)
	}

	qty := notional / execPrice
	fee := notional * e.TakerFeeRate
	e.Cash -= fee
	e.TotalFees += fee

	if pos, ok := e.positions[intent.Tag]; ok && pos.Side == intent.Side {
		total := pos.Quantity + qty
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + execPrice*qty) / total
		pos.Quantity = total
		pos.entryFee += fee
	} else {
		if ok {
			// 同标签反向仓位先平掉
			e.closePosition(pos, models.ReasonRebalance)
		}
		e.positions[intent.Tag] = &paperPosition{
			Position: models.Position{
				Tag:        intent.Tag,
				Side:       intent.Side,
				Quantity:   qty,
				EntryPrice: execPrice,
				OpenedAt:   e.CurrentTime,
			},
			entryFee: fee,
		}
	}

	if eq := e.equity(); eq > 0 {
		if exposure := e.grossExposure() / eq; exposure > e.MaxWalletExposure {
			e.MaxWalletExposure = exposure
		}
	}

	e.logger.Debug("paper fill",
		zap.String("tag", intent.Tag),
		zap.String("client_order_id", intent.ClientOrderID),
		zap.String("side", string(intent.Side)),
		zap.Float64("price", execPrice),
		zap.Float64("qty", qty),
		zap.Float64("fee", fee),
		zap.Float64("cash", e.Cash),
	)
	return nil
}

// CloseAll 平掉 scope 指定的仓位，scope 为 "all" 时平掉全部
func (e *PaperExchange) CloseAll(intent models.CloseAllIntent) ([]models.TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if intent.Symbol != "" && intent.Symbol != e.Symbol {
		return nil, fmt.Errorf("%w: %s", ErrSymbolMismatch, intent.Symbol)
	}

	var trades []models.TradeRecord
	for _, tag := range e.sortedTags() {
		if intent.Scope != models.ScopeAll && intent.Scope != tag {
			continue
		}
		trades = append(trades, e.closePosition(e.positions[tag], intent.Reason))
	}
	return trades, nil
}

func (e *PaperExchange) AccountSnapshot() models.AccountSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := models.AccountSnapshot{Equity: e.equity()}
	for _, tag := range e.sortedTags() {
		snap.Positions = append(snap.Positions, e.positions[tag].Position)
	}
	return snap
}

// closePosition 以当前价格平仓并记录交易。必须在持有锁的情况下调用。
func (e *PaperExchange) closePosition(pos *paperPosition, reason models.CloseReason) models.TradeRecord {
	exitSide := models.Sell
	if pos.Side == models.Sell {
		exitSide = models.Buy
	}
	execPrice := e.slipped(e.CurrentPrice, exitSide)

	gross := (execPrice - pos.EntryPrice) * pos.Quantity
	if pos.Side == models.Sell {
		gross = -gross
	}
	exitFee := execPrice * pos.Quantity * e.TakerFeeRate
	e.Cash += gross - exitFee
	e.TotalFees += exitFee

	trade := models.TradeRecord{
		Tag:          pos.Tag,
		Side:         pos.Side,
		Quantity:     pos.Quantity,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    execPrice,
		EntryTime:    pos.OpenedAt,
		ExitTime:     e.CurrentTime,
		HoldDuration: e.CurrentTime.Sub(pos.OpenedAt),
		Fee:          pos.entryFee + exitFee,
		Profit:       gross - pos.entryFee - exitFee,
		Reason:       reason,
	}
	e.TradeLog = append(e.TradeLog, trade)
	delete(e.positions, pos.Tag)
	return trade
}

// handleLiquidation 权益耗尽时平掉全部仓位并停止交易。必须在持有锁的情况下调用。
func (e *PaperExchange) handleLiquidation() {
	e.isLiquidated = true
	for _, tag := range e.sortedTags() {
		e.closePosition(e.positions[tag], ReasonLiquidation)
	}
	e.logger.Warn("paper account liquidated",
		zap.Time("time", e.CurrentTime),
		zap.Float64("price", e.CurrentPrice),
		zap.Float64("cash", e.Cash),
	)
}

// slipped 对成交价施加不利方向的滑点
func (e *PaperExchange) slipped(price float64, side models.Side) float64 {
	if side == models.Buy {
		return price * (1 + e.SlippageRate)
	}
	return price * (1 - e.SlippageRate)
}

func (e *PaperExchange) equity() float64 {
	equity := e.Cash
	for _, p := range e.positions {
		pnl := (e.CurrentPrice - p.EntryPrice) * p.Quantity
		if p.Side == models.Sell {
			pnl = -pnl
		}
		equity += pnl
	}
	return equity
}

func (e *PaperExchange) grossExposure() float64 {
	var total float64
	for _, p := range e.positions {
		mark := e.CurrentPrice
		if mark <= 0 {
			mark = p.EntryPrice
		}
		total += math.Abs(p.Quantity * mark)
	}
	return total
}

func (e *PaperExchange) sortedTags() []string {
	tags := make([]string, 0, len(e.positions))
	for tag, p := range e.positions {
		if p.Quantity > dust {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// updateEquity 计算并记录当前权益。必须在持有锁的情况下调用。
func (e *PaperExchange) updateEquity() {
	equity := e.equity()
	e.EquityCurve = append(e.EquityCurve, equity)
	e.dailyEquity[e.CurrentTime.UTC().Format("2006-01-02")] = equity
}

// IsLiquidated 返回账户是否已经历强平
func (e *PaperExchange) IsLiquidated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLiquidated
}

// RejectedCount 返回被拒绝的开仓意图数量
func (e *PaperExchange) RejectedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rejected
}

// GetDailyEquity 返回每日权益的只读副本
func (e *PaperExchange) GetDailyEquity() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	cpy := make(map[string]float64, len(e.dailyEquity))
	for k, v := range e.dailyEquity {
		cpy[k] = v
	}
	return cpy
}

// GetMaxWalletExposure 返回运行期间记录的最大钱包风险暴露
func (e *PaperExchange) GetMaxWalletExposure() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MaxWalletExposure
}

// Trades 返回交易记录的副本
func (e *PaperExchange) Trades() []models.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.TradeRecord(nil), e.TradeLog...)
}

// Equity 返回权益曲线的副本
func (e *PaperExchange) Equity() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.EquityCurve...)
}
