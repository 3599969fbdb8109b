// Package intent translates grid decisions into order intents for the
// execution side. It keeps no state.
package intent

import (
	"fmt"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/jxskiss/base62"
	"github.com/shopspring/decimal"
)

const clientOrderPrefix = "gp"

type Emitter struct {
	symbol        string
	stopLossATR   decimal.Decimal
	takeProfitATR decimal.Decimal
}

func NewEmitter(symbol string, stopLossATR, takeProfitATR float64) *Emitter {
	return &Emitter{
		symbol:        symbol,
		stopLossATR:   decimal.NewFromFloat(stopLossATR),
		takeProfitATR: decimal.NewFromFloat(takeProfitATR),
	}
}

// Open builds the entry intent for a fired level. Buys stop below and take
// profit above the level; sells the reverse.
func (e *Emitter) Open(level models.GridLevel, cycleID string, size decimal.Decimal, atr float64, at time.Time) models.OpenIntent {
	atrDec := decimal.NewFromFloat(atr)
	stopDist := atrDec.Mul(e.stopLossATR)
	profitDist := atrDec.Mul(e.takeProfitATR)

	oi := models.OpenIntent{
		Tag:           LevelTag(level.Side, level.Index),
		ClientOrderID: ClientOrderID(at, level.Side, level.Index),
		Symbol:        e.symbol,
		Side:          level.Side,
		LevelIndex:    level.Index,
		CycleID:       cycleID,
		Price:         level.Price,
		Size:          size,
		CreatedAt:     at,
	}
	if level.Side == models.Buy {
		oi.StopLoss = level.Price.Sub(stopDist)
		oi.TakeProfit = level.Price.Add(profitDist)
	} else {
		oi.StopLoss = level.Price.Add(stopDist)
		oi.TakeProfit = level.Price.Sub(profitDist)
	}
	return oi
}

// CloseAll builds a close intent for scope, which is models.ScopeAll or a
// position tag.
func (e *Emitter) CloseAll(reason models.CloseReason, scope string, at time.Time) models.CloseAllIntent {
	return models.CloseAllIntent{
		Tag:       string(reason) + "_" + scope,
		Symbol:    e.symbol,
		Scope:     scope,
		Reason:    reason,
		CreatedAt: at,
	}
}

// LevelTag names the position a level opens, e.g. GridBuy_3.
func LevelTag(side models.Side, index int) string {
	if side == models.Buy {
		return fmt.Sprintf("GridBuy_%d", index)
	}
	return fmt.Sprintf("GridSell_%d", index)
}

// ClientOrderID is deterministic for a level firing on a given bar.
func ClientOrderID(at time.Time, side models.Side, index int) string {
	s := "s"
	if side == models.Buy {
		s = "b"
	}
	return clientOrderPrefix + string(base62.FormatInt(at.UnixMilli())) + s + string(base62.FormatInt(int64(index)))
}
