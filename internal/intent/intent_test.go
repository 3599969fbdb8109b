package intent

import (
	"strings"
	"testing"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var at = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func TestOpenBuyStopsBelow(t *testing.T) {
	e := NewEmitter("BTCUSDT", 2, 3)
	lvl := models.GridLevel{Index: 1, Side: models.Buy, Price: decimal.NewFromInt(99), Active: true}

	oi := e.Open(lvl, "cycle-1", decimal.NewFromInt(62), 0.5, at)
	assert.Equal(t, "GridBuy_1", oi.Tag)
	assert.Equal(t, "BTCUSDT", oi.Symbol)
	assert.Equal(t, models.Buy, oi.Side)
	assert.Equal(t, "cycle-1", oi.CycleID)
	assert.True(t, oi.Price.Equal(decimal.NewFromInt(99)))
	assert.True(t, oi.StopLoss.Equal(decimal.NewFromInt(98)), oi.StopLoss.String())
	assert.True(t, oi.TakeProfit.Equal(decimal.NewFromFloat(100.5)), oi.TakeProfit.String())
	assert.True(t, oi.Size.Equal(decimal.NewFromInt(62)))
}

func TestOpenSellStopsAbove(t *testing.T) {
	e := NewEmitter("BTCUSDT", 2, 3)
	lvl := models.GridLevel{Index: 2, Side: models.Sell, Price: decimal.NewFromInt(102), Active: true}

	oi := e.Open(lvl, "cycle-1", decimal.NewFromInt(62), 1, at)
	assert.Equal(t, "GridSell_2", oi.Tag)
	assert.True(t, oi.StopLoss.Equal(decimal.NewFromInt(104)))
	assert.True(t, oi.TakeProfit.Equal(decimal.NewFromInt(99)))
}

func TestCloseAll(t *testing.T) {
	e := NewEmitter("ETHUSDT", 2, 3)
	ci := e.CloseAll(models.ReasonRebalance, models.ScopeAll, at)
	assert.Equal(t, "rebalance_all", ci.Tag)
	assert.Equal(t, models.ScopeAll, ci.Scope)

	ci = e.CloseAll(models.ReasonStopLoss, "GridBuy_1", at)
	assert.Equal(t, "stop_loss_GridBuy_1", ci.Tag)
	assert.Equal(t, "GridBuy_1", ci.Scope)
}

func TestClientOrderIDIsDeterministicAndDistinct(t *testing.T) {
	a := ClientOrderID(at, models.Buy, 1)
	assert.Equal(t, a, ClientOrderID(at, models.Buy, 1))
	assert.NotEqual(t, a, ClientOrderID(at, models.Sell, 1))
	assert.NotEqual(t, a, ClientOrderID(at, models.Buy, 2))
	assert.NotEqual(t, a, ClientOrderID(at.Add(time.Minute), models.Buy, 1))
	assert.True(t, strings.HasPrefix(a, clientOrderPrefix))
	assert.LessOrEqual(t, len(a), 36)
}
