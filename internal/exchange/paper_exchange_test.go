package exchange

import (
	"errors"
	"testing"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newTestExchange(leverage float64) *PaperExchange {
	return NewPaperExchange(&models.Config{
		Symbol:           "BTCUSDT",
		InitialEquity:    10000,
		Leverage:         leverage,
		TakerFeeRate:     0.001,
		MinNotionalValue: 5,
	}, zap.NewNop())
}

func mark(e *PaperExchange, minute int, price float64) {
	e.SetPrice(models.Bar{Timestamp: t0.Add(time.Duration(minute) * time.Minute), Open: price, High: price, Low: price, Close: price})
}

func open(tag string, side models.Side, price, size float64) models.OpenIntent {
	return models.OpenIntent{
		Tag:    tag,
		Symbol: "BTCUSDT",
		Side:   side,
		Price:  decimal.NewFromFloat(price),
		Size:   decimal.NewFromFloat(size),
	}
}

func TestLongRoundTrip(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)
	require.NoError(t, e.PlaceOpen(open("GridBuy_1", models.Buy, 100, 1000)))

	snap := e.AccountSnapshot()
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 10, snap.Positions[0].Quantity, 1e-9)
	assert.InDelta(t, 9999, snap.Equity, 1e-9)

	mark(e, 30, 110)
	assert.InDelta(t, 10099, e.AccountSnapshot().Equity, 1e-9)

	trades, err := e.CloseAll(models.CloseAllIntent{Symbol: "BTCUSDT", Scope: "GridBuy_1", Reason: models.ReasonTakeProfit})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.InDelta(t, 97.9, tr.Profit, 1e-9)
	assert.InDelta(t, 2.1, tr.Fee, 1e-9)
	assert.Equal(t, 30*time.Minute, tr.HoldDuration)
	assert.Equal(t, models.ReasonTakeProfit, tr.Reason)
	assert.InDelta(t, 10097.9, e.AccountSnapshot().Equity, 1e-9)
	assert.Empty(t, e.AccountSnapshot().Positions)
	assert.Len(t, e.Trades(), 1)
}

func TestShortProfitsOnDecline(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)
	require.NoError(t, e.PlaceOpen(open("GridSell_1", models.Sell, 100, 1000)))
	mark(e, 1, 90)

	trades, err := e.CloseAll(models.CloseAllIntent{Scope: models.ScopeAll, Reason: models.ReasonRebalance})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 98.1, trades[0].Profit, 1e-9)
}

func TestOpenRejections(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)

	err := e.PlaceOpen(open("GridBuy_1", models.Buy, 100, 1))
	assert.True(t, errors.Is(err, ErrMinNotional))

	err = e.PlaceOpen(open("GridBuy_1", models.Buy, 100, 10001))
	assert.True(t, errors.Is(err, ErrInsufficientMargin))

	intent := open("GridBuy_1", models.Buy, 100, 100)
	intent.Symbol = "ETHUSDT"
	assert.True(t, errors.Is(e.PlaceOpen(intent), ErrSymbolMismatch))

	assert.Equal(t, 3, e.RejectedCount())
	assert.Empty(t, e.AccountSnapshot().Positions)
}

func TestCloseAllScopes(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)
	require.NoError(t, e.PlaceOpen(open("GridBuy_2", models.Buy, 98, 100)))
	require.NoError(t, e.PlaceOpen(open("GridBuy_1", models.Buy, 99, 100)))
	require.NoError(t, e.PlaceOpen(open("GridSell_1", models.Sell, 101, 100)))

	trades, err := e.CloseAll(models.CloseAllIntent{Scope: "GridBuy_9", Reason: models.ReasonStopLoss})
	require.NoError(t, err)
	assert.Empty(t, trades, "unknown tag closes nothing")

	trades, err = e.CloseAll(models.CloseAllIntent{Scope: models.ScopeAll, Reason: models.ReasonRebalance})
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "GridBuy_1", trades[0].Tag)
	assert.Equal(t, "GridBuy_2", trades[1].Tag)
	assert.Equal(t, "GridSell_1", trades[2].Tag)
}

func TestSameTagAveragesEntry(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)
	require.NoError(t, e.PlaceOpen(open("GridBuy_1", models.Buy, 100, 1000)))
	require.NoError(t, e.PlaceOpen(open("GridBuy_1", models.Buy, 50, 1000)))

	snap := e.AccountSnapshot()
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 30, snap.Positions[0].Quantity, 1e-9)
	assert.InDelta(t, 2000.0/30, snap.Positions[0].EntryPrice, 1e-9)
}

func TestLiquidation(t *testing.T) {
	e := newTestExchange(10)
	mark(e, 0, 100)
	require.NoError(t, e.PlaceOpen(open("GridBuy_1", models.Buy, 100, 50000)))
	mark(e, 1, 79)

	assert.True(t, e.IsLiquidated())
	assert.Empty(t, e.AccountSnapshot().Positions)
	require.Len(t, e.Trades(), 1)
	assert.Equal(t, ReasonLiquidation, e.Trades()[0].Reason)
	assert.True(t, errors.Is(e.PlaceOpen(open("GridBuy_2", models.Buy, 79, 100)), ErrLiquidated))
	assert.InDelta(t, 50000.0/9950, e.GetMaxWalletExposure(), 1e-9)
}

func TestEquityCurveAndDailyEquity(t *testing.T) {
	e := newTestExchange(1)
	mark(e, 0, 100)
	mark(e, 60*24, 101)

	assert.Equal(t, []float64{10000, 10000}, e.Equity())
	daily := e.GetDailyEquity()
	assert.Len(t, daily, 2)
	assert.Equal(t, 10000.0, daily["2025-06-03"])
}
