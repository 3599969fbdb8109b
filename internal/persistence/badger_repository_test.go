package persistence

import (
	"testing"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(symbol string) *models.BotState {
	return &models.BotState{
		BotID:   "grid_pro:" + symbol,
		Symbol:  symbol,
		Version: 1,
		Grid: models.GridState{
			BasePrice:   decimal.RequireFromString("100.5"),
			Spacing:     decimal.RequireFromString("0.75"),
			Initialized: true,
			TradeCount:  3,
			CycleID:     "c-1",
			Levels: []models.GridLevel{
				{Index: 1, Side: models.Buy, Price: decimal.RequireFromString("99.75"), Active: true, Executed: true, ClientOrderID: "gp1b1"},
			},
		},
		Ledger:        models.LedgerState{TotalTrades: 2, WinningTrades: 1, TotalPnL: 4.5},
		BarsProcessed: 120,
		LastBarTime:   time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC),
	}
}

func TestBadgerRepositoryRoundTrip(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	missing, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SaveState(sampleState("BTCUSDT")))
	require.NoError(t, repo.SaveState(sampleState("ETHUSDT")))

	got, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "grid_pro:BTCUSDT", got.BotID)
	assert.True(t, got.Grid.BasePrice.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, "gp1b1", got.Grid.Levels[0].ClientOrderID)
	assert.Equal(t, 120, got.BarsProcessed)
	assert.True(t, got.LastBarTime.Equal(time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)))

	require.NoError(t, repo.DeleteState("BTCUSDT"))
	got, err = repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, got)

	other, err := repo.LoadState("ETHUSDT")
	require.NoError(t, err)
	assert.NotNil(t, other, "symbols are stored under separate keys")
}

func TestInMemoryRepository(t *testing.T) {
	repo, err := NewBadgerRepository("")
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveState(sampleState("BTCUSDT")))
	got, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Grid.TradeCount)

	assert.Error(t, repo.SaveState(&models.BotState{}))
}
