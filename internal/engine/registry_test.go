package engine

import (
	"errors"
	"testing"

	"hybrid-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	assert.Equal(t, []string{GridProName}, r.Names())

	s, err := r.New(GridProName, "ETHUSDT", models.DefaultStrategyConfig())
	require.NoError(t, err)
	assert.Equal(t, GridProName, s.Name())

	_, err = r.New("martingale", "ETHUSDT", models.DefaultStrategyConfig())
	assert.True(t, errors.Is(err, ErrUnknownStrategy))

	assert.Error(t, RegisterBuiltins(r), "duplicate names are rejected")
	assert.Error(t, r.Register("", nil))
}

func TestRegistryInstancesAreIndependent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	a, err := r.New(GridProName, "BTCUSDT", testConfig())
	require.NoError(t, err)
	b, err := r.New(GridProName, "ETHUSDT", testConfig())
	require.NoError(t, err)

	bars := zigzagBars(55)
	_, err = a.Process(bars, flat())
	require.NoError(t, err)

	assert.True(t, a.Snapshot().Grid.Initialized)
	assert.False(t, b.Snapshot().Grid.Initialized)
}
