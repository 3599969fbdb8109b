package grid

import (
	"testing"

	"hybrid-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSpacingInvariant(t *testing.T, st models.GridState, n int) {
	t.Helper()
	require.Len(t, st.Levels, 2*n)
	seen := make(map[string]bool)
	for _, l := range st.Levels {
		step := st.Spacing.Mul(decimal.NewFromInt(int64(l.Index)))
		want := st.BasePrice.Add(step)
		if l.Side == models.Buy {
			want = st.BasePrice.Sub(step)
		}
		assert.True(t, l.Price.Equal(want), "%s %d: %s != %s", l.Side, l.Index, l.Price, want)
		key := l.Price.String()
		assert.False(t, seen[key], "duplicate level price %s", key)
		seen[key] = true
	}
}

func TestBuildLevelsSpacingInvariant(t *testing.T) {
	for n := 3; n <= models.MaxLevelsPerSide; n++ {
		for _, s := range []float64{0.01, 0.5, 1, 2.75} {
			base := decimal.NewFromInt(250)
			spacing := decimal.NewFromFloat(s)
			st := models.GridState{BasePrice: base, Spacing: spacing, Levels: BuildLevels(base, spacing, n, false)}
			assertSpacingInvariant(t, st, n)
		}
	}
}

func TestBuildLevelsInactiveBelowZero(t *testing.T) {
	levels := BuildLevels(decimal.NewFromInt(10), decimal.NewFromInt(4), 3, false)
	assert.True(t, levels[0].Active)
	assert.True(t, levels[1].Active)
	assert.False(t, levels[2].Active, "10 - 4*3 is negative")
}

func TestLevelsCappedAtEightPerSide(t *testing.T) {
	cfg := fixedConfig(15)
	m := newTestManager(cfg)
	m.OnBar(input(0, 100, 100, 100))
	assert.Len(t, m.State().Levels, 2*models.MaxLevelsPerSide)
}

func TestSpacingModes(t *testing.T) {
	price := decimal.NewFromInt(200)
	valid := models.SessionProfile{Valid: true, VAH: 110, VAL: 100, POC: 105}

	cfg := models.DefaultStrategyConfig()
	cfg.GridMode = models.GridModeFixed
	assert.True(t, Spacing(cfg, price, 2, valid).Equal(decimal.NewFromInt(2)))

	cfg.GridMode = models.GridModeATR
	assert.True(t, Spacing(cfg, price, 2, valid).Equal(decimal.NewFromInt(3)))
	assert.True(t, Spacing(cfg, price, 0, valid).Equal(decimal.NewFromInt(2)), "no ATR falls back to fixed")

	cfg.GridMode = models.GridModeProfileAdaptive
	assert.True(t, Spacing(cfg, price, 2, valid).Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, Spacing(cfg, price, 3, valid).Equal(decimal.NewFromInt(3)))
	assert.True(t, Spacing(cfg, price, 2, models.SessionProfile{}).Equal(decimal.NewFromInt(3)))
}

func TestSpacingPct(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	cfg.GridMode = models.GridModeFixed
	cfg.BaseSpacingPct = 1
	assert.True(t, SpacingPct(cfg, decimal.NewFromFloat(1.2), decimal.NewFromInt(100)).Equal(decimal.NewFromInt(1)))

	cfg.GridMode = models.GridModeATR
	assert.True(t, SpacingPct(cfg, decimal.NewFromInt(2), decimal.NewFromInt(100)).Equal(decimal.NewFromInt(2)))
}

func TestAnchor(t *testing.T) {
	px := decimal.NewFromInt(100)
	assert.True(t, Anchor(models.SessionProfile{}, px).Equal(px))
	assert.True(t, Anchor(models.SessionProfile{Valid: true, POC: 0}, px).Equal(px))
	assert.True(t, Anchor(models.SessionProfile{Valid: true, POC: 98.75}, px).Equal(decimal.NewFromFloat(98.75)))
}
