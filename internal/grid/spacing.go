package grid

import (
	"hybrid-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred          = decimal.NewFromInt(100)
	four             = decimal.NewFromInt(4)
	rebalanceFactor  = decimal.NewFromFloat(1.5)
	pocDeviationPct  = decimal.NewFromInt(3)
	spacingPrecision = int32(8)
)

// Spacing returns the distance between adjacent levels for the configured
// mode. A mode that yields no positive distance falls back to fixed spacing.
func Spacing(cfg models.StrategyConfig, price decimal.Decimal, atr float64, prof models.SessionProfile) decimal.Decimal {
	fixed := price.Mul(decimal.NewFromFloat(cfg.BaseSpacingPct)).Div(hundred)
	atrDec := decimal.NewFromFloat(atr)
	atrSpacing := atrDec.Mul(decimal.NewFromFloat(cfg.ATRMultiplier))

	var s decimal.Decimal
	switch cfg.GridMode {
	case models.GridModeFixed:
		s = fixed
	case models.GridModeProfileAdaptive:
		if prof.Valid {
			s = decimal.Max(atrDec, decimal.NewFromFloat(prof.VAH-prof.VAL).Div(four))
		} else {
			s = atrSpacing
		}
	default:
		s = atrSpacing
	}
	if !s.IsPositive() {
		s = fixed
	}
	return s.Round(spacingPrecision)
}

// SpacingPct expresses spacing relative to base. Fixed mode reports the
// configured percentage.
func SpacingPct(cfg models.StrategyConfig, spacing, base decimal.Decimal) decimal.Decimal {
	if cfg.GridMode == models.GridModeFixed {
		return decimal.NewFromFloat(cfg.BaseSpacingPct)
	}
	if !base.IsPositive() {
		return decimal.Zero
	}
	return spacing.Div(base).Mul(hundred)
}

// Anchor picks the base price: the profile POC when available, else close.
func Anchor(prof models.SessionProfile, close decimal.Decimal) decimal.Decimal {
	if prof.Valid && prof.POC > 0 {
		return decimal.NewFromFloat(prof.POC)
	}
	return close
}

// BuildLevels lays out n buy and n sell levels at base -/+ spacing*i.
// Buy levels that would not be positive stay inactive, as do all sell
// levels when spotOnly is set.
func BuildLevels(base, spacing decimal.Decimal, n int, spotOnly bool) []models.GridLevel {
	levels := make([]models.GridLevel, 0, 2*n)
	for i := 1; i <= n; i++ {
		px := base.Sub(spacing.Mul(decimal.NewFromInt(int64(i))))
		levels = append(levels, models.GridLevel{Index: i, Side: models.Buy, Price: px, Active: px.IsPositive()})
	}
	for i := 1; i <= n; i++ {
		px := base.Add(spacing.Mul(decimal.NewFromInt(int64(i))))
		levels = append(levels, models.GridLevel{Index: i, Side: models.Sell, Price: px, Active: !spotOnly})
	}
	return levels
}
