// Package indicators computes the per-bar technical inputs of the grid
// engine from a window of closed bars. Everything here is a pure function
// of the window.
package indicators

import (
	"errors"
	"math"

	"hybrid-grid-bot-go/internal/models"
)

const (
	RSIPeriod        = 14
	BandPeriod       = 20
	BandStdDevs      = 2.0
	ATRAverageWindow = 20
	// TrendDirectionPct is the distance from the trend EMA that counts as a trend.
	TrendDirectionPct = 1.5
)

var (
	// ErrInsufficientData means the window is shorter than the required lookback.
	ErrInsufficientData = errors.New("insufficient bar history")
	// ErrNotANumber means at least one output was NaN or infinite.
	ErrNotANumber = errors.New("indicator produced a non-finite value")
)

// Params selects the lookbacks.
type Params struct {
	ATRPeriod   int
	TrendPeriod int
	Warmup      int
}

// ParamsFromConfig extracts the indicator lookbacks from a strategy config.
func ParamsFromConfig(cfg models.StrategyConfig) Params {
	return Params{ATRPeriod: cfg.ATRPeriod, TrendPeriod: cfg.TrendPeriod, Warmup: cfg.WarmupBars}
}

// Snapshot holds the indicator values for the last bar of the window.
type Snapshot struct {
	Close            float64
	ATR              float64
	ATRAverage       float64 // mean of the last 20 ATR values
	VolatilityRatio  float64 // ATR / ATRAverage
	EMA              float64
	TrendStrengthPct float64 // (close-EMA)/EMA*100
	TrendDirection   int     // +1 up, -1 down, 0 flat
	RSI              float64
	BandMiddle       float64
	BandUpper        float64
	BandLower        float64
	BandWidth        float64 // (upper-lower)/middle
}

// RequiredBars returns the minimum window length Compute accepts.
func RequiredBars(p Params) int {
	need := p.ATRPeriod + ATRAverageWindow
	if p.TrendPeriod > need {
		need = p.TrendPeriod
	}
	if RSIPeriod+1 > need {
		need = RSIPeriod + 1
	}
	if BandPeriod > need {
		need = BandPeriod
	}
	if p.Warmup > need {
		need = p.Warmup
	}
	return need
}

// Compute derives the snapshot for the last bar in history.
func Compute(history []models.Bar, p Params) (Snapshot, error) {
	if p.ATRPeriod <= 0 || p.TrendPeriod <= 0 || len(history) < RequiredBars(p) {
		return Snapshot{}, ErrInsufficientData
	}

	closes := make([]float64, len(history))
	for i, b := range history {
		closes[i] = b.Close
	}

	atrSeries := WilderATR(history, p.ATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	atrAvg := mean(atrSeries[len(atrSeries)-ATRAverageWindow:])

	ema := EMA(closes, p.TrendPeriod)
	middle, upper, lower := Band(closes, BandPeriod, BandStdDevs)

	s := Snapshot{
		Close:           closes[len(closes)-1],
		ATR:             atr,
		ATRAverage:      atrAvg,
		VolatilityRatio: atr / atrAvg,
		EMA:             ema,
		RSI:             RSI(closes, RSIPeriod),
		BandMiddle:      middle,
		BandUpper:       upper,
		BandLower:       lower,
		BandWidth:       (upper - lower) / middle,
	}
	s.TrendStrengthPct = (s.Close - ema) / ema * 100
	switch {
	case s.TrendStrengthPct > TrendDirectionPct:
		s.TrendDirection = 1
	case s.TrendStrengthPct < -TrendDirectionPct:
		s.TrendDirection = -1
	}

	for _, v := range []float64{s.ATR, s.ATRAverage, s.VolatilityRatio, s.EMA, s.TrendStrengthPct, s.RSI, s.BandWidth} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return s, ErrNotANumber
		}
	}
	return s, nil
}

// TrueRange of bar i; the first bar has no previous close.
func TrueRange(history []models.Bar, i int) float64 {
	b := history[i]
	if i == 0 {
		return b.High - b.Low
	}
	prev := history[i-1].Close
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
}

// WilderATR returns the ATR series starting at bar index period.
// The seed is the simple mean of the first period true ranges.
func WilderATR(history []models.Bar, period int) []float64 {
	if len(history) <= period {
		return nil
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += TrueRange(history, i)
	}
	out := make([]float64, 0, len(history)-period)
	atr := sum / float64(period)
	out = append(out, atr)
	for i := period + 1; i < len(history); i++ {
		atr = (atr*float64(period-1) + TrueRange(history, i)) / float64(period)
		out = append(out, atr)
	}
	return out
}

// EMA with alpha = 2/(period+1), seeded with the SMA of the first period values.
func EMA(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return math.NaN()
	}
	ema := mean(values[:period])
	alpha := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// RSI using Wilder-smoothed average gain and loss.
func RSI(values []float64, period int) float64 {
	if len(values) <= period {
		return math.NaN()
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Band returns the SMA and the SMA +/- k population standard deviations
// over the last period values.
func Band(values []float64, period int, k float64) (middle, upper, lower float64) {
	if len(values) < period || period <= 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	window := values[len(values)-period:]
	middle = mean(window)
	var ss float64
	for _, v := range window {
		ss += (v - middle) * (v - middle)
	}
	sd := math.Sqrt(ss / float64(period))
	return middle, middle + k*sd, middle - k*sd
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
