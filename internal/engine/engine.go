// Package engine composes indicators, market profile, risk gate and grid
// manager into the per-bar decision flow for one instrument.
package engine

import (
	"errors"
	"fmt"
	"time"

	"hybrid-grid-bot-go/internal/grid"
	"hybrid-grid-bot-go/internal/indicators"
	"hybrid-grid-bot-go/internal/intent"
	"hybrid-grid-bot-go/internal/models"
	"hybrid-grid-bot-go/internal/profile"
	"hybrid-grid-bot-go/internal/risk"
)

const stateVersion = 1

var (
	ErrEmptyHistory = errors.New("empty bar history")
	ErrOutOfOrder   = errors.New("bar is older than the last processed bar")
	// ErrDuplicateBar marks a bar whose timestamp was already processed.
	ErrDuplicateBar = errors.New("bar already processed")
)

// Decision is everything one bar produced. Closes should be executed
// before Opens.
type Decision struct {
	Bar        models.Bar
	Skipped    bool
	SkipReason error
	Indicators indicators.Snapshot
	Profile    models.SessionProfile
	Risk       models.RiskSnapshot
	Gate       models.TradingGate
	Opens      []models.OpenIntent
	Closes     []models.CloseAllIntent
	Events     []models.StatusEvent
}

// Engine holds all mutable strategy state of one instrument. It performs
// no I/O and is not safe for concurrent use.
type Engine struct {
	symbol  string
	cfg     models.StrategyConfig
	params  indicators.Params
	emitter *intent.Emitter
	profile *profile.Calculator
	grid    *grid.Manager
	ledger  *risk.Ledger

	stressCooldown int
	barsProcessed  int
	lastBarTime    time.Time
}

// New clamps cfg and builds a fresh engine.
func New(symbol string, cfg models.StrategyConfig) *Engine {
	cfg = cfg.Clamp()
	emitter := intent.NewEmitter(symbol, cfg.StopLossATR, cfg.TakeProfitATR)
	return &Engine{
		symbol:  symbol,
		cfg:     cfg,
		params:  indicators.ParamsFromConfig(cfg),
		emitter: emitter,
		profile: profile.NewCalculator(cfg.ValueAreaPct),
		grid:    grid.NewManager(cfg, emitter),
		ledger:  risk.NewLedger(),
	}
}

func (e *Engine) Name() string {
	return GridProName
}

func (e *Engine) Config() models.StrategyConfig {
	return e.cfg
}

// Process evaluates the last bar of history. history must hold the bars
// preceding it in order; account is the state before this bar's intents.
func (e *Engine) Process(history []models.Bar, account models.AccountSnapshot) (*Decision, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	bar := history[len(history)-1]
	if !e.lastBarTime.IsZero() {
		if bar.Timestamp.Before(e.lastBarTime) {
			return nil, fmt.Errorf("%w: %s before %s", ErrOutOfOrder, bar.Timestamp, e.lastBarTime)
		}
		if bar.Timestamp.Equal(e.lastBarTime) {
			return &Decision{Bar: bar, Skipped: true, SkipReason: ErrDuplicateBar}, nil
		}
	}
	e.lastBarTime = bar.Timestamp

	d := &Decision{Bar: bar}
	ind, err := indicators.Compute(history, e.params)
	if err != nil {
		d.Skipped = true
		d.SkipReason = err
		if errors.Is(err, indicators.ErrNotANumber) {
			ev := e.event(models.StatusDiagnostic, bar)
			ev.Message = err.Error()
			d.Events = append(d.Events, ev)
		}
		return d, nil
	}
	d.Indicators = ind

	closes := make([]float64, len(history))
	for i, b := range history {
		closes[i] = b.Close
	}
	d.Profile = e.profile.Update(bar, closes)
	d.Risk = risk.BuildSnapshot(account, bar.Close, e.ledger, bar.Timestamp)
	d.Gate = risk.Evaluate(d.Risk, e.cfg, ind)
	multiplier := e.sizeMultiplier(d.Gate.Stressed)

	out := e.grid.OnBar(grid.Input{
		Bar:            bar,
		ATR:            ind.ATR,
		Profile:        d.Profile,
		Gate:           d.Gate,
		Equity:         account.Equity,
		ActiveTrades:   d.Risk.ActiveTradeCount,
		SizeMultiplier: multiplier,
	})

	if len(out.Closes) > 0 {
		// a rebalance already flattens every position
		d.Closes = out.Closes
	} else {
		d.Closes = e.positionExits(account, bar, ind.ATR, d.Risk)
	}
	d.Opens = out.Opens

	for _, ev := range out.Events {
		d.Events = append(d.Events, e.decorate(ev, d))
	}
	e.barsProcessed++
	if e.barsProcessed%e.cfg.StatusInterval == 0 {
		d.Events = append(d.Events, e.decorate(e.event(models.StatusPeriodic, bar), d))
	}
	return d, nil
}

// Reject reports a failed submission of an open intent.
func (e *Engine) Reject(clientOrderID string) bool {
	return e.grid.Reject(clientOrderID)
}

// RecordTrade feeds a closed trade into the performance ledger.
func (e *Engine) RecordTrade(t models.TradeRecord) {
	e.ledger.Record(t)
}

// Snapshot captures the engine state for persistence.
func (e *Engine) Snapshot() *models.BotState {
	return &models.BotState{
		BotID:          e.Name() + ":" + e.symbol,
		Symbol:         e.symbol,
		Version:        stateVersion,
		Grid:           e.grid.State(),
		Profile:        e.profile.Session(),
		Ledger:         e.ledger.State(),
		StressCooldown: e.stressCooldown,
		BarsProcessed:  e.barsProcessed,
		LastBarTime:    e.lastBarTime,
	}
}

// Restore reloads a snapshot taken by Snapshot.
func (e *Engine) Restore(s *models.BotState) {
	if s == nil {
		return
	}
	e.grid.Restore(s.Grid)
	e.profile.Restore(s.Profile)
	e.ledger.Restore(s.Ledger)
	e.stressCooldown = s.StressCooldown
	e.barsProcessed = s.BarsProcessed
	e.lastBarTime = s.LastBarTime
}

// sizeMultiplier halves sizes while stressed and for the cooldown after.
func (e *Engine) sizeMultiplier(stressed bool) float64 {
	if stressed {
		e.stressCooldown = e.cfg.StressCooldownBars
		return risk.StressSizeMultiplier
	}
	if e.stressCooldown > 0 {
		e.stressCooldown--
		return risk.StressSizeMultiplier
	}
	return 1
}

// positionExits applies the ATR stop-loss / take-profit to every open
// position and trims the largest one when portfolio risk is over the limit.
// Distances are measured from the position's filled entry price with the
// current bar's ATR, so they can differ from the StopLoss / TakeProfit
// published on the OpenIntent, which used the level price and the ATR of
// the bar that fired it.
func (e *Engine) positionExits(account models.AccountSnapshot, bar models.Bar, atr float64, snap models.RiskSnapshot) []models.CloseAllIntent {
	var closes []models.CloseAllIntent
	closing := make(map[string]bool)
	for _, p := range account.Positions {
		if p.Quantity == 0 {
			continue
		}
		stopDist := atr * e.cfg.StopLossATR
		profitDist := atr * e.cfg.TakeProfitATR

		var reason models.CloseReason
		if p.Side == models.Buy {
			switch {
			case bar.Close <= p.EntryPrice-stopDist:
				reason = models.ReasonStopLoss
			case bar.Close >= p.EntryPrice+profitDist:
				reason = models.ReasonTakeProfit
			}
		} else {
			switch {
			case bar.Close >= p.EntryPrice+stopDist:
				reason = models.ReasonStopLoss
			case bar.Close <= p.EntryPrice-profitDist:
				reason = models.ReasonTakeProfit
			}
		}
		if reason != "" {
			closes = append(closes, e.emitter.CloseAll(reason, p.Tag, bar.Timestamp))
			closing[p.Tag] = true
		}
	}

	if snap.PortfolioRiskPct > e.cfg.MaxPortfolioRisk {
		if p, ok := risk.LargestPosition(account, bar.Close); ok && !closing[p.Tag] {
			closes = append(closes, e.emitter.CloseAll(models.ReasonRiskLimit, p.Tag, bar.Timestamp))
		}
	}
	return closes
}

func (e *Engine) event(kind models.StatusKind, bar models.Bar) models.StatusEvent {
	st := e.grid.State()
	return models.StatusEvent{
		Kind:       kind,
		Symbol:     e.symbol,
		Time:       bar.Timestamp,
		Price:      bar.Close,
		BasePrice:  st.BasePrice.InexactFloat64(),
		TradeCount: st.TradeCount,
	}
}

func (e *Engine) decorate(ev models.StatusEvent, d *Decision) models.StatusEvent {
	ev.Symbol = e.symbol
	ev.TrendDirection = d.Indicators.TrendDirection
	ev.PortfolioRiskPct = d.Risk.PortfolioRiskPct
	ev.ActiveTrades = d.Risk.ActiveTradeCount
	ev.WinRatePct = d.Risk.WinRatePct
	ev.ProfileValid = d.Profile.Valid
	if d.Profile.Valid {
		ev.POC = d.Profile.POC
		ev.VARangePct = d.Profile.VARangePct
	}
	if !d.Gate.CanTrade {
		ev.Reasons = d.Gate.Reasons()
	}
	return ev
}
