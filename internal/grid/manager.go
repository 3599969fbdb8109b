// Package grid owns the lifecycle of one instrument's buy/sell ladder:
// anchoring, spacing, crossing detection and rebalancing.
package grid

import (
	"fmt"

	"hybrid-grid-bot-go/internal/intent"
	"hybrid-grid-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Phase of the grid lifecycle.
type Phase int

const (
	Uninitialized Phase = iota
	Active
	// Rebalancing is transient; OnBar always leaves the manager Active.
	Rebalancing
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Rebalancing:
		return "rebalancing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Input is everything the manager needs for one bar, already resolved.
type Input struct {
	Bar            models.Bar
	ATR            float64
	Profile        models.SessionProfile
	Gate           models.TradingGate
	Equity         float64
	ActiveTrades   int
	SizeMultiplier float64
}

// Output collects what one bar produced.
type Output struct {
	Opens  []models.OpenIntent
	Closes []models.CloseAllIntent
	Events []models.StatusEvent
}

// Manager is not safe for concurrent use; each instrument owns one.
type Manager struct {
	cfg     models.StrategyConfig
	emitter *intent.Emitter
	state   models.GridState
	phase   Phase
}

func NewManager(cfg models.StrategyConfig, emitter *intent.Emitter) *Manager {
	return &Manager{cfg: cfg, emitter: emitter}
}

func (m *Manager) Phase() Phase {
	return m.phase
}

// State returns a deep copy of the grid state.
func (m *Manager) State() models.GridState {
	s := m.state
	if m.state.Levels != nil {
		s.Levels = make([]models.GridLevel, len(m.state.Levels))
		copy(s.Levels, m.state.Levels)
	}
	return s
}

// Restore loads a previously saved grid state.
func (m *Manager) Restore(s models.GridState) {
	m.state = s
	if s.Levels != nil {
		m.state.Levels = make([]models.GridLevel, len(s.Levels))
		copy(m.state.Levels, s.Levels)
	}
	m.phase = Uninitialized
	if s.Initialized {
		m.phase = Active
	}
}

// OnBar advances the state machine by one bar.
func (m *Manager) OnBar(in Input) Output {
	var out Output
	if !m.cfg.EnableGrid {
		return out
	}

	px := decimal.NewFromFloat(in.Bar.Close)
	spacing := Spacing(m.cfg, px, in.ATR, in.Profile)

	if !m.state.Initialized {
		if !in.Gate.CanTrade {
			return out
		}
		m.reset(Anchor(in.Profile, px), spacing)
		out.Events = append(out.Events, m.event(models.StatusGridInitialized, in.Bar,
			fmt.Sprintf("grid initialized at %s, spacing %s", m.state.BasePrice, spacing)))
	} else if m.shouldRebalance(px, spacing, in.Profile) {
		m.phase = Rebalancing
		prev := m.state.BasePrice
		out.Closes = append(out.Closes, m.emitter.CloseAll(models.ReasonRebalance, models.ScopeAll, in.Bar.Timestamp))
		m.reset(Anchor(in.Profile, px), spacing)
		m.state.Rebalances++
		out.Events = append(out.Events, m.event(models.StatusRebalanced, in.Bar,
			fmt.Sprintf("grid rebalanced from %s to %s", prev, m.state.BasePrice)))
	} else {
		m.state.Spacing = spacing
		m.regenerate()
	}
	m.phase = Active

	m.scan(in, &out)
	return out
}

// Reject reverts the level that produced clientOrderID after a failed
// submission so that a later crossing can fire it again. Intents from an
// older cycle are ignored.
func (m *Manager) Reject(clientOrderID string) bool {
	for i := range m.state.Levels {
		l := &m.state.Levels[i]
		if l.Executed && l.ClientOrderID == clientOrderID {
			l.Executed = false
			l.ClientOrderID = ""
			m.state.TradeCount--
			return true
		}
	}
	return false
}

// PositionSize is the quote notional for one level, clamped to the order
// bounds and then scaled by multiplier.
func (m *Manager) PositionSize(equity, multiplier float64) decimal.Decimal {
	if equity <= 0 || m.cfg.BaseGridCount <= 0 {
		return decimal.Zero
	}
	raw := equity * m.cfg.MaxSinglePosition / 100 / float64(m.cfg.BaseGridCount)
	if raw < m.cfg.MinOrderSize {
		raw = m.cfg.MinOrderSize
	}
	if m.cfg.MaxOrderSize > 0 && raw > m.cfg.MaxOrderSize {
		raw = m.cfg.MaxOrderSize
	}
	return decimal.NewFromFloat(raw * multiplier).Round(8)
}

func (m *Manager) shouldRebalance(px, spacing decimal.Decimal, prof models.SessionProfile) bool {
	base := m.state.BasePrice
	if !base.IsPositive() {
		return true
	}
	n := decimal.NewFromInt(int64(m.cfg.LevelsPerSide()))
	threshold := SpacingPct(m.cfg, spacing, base).Mul(n).Mul(rebalanceFactor)
	deviation := px.Sub(base).Abs().Div(base).Mul(hundred)
	if deviation.GreaterThan(threshold) {
		return true
	}

	if prof.Valid && prof.POC > 0 {
		pocDev := decimal.NewFromFloat(prof.POC).Sub(base).Abs().Div(base).Mul(hundred)
		if pocDev.GreaterThan(pocDeviationPct) {
			return true
		}
	}
	return false
}

func (m *Manager) reset(base, spacing decimal.Decimal) {
	m.state.BasePrice = base
	m.state.Spacing = spacing
	m.state.Initialized = true
	m.state.Levels = BuildLevels(base, spacing, m.cfg.LevelsPerSide(), m.cfg.SpotOnly)
	m.state.CycleID = uuid.NewString()
}

// regenerate moves price targets to the current spacing and keeps flags.
func (m *Manager) regenerate() {
	fresh := BuildLevels(m.state.BasePrice, m.state.Spacing, m.cfg.LevelsPerSide(), m.cfg.SpotOnly)
	if len(fresh) != len(m.state.Levels) {
		m.state.Levels = fresh
		return
	}
	for i := range m.state.Levels {
		m.state.Levels[i].Price = fresh[i].Price
		m.state.Levels[i].Active = fresh[i].Active
	}
}

func (m *Manager) scan(in Input, out *Output) {
	if !in.Gate.CanTrade {
		return
	}
	size := m.PositionSize(in.Equity, in.SizeMultiplier)
	if !size.IsPositive() {
		return
	}
	slots := m.cfg.MaxConcurrentTrades - in.ActiveTrades

	low := decimal.NewFromFloat(in.Bar.Low)
	high := decimal.NewFromFloat(in.Bar.High)
	for i := range m.state.Levels {
		if slots <= 0 {
			return
		}
		l := &m.state.Levels[i]
		if !l.Active || l.Executed {
			continue
		}
		crossed := (l.Side == models.Buy && low.LessThanOrEqual(l.Price)) ||
			(l.Side == models.Sell && high.GreaterThanOrEqual(l.Price))
		if !crossed {
			continue
		}

		oi := m.emitter.Open(*l, m.state.CycleID, size, in.ATR, in.Bar.Timestamp)
		l.Executed = true
		l.ClientOrderID = oi.ClientOrderID
		m.state.TradeCount++
		slots--
		out.Opens = append(out.Opens, oi)
	}
}

func (m *Manager) event(kind models.StatusKind, bar models.Bar, msg string) models.StatusEvent {
	return models.StatusEvent{
		Kind:       kind,
		Time:       bar.Timestamp,
		Price:      bar.Close,
		BasePrice:  m.state.BasePrice.InexactFloat64(),
		TradeCount: m.state.TradeCount,
		Message:    msg,
	}
}
