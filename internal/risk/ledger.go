package risk

import (
	"time"

	"hybrid-grid-bot-go/internal/models"
)

// Ledger keeps win/loss counters and the UTC daily PnL of closed trades.
type Ledger struct {
	state models.LedgerState
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Record adds a closed trade. Break-even trades count as losses.
func (l *Ledger) Record(t models.TradeRecord) {
	day := t.ExitTime.UTC().Format("2006-01-02")
	if day != l.state.Day {
		l.state.Day = day
		l.state.DailyPnL = 0
	}
	l.state.TotalTrades++
	if t.Profit > 0 {
		l.state.WinningTrades++
	} else {
		l.state.LosingTrades++
	}
	l.state.TotalPnL += t.Profit
	l.state.DailyPnL += t.Profit
}

// WinRatePct is 0 before the first closed trade.
func (l *Ledger) WinRatePct() float64 {
	if l.state.TotalTrades == 0 {
		return 0
	}
	return float64(l.state.WinningTrades) / float64(l.state.TotalTrades) * 100
}

// DailyPnL of the UTC day containing now.
func (l *Ledger) DailyPnL(now time.Time) float64 {
	if now.UTC().Format("2006-01-02") != l.state.Day {
		return 0
	}
	return l.state.DailyPnL
}

func (l *Ledger) State() models.LedgerState {
	return l.state
}

func (l *Ledger) Restore(s models.LedgerState) {
	l.state = s
}
