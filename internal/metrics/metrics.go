// Package metrics exposes Prometheus metrics for the decision loop:
//
//	bot_bars_total{symbol,result}           bars seen (processed|skipped)
//	bot_open_intents_total{symbol,side}     open intents emitted
//	bot_close_intents_total{symbol,reason}  close intents emitted
//	bot_gate_blocks_total{symbol,rule}      risk gate vetoes by rule
//	bot_rejections_total{symbol}            open intents the venue refused
//	bot_trades_total{symbol,result}         closed trades (win|loss)
//	bot_equity_usd{symbol}                  account equity
//	bot_portfolio_risk_pct{symbol}          portfolio exposure in percent of equity
//
// They are registered in init() and served at /metrics by cmd/bot.
package metrics

import (
	"net/http"

	"hybrid-grid-bot-go/internal/engine"
	"hybrid-grid-bot-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxBars = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_bars_total", Help: "Bars seen by the engine"},
		[]string{"symbol", "result"},
	)
	mtxOpenIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_open_intents_total", Help: "Open intents emitted"},
		[]string{"symbol", "side"},
	)
	mtxCloseIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_close_intents_total", Help: "Close intents emitted"},
		[]string{"symbol", "reason"},
	)
	mtxGateBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_gate_blocks_total", Help: "Risk gate vetoes split by rule"},
		[]string{"symbol", "rule"},
	)
	mtxRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_rejections_total", Help: "Open intents refused by the venue"},
		[]string{"symbol"},
	)
	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_trades_total", Help: "Closed trades by result"},
		[]string{"symbol", "result"},
	)
	mtxEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_equity_usd", Help: "Account equity in quote currency"},
		[]string{"symbol"},
	)
	mtxPortfolioRisk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_portfolio_risk_pct", Help: "Portfolio exposure as percent of equity"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		mtxBars,
		mtxOpenIntents,
		mtxCloseIntents,
		mtxGateBlocks,
		mtxRejections,
		mtxTrades,
		mtxEquity,
		mtxPortfolioRisk,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records one engine decision.
func ObserveDecision(symbol string, d *engine.Decision) {
	if d == nil {
		return
	}
	if d.Skipped {
		mtxBars.WithLabelValues(symbol, "skipped").Inc()
		return
	}
	mtxBars.WithLabelValues(symbol, "processed").Inc()
	mtxPortfolioRisk.WithLabelValues(symbol).Set(d.Risk.PortfolioRiskPct)
	for _, r := range d.Gate.Restrictions {
		mtxGateBlocks.WithLabelValues(symbol, r.Rule).Inc()
	}
	for _, oi := range d.Opens {
		mtxOpenIntents.WithLabelValues(symbol, string(oi.Side)).Inc()
	}
	for _, ci := range d.Closes {
		mtxCloseIntents.WithLabelValues(symbol, string(ci.Reason)).Inc()
	}
}

func ObserveRejection(symbol string) {
	mtxRejections.WithLabelValues(symbol).Inc()
}

func ObserveTrade(symbol string, t models.TradeRecord) {
	result := "loss"
	if t.Profit > 0 {
		result = "win"
	}
	mtxTrades.WithLabelValues(symbol, result).Inc()
}

func SetEquity(symbol string, equity float64) {
	mtxEquity.WithLabelValues(symbol).Set(equity)
}
