// Package metrics exposes trade lifecycle counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements ports.Metrics on a prometheus registry.
type Prometheus struct {
	tradesExecuted *prometheus.CounterVec
	tradesRejected *prometheus.CounterVec
	tradesFailed   *prometheus.CounterVec
	tradesClosed   *prometheus.CounterVec
	realizedProfit *prometheus.GaugeVec
	drawdown       *prometheus.GaugeVec
	openTrades     prometheus.Gauge
}

// NewPrometheus registers the trade metrics on the given registerer. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		tradesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_trades_executed_total",
			Help: "Trades executed on the exchange, by symbol.",
		}, []string{"symbol"}),
		tradesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_trades_rejected_total",
			Help: "Trades rejected by the drawdown guard, by symbol and reason.",
		}, []string{"symbol", "reason"}),
		tradesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_trades_failed_total",
			Help: "Trade executions that failed at the exchange, by symbol.",
		}, []string{"symbol"}),
		tradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_trades_closed_total",
			Help: "Trades closed, by symbol and close reason.",
		}, []string{"symbol", "reason"}),
		// Gauge, not counter: losses move it down.
		realizedProfit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradedesk_realized_profit_quote",
			Help: "Cumulative realized profit in quote currency, by symbol.",
		}, []string{"symbol"}),
		drawdown: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradedesk_daily_drawdown_percent",
			Help: "Current daily drawdown percentage, by user.",
		}, []string{"user"}),
		openTrades: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_open_trades",
			Help: "Number of currently open trades.",
		}),
	}
}

func (p *Prometheus) TradeExecuted(symbol string) {
	p.tradesExecuted.WithLabelValues(symbol).Inc()
}

func (p *Prometheus) TradeRejected(symbol, reason string) {
	p.tradesRejected.WithLabelValues(symbol, reason).Inc()
}

func (p *Prometheus) TradeFailed(symbol string) {
	p.tradesFailed.WithLabelValues(symbol).Inc()
}

func (p *Prometheus) TradeClosed(symbol, reason string, profit float64) {
	p.tradesClosed.WithLabelValues(symbol, reason).Inc()
	p.realizedProfit.WithLabelValues(symbol).Add(profit)
}

func (p *Prometheus) ObserveDrawdown(userID string, drawdownPct float64) {
	p.drawdown.WithLabelValues(userID).Set(drawdownPct)
}

func (p *Prometheus) SetOpenTrades(n int) {
	p.openTrades.Set(float64(n))
}
