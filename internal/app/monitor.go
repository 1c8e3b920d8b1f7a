package app

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/ports"
)

// Monitor periodically evaluates all open trades against their take-profit
// and stop-loss levels, closing the ones whose levels were breached.
type Monitor struct {
	service  *TradeService
	trades   ports.TradeRepository
	logger   ports.Logger
	metrics  ports.Metrics
	interval time.Duration
}

// NewMonitor creates an open-trade monitor.
func NewMonitor(service *TradeService, trades ports.TradeRepository, logger ports.Logger, metrics ports.Metrics, interval time.Duration) (*Monitor, error) {
	if service == nil || trades == nil || logger == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for Monitor")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("monitor interval must be positive")
	}
	return &Monitor{service: service, trades: trades, logger: logger, metrics: metrics, interval: interval}, nil
}

// Run evaluates open trades on a fixed interval until the context is
// canceled. Evaluation errors are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info(ctx, "Trade monitor started", map[string]interface{}{"interval": m.interval.String()})
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "Trade monitor stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	open, err := m.trades.FindOpen(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Monitor failed to list open trades")
		return
	}
	m.metrics.SetOpenTrades(len(open))

	for _, trade := range open {
		eval, err := m.service.EvaluateOpenTrade(ctx, trade)
		if err != nil {
			m.logger.Error(ctx, err, "Monitor failed to evaluate trade", map[string]interface{}{"tradeID": trade.ID})
			continue
		}
		if eval.Closed {
			m.logger.Info(ctx, "Monitor closed trade", map[string]interface{}{
				"tradeID": trade.ID, "reason": eval.CloseReason, "price": eval.CurrentPrice,
			})
		}
	}
}
