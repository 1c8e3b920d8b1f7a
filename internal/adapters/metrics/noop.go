package metrics

// Noop discards all metrics. Useful in tests and tools that do not serve a
// metrics endpoint.
type Noop struct{}

func (Noop) TradeExecuted(symbol string)                        {}
func (Noop) TradeRejected(symbol, reason string)                {}
func (Noop) TradeFailed(symbol string)                          {}
func (Noop) TradeClosed(symbol, reason string, profit float64)  {}
func (Noop) ObserveDrawdown(userID string, drawdownPct float64) {}
func (Noop) SetOpenTrades(n int)                                {}
