package ports

import "time"

// Metrics receives counters and gauges from the trade service. A no-op
// implementation is provided for tests and for running without a metrics
// backend.
type Metrics interface {
	TradeExecuted(symbol string)
	TradeRejected(symbol, reason string)
	TradeFailed(symbol string)
	TradeClosed(symbol string, reason string, profit float64)
	ObserveDrawdown(userID string, drawdownPct float64)
	SetOpenTrades(n int)
}

// Cache is an injectable TTL cache for market and analysis data. It lives at
// the collaborator boundary so the risk core stays pure; entries expire after
// the per-entry TTL.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}
