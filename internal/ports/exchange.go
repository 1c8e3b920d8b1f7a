package ports

import (
	"context"
	"time"

	"tradedesk/internal/domain"
)

// Fill is a single partial fill of a market order.
type Fill struct {
	Price    float64
	Quantity float64
}

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	OrderID     int64     // Exchange's order ID
	Symbol      string    // Symbol for the order
	Side        domain.OrderSide
	Fills       []Fill    // Partial fills making up the order
	ExecutedQty float64   // Total base quantity filled
	QuoteSpent  float64   // Cumulative quote amount spent
	Status      string    // Order status reported by the exchange (e.g., FILLED)
	Timestamp   time.Time // Time the order response was generated
}

// AverageFillPrice returns the volume-weighted average price across fills,
// or 0 when nothing was filled.
func (o *OrderResult) AverageFillPrice() float64 {
	var notional, qty float64
	for _, f := range o.Fills {
		notional += f.Price * f.Quantity
		qty += f.Quantity
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// ExchangeClient defines the interface for interacting with a cryptocurrency
// exchange. This abstraction decouples the trade service from any specific
// exchange implementation.
type ExchangeClient interface {
	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetAccountBalance retrieves the free balance for a specific asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// GetCurrentPrice retrieves the last traded price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// GetTicker retrieves the 24h rolling window statistics for a symbol.
	GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error)

	// GetCandles retrieves historical candlestick data for a symbol.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)

	// PlaceMarketOrder places a market order. For BUY orders quoteAmount is
	// the notional amount of quote currency to spend; for SELL orders it is
	// the base quantity to sell.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quoteAmount float64) (*OrderResult, error)

	// StreamTicker starts a websocket stream of ticker updates for a symbol.
	// Returns channels to control the stream (doneCh, stopCh) or an error if
	// the connection fails.
	StreamTicker(ctx context.Context, symbol string, handler func(t *domain.Ticker), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
