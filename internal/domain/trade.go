package domain

import "time"

// Trade is a persisted trade record owned by the trade service. It is
// created OPEN at execution time and transitions to CLOSED exactly once;
// after that the financial fields (ClosedPrice, Profit, ProfitPercent) are
// immutable.
type Trade struct {
	ID            string      `json:"id"`            // Opaque identifier assigned at creation
	UserID        string      `json:"userId"`        // Owner of the trade
	Symbol        string      `json:"symbol"`        // Trading pair (e.g., "BTCUSDT")
	Type          OrderSide   `json:"type"`          // BUY or SELL
	Amount        float64     `json:"amount"`        // Notional amount in quote currency
	EntryPrice    float64     `json:"entryPrice"`    // Volume-weighted average fill price
	TargetPrice   float64     `json:"targetPrice"`   // Take-profit level (0 if none)
	StopLossPrice float64     `json:"stopLossPrice"` // Stop-loss level (0 if none)
	Status        TradeStatus `json:"status"`        // OPEN or CLOSED
	Mode          TradeMode   `json:"mode"`          // AUTO or MANUAL
	CreatedAt     time.Time   `json:"createdAt"`     // When the trade was opened
	ClosedAt      time.Time   `json:"closedAt"`      // Zero value while OPEN
	ClosedPrice   float64     `json:"closedPrice"`   // Price the trade was closed at
	Profit        float64     `json:"profit"`        // Realized profit in quote currency
	ProfitPercent float64     `json:"profitPercent"` // Realized profit relative to entry price
	CloseReason   CloseReason `json:"closeReason"`   // Why the trade was closed
	Analysis      *AIAnalysis `json:"analysis,omitempty"`
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// TradeEvaluation annotates an open trade with the price it was evaluated
// against. Closed is true when the evaluation triggered a close.
type TradeEvaluation struct {
	Trade        *Trade
	CurrentPrice float64
	Closed       bool
	CloseReason  CloseReason
}
