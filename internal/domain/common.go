package domain

// Recommendation is the qualitative trading signal produced by the AI advisor.
type Recommendation string

const (
	RecommendationBuy  Recommendation = "BUY"
	RecommendationSell Recommendation = "SELL"
	RecommendationHold Recommendation = "HOLD"
)

// IsValid reports whether the recommendation is one of the known values.
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationBuy, RecommendationSell, RecommendationHold:
		return true
	}
	return false
}

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeStatus represents the lifecycle state of a trade.
// A trade is created OPEN and transitions to CLOSED exactly once.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// TradeMode indicates whether a trade was opened automatically from an AI
// recommendation or manually by the user.
type TradeMode string

const (
	ModeAuto   TradeMode = "AUTO"
	ModeManual TradeMode = "MANUAL"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonManual     CloseReason = "MANUAL"
	CloseReasonUnknown    CloseReason = "UNKNOWN"
)
