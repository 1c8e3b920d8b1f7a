package domain

// AIAnalysis is the recommendation object returned by the advisor for a
// symbol. It is treated as immutable once received; the percentages are
// relative to the entry price and RiskScore ranges from 1 (lowest risk) to
// 10 (highest risk).
type AIAnalysis struct {
	Recommendation    Recommendation `json:"recommendation"`
	TakeProfitPercent float64        `json:"takeProfitPercent"`
	StopLossPercent   float64        `json:"stopLossPercent"`
	RiskScore         int            `json:"riskScore"`
	Explanation       string         `json:"explanation"`
}

// TradeParameters is the risk-sized order derived from an AIAnalysis and the
// current account balance. PositionSize and RiskAmount are notional amounts
// in the quote currency.
type TradeParameters struct {
	Symbol             string         `json:"symbol"`
	RecommendationType Recommendation `json:"recommendationType"`
	PositionSize       float64        `json:"positionSize"`
	RiskAmount         float64        `json:"riskAmount"`
	TakeProfitPercent  float64        `json:"takeProfitPercent"`
	StopLossPercent    float64        `json:"stopLossPercent"`
	RewardRiskRatio    float64        `json:"rewardRiskRatio"`
	RiskScore          int            `json:"riskScore"`
}

// GuardDecision tags the outcome of a drawdown check. Rejection is a normal
// business outcome, not an error; callers must branch on the decision.
type GuardDecision string

const (
	GuardApproved GuardDecision = "APPROVED"
	GuardRejected GuardDecision = "REJECTED"
)

// DrawdownCheck is the result of evaluating a prospective trade's risk
// amount against the rolling daily drawdown budget. The percentages are
// exported for observability.
type DrawdownCheck struct {
	Decision         GuardDecision `json:"decision"`
	Reason           string        `json:"reason,omitempty"`
	CurrentDrawdown  float64       `json:"currentDrawdown"`
	MaxDailyDrawdown float64       `json:"maxDailyDrawdown"`
}

// Allowed reports whether the guard approved the trade.
func (c DrawdownCheck) Allowed() bool { return c.Decision == GuardApproved }
