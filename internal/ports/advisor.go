package ports

import (
	"context"

	"tradedesk/internal/domain"
)

// TechnicalIndicators bundles the indicator values supplied to the advisor.
type TechnicalIndicators struct {
	RSI           float64
	MACD          float64
	MACDSignal    float64
	MACDHistogram float64
}

// Sentiment summarizes recent news coverage for an asset.
type Sentiment struct {
	Overall   string // "positive", "negative" or "neutral"
	Headlines []string
}

// Advisor is the opaque recommendation oracle. Given market data, technical
// indicators and sentiment it returns a buy/sell/hold analysis.
type Advisor interface {
	Analyze(ctx context.Context, symbol string, ticker *domain.Ticker, indicators TechnicalIndicators, sentiment Sentiment) (*domain.AIAnalysis, error)
}

// SentimentSource supplies news sentiment for an asset. Implementations may
// degrade to a neutral result when the upstream source is unavailable.
type SentimentSource interface {
	GetSentiment(ctx context.Context, asset string) (Sentiment, error)
}
