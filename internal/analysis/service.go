// Package analysis assembles the market snapshot fed to the AI advisor and
// caches its recommendations.
package analysis

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/indicators"
	"tradedesk/internal/ports"
)

const (
	candleInterval = "1h"
	candleLimit    = 100

	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Service produces AI analyses for symbols: ticker and candles from the
// exchange, RSI and MACD computed locally, news sentiment, then the advisor.
// Results are cached per symbol so repeated dashboard requests do not burn
// advisor quota.
type Service struct {
	exchange  ports.ExchangeClient
	advisor   ports.Advisor
	sentiment ports.SentimentSource
	cache     ports.Cache
	logger    ports.Logger

	priceTTL    time.Duration
	analysisTTL time.Duration
}

// NewService creates the analysis pipeline.
func NewService(
	exchange ports.ExchangeClient,
	advisor ports.Advisor,
	sentiment ports.SentimentSource,
	cache ports.Cache,
	logger ports.Logger,
	priceTTL, analysisTTL time.Duration,
) (*Service, error) {
	if exchange == nil || advisor == nil || sentiment == nil || cache == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for analysis Service")
	}
	if priceTTL <= 0 || analysisTTL <= 0 {
		return nil, fmt.Errorf("cache TTLs must be positive")
	}
	return &Service{
		exchange:    exchange,
		advisor:     advisor,
		sentiment:   sentiment,
		cache:       cache,
		logger:      logger,
		priceTTL:    priceTTL,
		analysisTTL: analysisTTL,
	}, nil
}

// Analyze returns the current AI analysis for a symbol, serving a cached
// result when one is still fresh.
func (s *Service) Analyze(ctx context.Context, symbol string) (*domain.AIAnalysis, error) {
	op := "Analyze"
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ports.ErrInvalidRequest)
	}

	cacheKey := "analysis:" + symbol
	if v, ok := s.cache.Get(cacheKey); ok {
		if cached, ok := v.(*domain.AIAnalysis); ok {
			s.logger.Debug(ctx, op+": serving cached analysis", map[string]interface{}{"symbol": symbol})
			return cached, nil
		}
	}

	ticker, err := s.exchange.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}

	candles, err := s.exchange.GetCandles(ctx, symbol, candleInterval, candleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ind, err := computeIndicators(closes)
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators for %s: %w", symbol, err)
	}

	// News sentiment is best effort: the pipeline degrades to neutral when
	// the source is down rather than blocking the analysis.
	sent, err := s.sentiment.GetSentiment(ctx, baseAsset(symbol))
	if err != nil {
		s.logger.Warn(ctx, op+": sentiment unavailable, using neutral", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		sent = ports.Sentiment{Overall: "neutral"}
	}

	result, err := s.advisor.Analyze(ctx, symbol, ticker, ind, sent)
	if err != nil {
		return nil, fmt.Errorf("advisor analysis failed for %s: %w", symbol, err)
	}
	if err := validate(result); err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, result, s.analysisTTL)
	s.logger.Info(ctx, op+": analysis produced", map[string]interface{}{
		"symbol": symbol, "recommendation": result.Recommendation, "riskScore": result.RiskScore,
	})
	return result, nil
}

// CurrentPrice returns the last traded price for a symbol with a short cache
// in front of the exchange.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, fmt.Errorf("%w: symbol is required", ports.ErrInvalidRequest)
	}
	cacheKey := "price:" + symbol
	if v, ok := s.cache.Get(cacheKey); ok {
		if price, ok := v.(float64); ok {
			return price, nil
		}
	}
	price, err := s.exchange.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	s.cache.Set(cacheKey, price, s.priceTTL)
	return price, nil
}

// Invalidate drops any cached analysis for a symbol, forcing the next call to
// rebuild it.
func (s *Service) Invalidate(symbol string) {
	s.cache.Delete("analysis:" + symbol)
}

func computeIndicators(closes []float64) (ports.TechnicalIndicators, error) {
	rsi, err := indicators.RSI(closes, rsiPeriod)
	if err != nil {
		return ports.TechnicalIndicators{}, err
	}
	macd, err := indicators.MACD(closes, macdFast, macdSlow, macdSignal)
	if err != nil {
		return ports.TechnicalIndicators{}, err
	}
	return ports.TechnicalIndicators{
		RSI:           rsi,
		MACD:          macd.Line,
		MACDSignal:    macd.Signal,
		MACDHistogram: macd.Histogram,
	}, nil
}

// validate rejects advisor responses the sizer could not act on.
func validate(a *domain.AIAnalysis) error {
	if a == nil {
		return fmt.Errorf("%w: advisor returned no analysis", ports.ErrInvalidAnalysis)
	}
	if !a.Recommendation.IsValid() {
		return fmt.Errorf("%w: unknown recommendation %q", ports.ErrInvalidAnalysis, a.Recommendation)
	}
	if a.RiskScore < 1 || a.RiskScore > 10 {
		return fmt.Errorf("%w: risk score %d outside [1,10]", ports.ErrInvalidAnalysis, a.RiskScore)
	}
	if a.Recommendation == domain.RecommendationBuy && (a.TakeProfitPercent <= 0 || a.StopLossPercent <= 0) {
		return fmt.Errorf("%w: BUY analysis needs positive take-profit and stop-loss percentages", ports.ErrInvalidAnalysis)
	}
	return nil
}

// baseAsset strips the quote suffix from a symbol for news lookup, e.g.
// "ETHUSDT" -> "ETH". Unknown quotes pass through unchanged.
func baseAsset(symbol string) string {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
			return symbol[:len(symbol)-len(quote)]
		}
	}
	return symbol
}
