package risk

import (
	"fmt"
	"math"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

// SizerConfig holds configuration for position sizing. Percentages are
// expressed on a 0-100 scale, matching the environment configuration.
type SizerConfig struct {
	MaxExposurePercent         float64
	DefaultPositionSizePercent float64
}

// Sizer converts an AI recommendation plus the current account balance into
// a bounded, risk-managed position size. It is a pure function of its
// inputs and configuration: no clock, no randomness, no side effects.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a position sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.MaxExposurePercent <= 0 || cfg.MaxExposurePercent > 100 {
		return nil, fmt.Errorf("%w: MaxExposurePercent must be in (0,100], got %v", ports.ErrConfigurationError, cfg.MaxExposurePercent)
	}
	if cfg.DefaultPositionSizePercent <= 0 || cfg.DefaultPositionSizePercent > 100 {
		return nil, fmt.Errorf("%w: DefaultPositionSizePercent must be in (0,100], got %v", ports.ErrConfigurationError, cfg.DefaultPositionSizePercent)
	}
	return &Sizer{cfg: cfg}, nil
}

// TradeParameters sizes a prospective trade for the given analysis and
// balance. Sizing is only defined for BUY recommendations; SELL and HOLD
// return (nil, nil). A zero balance yields a zero position size, not an
// error. Malformed analyses (non-positive percentages, risk score outside
// [1,10]) fail with ErrInvalidAnalysis.
func (s *Sizer) TradeParameters(symbol string, analysis *domain.AIAnalysis, balance float64) (*domain.TradeParameters, error) {
	if analysis == nil {
		return nil, fmt.Errorf("%w: analysis is nil", ports.ErrInvalidAnalysis)
	}
	if !analysis.Recommendation.IsValid() {
		return nil, fmt.Errorf("%w: unknown recommendation %q", ports.ErrInvalidAnalysis, analysis.Recommendation)
	}
	if analysis.Recommendation != domain.RecommendationBuy {
		return nil, nil
	}
	if analysis.StopLossPercent <= 0 {
		return nil, fmt.Errorf("%w: stopLossPercent must be positive, got %v", ports.ErrInvalidAnalysis, analysis.StopLossPercent)
	}
	if analysis.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("%w: takeProfitPercent must be positive, got %v", ports.ErrInvalidAnalysis, analysis.TakeProfitPercent)
	}
	if analysis.RiskScore < 1 || analysis.RiskScore > 10 {
		return nil, fmt.Errorf("%w: riskScore must be in [1,10], got %d", ports.ErrInvalidAnalysis, analysis.RiskScore)
	}
	if balance < 0 {
		return nil, fmt.Errorf("%w: balance cannot be negative, got %v", ports.ErrInvalidAnalysis, balance)
	}

	rewardRiskRatio := analysis.TakeProfitPercent / analysis.StopLossPercent

	// Expected win rate decreases linearly with the risk score, from 0.6 at
	// riskScore=1 down to 0.24 at riskScore=10. This is a documented
	// heuristic, not derived from historical statistics.
	winRate := 0.6 - float64(analysis.RiskScore-1)/25

	kellySize := s.kellySize(winRate, rewardRiskRatio, balance)
	fixedSize := s.fixedFractionSize(analysis.RiskScore, balance)

	// Two competing sizing models; the more conservative wins.
	positionSize := math.Min(kellySize, fixedSize)

	return &domain.TradeParameters{
		Symbol:             symbol,
		RecommendationType: analysis.Recommendation,
		PositionSize:       positionSize,
		RiskAmount:         positionSize * analysis.StopLossPercent / 100,
		TakeProfitPercent:  analysis.TakeProfitPercent,
		StopLossPercent:    analysis.StopLossPercent,
		RewardRiskRatio:    rewardRiskRatio,
		RiskScore:          analysis.RiskScore,
	}, nil
}

// kellySize sizes the position with the Kelly criterion:
// f* = (p*(b+1) - 1) / b, where p is the win probability and b the net odds.
// Full Kelly is aggressive, so half-Kelly damping is applied, floored at 0
// and capped at the maximum exposure fraction.
func (s *Sizer) kellySize(winRate, rewardRiskRatio, balance float64) float64 {
	fraction := (winRate*(rewardRiskRatio+1) - 1) / rewardRiskRatio
	fraction = math.Max(0, fraction*0.5)
	fraction = math.Min(fraction, s.cfg.MaxExposurePercent/100)
	return balance * fraction
}

// fixedFractionSize sizes the position as a fixed fraction of the balance,
// scaled down linearly by the risk score: factor 1.0 at riskScore=1 down to
// 0.1 at riskScore=10, capped at the maximum exposure fraction.
func (s *Sizer) fixedFractionSize(riskScore int, balance float64) float64 {
	adjustment := 1 - float64(riskScore-1)/10
	percent := s.cfg.DefaultPositionSizePercent / 100 * adjustment
	percent = math.Min(percent, s.cfg.MaxExposurePercent/100)
	return balance * percent
}
