package risk

import (
	"errors"
	"math"
	"testing"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

func newTestSizer(t *testing.T, maxExposure, defaultSize float64) *Sizer {
	t.Helper()
	s, err := NewSizer(SizerConfig{
		MaxExposurePercent:         maxExposure,
		DefaultPositionSizePercent: defaultSize,
	})
	if err != nil {
		t.Fatalf("NewSizer failed: %v", err)
	}
	return s
}

func buyAnalysis(tp, sl float64, riskScore int) *domain.AIAnalysis {
	return &domain.AIAnalysis{
		Recommendation:    domain.RecommendationBuy,
		TakeProfitPercent: tp,
		StopLossPercent:   sl,
		RiskScore:         riskScore,
	}
}

func TestSizerKellyWorkedExample(t *testing.T) {
	// winRate=0.6 (riskScore=1), rewardRiskRatio=2:
	// full Kelly = (0.6*3-1)/2 = 0.4, half-Kelly = 0.2, capped at 10% -> 1000.
	// Default fraction deliberately large so the Kelly path is the minimum.
	s := newTestSizer(t, 10, 50)

	params, err := s.TradeParameters("BTCUSDT", buyAnalysis(4, 2, 1), 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params == nil {
		t.Fatal("expected parameters for BUY recommendation")
	}
	if math.Abs(params.PositionSize-1000) > 1e-9 {
		t.Errorf("expected capped Kelly size 1000, got %f", params.PositionSize)
	}
	if math.Abs(params.RewardRiskRatio-2) > 1e-9 {
		t.Errorf("expected reward/risk ratio 2, got %f", params.RewardRiskRatio)
	}
}

func TestSizerConservativeSelection(t *testing.T) {
	// High risk score shrinks the fixed-fraction size below the Kelly size.
	s := newTestSizer(t, 50, 10)

	params, err := s.TradeParameters("ETHUSDT", buyAnalysis(6, 2, 10), 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Fixed fraction: 10% * (1 - 9/10) = 1% -> 100.
	if math.Abs(params.PositionSize-100) > 1e-9 {
		t.Errorf("expected fixed-fraction size 100 to win, got %f", params.PositionSize)
	}
}

func TestSizerExposureBoundAndRiskAmount(t *testing.T) {
	s := newTestSizer(t, 10, 5)
	balance := 12345.67

	for score := 1; score <= 10; score++ {
		for _, tc := range []struct{ tp, sl float64 }{
			{1, 0.5}, {2, 2}, {3, 1}, {10, 4}, {0.5, 5},
		} {
			params, err := s.TradeParameters("BTCUSDT", buyAnalysis(tc.tp, tc.sl, score), balance)
			if err != nil {
				t.Fatalf("tp=%v sl=%v score=%d: unexpected error: %v", tc.tp, tc.sl, score, err)
			}
			if params.PositionSize < 0 {
				t.Errorf("tp=%v sl=%v score=%d: negative position size %f", tc.tp, tc.sl, score, params.PositionSize)
			}
			if params.PositionSize > balance*0.10+1e-9 {
				t.Errorf("tp=%v sl=%v score=%d: size %f exceeds exposure bound", tc.tp, tc.sl, score, params.PositionSize)
			}
			wantRisk := params.PositionSize * tc.sl / 100
			if math.Abs(params.RiskAmount-wantRisk) > 1e-12 {
				t.Errorf("tp=%v sl=%v score=%d: risk amount %f, want %f", tc.tp, tc.sl, score, params.RiskAmount, wantRisk)
			}
			if params.RiskAmount > params.PositionSize {
				t.Errorf("risk amount %f exceeds position size %f", params.RiskAmount, params.PositionSize)
			}
		}
	}
}

func TestSizerNoSizingForSellAndHold(t *testing.T) {
	s := newTestSizer(t, 10, 5)

	for _, rec := range []domain.Recommendation{domain.RecommendationSell, domain.RecommendationHold} {
		analysis := &domain.AIAnalysis{Recommendation: rec, TakeProfitPercent: 3, StopLossPercent: 1, RiskScore: 5}
		params, err := s.TradeParameters("BTCUSDT", analysis, 10000)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", rec, err)
		}
		if params != nil {
			t.Errorf("%s: expected no sizing, got %+v", rec, params)
		}
	}
}

func TestSizerInvalidInputs(t *testing.T) {
	s := newTestSizer(t, 10, 5)

	cases := map[string]*domain.AIAnalysis{
		"zero stop loss":         buyAnalysis(3, 0, 5),
		"negative stop loss":     buyAnalysis(3, -1, 5),
		"zero take profit":       buyAnalysis(0, 1, 5),
		"risk score too low":     buyAnalysis(3, 1, 0),
		"risk score too high":    buyAnalysis(3, 1, 11),
		"negative risk score":    buyAnalysis(3, 1, -4),
		"unknown recommendation": {Recommendation: "SHORT", TakeProfitPercent: 3, StopLossPercent: 1, RiskScore: 5},
	}
	for name, analysis := range cases {
		if _, err := s.TradeParameters("BTCUSDT", analysis, 10000); !errors.Is(err, ports.ErrInvalidAnalysis) {
			t.Errorf("%s: expected ErrInvalidAnalysis, got %v", name, err)
		}
	}
}

func TestSizerZeroBalance(t *testing.T) {
	s := newTestSizer(t, 10, 5)

	params, err := s.TradeParameters("BTCUSDT", buyAnalysis(3, 1, 5), 0)
	if err != nil {
		t.Fatalf("zero balance must not be an error: %v", err)
	}
	if params.PositionSize != 0 {
		t.Errorf("expected zero position size, got %f", params.PositionSize)
	}
}

func TestSizerDeterminism(t *testing.T) {
	s := newTestSizer(t, 15, 8)
	analysis := buyAnalysis(4.5, 1.5, 7)

	first, err := s.TradeParameters("SOLUSDT", analysis, 9876.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		next, err := s.TradeParameters("SOLUSDT", analysis, 9876.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *next != *first {
			t.Fatalf("sizing is not deterministic: %+v vs %+v", next, first)
		}
	}
}
