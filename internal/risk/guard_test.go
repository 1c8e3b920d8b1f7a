package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

type stubBalances struct {
	starting float64
	err      error
}

func (s *stubBalances) GetOrCreateStartingBalance(ctx context.Context, userID string, day time.Time, current float64) (float64, error) {
	return s.starting, s.err
}

func newTestGuard(t *testing.T, maxDrawdown float64, balances ports.DailyBalanceRepository) *Guard {
	t.Helper()
	g, err := NewGuard(GuardConfig{MaxDailyDrawdownPercent: maxDrawdown}, balances)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return g
}

func TestGuardApproveAndReject(t *testing.T) {
	g := newTestGuard(t, 5, &stubBalances{starting: 10000})

	// riskAmount=600 -> worst case 6% > 5% -> rejected
	check, err := g.Check(context.Background(), "user-1", 600, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Allowed() {
		t.Error("expected rejection for riskAmount=600")
	}
	if check.Reason == "" {
		t.Error("rejected check must carry a reason")
	}
	if check.MaxDailyDrawdown != 5 {
		t.Errorf("expected max drawdown 5, got %f", check.MaxDailyDrawdown)
	}

	// riskAmount=400 -> worst case 4% <= 5% -> approved
	check, err = g.Check(context.Background(), "user-1", 400, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Allowed() {
		t.Errorf("expected approval for riskAmount=400, got reason %q", check.Reason)
	}
	if check.Decision != domain.GuardApproved {
		t.Errorf("expected tagged decision APPROVED, got %s", check.Decision)
	}
}

func TestGuardAccountsForRealizedLosses(t *testing.T) {
	g := newTestGuard(t, 5, &stubBalances{starting: 10000})

	// Already down 3%; another 3% of risk would breach the 5% budget.
	check, err := g.Check(context.Background(), "user-1", 300, 9700)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Allowed() {
		t.Error("expected rejection when realized plus prospective loss exceeds budget")
	}
	if check.CurrentDrawdown != 3 {
		t.Errorf("expected current drawdown 3%%, got %f", check.CurrentDrawdown)
	}
}

func TestGuardNegativeDrawdownNotClamped(t *testing.T) {
	g := newTestGuard(t, 5, &stubBalances{starting: 10000})

	// Balance grew 5% today, so the budget effectively doubles.
	check, err := g.Check(context.Background(), "user-1", 900, 10500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Allowed() {
		t.Errorf("expected approval with negative drawdown, got %q", check.Reason)
	}
	if check.CurrentDrawdown >= 0 {
		t.Errorf("expected negative current drawdown, got %f", check.CurrentDrawdown)
	}
}

func TestGuardUnavailableFailsClosed(t *testing.T) {
	for name, balances := range map[string]*stubBalances{
		"repository error": {err: errors.New("store down")},
		"zero baseline":    {starting: 0},
	} {
		g := newTestGuard(t, 5, balances)
		check, err := g.Check(context.Background(), "user-1", 100, 10000)
		if !errors.Is(err, ports.ErrRiskCheckUnavailable) {
			t.Errorf("%s: expected ErrRiskCheckUnavailable, got %v", name, err)
		}
		if check != nil {
			t.Errorf("%s: expected nil check on unavailable baseline", name)
		}
	}
}

func TestGuardConfigValidation(t *testing.T) {
	if _, err := NewGuard(GuardConfig{MaxDailyDrawdownPercent: 0}, &stubBalances{}); err == nil {
		t.Error("expected error for zero drawdown budget")
	}
	if _, err := NewGuard(GuardConfig{MaxDailyDrawdownPercent: 120}, &stubBalances{}); err == nil {
		t.Error("expected error for budget above 100")
	}
	if _, err := NewGuard(GuardConfig{MaxDailyDrawdownPercent: 5}, nil); err == nil {
		t.Error("expected error for missing balance repository")
	}
}
