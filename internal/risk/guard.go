package risk

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

// GuardConfig holds configuration for the exposure guard.
type GuardConfig struct {
	// MaxDailyDrawdownPercent is the daily loss budget on a 0-100 scale.
	MaxDailyDrawdownPercent float64
}

// Guard vetoes trades whose worst-case loss would breach the daily drawdown
// budget. The baseline is the account balance snapshotted at the start of
// the trading day; the check is recomputed fresh per request so sizing never
// runs against a stale balance.
type Guard struct {
	cfg      GuardConfig
	balances ports.DailyBalanceRepository
	now      func() time.Time
}

// NewGuard creates an exposure guard.
func NewGuard(cfg GuardConfig, balances ports.DailyBalanceRepository) (*Guard, error) {
	if cfg.MaxDailyDrawdownPercent <= 0 || cfg.MaxDailyDrawdownPercent > 100 {
		return nil, fmt.Errorf("%w: MaxDailyDrawdownPercent must be in (0,100], got %v", ports.ErrConfigurationError, cfg.MaxDailyDrawdownPercent)
	}
	if balances == nil {
		return nil, fmt.Errorf("%w: daily balance repository is required", ports.ErrConfigurationError)
	}
	return &Guard{cfg: cfg, balances: balances, now: time.Now}, nil
}

// Check evaluates a prospective trade's risk amount against the daily
// drawdown budget. A rejected trade is a normal business outcome carried in
// the returned DrawdownCheck; an error means the check could not be
// performed at all (missing or zero baseline) and the caller must fail
// closed.
func (g *Guard) Check(ctx context.Context, userID string, riskAmount, currentBalance float64) (*domain.DrawdownCheck, error) {
	day := g.now().UTC()
	starting, err := g.balances.GetOrCreateStartingBalance(ctx, userID, day, currentBalance)
	if err != nil {
		return nil, fmt.Errorf("%w: starting balance lookup failed: %w", ports.ErrRiskCheckUnavailable, err)
	}
	if starting <= 0 {
		return nil, fmt.Errorf("%w: starting balance is %v", ports.ErrRiskCheckUnavailable, starting)
	}

	maxDrawdown := g.cfg.MaxDailyDrawdownPercent / 100

	// Drawdown can be negative when the balance grew today; it is not
	// clamped since that only makes the check more permissive.
	currentDrawdown := (starting - currentBalance) / starting
	worstCase := currentDrawdown + riskAmount/starting

	if worstCase > maxDrawdown {
		return &domain.DrawdownCheck{
			Decision:         domain.GuardRejected,
			Reason:           fmt.Sprintf("trade rejected: would exceed max daily drawdown of %g%%", g.cfg.MaxDailyDrawdownPercent),
			CurrentDrawdown:  currentDrawdown * 100,
			MaxDailyDrawdown: g.cfg.MaxDailyDrawdownPercent,
		}, nil
	}

	return &domain.DrawdownCheck{
		Decision:         domain.GuardApproved,
		CurrentDrawdown:  currentDrawdown * 100,
		MaxDailyDrawdown: g.cfg.MaxDailyDrawdownPercent,
	}, nil
}
