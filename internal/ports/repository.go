package ports

import (
	"context"
	"time"

	"tradedesk/internal/domain"
)

// TradeClosePatch carries the fields written when a trade is closed.
type TradeClosePatch struct {
	ClosedAt      time.Time
	ClosedPrice   float64
	Profit        float64
	ProfitPercent float64
	CloseReason   domain.CloseReason
}

// TradeRepository defines the interface for the persistent trade ledger.
type TradeRepository interface {
	// Create saves a new trade and returns its assigned opaque ID.
	Create(ctx context.Context, trade *domain.Trade) (string, error)
	// FindByID retrieves a trade by its ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Trade, error)
	// FindByUser retrieves the most recent trades for a user, optionally
	// filtered by status (empty status means all), up to a limit.
	FindByUser(ctx context.Context, userID string, status domain.TradeStatus, limit int) ([]*domain.Trade, error)
	// FindOpen retrieves all currently open trades across users.
	FindOpen(ctx context.Context) ([]*domain.Trade, error)
	// CloseIfOpen conditionally marks a trade CLOSED iff its current status
	// is OPEN (compare-and-swap on status). Returns ErrConflict when the
	// trade exists but is no longer open, ErrNotFound when it doesn't exist.
	CloseIfOpen(ctx context.Context, id string, patch TradeClosePatch) error
}

// DailyBalanceRepository records the account balance at the start of each
// trading day, the baseline the drawdown guard measures against.
type DailyBalanceRepository interface {
	// GetOrCreateStartingBalance returns the recorded starting balance for
	// the user on the given day, snapshotting the provided current balance
	// as the baseline if no record exists yet.
	GetOrCreateStartingBalance(ctx context.Context, userID string, day time.Time, current float64) (float64, error)
}
