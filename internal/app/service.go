package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradedesk/config"
	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
	"tradedesk/internal/risk"
	"tradedesk/internal/stats"
)

// ExecuteStatus tags the outcome of an execute request. A rejected or
// unsupported trade is an informative decision; infrastructure failures are
// returned as errors instead.
type ExecuteStatus string

const (
	OutcomeExecuted        ExecuteStatus = "EXECUTED"
	OutcomeRejected        ExecuteStatus = "REJECTED"
	OutcomeHold            ExecuteStatus = "HOLD"
	OutcomeSellUnsupported ExecuteStatus = "SELL_UNSUPPORTED"
)

// ExecuteResult is the outcome of an execute request.
type ExecuteResult struct {
	Status     ExecuteStatus           `json:"status"`
	Message    string                  `json:"message,omitempty"`
	Parameters *domain.TradeParameters `json:"parameters,omitempty"`
	Check      *domain.DrawdownCheck   `json:"check,omitempty"`
	Trade      *domain.Trade           `json:"trade,omitempty"`
}

// TradeService sequences guard, sizing, execution and persistence, and
// manages the open/close lifecycle of trades.
type TradeService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	trades   ports.TradeRepository
	sizer    *risk.Sizer
	guard    *risk.Guard
	metrics  ports.Metrics
	now      func() time.Time
}

// NewTradeService creates the trade orchestrator.
func NewTradeService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	trades ports.TradeRepository,
	sizer *risk.Sizer,
	guard *risk.Guard,
	metrics ports.Metrics,
) (*TradeService, error) {
	if cfg == nil || logger == nil || exchange == nil || trades == nil || sizer == nil || guard == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for TradeService")
	}
	if cfg.OrderTimeout <= 0 {
		return nil, fmt.Errorf("configuration OrderTimeout must be positive")
	}
	return &TradeService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		trades:   trades,
		sizer:    sizer,
		guard:    guard,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// ExecuteTrade turns an AI analysis into a risk-sized, guarded market order.
// Only BUY recommendations execute in automatic mode: HOLD performs no order,
// and automatic SELL reports an explicit unsupported outcome. Guard rejection
// is returned as a normal outcome, not an error; every infrastructure
// failure (balance, execution, persistence) is an error.
func (s *TradeService) ExecuteTrade(ctx context.Context, userID, symbol string, analysis *domain.AIAnalysis) (*ExecuteResult, error) {
	op := "ExecuteTrade"
	if userID == "" || symbol == "" {
		return nil, fmt.Errorf("%w: userID and symbol are required", ports.ErrInvalidRequest)
	}

	// Balance is fetched fresh per request; a stale balance could allow
	// over-leveraged sizing.
	balance, err := s.exchange.GetAccountBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to fetch account balance", map[string]interface{}{"asset": s.cfg.QuoteAsset})
		return nil, fmt.Errorf("account balance lookup failed: %w", err)
	}

	params, err := s.sizer.TradeParameters(symbol, analysis, balance)
	if err != nil {
		return nil, err
	}
	if params == nil {
		switch analysis.Recommendation {
		case domain.RecommendationHold:
			return &ExecuteResult{Status: OutcomeHold, Message: "HOLD recommendation - no trade executed"}, nil
		case domain.RecommendationSell:
			return &ExecuteResult{Status: OutcomeSellUnsupported, Message: "SELL recommendations not implemented in AUTO mode"}, nil
		default:
			return nil, fmt.Errorf("%w: sizer returned no parameters for %s", ports.ErrInvalidAnalysis, analysis.Recommendation)
		}
	}

	check, err := s.guard.Check(ctx, userID, params.RiskAmount, balance)
	if err != nil {
		// Cannot verify the drawdown budget: fail closed, do not execute.
		s.logger.Error(ctx, err, op+": risk check unavailable", map[string]interface{}{"userID": userID, "symbol": symbol})
		return nil, err
	}
	s.metrics.ObserveDrawdown(userID, check.CurrentDrawdown)
	if !check.Allowed() {
		s.logger.Info(ctx, op+": trade rejected by exposure guard", map[string]interface{}{
			"userID": userID, "symbol": symbol, "reason": check.Reason, "riskAmount": params.RiskAmount,
		})
		s.metrics.TradeRejected(symbol, check.Reason)
		return &ExecuteResult{Status: OutcomeRejected, Message: check.Reason, Parameters: params, Check: check}, nil
	}

	octx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	defer cancel()
	order, err := s.exchange.PlaceMarketOrder(octx, symbol, domain.Buy, params.PositionSize)
	if err != nil {
		s.logger.Error(ctx, err, op+": entry market order failed", map[string]interface{}{"symbol": symbol, "notional": params.PositionSize})
		s.metrics.TradeFailed(symbol)
		return nil, fmt.Errorf("entry market order failed: %w", err)
	}

	entryPrice := order.AverageFillPrice()
	if entryPrice <= 0 {
		s.metrics.TradeFailed(symbol)
		return nil, fmt.Errorf("%w: order %d reported no fills", ports.ErrExecutionFailed, order.OrderID)
	}

	analysisCopy := *analysis
	trade := &domain.Trade{
		UserID:        userID,
		Symbol:        symbol,
		Type:          domain.Buy,
		Amount:        params.PositionSize,
		EntryPrice:    entryPrice,
		TargetPrice:   entryPrice * (1 + params.TakeProfitPercent/100),
		StopLossPrice: entryPrice * (1 - params.StopLossPercent/100),
		Status:        domain.StatusOpen,
		Mode:          domain.ModeAuto,
		CreatedAt:     s.now().UTC(),
		Analysis:      &analysisCopy,
	}
	id, err := s.trades.Create(ctx, trade)
	if err != nil {
		// The order is already on the exchange; surface the failure rather
		// than guessing at compensation.
		s.logger.Error(ctx, err, op+": failed to persist executed trade", map[string]interface{}{"symbol": symbol, "orderID": order.OrderID})
		return nil, fmt.Errorf("failed to persist executed trade: %w", err)
	}
	trade.ID = id

	s.logger.Info(ctx, op+": trade executed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": symbol, "entryPrice": entryPrice,
		"amount": trade.Amount, "target": trade.TargetPrice, "stop": trade.StopLossPrice,
	})
	s.metrics.TradeExecuted(symbol)
	return &ExecuteResult{Status: OutcomeExecuted, Parameters: params, Check: check, Trade: trade}, nil
}

// CloseTrade closes an open trade at the given price, or at the current
// market price when closedPrice is nil. Closing an already-closed trade is
// an idempotent no-op returning the stored state; concurrent closers are
// serialized by a conditional update at the persistence layer, and a lost
// race is reported as the winner's state.
func (s *TradeService) CloseTrade(ctx context.Context, tradeID string, closedPrice *float64, reason domain.CloseReason) (*domain.Trade, error) {
	op := "CloseTrade"
	trade, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %s: %w", tradeID, err)
	}
	if trade == nil {
		return nil, fmt.Errorf("trade %s: %w", tradeID, ports.ErrNotFound)
	}
	if !trade.IsOpen() {
		s.logger.Debug(ctx, op+": trade already closed", map[string]interface{}{"tradeID": tradeID, "status": trade.Status})
		return trade, nil
	}

	var price float64
	if closedPrice != nil {
		price = *closedPrice
	} else {
		price, err = s.exchange.GetCurrentPrice(ctx, trade.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch close price for %s: %w", trade.Symbol, err)
		}
	}

	profit, profitPercent := closePnL(trade, price)
	patch := ports.TradeClosePatch{
		ClosedAt:      s.now().UTC(),
		ClosedPrice:   price,
		Profit:        profit,
		ProfitPercent: profitPercent,
		CloseReason:   reason,
	}

	if err := s.trades.CloseIfOpen(ctx, tradeID, patch); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			// Another closer won the race; report its state as a no-op.
			stored, ferr := s.trades.FindByID(ctx, tradeID)
			if ferr != nil || stored == nil {
				return nil, fmt.Errorf("trade %s closed concurrently but could not be reloaded: %w", tradeID, ferr)
			}
			s.logger.Debug(ctx, op+": lost close race", map[string]interface{}{"tradeID": tradeID})
			return stored, nil
		}
		return nil, fmt.Errorf("failed to close trade %s: %w", tradeID, err)
	}

	trade.Status = domain.StatusClosed
	trade.ClosedAt = patch.ClosedAt
	trade.ClosedPrice = price
	trade.Profit = profit
	trade.ProfitPercent = profitPercent
	trade.CloseReason = reason

	s.logger.Info(ctx, op+": trade closed", map[string]interface{}{
		"tradeID": tradeID, "closedPrice": price, "profit": profit, "reason": reason,
	})
	s.metrics.TradeClosed(trade.Symbol, string(reason), profit)
	return trade, nil
}

// EvaluateOpenTrade checks an open trade against its target and stop levels
// at the current market price. When prices gap through both levels in one
// evaluation, take-profit wins: it is checked first and the trade closes at
// the target price.
func (s *TradeService) EvaluateOpenTrade(ctx context.Context, trade *domain.Trade) (*domain.TradeEvaluation, error) {
	if trade == nil {
		return nil, fmt.Errorf("%w: trade is nil", ports.ErrInvalidRequest)
	}
	if !trade.IsOpen() {
		return &domain.TradeEvaluation{Trade: trade}, nil
	}

	price, err := s.exchange.GetCurrentPrice(ctx, trade.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", trade.Symbol, err)
	}

	if trade.TargetPrice > 0 && crossedFavorably(trade.Type, price, trade.TargetPrice) {
		closed, err := s.CloseTrade(ctx, trade.ID, &trade.TargetPrice, domain.CloseReasonTakeProfit)
		if err != nil {
			return nil, err
		}
		return &domain.TradeEvaluation{Trade: closed, CurrentPrice: price, Closed: true, CloseReason: domain.CloseReasonTakeProfit}, nil
	}

	if trade.StopLossPrice > 0 && crossedAdversely(trade.Type, price, trade.StopLossPrice) {
		closed, err := s.CloseTrade(ctx, trade.ID, &trade.StopLossPrice, domain.CloseReasonStopLoss)
		if err != nil {
			return nil, err
		}
		return &domain.TradeEvaluation{Trade: closed, CurrentPrice: price, Closed: true, CloseReason: domain.CloseReasonStopLoss}, nil
	}

	return &domain.TradeEvaluation{Trade: trade, CurrentPrice: price}, nil
}

// GetUserTrades returns the user's most recent trades, optionally filtered
// by status.
func (s *TradeService) GetUserTrades(ctx context.Context, userID string, status domain.TradeStatus, limit int) ([]*domain.Trade, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ports.ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.trades.FindByUser(ctx, userID, status, limit)
}

// PortfolioSummary aggregates the user's trade history into portfolio
// statistics.
func (s *TradeService) PortfolioSummary(ctx context.Context, userID string) (*stats.Summary, error) {
	trades, err := s.trades.FindByUser(ctx, userID, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for summary: %w", err)
	}
	return stats.Summarize(trades), nil
}

// closePnL computes realized profit for a closing trade. Amount is the quote
// notional committed at entry, so profit is the price return applied to that
// notional, NOT the raw price difference times Amount: Amount is not a base
// quantity, so (close-entry)*Amount would overstate profit by a factor of the
// entry price. Keeps profit consistent with profitPercent:
// profit == profitPercent/100 * Amount.
// SELL is the short side: profit when the close price is below entry.
func closePnL(trade *domain.Trade, closePrice float64) (profit, profitPercent float64) {
	ret := (closePrice - trade.EntryPrice) / trade.EntryPrice
	if trade.Type == domain.Sell {
		ret = -ret
	}
	return ret * trade.Amount, ret * 100
}

func crossedFavorably(side domain.OrderSide, price, target float64) bool {
	if side == domain.Sell {
		return price <= target
	}
	return price >= target
}

func crossedAdversely(side domain.OrderSide, price, stop float64) bool {
	if side == domain.Sell {
		return price >= stop
	}
	return price <= stop
}
