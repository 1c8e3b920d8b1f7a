package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/config"
	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
	"tradedesk/internal/risk"
)

// Mock implementations

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockExchange struct {
	balance      float64
	balanceErr   error
	price        float64
	priceErr     error
	order        *ports.OrderResult
	orderErr     error
	orderCalls   int
	lastSymbol   string
	lastNotional float64
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return m.balance, m.balanceErr
}

func (m *mockExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, m.priceErr
}

func (m *mockExchange) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return &domain.Ticker{Symbol: symbol, Price: m.price}, m.priceErr
}

func (m *mockExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	return nil, nil
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quoteAmount float64) (*ports.OrderResult, error) {
	m.orderCalls++
	m.lastSymbol = symbol
	m.lastNotional = quoteAmount
	return m.order, m.orderErr
}

func (m *mockExchange) StreamTicker(ctx context.Context, symbol string, handler func(*domain.Ticker), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	return make(chan struct{}), make(chan struct{}), nil
}

type mockTradeRepo struct {
	trades     map[string]*domain.Trade
	seq        int
	createErr  error
	findErr    error
	closeErr   error
	closeCalls int

	// When set, the first CloseIfOpen reports ErrConflict after closing the
	// stored trade as if a concurrent closer had won.
	conflictReason domain.CloseReason
}

func newMockTradeRepo() *mockTradeRepo {
	return &mockTradeRepo{trades: make(map[string]*domain.Trade)}
}

func (m *mockTradeRepo) Create(ctx context.Context, trade *domain.Trade) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	id := "trade-" + time.Now().UTC().Format("20060102") + "-" + string(rune('0'+m.seq))
	stored := *trade
	stored.ID = id
	m.trades[id] = &stored
	return id, nil
}

func (m *mockTradeRepo) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	t, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTradeRepo) FindByUser(ctx context.Context, userID string, status domain.TradeStatus, limit int) ([]*domain.Trade, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.UserID != userID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockTradeRepo) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.IsOpen() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTradeRepo) CloseIfOpen(ctx context.Context, id string, patch ports.TradeClosePatch) error {
	m.closeCalls++
	if m.closeErr != nil {
		return m.closeErr
	}
	t, ok := m.trades[id]
	if !ok {
		return ports.ErrNotFound
	}
	if !t.IsOpen() {
		return ports.ErrConflict
	}
	if m.conflictReason != "" {
		t.Status = domain.StatusClosed
		t.CloseReason = m.conflictReason
		t.ClosedAt = time.Now().UTC()
		m.conflictReason = ""
		return ports.ErrConflict
	}
	t.Status = domain.StatusClosed
	t.ClosedAt = patch.ClosedAt
	t.ClosedPrice = patch.ClosedPrice
	t.Profit = patch.Profit
	t.ProfitPercent = patch.ProfitPercent
	t.CloseReason = patch.CloseReason
	return nil
}

type stubBalances struct {
	start float64
	err   error
}

func (s *stubBalances) GetOrCreateStartingBalance(ctx context.Context, userID string, day time.Time, current float64) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.start > 0 {
		return s.start, nil
	}
	return current, nil
}

type recordingMetrics struct {
	executed  int
	rejected  int
	failed    int
	closed    int
	openGauge int
}

func (m *recordingMetrics) TradeExecuted(symbol string)                       { m.executed++ }
func (m *recordingMetrics) TradeRejected(symbol, reason string)               { m.rejected++ }
func (m *recordingMetrics) TradeFailed(symbol string)                         { m.failed++ }
func (m *recordingMetrics) TradeClosed(symbol, reason string, profit float64) { m.closed++ }
func (m *recordingMetrics) ObserveDrawdown(userID string, pct float64)        {}
func (m *recordingMetrics) SetOpenTrades(n int)                               { m.openGauge = n }

type serviceFixture struct {
	service  *TradeService
	exchange *mockExchange
	repo     *mockTradeRepo
	balances *stubBalances
	metrics  *recordingMetrics
	logger   *mockLogger
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := &config.Config{
		QuoteAsset:   "USDT",
		OrderTimeout: 5 * time.Second,
	}
	sizer, err := risk.NewSizer(risk.SizerConfig{MaxExposurePercent: 10, DefaultPositionSizePercent: 50})
	require.NoError(t, err)
	balances := &stubBalances{}
	guard, err := risk.NewGuard(risk.GuardConfig{MaxDailyDrawdownPercent: 5}, balances)
	require.NoError(t, err)

	exchange := &mockExchange{balance: 10000}
	repo := newMockTradeRepo()
	metrics := &recordingMetrics{}
	logger := &mockLogger{}

	service, err := NewTradeService(cfg, logger, exchange, repo, sizer, guard, metrics)
	require.NoError(t, err)

	return &serviceFixture{
		service:  service,
		exchange: exchange,
		repo:     repo,
		balances: balances,
		metrics:  metrics,
		logger:   logger,
	}
}

func buyAnalysis() *domain.AIAnalysis {
	return &domain.AIAnalysis{
		Recommendation:    domain.RecommendationBuy,
		TakeProfitPercent: 4,
		StopLossPercent:   2,
		RiskScore:         1,
		Explanation:       "uptrend with strong volume",
	}
}

func TestNewTradeService_Validation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := NewTradeService(nil, f.logger, f.exchange, f.repo, nil, nil, f.metrics)
	assert.Error(t, err)
}

func TestExecuteTrade_Buy(t *testing.T) {
	f := newServiceFixture(t)
	// Two partial fills average out to an entry of 105.
	f.exchange.order = &ports.OrderResult{
		OrderID: 42,
		Status:  "FILLED",
		Fills: []ports.Fill{
			{Price: 100, Quantity: 1},
			{Price: 110, Quantity: 1},
		},
		ExecutedQty: 2,
		QuoteSpent:  210,
	}

	res, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.NoError(t, err)
	require.Equal(t, OutcomeExecuted, res.Status)
	require.NotNil(t, res.Trade)

	// Kelly at 10% exposure cap on a 10000 balance sizes the trade at 1000.
	assert.InDelta(t, 1000.0, res.Parameters.PositionSize, 1e-9)
	assert.InDelta(t, 1000.0, f.exchange.lastNotional, 1e-9)

	trade := res.Trade
	assert.NotEmpty(t, trade.ID)
	assert.InDelta(t, 105.0, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 105.0*1.04, trade.TargetPrice, 1e-9)
	assert.InDelta(t, 105.0*0.98, trade.StopLossPrice, 1e-9)
	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.Equal(t, domain.ModeAuto, trade.Mode)
	require.NotNil(t, trade.Analysis)
	assert.Equal(t, domain.RecommendationBuy, trade.Analysis.Recommendation)

	stored, err := f.repo.FindByID(context.Background(), trade.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, f.metrics.executed)
}

func TestExecuteTrade_Hold(t *testing.T) {
	f := newServiceFixture(t)
	analysis := buyAnalysis()
	analysis.Recommendation = domain.RecommendationHold

	res, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", analysis)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHold, res.Status)
	assert.Equal(t, 0, f.exchange.orderCalls)
	assert.Empty(t, f.repo.trades)
}

func TestExecuteTrade_SellUnsupported(t *testing.T) {
	f := newServiceFixture(t)
	analysis := buyAnalysis()
	analysis.Recommendation = domain.RecommendationSell

	res, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", analysis)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSellUnsupported, res.Status)
	assert.Equal(t, 0, f.exchange.orderCalls)
}

func TestExecuteTrade_GuardRejected(t *testing.T) {
	f := newServiceFixture(t)
	// Day started at 10000 and the account is down to 9500: a 5% drawdown
	// already, so any further risk breaches the 5% budget.
	f.balances.start = 10000
	f.exchange.balance = 9500

	res, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Status)
	assert.NotNil(t, res.Check)
	assert.Equal(t, domain.GuardRejected, res.Check.Decision)
	assert.NotEmpty(t, res.Message)

	assert.Equal(t, 0, f.exchange.orderCalls)
	assert.Empty(t, f.repo.trades)
	assert.Equal(t, 1, f.metrics.rejected)
}

func TestExecuteTrade_GuardUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.balances.err = errors.New("db locked")

	_, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRiskCheckUnavailable)
	assert.Equal(t, 0, f.exchange.orderCalls)
}

func TestExecuteTrade_BalanceError(t *testing.T) {
	f := newServiceFixture(t)
	f.exchange.balanceErr = ports.ErrUnavailable

	_, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnavailable)
}

func TestExecuteTrade_OrderFails(t *testing.T) {
	f := newServiceFixture(t)
	f.exchange.orderErr = ports.ErrInsufficientFunds

	_, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.Empty(t, f.repo.trades)
	assert.Equal(t, 1, f.metrics.failed)
}

func TestExecuteTrade_NoFills(t *testing.T) {
	f := newServiceFixture(t)
	f.exchange.order = &ports.OrderResult{OrderID: 7, Status: "EXPIRED"}

	_, err := f.service.ExecuteTrade(context.Background(), "user-1", "ETHUSDT", buyAnalysis())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrExecutionFailed)
	assert.Empty(t, f.repo.trades)
}

func seedOpenTrade(f *serviceFixture) *domain.Trade {
	trade := &domain.Trade{
		UserID:        "user-1",
		Symbol:        "ETHUSDT",
		Type:          domain.Buy,
		Amount:        1000,
		EntryPrice:    100,
		TargetPrice:   110,
		StopLossPrice: 95,
		Status:        domain.StatusOpen,
		Mode:          domain.ModeAuto,
		CreatedAt:     time.Now().UTC(),
	}
	id, _ := f.repo.Create(context.Background(), trade)
	trade.ID = id
	return trade
}

func TestCloseTrade_AtMarketPrice(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 110

	closed, err := f.service.CloseTrade(context.Background(), trade.ID, nil, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.InDelta(t, 110.0, closed.ClosedPrice, 1e-9)
	// +10% on a 1000 notional.
	assert.InDelta(t, 100.0, closed.Profit, 1e-9)
	assert.InDelta(t, 10.0, closed.ProfitPercent, 1e-9)
	assert.Equal(t, domain.CloseReasonManual, closed.CloseReason)
	assert.Equal(t, 1, f.metrics.closed)
}

func TestCloseTrade_Idempotent(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 108

	first, err := f.service.CloseTrade(context.Background(), trade.ID, nil, domain.CloseReasonManual)
	require.NoError(t, err)

	second, err := f.service.CloseTrade(context.Background(), trade.ID, nil, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Equal(t, first.ClosedPrice, second.ClosedPrice)
	assert.Equal(t, first.CloseReason, second.CloseReason)
	assert.Equal(t, 1, f.repo.closeCalls)
	assert.Equal(t, 1, f.metrics.closed)
}

func TestCloseTrade_LostRace(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 108
	f.repo.conflictReason = domain.CloseReasonTakeProfit

	closed, err := f.service.CloseTrade(context.Background(), trade.ID, nil, domain.CloseReasonManual)
	require.NoError(t, err)
	// The concurrent closer's state wins.
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.CloseReasonTakeProfit, closed.CloseReason)
	assert.Equal(t, 0, f.metrics.closed)
}

func TestCloseTrade_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CloseTrade(context.Background(), "missing", nil, domain.CloseReasonManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestEvaluateOpenTrade_TakeProfit(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	// Price gapped past the target; the trade still closes at the target.
	f.exchange.price = 112

	eval, err := f.service.EvaluateOpenTrade(context.Background(), trade)
	require.NoError(t, err)
	require.True(t, eval.Closed)
	assert.Equal(t, domain.CloseReasonTakeProfit, eval.CloseReason)
	assert.InDelta(t, 110.0, eval.Trade.ClosedPrice, 1e-9)
	assert.InDelta(t, 100.0, eval.Trade.Profit, 1e-9)
}

func TestEvaluateOpenTrade_StopLoss(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 94

	eval, err := f.service.EvaluateOpenTrade(context.Background(), trade)
	require.NoError(t, err)
	require.True(t, eval.Closed)
	assert.Equal(t, domain.CloseReasonStopLoss, eval.CloseReason)
	assert.InDelta(t, 95.0, eval.Trade.ClosedPrice, 1e-9)
	assert.InDelta(t, -50.0, eval.Trade.Profit, 1e-9)
}

func TestEvaluateOpenTrade_NoAction(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 105

	eval, err := f.service.EvaluateOpenTrade(context.Background(), trade)
	require.NoError(t, err)
	assert.False(t, eval.Closed)
	assert.InDelta(t, 105.0, eval.CurrentPrice, 1e-9)

	stored, err := f.repo.FindByID(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())
}

func TestGetUserTrades_DefaultLimit(t *testing.T) {
	f := newServiceFixture(t)
	seedOpenTrade(f)

	trades, err := f.service.GetUserTrades(context.Background(), "user-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	_, err = f.service.GetUserTrades(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestPortfolioSummary(t *testing.T) {
	f := newServiceFixture(t)
	trade := seedOpenTrade(f)
	f.exchange.price = 110
	_, err := f.service.CloseTrade(context.Background(), trade.ID, nil, domain.CloseReasonManual)
	require.NoError(t, err)

	summary, err := f.service.PortfolioSummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalTrades)
	assert.Equal(t, 1, summary.ClosedTrades)
	assert.InDelta(t, 100.0, summary.NetProfit, 1e-9)
}
