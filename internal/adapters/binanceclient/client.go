// Package binanceclient adapts the Binance spot API to ports.ExchangeClient.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	spotClient           *binance.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Initial websocket reconnect delay
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Public endpoints still work; private calls will fail with auth errors.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		spotClient:           client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1121, -1130, -1131: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected (includes insufficient balance on spot)
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrExecutionFailed
			}
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrExecutionFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Non-API errors: network, context cancellation, parsing.
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnavailable, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetAccountBalance retrieves the free balance for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			// Free balance only; locked funds back open orders.
			balance, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	err = fmt.Errorf("asset %s not found in account balance", asset)
	return 0, c.handleError(ctx, err, op)
}

// GetCurrentPrice retrieves the last traded price for a given symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetCurrentPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetTicker retrieves the 24h rolling window statistics for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "GetTicker"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return nil, c.handleError(ctx, err, op)
	}

	ticker, err := translatePriceChangeStats(stats[0])
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return ticker, nil
}

// GetCandles retrieves historical candlestick data for the given symbol.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetCandles"
	klines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical candle: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// PlaceMarketOrder places a spot market order. For BUY orders the amount is
// the quote notional to spend (QuoteOrderQty); for SELL it is the base
// quantity to sell.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount float64) (*ports.OrderResult, error) {
	op := "PlaceMarketOrder"
	if amount <= 0 {
		return nil, c.handleError(ctx, fmt.Errorf("order amount must be positive, got %f", amount), op)
	}

	svc := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket)

	amountStr := strconv.FormatFloat(amount, 'f', 8, 64)
	if side == domain.Buy {
		svc = svc.QuoteOrderQty(amountStr)
	} else {
		svc = svc.Quantity(amountStr)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result, err := translateOrderResponse(order)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "amount": amount,
		"orderID": result.OrderID, "avgPrice": result.AverageFillPrice(), "status": result.Status,
	})
	return result, nil
}

// StreamTicker starts a WebSocket stream of 24h ticker updates for a symbol,
// reconnecting with exponential backoff when the connection drops.
func (c *Client) StreamTicker(ctx context.Context, symbol string, handler func(t *domain.Ticker), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTicker"
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *binance.WsMarketStatEvent) {
		ticker, err := translateWsMarketStat(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": failed to translate ticker event")
			return
		}
		handler(ticker)
	}
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		errHandler(translatedErr)
	}

	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": context cancelled, stopping connection attempts", map[string]interface{}{"symbol": symbol})
				return
			default:
				innerDoneCh, innerStopCh, connectErr := binance.WsMarketStatServe(symbol, binanceHandler, binanceErrHandler)
				if connectErr != nil {
					c.handleError(wsCtx, connectErr, op+" connection attempt")
					attempt++
					if attempt >= c.maxReconnectAttempts {
						c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{"symbol": symbol, "maxAttempts": c.maxReconnectAttempts})
						return
					}

					delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
					c.logger.Info(wsCtx, op+": connection failed, retrying", map[string]interface{}{"symbol": symbol, "attempt": attempt + 1, "delay": delay.String()})
					select {
					case <-time.After(delay):
						continue
					case <-wsCtx.Done():
						return
					}
				}

				c.logger.Info(wsCtx, op+": WebSocket connection established", map[string]interface{}{"symbol": symbol})
				attempt = 0

				select {
				case <-innerDoneCh:
					c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly, reconnecting", map[string]interface{}{"symbol": symbol})
				case <-wsCtx.Done():
					select {
					case innerStopCh <- struct{}{}:
					default:
					}
					return
				}
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *binance.CreateOrderResponse) (*ports.OrderResult, error) {
	if order == nil {
		return nil, errors.New("received nil order response")
	}

	execQty, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing executed quantity '%s': %w", order.ExecutedQuantity, err)
	}
	quoteSpent, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing cumulative quote quantity '%s': %w", order.CummulativeQuoteQuantity, err)
	}

	fills := make([]ports.Fill, 0, len(order.Fills))
	for _, f := range order.Fills {
		price, err := strconv.ParseFloat(f.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing fill price '%s': %w", f.Price, err)
		}
		qty, err := strconv.ParseFloat(f.Quantity, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing fill quantity '%s': %w", f.Quantity, err)
		}
		fills = append(fills, ports.Fill{Price: price, Quantity: qty})
	}

	return &ports.OrderResult{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		Side:        domain.OrderSide(order.Side),
		Fills:       fills,
		ExecutedQty: execQty,
		QuoteSpent:  quoteSpent,
		Status:      string(order.Status),
		Timestamp:   time.UnixMilli(order.TransactTime),
	}, nil
}

func translatePriceChangeStats(stats *binance.PriceChangeStats) (*domain.Ticker, error) {
	if stats == nil {
		return nil, errors.New("received nil price change stats")
	}
	price, err := strconv.ParseFloat(stats.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last price '%s': %w", stats.LastPrice, err)
	}
	change, err := strconv.ParseFloat(stats.PriceChange, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price change '%s': %w", stats.PriceChange, err)
	}
	changePct, err := strconv.ParseFloat(stats.PriceChangePercent, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price change percent '%s': %w", stats.PriceChangePercent, err)
	}
	high, err := strconv.ParseFloat(stats.HighPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", stats.HighPrice, err)
	}
	low, err := strconv.ParseFloat(stats.LowPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", stats.LowPrice, err)
	}
	volume, err := strconv.ParseFloat(stats.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", stats.Volume, err)
	}

	return &domain.Ticker{
		Symbol:             stats.Symbol,
		Price:              price,
		PriceChange:        change,
		PriceChangePercent: changePct,
		High:               high,
		Low:                low,
		Volume:             volume,
		Timestamp:          time.UnixMilli(stats.CloseTime),
	}, nil
}

func translateWsMarketStat(event *binance.WsMarketStatEvent) (*domain.Ticker, error) {
	if event == nil {
		return nil, errors.New("received nil market stat event")
	}
	price, err := strconv.ParseFloat(event.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last price '%s': %w", event.LastPrice, err)
	}
	change, err := strconv.ParseFloat(event.PriceChange, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price change '%s': %w", event.PriceChange, err)
	}
	changePct, err := strconv.ParseFloat(event.PriceChangePercent, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price change percent '%s': %w", event.PriceChangePercent, err)
	}
	high, err := strconv.ParseFloat(event.HighPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", event.HighPrice, err)
	}
	low, err := strconv.ParseFloat(event.LowPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", event.LowPrice, err)
	}
	volume, err := strconv.ParseFloat(event.BaseVolume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", event.BaseVolume, err)
	}

	return &domain.Ticker{
		Symbol:             event.Symbol,
		Price:              price,
		PriceChange:        change,
		PriceChangePercent: changePct,
		High:               high,
		Low:                low,
		Volume:             volume,
		Timestamp:          time.UnixMilli(event.Time),
	}, nil
}

func translateKline(k *binance.Kline, symbol, interval string) (*domain.Candle, error) {
	if k == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
