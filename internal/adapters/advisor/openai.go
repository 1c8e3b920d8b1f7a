// Package advisor implements the AI recommendation oracle on the OpenAI
// chat-completions API.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"

	systemPrompt = "You are a professional cryptocurrency trader and analyst specialized in technical and fundamental analysis."
)

// Client calls the OpenAI chat-completions endpoint and parses the JSON
// analysis out of the reply.
type Client struct {
	http   *resty.Client
	model  string
	logger ports.Logger
}

// Config holds configuration for the OpenAI advisor.
type Config struct {
	APIKey  string
	BaseURL string // Defaults to the public OpenAI endpoint
	Model   string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates an OpenAI-backed advisor.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for advisor client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: advisor API key is required", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, model: model, logger: cfg.Logger}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// analysisPayload mirrors the JSON object the model is instructed to return.
type analysisPayload struct {
	Recommendation    string  `json:"recommendation"`
	TakeProfitPercent float64 `json:"takeProfitPercent"`
	StopLossPercent   float64 `json:"stopLossPercent"`
	RiskScore         int     `json:"riskScore"`
	Explanation       string  `json:"explanation"`
}

// Analyze asks the model for a recommendation given the market snapshot.
func (c *Client) Analyze(ctx context.Context, symbol string, ticker *domain.Ticker, ind ports.TechnicalIndicators, sentiment ports.Sentiment) (*domain.AIAnalysis, error) {
	op := "Analyze"
	if ticker == nil {
		return nil, fmt.Errorf("%w: ticker is required", ports.ErrInvalidRequest)
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(symbol, ticker, ind, sentiment)},
		},
	}
	req.ResponseFormat.Type = "json_object"

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if resp.IsError() {
		apiMsg := ""
		if out.Error != nil {
			apiMsg = out.Error.Message
		}
		return nil, c.handleStatus(ctx, resp.StatusCode(), apiMsg, op)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: advisor returned no choices", ports.ErrInvalidAnalysis)
	}

	var payload analysisPayload
	content := out.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		c.logger.Error(ctx, err, op+": failed to parse advisor reply", map[string]interface{}{"symbol": symbol})
		return nil, fmt.Errorf("%w: advisor reply is not valid JSON: %v", ports.ErrInvalidAnalysis, err)
	}

	analysis := &domain.AIAnalysis{
		Recommendation:    domain.Recommendation(strings.ToUpper(payload.Recommendation)),
		TakeProfitPercent: payload.TakeProfitPercent,
		StopLossPercent:   payload.StopLossPercent,
		RiskScore:         payload.RiskScore,
		Explanation:       payload.Explanation,
	}
	c.logger.Debug(ctx, op+": advisor replied", map[string]interface{}{
		"symbol": symbol, "recommendation": analysis.Recommendation, "riskScore": analysis.RiskScore,
	})
	return analysis, nil
}

func buildPrompt(symbol string, ticker *domain.Ticker, ind ports.TechnicalIndicators, sentiment ports.Sentiment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional cryptocurrency analyst and trader. Analyze the following data for %s and provide:\n\n", symbol)
	b.WriteString("1. A clear BUY, SELL, or HOLD recommendation\n")
	b.WriteString("2. Take profit (TP) and stop loss (SL) levels with percentages\n")
	b.WriteString("3. A risk score from 1-10 (10 being highest risk)\n")
	b.WriteString("4. A brief explanation (max 3 sentences) for your recommendation\n\n")

	fmt.Fprintf(&b, "Market Data:\n")
	fmt.Fprintf(&b, "- Current Price: %g\n", ticker.Price)
	fmt.Fprintf(&b, "- 24h Change: %.2f%%\n", ticker.PriceChangePercent)
	fmt.Fprintf(&b, "- Volume: %g\n", ticker.Volume)
	fmt.Fprintf(&b, "- 24h High: %g\n", ticker.High)
	fmt.Fprintf(&b, "- 24h Low: %g\n\n", ticker.Low)

	fmt.Fprintf(&b, "Technical Indicators:\n")
	fmt.Fprintf(&b, "- RSI (14): %.2f\n", ind.RSI)
	fmt.Fprintf(&b, "- MACD Line: %.4f\n", ind.MACD)
	fmt.Fprintf(&b, "- MACD Signal: %.4f\n", ind.MACDSignal)
	fmt.Fprintf(&b, "- MACD Histogram: %.4f\n\n", ind.MACDHistogram)

	fmt.Fprintf(&b, "Market Sentiment:\n")
	fmt.Fprintf(&b, "- News Sentiment: %s\n", sentiment.Overall)
	fmt.Fprintf(&b, "- Latest Headlines: %s\n\n", strings.Join(sentiment.Headlines, " | "))

	b.WriteString("Format your response as JSON with the following fields:\n")
	b.WriteString(`{"recommendation": "BUY|SELL|HOLD", "takeProfitPercent": number, "stopLossPercent": number, "riskScore": number, "explanation": "string"}`)
	return b.String()
}

func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	c.logger.Error(ctx, err, operation+" failed", fields)

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	}
	if ctx.Err() == context.Canceled {
		return fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	}
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnavailable, err)
}

func (c *Client) handleStatus(ctx context.Context, status int, apiMsg, operation string) error {
	fields := map[string]interface{}{"operation": operation, "status": status, "apiMessage": apiMsg}

	var mappedErr error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		mappedErr = ports.ErrAuthenticationFailed
	case status == http.StatusTooManyRequests:
		mappedErr = ports.ErrRateLimited
	case status >= 500:
		mappedErr = ports.ErrUnavailable
	default:
		mappedErr = ports.ErrUnknown
	}
	err := fmt.Errorf("%s failed with status %d: %w: %s", operation, status, mappedErr, apiMsg)
	c.logger.Error(ctx, err, operation+" failed with API error", fields)
	return err
}
