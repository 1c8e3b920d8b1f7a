// Package sentiment derives news sentiment from the CryptoPanic posts API.
package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"tradedesk/internal/ports"
)

const (
	defaultBaseURL = "https://cryptopanic.com/api/v1"
	maxHeadlines   = 5
)

// Client fetches recent posts for an asset and votes them into an overall
// positive/negative/neutral call.
type Client struct {
	http   *resty.Client
	token  string
	logger ports.Logger
}

// Config holds configuration for the CryptoPanic client.
type Config struct {
	Token   string // Free-tier auth token; empty disables the source
	BaseURL string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a CryptoPanic-backed sentiment source.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for sentiment client")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		token:  cfg.Token,
		logger: cfg.Logger,
	}, nil
}

type postsResponse struct {
	Results []struct {
		Title string `json:"title"`
		Votes struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"votes"`
	} `json:"results"`
}

// GetSentiment returns the overall news sentiment for an asset (e.g. "ETH").
// Without a token it reports neutral rather than failing.
func (c *Client) GetSentiment(ctx context.Context, asset string) (ports.Sentiment, error) {
	op := "GetSentiment"
	if c.token == "" {
		c.logger.Debug(ctx, op+": no CryptoPanic token configured, reporting neutral")
		return ports.Sentiment{Overall: "neutral"}, nil
	}

	var out postsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"auth_token": c.token,
			"currencies": asset,
			"public":     "true",
		}).
		SetResult(&out).
		Get("/posts/")
	if err != nil {
		return ports.Sentiment{}, fmt.Errorf("%s failed: %w: %w", op, ports.ErrUnavailable, err)
	}
	if resp.IsError() {
		return ports.Sentiment{}, fmt.Errorf("%s failed with status %d: %w", op, resp.StatusCode(), ports.ErrUnavailable)
	}

	var positive, negative int
	headlines := make([]string, 0, maxHeadlines)
	for i, post := range out.Results {
		if i >= maxHeadlines {
			break
		}
		headlines = append(headlines, post.Title)
		switch {
		case post.Votes.Negative > post.Votes.Positive:
			negative++
		case post.Votes.Positive > post.Votes.Negative:
			positive++
		}
	}

	overall := "neutral"
	if positive > negative {
		overall = "positive"
	} else if negative > positive {
		overall = "negative"
	}

	c.logger.Debug(ctx, op+": sentiment computed", map[string]interface{}{
		"asset": asset, "overall": overall, "headlines": len(headlines),
	})
	return ports.Sentiment{Overall: overall, Headlines: headlines}, nil
}
