package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"stock-portfolio-go/internal/config"
	"stock-portfolio-go/internal/valuation"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// barTimeFormat is the timestamp layout used by the historical bars feed.
const barTimeFormat = "2006-01-02 15:04:05"

// RestClientInterface defines the interface for the market data provider.
type RestClientInterface interface {
	GetQuote(symbol string) (float64, error)
	GetHistoricalBars(symbol string) ([]valuation.DailyBar, error)
	GetIndexes() ([]IndexQuote, error)
	GetTopNews() ([]NewsItem, error)
}

// RestClient is a client for the market data REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new market data REST API client.
func NewRestClient(cfg *config.MarketData, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("marketdata"),
		limiter: limiter,
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// quoteResponse is the provider's real-time quote payload.
type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// GetQuote fetches the current price for a single symbol.
func (c *RestClient) GetQuote(symbol string) (float64, error) {
	req := c.client.R().
		SetResult(&quoteResponse{}).
		SetQueryParam("symbol", symbol).
		SetQueryParam("apikey", c.apiKey)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/quote", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	result := resp.Result().(*quoteResponse)
	return result.Price, nil
}

// historicalBar is one raw intraday bar as delivered by the provider.
// Timestamps arrive as "YYYY-MM-DD HH:MM:SS" strings; order is not
// guaranteed.
type historicalBar struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// GetHistoricalBars fetches the intraday bar series for a symbol. The
// returned order matches the provider's; callers normalize before use.
func (c *RestClient) GetHistoricalBars(symbol string) ([]valuation.DailyBar, error) {
	var raw []historicalBar

	req := c.client.R().
		SetResult(&raw).
		SetQueryParam("apikey", c.apiKey).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/historical/"+symbol, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical bars for %s: %w", symbol, err)
	}

	result := resp.Result().(*[]historicalBar)
	bars := make([]valuation.DailyBar, 0, len(*result))
	for _, b := range *result {
		ts, err := time.Parse(barTimeFormat, b.Date)
		if err != nil {
			c.logger.Warn("Skipping bar with unparseable timestamp",
				zap.String("symbol", symbol), zap.String("date", b.Date))
			continue
		}
		bars = append(bars, valuation.DailyBar{Date: ts, Close: b.Close})
	}

	return bars, nil
}

// IndexQuote is a market index snapshot for the feed page.
type IndexQuote struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// GetIndexes fetches the major market index quotes.
func (c *RestClient) GetIndexes() ([]IndexQuote, error) {
	var indexes []IndexQuote

	req := c.client.R().
		SetResult(&indexes).
		SetQueryParam("apikey", c.apiKey).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/indexes", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes: %w", err)
	}

	return *resp.Result().(*[]IndexQuote), nil
}

// NewsItem is one headline for the feed page.
type NewsItem struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ImageURL    string `json:"urlToImage"`
}

// GetTopNews fetches today's top business headlines.
func (c *RestClient) GetTopNews() ([]NewsItem, error) {
	var news []NewsItem

	req := c.client.R().
		SetResult(&news).
		SetQueryParam("apikey", c.apiKey).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/news", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get news: %w", err)
	}

	return *resp.Result().(*[]NewsItem), nil
}
