package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTTPSource fetches quotes from a JSON provider endpoint. The endpoint is
// expected to answer GET {base_url}/quote?symbol=X with
// {"symbol": "...", "price": 1.23, "timestamp": "RFC3339"}.
type HTTPSource struct {
	name        string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// HTTPSourceConfig holds configuration for one HTTP provider
type HTTPSourceConfig struct {
	Name               string
	BaseURL            string
	RateLimitPerMinute int
	TimeoutSeconds     int
}

// NewHTTPSource creates an HTTP source with request pacing and timeouts.
func NewHTTPSource(config HTTPSourceConfig) (*HTTPSource, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("http source name is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("http source %s: base URL is required", config.Name)
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 60
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}

	return &HTTPSource{
		name:    config.Name,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(config.RateLimitPerMinute)/60), 1),
	}, nil
}

func (h *HTTPSource) Name() string { return h.name }

// Fetch performs one paced request against the provider endpoint.
func (h *HTTPSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, NewBadSymbolError(symbol, "empty symbol")
	}

	if err := h.rateLimiter.Wait(ctx); err != nil {
		return nil, NewNetworkError(symbol, "rate limit wait cancelled", err)
	}

	requestURL := h.baseURL + "/quote?" + url.Values{"symbol": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, NewNetworkError(symbol, "failed to create request", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(symbol, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRateLimitError(symbol, "provider rate limit exceeded")
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewBadSymbolError(symbol, "symbol not known to provider")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewProviderError(symbol,
			fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var payload struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Timestamp string  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewProviderError(symbol, "failed to parse response", err)
	}

	ts := time.Now()
	if payload.Timestamp != "" {
		if parsed, perr := time.Parse(time.RFC3339, payload.Timestamp); perr == nil {
			ts = parsed
		}
	}

	quote := &Quote{
		Symbol:    symbol,
		Price:     payload.Price,
		Timestamp: ts,
		Source:    h.name,
	}
	if err := ValidateQuote(quote); err != nil {
		return nil, NewProviderError(symbol, "invalid quote payload", err)
	}
	return quote, nil
}
