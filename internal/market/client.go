package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DataClient defines the interface for the market data collaborator
type DataClient interface {
	GetKlines(symbol, interval string, limit int) ([]Candle, error)
	GetKlinesSince(symbol, interval string, startTime int64, limit int) ([]Candle, error)
	GetCurrentPrice(symbol string) (float64, error)
}

// Ensure both Client and MockClient implement DataClient
var _ DataClient = (*Client)(nil)
var _ DataClient = (*MockClient)(nil)

// Client fetches market data from a Binance-style REST API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

// NewClient creates a new market data client with default retry settings
func NewClient(baseURL string) *Client {
	return NewClientWithRetry(baseURL, 3, 250*time.Millisecond)
}

// NewClientWithRetry creates a client with explicit retry settings.
// Transport errors and 5xx responses are retried with doubling backoff.
func NewClientWithRetry(baseURL string, maxRetries int, retryBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBase <= 0 {
		retryBase = 250 * time.Millisecond
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// WithAPIKey attaches an exchange API key to every request. Public market
// data endpoints work without one, but keyed requests get higher rate
// limits.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// get performs a GET with bounded retries. 4xx responses are not retried,
// the API is telling us the request itself is wrong.
func (c *Client) get(endpoint string) ([]byte, error) {
	delay := c.retryBase
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}

		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, lastErr
}

// GetKlines fetches the most recent candles for a symbol
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Candle, error) {
	return c.getKlines(symbol, interval, 0, limit)
}

// GetKlinesSince fetches candles opening at or after startTime (unix ms)
func (c *Client) GetKlinesSince(symbol, interval string, startTime int64, limit int) ([]Candle, error) {
	return c.getKlines(symbol, interval, startTime, limit)
}

func (c *Client) getKlines(symbol, interval string, startTime int64, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:  int64(asFloat(raw[0])),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(asFloat(raw[6])),
		})
	}

	return candles, nil
}

// GetCurrentPrice fetches the latest trade price for a symbol
func (c *Client) GetCurrentPrice(symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, symbol)

	body, err := c.get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("error parsing ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing price %q: %w", ticker.Price, err)
	}

	return price, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
