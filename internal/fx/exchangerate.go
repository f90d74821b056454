package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

const (
	// DefaultBaseURL is the exchangerate-api v6 endpoint root.
	DefaultBaseURL = "https://v6.exchangerate-api.com/v6"

	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 2
	defaultBackoff    = 500 * time.Millisecond
)

// Config configures an ExchangeRateClient.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration // per request
	MaxRetries int           // retries after the first attempt on transient failures
	Backoff    time.Duration // multiplied by the attempt number
	HTTPClient *http.Client
}

// ExchangeRateClient looks up pair rates from exchangerate-api and caches them per pair
// for the lifetime of the client.
type ExchangeRateClient struct {
	apiKey     string
	baseURL    string
	maxRetries int
	backoff    time.Duration
	http       *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// NewExchangeRateClient creates a client. It fails when no API key is given.
func NewExchangeRateClient(cfg Config) (*ExchangeRateClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("NewExchangeRateClient: EXCHANGE_RATE_API_KEY is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &ExchangeRateClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		http:       httpClient,
		rates:      make(map[string]decimal.Decimal),
	}, nil
}

// Convert returns amount expressed in the to currency. Identical codes skip the lookup.
func (c *ExchangeRateClient) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	from, to = normalizeCode(from), normalizeCode(to)
	if from == to {
		return amount, nil
	}

	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Rate returns the rate for one unit of from in to. Concurrent lookups of the same pair share one request.
func (c *ExchangeRateClient) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := from + "/" + to

	c.mu.RLock()
	rate, ok := c.rates[key]
	c.mu.RUnlock()
	if ok {
		return rate, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.rates[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		rate, err := c.fetchWithRetry(ctx, from, to)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rates[key] = rate
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// retryableError marks failures worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *ExchangeRateClient) fetchWithRetry(ctx context.Context, from, to string) (decimal.Decimal, error) {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.backoff
			log.Debug().
				Err(lastErr).
				Str("pair", from+"/"+to).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying exchange rate lookup")

			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		rate, err := c.fetch(ctx, from, to)
		if err == nil {
			return rate, nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) {
			break
		}
	}
	return decimal.Zero, fmt.Errorf("Rate %s/%s: %w", from, to, lastErr)
}

func (c *ExchangeRateClient) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/%s/pair/%s/%s", c.baseURL, url.PathEscape(c.apiKey), url.PathEscape(from), url.PathEscape(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		// The URL carries the API key, keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		// Transport failures, including the client timeout, are transient.
		return decimal.Zero, &retryableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, &retryableError{err: fmt.Errorf("rate service returned %s", resp.Status)}
	}

	var body pairResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}

	if body.Result != "success" {
		reason := body.ErrorType
		if reason == "" {
			reason = resp.Status
		}
		return decimal.Zero, fmt.Errorf("%w: %s", ErrConversionRejected, reason)
	}
	if !body.ConversionRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrConversionRejected, body.ConversionRate)
	}
	return body.ConversionRate, nil
}
