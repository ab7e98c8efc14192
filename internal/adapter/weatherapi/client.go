// Package weatherapi fetches current conditions from weatherapi.com.
package weatherapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
)

// DefaultBaseURL is the public weatherapi.com v1 endpoint.
const DefaultBaseURL = "https://api.weatherapi.com/v1"

// maxBodyBytes bounds how much of a response is read into memory.
const maxBodyBytes = 1 << 20

// Client implements domain.WeatherSource.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewClient creates a weatherapi.com client. Network errors, 429 and 5xx
// responses are retried up to maxRetries times with exponential backoff.
func NewClient(apiKey, baseURL string, timeout time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger,
	}
}

// Fetch returns the raw current.json body for a city.
func (c *Client) Fetch(ctx context.Context, entity string) ([]byte, error) {
	params := url.Values{
		"key": {c.apiKey},
		"q":   {entity},
	}
	fullURL := c.baseURL + "/current.json?" + params.Encode()

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(max(c.maxRetries, 0))), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("weather request failed, retrying", "entity", entity, "error", err, "backoff", wait)
	}

	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		return c.doRequest(ctx, fullURL, entity)
	}, b, notify)
}

func (c *Client) doRequest(ctx context.Context, fullURL, entity string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("current weather request for %s: %w", entity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := &domain.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if retryable(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}
	return body, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

