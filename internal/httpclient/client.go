package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps a bounded *http.Client for provider adapters.
type Client struct {
	HTTP *http.Client
}

// NewClient builds a Client with the given per-request timeout. A
// provider's own deadline still governs via context; this timeout is a
// backstop.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Do issues req and classifies the response: 2xx is returned as-is;
// 429 becomes a RetryableError carrying Retry-After; 5xx becomes a
// RetryableError too (transient, retried once at the provider level);
// anything else is a plain error.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &RetryableError{Message: err.Error(), Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		info := ParseOpenAIRateLimitHeaders(resp.Header)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: info.RetryAfter,
		}
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}
