package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader matches the header the simulator echoes back.
const requestIDHeader = "X-Request-ID"

// APIError is a non-2xx answer from the simulator.
type APIError struct {
	StatusCode int
	Message    string // "error" field of the body, or the status text
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("simulator api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a 404 from the simulator, such as an
// unknown ticker or group.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// retryable reports whether a failed attempt should be repeated. Transport
// errors are retried so a client can wait out a simulator restart.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

// delay returns the jittered wait before retry number attempt (1-based):
// base*2^(attempt-1), capped at ceiling, scaled by a factor in [0.5, 1.5).
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.base
	for i := 1; i < attempt && d < p.ceiling; i++ {
		d *= 2
	}
	if p.ceiling > 0 && d > p.ceiling {
		d = p.ceiling
	}
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

// send performs one GET and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, path, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RequestID:  resp.Header.Get(requestIDHeader),
			Body:       body,
		}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
		}
		return nil, apiErr
	}
	return body, nil
}

// fetch performs a GET with retries. Every attempt carries the same
// request id so server logs can be correlated.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.retry.max; attempt++ {
		if attempt > 0 {
			wait := c.retry.delay(attempt)
			c.logger.Debug("retrying request",
				"path", path,
				"request_id", requestID,
				"attempt", attempt,
				"backoff", wait,
				"error", lastErr,
			)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		body, err := c.send(ctx, path, requestID)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// getJSON fetches path and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.fetch(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
