package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/version"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultBackoff    = time.Second
	defaultMaxBackoff = 10 * time.Second
)

// Client queries a running simulator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	retry      retryPolicy
}

// retryPolicy is exponential backoff with jitter, capped at ceiling.
type retryPolicy struct {
	max     int
	base    time.Duration
	ceiling time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for the simulator at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		userAgent:  "stocksim-client/" + version.Version,
		retry: retryPolicy{
			max:     defaultRetries,
			base:    defaultBackoff,
			ceiling: defaultMaxBackoff,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how many times a failed request is retried and the
// delay before the first retry. The delay doubles per retry.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retry.max = max
		c.retry.base = backoff
	}
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.retry.ceiling = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}
