// Package lookup queries organization matching services for ROR IDs.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrTransient is returned when a service answered but could not serve the
// request. Such failures are retried.
var ErrTransient = errors.New("lookup: transient service error")

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
)

// Match is one organization candidate.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Matcher finds organizations for a free-text affiliation query. An empty
// result with a nil error means the service found nothing.
type Matcher interface {
	Match(ctx context.Context, query string) ([]Match, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, query string) ([]Match, error)

func (f MatcherFunc) Match(ctx context.Context, query string) ([]Match, error) {
	return f(ctx, query)
}

// ClientConfig configures the HTTP client shared by the service clients.
type ClientConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      DefaultTimeout,
		MaxRetries:   DefaultMaxRetries,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
		UserAgent:    "affil",
	}
}

// Client issues JSON GET requests with retries on network errors and
// 5xx/429 responses.
type Client struct {
	http      *retryablehttp.Client
	userAgent string
	retries   int
	waitMin   time.Duration
	waitMax   time.Duration
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax <= cfg.RetryWaitMin {
		cfg.RetryWaitMax = max(def.RetryWaitMax, 2*cfg.RetryWaitMin)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = slog.Default()
	return &Client{
		http:      rc,
		userAgent: cfg.UserAgent,
		retries:   cfg.MaxRetries,
		waitMin:   cfg.RetryWaitMin,
		waitMax:   cfg.RetryWaitMax,
	}
}

// getJSON fetches u and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("lookup: GET %s: %s", req.URL.Redacted(), resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("lookup: decode response: %w", err)
	}
	return nil
}
