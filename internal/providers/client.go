package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "macrodb/0.1"

	maxErrorBody = 512
)

type HTTPConfig struct {
	Timeout         time.Duration
	UserAgent       string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Client performs the single GET each adapter issues per source.
type Client struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg HTTPConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		if cfg.RateLimitBurst <= 0 {
			cfg.RateLimitBurst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Get returns the response body of a 2xx response. Everything else is a *TransportError.
func (c *Client) Get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: endpoint, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{URL: endpoint, Err: err}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
