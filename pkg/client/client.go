// Package client provides the rate-limited HTTP client the scraper issues
// every upstream request through. Concurrency is bounded by a fixed permit
// pool, each attempt is preceded by a fixed throttle delay, and transient
// failures (timeout, 429, 5xx, connection errors) are retried with jittered
// exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/logging"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_http_requests_total",
		Help: "Total HTTP request attempts by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_http_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_http_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_http_retry_exhausted_total",
		Help: "Total number of requests that exhausted all retry attempts",
	})

	permitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_http_permit_wait_seconds",
		Help:    "Time spent waiting for a concurrency permit",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})
)

// Config holds the client configuration.
type Config struct {
	// UserAgent sent with every request.
	UserAgent string

	// Headers are extra headers applied to every request.
	Headers map[string]string

	// MaxConcurrency bounds in-flight requests across all callers.
	MaxConcurrency int

	// RequestDelay is the fixed throttle applied before every attempt,
	// even when a permit is immediately available.
	RequestDelay time.Duration

	// MaxAttempts caps attempts per request, including the first.
	MaxAttempts int

	// InitialBackoff is the base for exponential retry backoff.
	InitialBackoff time.Duration

	// MaxBackoff caps a single backoff wait.
	MaxBackoff time.Duration

	// RequestTimeout bounds one whole attempt.
	RequestTimeout time.Duration

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:      "jobnet-az-scraper/1.0",
		MaxConcurrency: 10,
		RequestDelay:   75 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Client is a rate-limited JSON HTTP client.
type Client struct {
	httpClient *http.Client
	permits    chan struct{}
	cfg        Config
	logger     zerolog.Logger
}

// New creates a client. Zero config fields fall back to defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.ConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		permits: make(chan struct{}, cfg.MaxConcurrency),
		cfg:     cfg,
		logger:  logging.NewLogger("client"),
	}
}

// GetJSON performs a GET request and decodes the JSON response body.
// The call blocks until a concurrency permit is available; the permit is
// released on every return path, including cancellation and panics.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error) {
	waitStart := time.Now()
	select {
	case c.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire permit: %w", ctx.Err())
	}
	defer func() { <-c.permits }()
	permitWaitSeconds.Observe(time.Since(waitStart).Seconds())

	target := rawURL
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
		}
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var payload map[string]any
	err := c.withRetry(ctx, target, func() error {
		var attemptErr error
		payload, attemptErr = c.attempt(ctx, target)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// attempt performs a single throttled request and classifies any failure.
func (c *Client) attempt(ctx context.Context, target string) (map[string]any, error) {
	// Fixed inter-request throttle, applied even when permits are free.
	if c.cfg.RequestDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("throttle wait: %w", ctx.Err())
		case <-time.After(c.cfg.RequestDelay):
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug().Str("url", target).Msg("issuing request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			requestsTotal.WithLabelValues("canceled").Inc()
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		// Timeouts, resets, and other wire failures are all retryable.
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &FetchError{URL: target, Class: ClassTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &FetchError{URL: target, Class: ClassTransient, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		requestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("class", string(class)).
			Msg("request failed")
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode, Class: class}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		requestsTotal.WithLabelValues("malformed").Inc()
		return nil, &FetchError{
			URL:   target,
			Class: ClassPermanent,
			Err:   fmt.Errorf("%w: %v", ErrMalformedBody, err),
		}
	}

	requestsTotal.WithLabelValues("ok").Inc()
	return payload, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// MaxConcurrency exposes the configured permit pool size.
func (c *Client) MaxConcurrency() int {
	return cap(c.permits)
}
