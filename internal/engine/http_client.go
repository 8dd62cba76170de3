package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects requests
var ErrCircuitOpen = errors.New("circuit breaker open")

type singleAttemptKey struct{}

// HTTPClientConfig holds configuration for the engine transport
type HTTPClientConfig struct {
	Timeout           time.Duration
	ConnectTimeout    time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RateLimit         float64 // requests per second
	CircuitBreakerMax int     // max consecutive failures before circuit break
	CircuitCooldown   time.Duration
}

// DefaultHTTPClientConfig returns recommended defaults
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           30 * time.Second,
		ConnectTimeout:    5 * time.Second,
		MaxRetries:        3,
		RetryWaitMin:      200 * time.Millisecond,
		RetryWaitMax:      5 * time.Second,
		RateLimit:         10.0,
		CircuitBreakerMax: 5,
		CircuitCooldown:   30 * time.Second,
	}
}

// HTTPClientConfigFrom maps the engine config section
func HTTPClientConfigFrom(c config.EngineConfig) HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	cfg.Timeout = c.Timeout()
	cfg.ConnectTimeout = c.ConnectTimeout()
	cfg.MaxRetries = c.MaxRetries
	cfg.RetryWaitMin = time.Duration(c.RetryWaitMinMs) * time.Millisecond
	cfg.RetryWaitMax = time.Duration(c.RetryWaitMaxMs) * time.Millisecond
	if c.RateLimit > 0 {
		cfg.RateLimit = c.RateLimit
	}
	if c.CircuitBreakerMax > 0 {
		cfg.CircuitBreakerMax = c.CircuitBreakerMax
	}
	return cfg
}

// HTTPClient wraps retryablehttp.Client with rate limiting and a circuit breaker
type HTTPClient struct {
	client   *retryablehttp.Client
	limiter  *rate.Limiter
	maxFails int
	cooldown time.Duration
	log      *logrus.Entry

	mu                sync.Mutex
	consecutiveErrors int
	openedAt          time.Time
	lastError         error
}

// NewHTTPClient creates a new rate-limited engine transport
func NewHTTPClient(cfg HTTPClientConfig, log *logrus.Logger) *HTTPClient {
	entry := log.WithField("component", "engine_http")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	if t, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = customRetryPolicy()
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = leveledLogger{entry}

	return &HTTPClient{
		client:   retryClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		maxFails: cfg.CircuitBreakerMax,
		cooldown: cfg.CircuitCooldown,
		log:      entry,
	}
}

// Do executes an HTTP request with rate limiting and circuit breaking.
// endpoint labels the request in metrics.
func (c *HTTPClient) Do(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	start := time.Now()

	if err := c.allow(); err != nil {
		metrics.RecordEngineRequest(endpoint, "circuit_open", time.Since(start))
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to wrap request: %w", err)
	}

	resp, err := c.client.Do(rreq)
	if err != nil {
		c.recordFailure(err)
		metrics.RecordEngineRequest(endpoint, "transport_error", time.Since(start))
		return nil, err
	}

	if resp.StatusCode >= 500 {
		c.recordFailure(fmt.Errorf("engine returned status %d", resp.StatusCode))
		metrics.RecordEngineRequest(endpoint, "http_error", time.Since(start))
		return resp, nil
	}

	c.recordSuccess()
	outcome := "success"
	if resp.StatusCode >= 400 {
		outcome = "http_error"
	}
	metrics.RecordEngineRequest(endpoint, outcome, time.Since(start))
	return resp, nil
}

// DoOnce executes a non-idempotent request. It is only retried when the
// connection could not be established, so the engine never sees it twice.
func (c *HTTPClient) DoOnce(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	return c.Do(context.WithValue(ctx, singleAttemptKey{}, true), endpoint, req)
}

// Get executes a GET request
func (c *HTTPClient) Get(ctx context.Context, endpoint, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, endpoint, req)
}

// Post executes a POST request
func (c *HTTPClient) Post(ctx context.Context, endpoint, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, endpoint, req)
}

// CircuitOpen reports whether requests are currently being rejected
func (c *HTTPClient) CircuitOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpenLocked(time.Now())
}

// Close closes any resources held by the client
func (c *HTTPClient) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

// allow rejects while open; once the cooldown passes a single trial request goes through
func (c *HTTPClient) allow() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isOpenLocked(time.Now()) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, c.lastError)
	}
	if !c.openedAt.IsZero() {
		// half-open: let this request probe, re-open immediately if it fails
		c.openedAt = time.Time{}
		c.consecutiveErrors = c.maxFails - 1
	}
	return nil
}

func (c *HTTPClient) isOpenLocked(now time.Time) bool {
	return !c.openedAt.IsZero() && now.Sub(c.openedAt) < c.cooldown
}

func (c *HTTPClient) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors++
	c.lastError = err
	if c.consecutiveErrors >= c.maxFails && c.openedAt.IsZero() {
		c.openedAt = time.Now()
		metrics.SetEngineCircuitOpen(true)
		c.log.WithFields(logrus.Fields{
			"consecutive_errors": c.consecutiveErrors,
			"cooldown":           c.cooldown.String(),
		}).WithError(err).Warn("Circuit breaker opened")
	}
}

func (c *HTTPClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consecutiveErrors > 0 {
		metrics.SetEngineCircuitOpen(false)
	}
	c.consecutiveErrors = 0
	c.openedAt = time.Time{}
	c.lastError = nil
}

// customRetryPolicy defines which HTTP responses should trigger a retry
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if single, _ := ctx.Value(singleAttemptKey{}).(bool); single {
			return isDialError(err), nil
		}
		if err != nil {
			// Retry on network errors
			return true, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true, nil
		}

		// Don't retry on other client errors
		return false, nil
	}
}

// isDialError reports whether err happened before the request reached the server
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// leveledLogger routes retryablehttp's logging through logrus
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }

func (l leveledLogger) with(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}
