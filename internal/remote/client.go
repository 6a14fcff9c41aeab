package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tonimelisma/devfolio-sync/internal/metrics"
)

// Defaults and backoff constants.
const (
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 1 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second

	maxBackoff      = 30 * time.Second
	backoffFactor   = 2.0
	jitterFraction  = 0.25
	userAgent       = "devfolio-sync/0.1"
	requestIDHeader = "X-Request-ID"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource // nil sends no Authorization header

	MaxRetries      int           // 0 uses DefaultMaxRetries, negative disables retries
	RetryDelay      time.Duration // base backoff before jitter
	RateLimit       float64       // requests per second, 0 = unlimited
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // open period before a half-open probe
	UserAgent       string
}

// Client is an HTTP client for the remote document store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      oauth2.TokenSource
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	logger     *slog.Logger
	userAgent  string

	maxRetries int
	retryDelay time.Duration

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a remote store client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	maxRetries := cfg.MaxRetries

	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgent
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		token:      cfg.TokenSource,
		limiter:    limiter,
		logger:     logger,
		userAgent:  ua,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleepFunc:  timeSleep,
	}

	c.breaker = newBreaker(cfg, logger)

	return c
}

func newBreaker(cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}

	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}

	metrics.SetBreakerState(int(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "remote-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState(int(to))
		},
		// A healthy server refusing a request is not a reason to stop talking to it.
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err) || errors.Is(err, context.Canceled)
		},
	})
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes a request against the remote store. The path is appended to
// the base URL; a non-nil body is sent as JSON. On success the caller closes
// the response body. Non-2xx responses are returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	reqID := uuid.NewString()

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.doRetry(ctx, method, path, body, reqID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("request rejected by circuit breaker",
			slog.String("method", method),
			slog.String("path", path),
		)

		return nil, fmt.Errorf("%w: %s %s: %w", ErrCircuitOpen, method, path, err)
	}

	return resp, err
}

func (c *Client) doRetry(ctx context.Context, method, path string, body []byte, reqID string) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, body, reqID)
		if err != nil {
			metrics.RecordRemoteRequest(method, "error")

			if ctx.Err() != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.String("request_id", reqID),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				metrics.RecordRemoteRetry()

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("remote: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("remote: %s %s failed after %d retries: %w", method, path, c.maxRetries, err)
		}

		metrics.RecordRemoteRequest(method, metrics.StatusClass(resp.StatusCode))

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("request_id", reqID),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			metrics.RecordRemoteRetry()

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", err)
			}

			attempt++

			continue
		}

		remoteErr := errorFromBody(resp.StatusCode, reqID, errBody)

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, remoteErr
	}
}

// errorFromBody builds an *Error, taking message and code from the envelope
// when the body is one.
func errorFromBody(status int, reqID string, body []byte) *Error {
	e := &Error{
		StatusCode: status,
		RequestID:  reqID,
		Message:    string(body),
		Err:        classifyStatus(status),
	}

	var env Result[json.RawMessage]
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		e.Message = env.Error.Message
		e.Code = env.Error.Code
	}

	return e
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, reqID string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		tok, tokErr := c.token.Token()
		if tokErr != nil {
			return nil, fmt.Errorf("obtaining token: %w", tokErr)
		}

		tok.SetAuthHeader(req)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(c.retryDelay) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
