package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps.
func newTestClient(t *testing.T, url string, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		BaseURL:     url,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
	}

	for _, m := range mutate {
		m(&cfg)
	}

	c := NewClient(cfg, testLogger(t))
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(body))
}

func TestDo_NoTokenSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.TokenSource = nil })

	resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"success":false,"error":{"message":"nope","code":"permission-denied"}}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, "nope", re.Message)
			assert.Equal(t, "permission-denied", re.Code)
			assert.NotEmpty(t, re.RequestID)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestDo_NonEnvelopeErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "plain text", re.Message)
	assert.Empty(t, re.Code)
}

func TestDo_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodPost, "/x", []byte(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetryResendsBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodPut, "/x", []byte(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"a":1}`, `{"a":1}`}, bodies)
}

func TestDo_RequestIDStableAcrossRetries(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-ID"))
		n := len(ids)
		mu.Unlock()

		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
}

func TestDo_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(DefaultMaxRetries+1), calls.Load())
}

func TestDo_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
	require.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_RetryAfterHeader(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var slept []time.Duration

	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
}

func TestDo_NetworkErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, func(cfg *Config) { cfg.MaxRetries = 2 })

	var sleeps int

	c.sleepFunc = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 2, sleeps)
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).Do(ctx, http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_TokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.TokenSource = failingToken{}
		cfg.MaxRetries = -1
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

type failingToken struct{}

func (failingToken) Token() (*oauth2.Token, error) {
	return nil, errors.New("token error")
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.MaxRetries = -1
		cfg.BreakerFailures = 2
		cfg.BreakerTimeout = time.Hour
	})
	ctx := context.Background()

	for range 2 {
		_, err := c.Do(ctx, http.MethodGet, "/x", nil)
		require.ErrorIs(t, err, ErrServerError)
	}

	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.Do(ctx, http.MethodGet, "/x", nil)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not send the request")
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.BreakerFailures = 2 })

	for range 5 {
		_, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
		require.ErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestCalcBackoff_Bounds(t *testing.T) {
	c := newTestClient(t, "http://unused")

	for attempt := range 10 {
		d := c.calcBackoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}

	first := c.calcBackoff(0)
	assert.GreaterOrEqual(t, first, time.Duration(float64(DefaultRetryDelay)*(1-jitterFraction)))
	assert.LessOrEqual(t, first, time.Duration(float64(DefaultRetryDelay)*(1+jitterFraction)))
}
