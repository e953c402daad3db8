package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// statusServer returns the given statuses in sequence, repeating the last one
func statusServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attempts.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attempts
}

func fetch(t *testing.T, f *Fetcher, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := f.FetchWithRetry(ctx, req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestFetchWithRetry_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int
		retries    int
		wantStatus int
		wantErr    error
		attempts   int32
	}{
		{"ok", []int{200}, 3, 200, nil, 1},
		{"no content", []int{204}, 3, 204, nil, 1},
		{"server error then ok", []int{500, 500, 200}, 3, 200, nil, 3},
		{"rate limited then ok", []int{429, 200}, 3, 200, nil, 2},
		{"mixed retryable", []int{500, 429, 503, 200}, 3, 200, nil, 4},
		{"server error exhausted", []int{500}, 3, 0, utils.ErrServerHTTPError, 4},
		{"rate limit exhausted", []int{429}, 2, 0, utils.ErrRetryFailed, 3},
		{"not found", []int{404}, 3, 0, utils.ErrClientHTTPError, 1},
		{"forbidden", []int{403}, 3, 0, utils.ErrClientHTTPError, 1},
		{"zero retries", []int{500}, 0, 0, utils.ErrRetryFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := statusServer(t, tt.statuses)
			f := NewFetcher(server.Client(), fastPolicy(tt.retries), testLogger())

			resp, err := fetch(t, f, context.Background(), server.URL)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, resp.StatusCode)
			}
			assert.Equal(t, tt.attempts, attempts.Load())
		})
	}
}

func TestFetchWithRetry_ExhaustedWrapsBoth(t *testing.T) {
	server, _ := statusServer(t, []int{502})
	f := NewFetcher(server.Client(), fastPolicy(1), testLogger())

	_, err := fetch(t, f, context.Background(), server.URL)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
}

func TestFetchWithRetry_RedirectStatusNotFollowed(t *testing.T) {
	server, attempts := statusServer(t, []int{304})
	f := NewFetcher(server.Client(), fastPolicy(3), testLogger())

	_, err := fetch(t, f, context.Background(), server.URL)
	assert.ErrorIs(t, err, utils.ErrOtherHTTPError)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_CancelledBeforeAttempt(t *testing.T) {
	server, attempts := statusServer(t, []int{200})
	f := NewFetcher(server.Client(), fastPolicy(3), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetch(t, f, ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetchWithRetry_TimeoutDuringBackoff(t *testing.T) {
	server, attempts := statusServer(t, []int{500})
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Second, MaxDelay: 10 * time.Second}
	f := NewFetcher(server.Client(), policy, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := fetch(t, f, ctx, server.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_NetworkErrorRetried(t *testing.T) {
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(server.Client(), fastPolicy(3), testLogger())
	resp, err := fetch(t, f, context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.MaxDelay+p.MaxDelay/10)
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(0, testLogger())
	assert.Equal(t, 30*time.Second, c.Timeout)

	c = NewClient(5*time.Second, testLogger())
	assert.Equal(t, 5*time.Second, c.Timeout)
}
