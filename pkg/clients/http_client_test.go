package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

func testHTTPClient(timeout time.Duration) *HTTPClient {
	cfg := DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	cfg.RequestTimeout = timeout
	return NewHTTPClient(cfg, nil)
}

func TestHTTPClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "freightsync/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"containers":[{"id":"MSKU1234567"}]}`))
	}))
	defer srv.Close()

	c := testHTTPClient(time.Second)
	var out struct {
		Containers []struct {
			ID string `json:"id"`
		} `json:"containers"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer tok"}, &out))
	require.Len(t, out.Containers, 1)
	assert.Equal(t, "MSKU1234567", out.Containers[0].ID)
}

func TestHTTPClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantType  errors.ErrorType
		retryable bool
	}{
		{status: http.StatusTooManyRequests, wantType: errors.ErrorTypeRateLimit, retryable: true},
		{status: http.StatusUnauthorized, wantType: errors.ErrorTypeAuthentication},
		{status: http.StatusForbidden, wantType: errors.ErrorTypeAuthentication},
		{status: http.StatusBadGateway, wantType: errors.ErrorTypeConnection, retryable: true},
		{status: http.StatusServiceUnavailable, wantType: errors.ErrorTypeConnection, retryable: true},
		{status: http.StatusGatewayTimeout, wantType: errors.ErrorTypeConnection, retryable: true},
		{status: http.StatusNotFound, wantType: errors.ErrorTypeData},
		{status: http.StatusInternalServerError, wantType: errors.ErrorTypeData},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "7")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("upstream says no"))
			}))
			defer srv.Close()

			c := testHTTPClient(time.Second)
			_, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantType), "got %v", err)
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))

			code, ok := errors.GetDetail(err, errors.DetailStatusCode)
			require.True(t, ok)
			assert.Equal(t, tt.status, code)

			if tt.status == http.StatusTooManyRequests {
				wait, ok := errors.RetryAfter(err)
				require.True(t, ok)
				assert.Equal(t, 7*time.Second, wait)
			}
		})
	}
}

func TestHTTPClient_TimeoutIsDistinct(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := testHTTPClient(50 * time.Millisecond)
	_, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout), "got %v", err)
	assert.True(t, errors.IsRetryable(err))
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := testHTTPClient(time.Second)
	_, err := c.Fetch(context.Background(), http.MethodGet, url, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection), "got %v", err)
	assert.True(t, errors.IsRetryable(err))
}

func TestHTTPClient_CircuitBreakerOpensPerHost(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	cfg.CircuitBreaker = CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}
	c := NewHTTPClient(cfg, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, nil, nil)
		require.Error(t, err)
	}

	_, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	stats := c.GetStats()
	assert.Equal(t, int64(3), stats.FailedRequests)
	require.Len(t, stats.Breakers, 1)
	for _, st := range stats.Breakers {
		assert.Equal(t, "open", st.State)
	}
}

func TestHTTPClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := testHTTPClient(time.Second).GetJSON(context.Background(), srv.URL, nil, &out)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}
