package drive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient("test", srv.URL, "session=abc",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	return c
}

func TestGet_SendsAuthHeaders(t *testing.T) {
	t.Parallel()

	c := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Equal(t, "https://example.test/", r.Header.Get("Referer"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		w.Write([]byte(`ok`))
	}))
	c.SetReferer("https://example.test/")

	body, err := c.Get(context.Background(), "/list", url.Values{"page": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGet_RetriesRetryableStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Write([]byte(`ok`))
	}))

	body, err := c.Get(context.Background(), "/flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Get(context.Background(), "/down", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestPostForm_DoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "x", r.PostForm.Get("v"))
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.PostForm(context.Background(), "/mutate", nil, url.Values{"v": {"x"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "requests with a body are not replayed")
}

func TestStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrPermission},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTeapot, ErrUnknown},
	}

	for _, tt := range tests {
		c := newTestHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		_, err := c.Get(context.Background(), "/x", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)

		var de *Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, tt.status, de.Code)
		assert.Equal(t, "test", de.Provider)
	}
}

func TestCalcBackoff_GrowsAndCaps(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient("test", "http://x", "", nil)

	first := c.calcBackoff(0)
	assert.InDelta(t, float64(baseBackoff), float64(first), float64(baseBackoff)*jitterFraction)

	capped := c.calcBackoff(10)
	assert.LessOrEqual(t, capped, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	assert.GreaterOrEqual(t, capped, time.Duration(float64(maxBackoff)*(1-jitterFraction)))
}

func TestRegistry(t *testing.T) {
	// Not parallel: mutates the global registry.
	Register("fakeprov", func(cookies string, logger *slog.Logger) (Client, error) {
		return nil, errors.New("factory called for " + cookies)
	})

	assert.Contains(t, Providers(), "fakeprov")

	_, err := New("fakeprov", "c1", nil)
	require.EqualError(t, err, "factory called for c1")

	_, err = New("missing", "c1", nil)
	assert.Error(t, err)

	assert.Panics(t, func() {
		Register("fakeprov", func(string, *slog.Logger) (Client, error) { return nil, nil })
	})
}

func TestValidateExpiry(t *testing.T) {
	t.Parallel()

	for _, days := range []int{0, 1, 7, 30, 365} {
		assert.NoError(t, ValidateExpiry(days))
	}

	assert.Error(t, ValidateExpiry(2))
	assert.Error(t, ValidateExpiry(-1))
}
