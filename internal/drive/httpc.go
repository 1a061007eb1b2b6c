package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Retry and backoff constants shared by the provider HTTP clients.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	requestTimeout = 30 * time.Second

	// Providers gate their web APIs on a browser user agent.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

// HTTPClient is the retrying HTTP layer under each provider adapter. It
// owns cookie authentication, exponential backoff with jitter for transport
// failures and retryable statuses, and status-level error classification.
// Provider-level error codes inside 200 responses are the adapter's job.
type HTTPClient struct {
	provider   string
	baseURL    string
	cookies    string
	referer    string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient builds a client for one provider host. The cookie blob is
// sent verbatim on every request.
func NewHTTPClient(provider, baseURL, cookies string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		provider:   provider,
		baseURL:    baseURL,
		cookies:    cookies,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		sleepFunc:  sleepContext,
	}
}

// SetReferer sets the Referer header sent with every request.
func (c *HTTPClient) SetReferer(ref string) {
	c.referer = ref
}

// SetSleepFunc overrides the retry sleep, for tests.
func (c *HTTPClient) SetSleepFunc(f func(ctx context.Context, d time.Duration) error) {
	c.sleepFunc = f
}

// SetTransport overrides the underlying http.Client, for tests.
func (c *HTTPClient) SetTransport(hc *http.Client) {
	c.httpClient = hc
}

// Get issues a GET with the given query parameters.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, "", nil)
}

// PostForm issues a POST with a form-encoded body.
func (c *HTTPClient) PostForm(ctx context.Context, path string, query, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, query,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// PostJSON issues a POST with a JSON body.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, query, "application/json", strings.NewReader(string(body)))
}

// do executes the request with retry. It returns the response body for
// 2xx statuses and a classified *Error otherwise.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, target, contentType, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.provider, ctx.Err())
			}

			if attempt < maxRetries && body == nil {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("provider", c.provider),
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("%s: request canceled: %w", c.provider, sleepErr)
				}

				attempt++

				continue
			}

			return nil, NewError(c.provider, method+" "+path, 6, err.Error(), ErrNetwork)
		}

		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			if readErr != nil {
				return nil, NewError(c.provider, method+" "+path, 6, readErr.Error(), ErrNetwork)
			}

			return payload, nil
		}

		if isRetryableStatus(resp.StatusCode) && attempt < maxRetries && body == nil {
			backoff := c.calcBackoff(attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("provider", c.provider),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.provider, sleepErr)
			}

			attempt++

			continue
		}

		return nil, NewError(c.provider, method+" "+path, resp.StatusCode,
			strings.TrimSpace(string(payload)), classifyHTTPStatus(resp.StatusCode))
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *HTTPClient) doOnce(ctx context.Context, method, target, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Cookie", c.cookies)

	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// classifyHTTPStatus maps a non-2xx status to a sentinel error.
func classifyHTTPStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusLocked:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrRateLimit
	default:
		if code >= http.StatusInternalServerError {
			return ErrNetwork
		}

		return ErrUnknown
	}
}

// isRetryableStatus reports whether the status is worth retrying.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *HTTPClient) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// sleepContext waits for the given duration or until the context is
// canceled. It is the default sleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
