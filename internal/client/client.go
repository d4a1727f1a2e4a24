package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// FetchRequest identifies one upstream resource: a provider, a dataset within
// it (CWA endpoint id, CKAN action, Census dataset path) and query parameters.
type FetchRequest struct {
	Provider models.Provider
	Dataset  string
	Params   map[string]string
}

// SourceClient fetches one provider's raw JSON payload. It performs exactly one
// logical request per Fetch call; caching and retry policy belong to the caller.
type SourceClient interface {
	Fetch(ctx context.Context, req FetchRequest) ([]byte, error)
	Ping(ctx context.Context) error
}

var (
	// ErrTransport covers network failures, timeouts and upstream 5xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrAuth covers 401/403 responses and missing credentials.
	ErrAuth = errors.New("authentication rejected")
	// ErrRateLimited covers 429 responses.
	ErrRateLimited = errors.New("rate limited")
	// ErrSchema covers bodies whose top-level structure is unrecognized.
	ErrSchema = errors.New("unrecognized payload schema")
	// ErrDataUnavailable is raised by the cache layer when the fetch failed and
	// no cached entry exists. Declared here so the whole taxonomy lives together.
	ErrDataUnavailable = errors.New("data unavailable")
)

const defaultTimeout = 10 * time.Second

// httpSource holds the pieces shared by all provider clients.
type httpSource struct {
	client  *http.Client
	baseURL string
}

func newHTTPSource(baseURL string, timeout time.Duration) httpSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return httpSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do issues the GET and maps the response onto the error taxonomy. The body is
// returned raw; payload structure is the normalizer's concern, except that an
// empty body is rejected here.
func (s httpSource) do(ctx context.Context, provider models.Provider, u string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tawincwa/1.0")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		recordFetch(provider, "error", start)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	recordFetch(provider, statusLabel(resp.StatusCode), start)
	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrTransport, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrSchema)
	}
	return body, nil
}

// statusError maps a non-2xx status code to a taxonomy error.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrTransport, code)
	}
}

func recordFetch(provider models.Provider, status string, start time.Time) {
	duration := time.Since(start).Seconds()
	observability.FetchCallsTotal.WithLabelValues(string(provider), status).Inc()
	observability.FetchDuration.WithLabelValues(string(provider), status).Observe(duration)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// encodeParams renders params in sorted key order so request URLs (and anything
// derived from them, like log lines) are deterministic.
func encodeParams(params map[string]string, extra url.Values) string {
	v := url.Values{}
	for key, val := range extra {
		v[key] = val
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Set(k, params[k])
	}
	return v.Encode()
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}
