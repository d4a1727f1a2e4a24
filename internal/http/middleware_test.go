package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/huanchen1107/TawinCWA/internal/health"
)

// TestCorrelationIDMiddleware_Generates verifies that a correlation ID is
// generated, placed in the request context, and echoed in the response header.
func TestCorrelationIDMiddleware_Generates(t *testing.T) {
	logger := zap.NewNop()
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			seen = v.(string)
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(logger)(inner)
	req := httptest.NewRequest("GET", "/v1/catalog", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("correlation_id missing from request context")
	}
	if got := w.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("header correlation ID = %q, context has %q", got, seen)
	}
}

// TestCorrelationIDMiddleware_Propagates verifies that a caller-supplied
// correlation ID is reused rather than replaced.
func TestCorrelationIDMiddleware_Propagates(t *testing.T) {
	logger := zap.NewNop()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationIDMiddleware(logger)(inner)
	req := httptest.NewRequest("GET", "/v1/catalog", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "caller-supplied-id" {
		t.Errorf("correlation ID = %q, want caller-supplied-id", got)
	}
}

// TestRateLimitMiddleware_Denies verifies that an exhausted token bucket
// produces 429 with the RATE_LIMITED error code and records the denial.
func TestRateLimitMiddleware_Denies(t *testing.T) {
	tracker := health.NewTracker(clockwork.NewFakeClock())
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(limiter, tracker)(inner)

	// First request consumes the single burst token.
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, httptest.NewRequest("GET", "/v1/catalog", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w1.Code)
	}

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, httptest.NewRequest("GET", "/v1/catalog", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w2.Code)
	}

	var resp map[string]map[string]string
	if err := json.NewDecoder(w2.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp["error"]["code"] != "RATE_LIMITED" {
		t.Errorf("error code = %q, want RATE_LIMITED", resp["error"]["code"])
	}
}

// TestRateLimitMiddleware_NilLimiter verifies that a nil limiter disables rate
// limiting entirely.
func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(nil, nil)(inner)

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1/catalog", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

// TestTimeoutMiddleware verifies that the request context deadline fires and
// the handler observes context.DeadlineExceeded.
func TestTimeoutMiddleware(t *testing.T) {
	var ctxErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := TimeoutMiddleware(10 * time.Millisecond)(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1/data/cwa/F-C0032-001", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("context error = %v, want DeadlineExceeded", ctxErr)
	}
}

// TestGetRoute verifies that request paths collapse to bounded route templates
// for metric labels.
func TestGetRoute(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1/catalog", "/v1/catalog"},
		{"/v1/alerts", "/v1/alerts/{provider}/{dataset}"},
		{"/v1/alerts/cwa/E-A0015-001", "/v1/alerts/{provider}/{dataset}"},
		{"/v1/data/cwa/F-C0032-001", "/v1/data/{provider}/{dataset}"},
		{"/v1/data/census/2020/dec/pl", "/v1/data/{provider}/{dataset}"},
		{"/v1/export/datagov/datastore_search", "/v1/export/{provider}/{dataset}"},
		{"/v1/history/cwa/O-A0003-001", "/v1/history/{provider}/{dataset}"},
		{"/unknown", "/unknown"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", tc.path, nil)
		if got := getRoute(r); got != tc.want {
			t.Errorf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

// TestStatusCodeString verifies status class bucketing for metric labels.
func TestStatusCodeString(t *testing.T) {
	cases := map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 500: "5xx", 503: "5xx"}
	for code, want := range cases {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

// TestMetricsMiddleware_TracksInFlight verifies the in-flight counter rises
// while a request is being served and returns to zero afterwards.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	release := make(chan struct{})
	observed := make(chan int64, 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observed <- InFlightCount()
		<-release
		w.WriteHeader(http.StatusOK)
	})

	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.Handle("/v1/catalog", inner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/catalog", nil))
	}()

	if during := <-observed; during < 1 {
		t.Errorf("in-flight during request = %d, want >= 1", during)
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, time.Millisecond); err != nil {
		t.Fatalf("in-flight count did not drain: %v", err)
	}
}
