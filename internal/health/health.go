// Package health reports service condition: request outcomes over a sliding
// window plus upstream reachability probes.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/huanchen1107/TawinCWA/internal/client"
)

// Tracker maintains sliding windows of request outcome timestamps.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	success []time.Time
	errors  []time.Time
	denied  []time.Time
}

// NewTracker creates a Tracker. A nil clock means real time.
func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{clock: clock}
}

// RecordSuccess records a successful request outcome.
func (t *Tracker) RecordSuccess() { t.record(&t.success) }

// RecordError records a failed request outcome.
func (t *Tracker) RecordError() { t.record(&t.errors) }

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() { t.record(&t.denied) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns all outcomes (success + error + denied) within window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	return countSince(t.success, cutoff) + countSince(t.errors, cutoff) + countSince(t.denied, cutoff)
}

// ErrorRate returns (errors, total) within window. Denials are excluded from
// the rate.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	errCount := countSince(t.errors, cutoff)
	return errCount, errCount + countSince(t.success, cutoff)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than 5 minutes. Must hold mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.success)
	prune(&t.errors)
	prune(&t.denied)
}

// Status is the health report served at /health.
type Status struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Requests  int               `json:"requests"`
	ErrorPct  float64           `json:"errorPct"`
	Providers map[string]string `json:"providers,omitempty"`
}

// Checker combines the outcome tracker with upstream probes.
type Checker struct {
	tracker     *Tracker
	pingers     map[string]client.SourceClient
	window      time.Duration
	errorPctMax float64
	pingTimeout time.Duration
}

// NewChecker builds a Checker. Requests in the last window are considered;
// a window error rate above errorPctMax marks the service degraded, as does
// any unreachable provider.
func NewChecker(tracker *Tracker, pingers map[string]client.SourceClient, window time.Duration, errorPctMax float64) *Checker {
	if window <= 0 {
		window = time.Minute
	}
	if errorPctMax <= 0 {
		errorPctMax = 50
	}
	return &Checker{
		tracker:     tracker,
		pingers:     pingers,
		window:      window,
		errorPctMax: errorPctMax,
		pingTimeout: 3 * time.Second,
	}
}

// Check probes the upstreams and summarizes the recent window.
func (c *Checker) Check(ctx context.Context) Status {
	status := Status{Status: "ok", Providers: make(map[string]string, len(c.pingers))}

	errCount, total := c.tracker.ErrorRate(c.window)
	status.Requests = c.tracker.RequestCount(c.window)
	if total > 0 {
		status.ErrorPct = 100 * float64(errCount) / float64(total)
		if status.ErrorPct > c.errorPctMax {
			status.Status = "degraded"
		}
	}

	for name, p := range c.pingers {
		pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
		if err := p.Ping(pingCtx); err != nil {
			status.Providers[name] = "unreachable"
			status.Status = "degraded"
		} else {
			status.Providers[name] = "ok"
		}
		cancel()
	}
	return status
}
