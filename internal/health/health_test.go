package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/huanchen1107/TawinCWA/internal/client"
)

func TestTrackerWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()

	if got := tr.RequestCount(time.Minute); got != 4 {
		t.Errorf("RequestCount = %d, want 4", got)
	}
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate = %d/%d, want 1/3 (denials excluded)", errs, total)
	}

	// Outcomes age out of the window.
	clock.Advance(2 * time.Minute)
	if got := tr.RequestCount(time.Minute); got != 0 {
		t.Errorf("RequestCount after advance = %d, want 0", got)
	}
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Fetch(context.Context, client.FetchRequest) ([]byte, error) {
	return nil, errors.New("not used")
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func TestCheckerOK(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.RecordSuccess()
	checker := NewChecker(tr, map[string]client.SourceClient{
		"cwa": &stubPinger{},
	}, time.Minute, 50)

	status := checker.Check(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
	if status.Providers["cwa"] != "ok" {
		t.Errorf("provider status = %q", status.Providers["cwa"])
	}
}

func TestCheckerDegradedOnErrors(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.RecordError()
	tr.RecordError()
	tr.RecordSuccess()
	checker := NewChecker(tr, nil, time.Minute, 50)

	status := checker.Check(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded at %.0f%% errors", status.Status, status.ErrorPct)
	}
}

func TestCheckerDegradedOnUnreachableProvider(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	checker := NewChecker(tr, map[string]client.SourceClient{
		"cwa":    &stubPinger{},
		"census": &stubPinger{err: errors.New("dial tcp: timeout")},
	}, time.Minute, 50)

	status := checker.Check(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Providers["census"] != "unreachable" {
		t.Errorf("census = %q", status.Providers["census"])
	}
	if status.Providers["cwa"] != "ok" {
		t.Errorf("cwa = %q", status.Providers["cwa"])
	}
}
