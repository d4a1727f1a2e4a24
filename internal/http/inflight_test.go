package http

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestInFlightTracker_Counting verifies increment/decrement bookkeeping under
// concurrent use.
func TestInFlightTracker_Counting(t *testing.T) {
	tracker := &inFlightTracker{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
		}()
	}
	wg.Wait()

	if got := tracker.Count(); got != 50 {
		t.Fatalf("Count() = %d, want 50", got)
	}

	for i := 0; i < 50; i++ {
		tracker.Decrement()
	}
	if got := tracker.Count(); got != 0 {
		t.Fatalf("Count() after drain = %d, want 0", got)
	}
}

// TestInFlightTracker_WaitForZero verifies that WaitForZero returns once the
// last request finishes and times out when one never does.
func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &inFlightTracker{}
	tracker.Increment()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.Decrement()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tracker.WaitForZero(ctx, time.Millisecond); err != nil {
		t.Fatalf("WaitForZero() = %v, want nil", err)
	}

	// A stuck request makes the wait fail with the context error.
	tracker.Increment()
	defer tracker.Decrement()
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	if err := tracker.WaitForZero(shortCtx, time.Millisecond); err != context.DeadlineExceeded {
		t.Fatalf("WaitForZero() = %v, want DeadlineExceeded", err)
	}
}
