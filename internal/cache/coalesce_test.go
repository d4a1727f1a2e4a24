package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestFetchCoalescer_SingleFlight verifies that concurrent callers on one key
// share a single fn execution and all observe its result.
func TestFetchCoalescer_SingleFlight(t *testing.T) {
	fc := newFetchCoalescer(time.Second)
	var executions atomic.Int64
	fn := func() (Result, error) {
		executions.Add(1)
		time.Sleep(20 * time.Millisecond)
		return Result{Payload: []byte("shared")}, nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 6)
	errs := make([]error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fc.GetOrDo(context.Background(), "k", fn)
		}(i)
	}
	wg.Wait()

	if got := executions.Load(); got != 1 {
		t.Fatalf("fn executed %d times, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if string(results[i].Payload) != "shared" {
			t.Errorf("caller %d payload = %q", i, results[i].Payload)
		}
	}
}

// TestFetchCoalescer_ErrorShared verifies that a failed fetch propagates the
// same error to every waiter.
func TestFetchCoalescer_ErrorShared(t *testing.T) {
	fc := newFetchCoalescer(time.Second)
	wantErr := errors.New("upstream down")
	fn := func() (Result, error) {
		time.Sleep(10 * time.Millisecond)
		return Result{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fc.GetOrDo(context.Background(), "k", fn)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("caller %d error = %v, want shared upstream error", i, err)
		}
	}
}

// TestFetchCoalescer_DistinctKeys verifies that different keys do not coalesce.
func TestFetchCoalescer_DistinctKeys(t *testing.T) {
	fc := newFetchCoalescer(time.Second)
	var executions atomic.Int64
	fn := func() (Result, error) {
		executions.Add(1)
		return Result{}, nil
	}

	if _, err := fc.GetOrDo(context.Background(), "a", fn); err != nil {
		t.Fatal(err)
	}
	if _, err := fc.GetOrDo(context.Background(), "b", fn); err != nil {
		t.Fatal(err)
	}
	if got := executions.Load(); got != 2 {
		t.Errorf("fn executed %d times, want 2", got)
	}
}

// TestFetchCoalescer_WaiterTimeout verifies that a waiter gives up when the
// in-flight fetch outlives the coalesce timeout.
func TestFetchCoalescer_WaiterTimeout(t *testing.T) {
	fc := newFetchCoalescer(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	go func() {
		_, _ = fc.GetOrDo(context.Background(), "slow", func() (Result, error) {
			close(started)
			<-release
			return Result{}, nil
		})
	}()
	<-started

	_, err := fc.GetOrDo(context.Background(), "slow", func() (Result, error) {
		t.Error("second fn should not run while first is in flight")
		return Result{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiter error = %v, want DeadlineExceeded", err)
	}
}

// TestFetchCoalescer_ContextCanceled verifies that a canceled caller context
// unblocks the waiter.
func TestFetchCoalescer_ContextCanceled(t *testing.T) {
	fc := newFetchCoalescer(time.Minute)
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	go func() {
		_, _ = fc.GetOrDo(context.Background(), "slow", func() (Result, error) {
			close(started)
			<-release
			return Result{}, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := fc.GetOrDo(ctx, "slow", func() (Result, error) { return Result{}, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter error = %v, want Canceled", err)
	}
}
