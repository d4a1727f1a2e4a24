package cache

import (
	"context"
	"sync"
	"time"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  Result
	err     error
	done    bool
	waiters []chan struct{}
}

// fetchCoalescer serializes fetches per key: concurrent misses on the same key
// wait for one upstream call instead of issuing duplicates.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &fetchCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo checks if a fetch for key is already in-flight. If yes, waits for its
// result. If no, executes fn and registers the fetch. Respects context
// cancellation and timeout to prevent indefinite blocking.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (Result, error)) (Result, error) {
	fc.mu.Lock()
	req, exists := fc.inFlight[key]
	if exists {
		fc.mu.Unlock()
		return fc.wait(ctx, req)
	}

	req = &inFlightFetch{}
	fc.inFlight[key] = req
	fc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		fc.mu.Lock()
		delete(fc.inFlight, key)
		fc.mu.Unlock()
	}()

	return fc.wait(ctx, req)
}

func (fc *fetchCoalescer) wait(ctx context.Context, req *inFlightFetch) (Result, error) {
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	}
	notify := make(chan struct{})
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return Result{}, waitCtx.Err()
	}
}
