package service

import (
	"sync"
)

// fetchTracker counts in-flight requests per dataset key. A count above 1
// means several callers hit the same dataset at once, which the cache layer's
// coalescer folds into a single upstream call.
type fetchTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newFetchTracker() *fetchTracker {
	return &fetchTracker{active: make(map[string]int)}
}

// Enter increments the in-flight count for key and returns it.
// Pair with a deferred Leave(key).
func (t *fetchTracker) Enter(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[key]++
	return t.active[key]
}

// Leave decrements the in-flight count for key.
func (t *fetchTracker) Leave(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count, ok := t.active[key]; ok && count > 0 {
		t.active[key]--
		if t.active[key] == 0 {
			delete(t.active, key)
		}
	}
}
