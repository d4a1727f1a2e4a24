package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// Entry is one cached upstream payload. An entry is fresh iff
// now - FetchedAt < TTL; entries past their TTL are kept (up to the LRU bound)
// so the store can fall back to them when the upstream is down.
type Entry struct {
	Payload   []byte        `json:"payload"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is within its TTL at the given instant.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Cache defines the payload cache backends. Get returns fresh entries only;
// GetStale also returns expired entries up to maxAge old.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	GetStale(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// InMemoryCache implements Cache with a bounded LRU map. The clock is injected
// so TTL behavior is deterministic under test. Safe for concurrent use.
type InMemoryCache struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	maxEntries int
	entries    map[string]*lruEntry
	head       *lruEntry // most recently used
	tail       *lruEntry // least recently used
}

type lruEntry struct {
	key   string
	value Entry
	prev  *lruEntry
	next  *lruEntry
}

// DefaultMaxEntries bounds the in-memory cache when no limit is configured.
const DefaultMaxEntries = 512

// NewInMemoryCache creates a bounded in-memory cache. A nil clock means real
// time; maxEntries <= 0 means DefaultMaxEntries.
func NewInMemoryCache(maxEntries int, clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryCache{
		clock:      clock,
		maxEntries: maxEntries,
		entries:    make(map[string]*lruEntry),
	}
}

// Get returns the entry for key if present and fresh. Expired entries are left
// in place for GetStale; only the LRU bound removes them.
func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	c.moveToFront(e)
	if !e.value.Fresh(c.clock.Now()) {
		return Entry{}, false, nil
	}
	return e.value, true, nil
}

// GetStale returns the entry for key if it is at most maxAge old, regardless
// of freshness.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if maxAge > 0 && e.value.Age(c.clock.Now()) > maxAge {
		return Entry{}, false, nil
	}
	c.moveToFront(e)
	return e.value, true, nil
}

// Set stores the entry, evicting the least recently used entry when the bound
// is exceeded.
func (c *InMemoryCache) Set(ctx context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = entry
		c.moveToFront(e)
		return nil
	}

	e := &lruEntry{key: key, value: entry}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return nil
}

// Len returns the number of cached entries. For tests and health reporting.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *InMemoryCache) moveToFront(e *lruEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *InMemoryCache) addToFront(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *InMemoryCache) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *InMemoryCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
	observability.CacheEvictionsTotal.Inc()
}
