package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jonboulle/clockwork"
)

const keyPrefix = "tawincwa:"

// MemcachedCache implements Cache using memcached. Freshness is decided here
// from the stored fetchedAt, not by memcached expiry: items live for
// TTL + staleWindow so stale fallback keeps working after the TTL lapses.
type MemcachedCache struct {
	client      *memcache.Client
	clock       clockwork.Clock
	staleWindow time.Duration
}

// envelope is the stored wire form. Payload round-trips through base64 via
// encoding/json's []byte handling.
type envelope struct {
	Payload    []byte    `json:"payload"`
	FetchedAt  time.Time `json:"fetchedAt"`
	TTLSeconds int64     `json:"ttlSeconds"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). staleWindow is how
// long past the TTL items remain retrievable via GetStale.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleWindow time.Duration, clock clockwork.Clock) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	c := memcache.New(servers...)
	if timeout > 0 {
		c.Timeout = timeout
	}
	if maxIdleConns > 0 {
		c.MaxIdleConns = maxIdleConns
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemcachedCache{client: c, clock: clock, staleWindow: staleWindow}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

func (c *MemcachedCache) fetch(key string) (Entry, bool, error) {
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Payload:   env.Payload,
		FetchedAt: env.FetchedAt,
		TTL:       time.Duration(env.TTLSeconds) * time.Second,
	}, true, nil
}

// Get implements Cache.Get. Returns false, nil on miss or when the stored
// entry is past its TTL.
func (c *MemcachedCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	entry, ok, err := c.fetch(key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if !entry.Fresh(c.clock.Now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	entry, ok, err := c.fetch(key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if maxAge > 0 && entry.Age(c.clock.Now()) > maxAge {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements Cache.Set. The memcached expiration is padded by the stale
// window; relative expirations above memcached's 30-day limit fall back to 1h.
func (c *MemcachedCache) Set(ctx context.Context, key string, entry Entry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(envelope{
		Payload:    entry.Payload,
		FetchedAt:  entry.FetchedAt,
		TTLSeconds: int64(entry.TTL.Seconds()),
	})
	if err != nil {
		return err
	}
	expSec := int32((entry.TTL + c.staleWindow).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
