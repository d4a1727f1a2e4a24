package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// Result is what GetOrFetch hands back: the raw payload plus enough metadata
// for the caller to render a "showing cached results from <timestamp>" notice.
type Result struct {
	Payload   []byte
	FetchedAt time.Time
	Stale     bool
	FromCache bool
}

// Store is the cache-aside layer over the source clients. A fresh entry is
// served without a network call; a miss triggers one coalesced upstream fetch;
// an upstream failure falls back to a stale entry within MaxStaleAge, and only
// when none exists does the failure surface as ErrDataUnavailable.
type Store struct {
	clients   map[string]client.SourceClient
	cache     Cache
	clock     clockwork.Clock
	maxStale  time.Duration
	coalescer *fetchCoalescer
	logger    *zap.Logger
}

// StoreConfig configures a Store. MaxStaleAge of 0 disables stale fallback.
type StoreConfig struct {
	MaxStaleAge     time.Duration
	CoalesceTimeout time.Duration
}

// NewStore creates a Store over the given per-provider clients.
func NewStore(clients map[string]client.SourceClient, c Cache, cfg StoreConfig, clock clockwork.Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		clients:   clients,
		cache:     c,
		clock:     clock,
		maxStale:  cfg.MaxStaleAge,
		coalescer: newFetchCoalescer(cfg.CoalesceTimeout),
		logger:    logger,
	}
}

// GetOrFetch resolves the request from cache or upstream with the given TTL.
func (s *Store) GetOrFetch(ctx context.Context, req client.FetchRequest, ttl time.Duration) (Result, error) {
	src, ok := s.clients[string(req.Provider)]
	if !ok {
		return Result{}, fmt.Errorf("no source client for provider %q", req.Provider)
	}
	key := Key(req)
	provider := string(req.Provider)

	entry, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.Categorize(err))).Inc()
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		observability.CacheHitsTotal.WithLabelValues(provider).Inc()
		s.logger.Debug("cache hit", zap.String("key", key))
		return Result{Payload: entry.Payload, FetchedAt: entry.FetchedAt, FromCache: true}, nil
	}

	return s.coalescer.GetOrDo(ctx, key, func() (Result, error) {
		return s.fetch(ctx, src, req, key, ttl)
	})
}

func (s *Store) fetch(ctx context.Context, src client.SourceClient, req client.FetchRequest, key string, ttl time.Duration) (Result, error) {
	provider := string(req.Provider)

	payload, err := src.Fetch(ctx, req)
	if err != nil {
		if s.maxStale > 0 {
			stale, ok, staleErr := s.cache.GetStale(ctx, key, s.maxStale)
			if staleErr == nil && ok {
				age := stale.Age(s.clock.Now())
				observability.CacheStaleServesTotal.WithLabelValues(provider).Inc()
				observability.CacheStaleAgeSeconds.Observe(age.Seconds())
				s.logger.Info("serving stale cache",
					zap.String("key", key),
					zap.Duration("age", age),
					zap.String("cause", string(client.Categorize(err))))
				return Result{Payload: stale.Payload, FetchedAt: stale.FetchedAt, Stale: true, FromCache: true}, nil
			}
			if staleErr != nil {
				observability.CacheErrorsTotal.WithLabelValues("get_stale", string(client.Categorize(staleErr))).Inc()
			}
		}
		return Result{}, fmt.Errorf("%w: fetch %s/%s: %v", client.ErrDataUnavailable, req.Provider, req.Dataset, err)
	}

	fetchedAt := s.clock.Now()
	if setErr := s.cache.Set(ctx, key, Entry{Payload: payload, FetchedAt: fetchedAt, TTL: ttl}); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.Categorize(setErr))).Inc()
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	return Result{Payload: payload, FetchedAt: fetchedAt}, nil
}
