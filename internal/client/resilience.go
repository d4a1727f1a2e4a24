package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// ResilienceConfig controls the retry/breaker wrapper. MaxRetries of 0 means a
// single attempt, matching the bare client contract.
type ResilienceConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// ResilientClient decorates a SourceClient with exponential-backoff retries and
// a circuit breaker. Auth and schema failures are never retried; transport and
// rate-limit failures are.
type ResilientClient struct {
	inner   SourceClient
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker
}

// WithResilience wraps inner. The breaker opens after BreakerMaxFailures
// consecutive failures and half-opens after BreakerOpenTimeout.
func WithResilience(inner SourceClient, name string, cfg ResilienceConfig) *ResilientClient {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	})
	return &ResilientClient{inner: inner, cfg: cfg, breaker: cb}
}

func (c *ResilientClient) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	var payload []byte

	operation := func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.inner.Fetch(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open for %s", ErrTransport, req.Provider))
			}
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(operation, policy, func(error, time.Duration) {
		observability.FetchRetriesTotal.WithLabelValues(string(req.Provider)).Inc()
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Ping bypasses retry and breaker state; health checks want the current truth.
func (c *ResilientClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited)
}
