// Package batch funnels every external provider call through a per-provider
// pipeline of token-bucket rate limiting, bounded concurrency, retry with
// exponential backoff, and a circuit breaker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/seoforge/seoforge/pkg/config"
)

// ErrCircuitOpen is returned while the provider's circuit breaker is open.
// Callers fail fast instead of queueing behind a dead upstream.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Retryable marks errors that may succeed on a later attempt (network
// failures, 429, 5xx). Errors not implementing it, or returning false, fail
// the call immediately.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err carries a retryable marker.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Batcher serializes calls to one upstream provider.
type Batcher struct {
	name    string
	cfg     config.BatcherConfig
	limiter *rate.Limiter
	sem     chan struct{}
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New creates a batcher for the named provider.
func New(name string, cfg config.BatcherConfig, logger *slog.Logger) *Batcher {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	limit := rate.Limit(float64(cfg.MaxPerWindow) / window.Seconds())
	burst := cfg.BurstCapacity
	if burst < 1 {
		burst = 1
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	b := &Batcher{
		name:    name,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		sem:     make(chan struct{}, maxInFlight),
		logger:  logger.With("component", "batcher", "provider", name),
	}

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // half-open admits a single probe
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerThreshold)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				"from", from.String(), "to", to.String())
			circuitState.WithLabelValues(name).Set(breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			// Non-retryable caller errors (bad request, auth) say nothing
			// about upstream health and must not trip the breaker.
			return err == nil || !IsRetryable(err)
		},
	})
	return b
}

// Do executes op under the batcher's rate limit, concurrency bound, circuit
// breaker, and retry policy. op receives a context it must honor.
func (b *Batcher) Do(ctx context.Context, op func(ctx context.Context) error) error {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	attempt := 0
	run := func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		_, err := b.breaker.Execute(func() (any, error) {
			return nil, op(ctx)
		})
		if err == nil {
			requestsTotal.WithLabelValues(b.name, "success").Inc()
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(b.name, "circuit_open").Inc()
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, b.name))
		}
		if !IsRetryable(err) {
			requestsTotal.WithLabelValues(b.name, "failure").Inc()
			return backoff.Permanent(err)
		}
		requestsTotal.WithLabelValues(b.name, "retryable_failure").Inc()
		retriesTotal.WithLabelValues(b.name).Inc()
		b.logger.Debug("retryable provider failure", "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(run, b.newBackoff(ctx))
}

// Submit is Do for calls that produce a value.
func Submit[T any](ctx context.Context, b *Batcher, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

func (b *Batcher) newBackoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.InitialBackoff
	eb.MaxInterval = b.cfg.MaxBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0 // bounded by retry count and ctx, not wall clock
	retries := b.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
