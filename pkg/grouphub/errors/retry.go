package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how often a delivery is re-attempted.
type RetryConfig struct {
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Jitter spreads each wait by up to ±Jitter of its length (0.0-1.0).
	Jitter float64

	// RetryIf overrides IsRetryable.
	RetryIf func(error) bool
}

// DefaultRetry is the starting point for NewRetryConfig.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry attempts delivery exactly once.
var NoRetry = RetryConfig{MaxAttempts: 1}

// Backoff returns the wait before attempt n+1, where n >= 1 attempts have
// failed.
func (c RetryConfig) Backoff(n int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= c.BackoffFactor
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			d = float64(c.MaxBackoff)
			break
		}
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// ShouldRetry reports whether err is worth another attempt under c.
func (c RetryConfig) ShouldRetry(err error) bool {
	if c.RetryIf != nil {
		return c.RetryIf(err)
	}
	return IsRetryable(err)
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx ends.
//
// With a single attempt the error from fn is returned unchanged. Otherwise
// failures are returned as a *DeliveryError carrying the attempt count.
func Do(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for n := 1; ; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &DeliveryError{Err: ctxErr, Category: CategoryPermanent, Attempts: n - 1}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if attempts == 1 {
			return err
		}
		if n == attempts || !cfg.ShouldRetry(err) {
			return &DeliveryError{Err: err, Category: Categorize(err), Attempts: n}
		}

		timer := time.NewTimer(cfg.Backoff(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &DeliveryError{Err: err, Category: CategoryPermanent, Attempts: n}
		case <-timer.C:
		}
	}
}

// RetryOption adjusts a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithInitialBackoff sets the first wait.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

// WithMaxBackoff caps the wait between attempts.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxBackoff = d }
}

// WithJitter sets the jitter fraction.
func WithJitter(j float64) RetryOption {
	return func(c *RetryConfig) { c.Jitter = j }
}

// WithRetryIf replaces the retryability check.
func WithRetryIf(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryIf = fn }
}

// NewRetryConfig applies opts to DefaultRetry.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
