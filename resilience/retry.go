package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior for a fetch.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 300ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 5s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: Retryable
	RetryIf func(err error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 300 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = Retryable
	}
	return c
}

// Retry runs an operation with exponential backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry schedule, filling unset fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config.withDefaults()}
}

// NoRetry returns a schedule that makes exactly one attempt.
func NoRetry() *Retry {
	return NewRetry(RetryConfig{MaxAttempts: 1})
}

type attemptKey struct{}

// AttemptFrom returns the 1-based attempt number of the operation running
// under ctx, or 0 outside a retry.
func AttemptFrom(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// Do runs op until it succeeds, returns an error RetryIf rejects, or the
// attempt budget is spent. The last error is returned unchanged; a
// cancelled ctx during backoff returns ctx.Err().
func (r *Retry) Do(ctx context.Context, op func(context.Context) error) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		err := op(context.WithValue(ctx, attemptKey{}, attempt))
		if err == nil || attempt >= r.config.MaxAttempts || !r.config.RetryIf(err) {
			return err
		}

		delay := r.Delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Delay returns the backoff slept after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (r *Retry) Delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	delay := r.config.MaxDelay
	if d > 0 && d < float64(r.config.MaxDelay) {
		delay = time.Duration(d)
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
