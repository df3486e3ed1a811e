package resilience

import (
	"context"
	"errors"
	"time"
)

// DefaultAttemptTimeout bounds an attempt when no timeout is configured.
const DefaultAttemptTimeout = 30 * time.Second

// Attempts runs an operation under a retry schedule with every attempt
// bounded by its own deadline. A timed-out attempt counts as a failed,
// retryable attempt.
type Attempts struct {
	retry   *Retry
	timeout time.Duration
}

// NewAttempts combines retry with a per-attempt timeout. A nil retry makes
// one attempt; a non-positive timeout uses DefaultAttemptTimeout.
func NewAttempts(retry *Retry, timeout time.Duration) *Attempts {
	if retry == nil {
		retry = NoRetry()
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Attempts{retry: retry, timeout: timeout}
}

// Do runs op until the retry schedule stops it.
func (a *Attempts) Do(ctx context.Context, op func(context.Context) error) error {
	return a.retry.Do(ctx, func(ctx context.Context) error {
		return Bound(ctx, a.timeout, op)
	})
}

// Retry returns the retry schedule.
func (a *Attempts) Retry() *Retry { return a.retry }

// Timeout returns the per-attempt timeout.
func (a *Attempts) Timeout() time.Duration { return a.timeout }

// Bound runs op with a deadline of d. An op that ignores its context is
// abandoned when the deadline passes and a *TimeoutError is returned; its
// eventual result is dropped. Cancellation of ctx itself is returned as
// ctx.Err().
func Bound(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: d}
	}
	return err
}
