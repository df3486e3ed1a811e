package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewAttempts_Defaults(t *testing.T) {
	a := NewAttempts(nil, 0)
	if a.Timeout() != DefaultAttemptTimeout {
		t.Errorf("Timeout() = %v, want %v", a.Timeout(), DefaultAttemptTimeout)
	}
	if a.Retry().Config().MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", a.Retry().Config().MaxAttempts)
	}
}

func TestBound(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		op      func(ctx context.Context) error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "success",
			timeout: time.Second,
			op:      func(context.Context) error { return nil },
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("err = %v", err)
				}
			},
		},
		{
			name:    "ignores context",
			timeout: 10 * time.Millisecond,
			op: func(context.Context) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			},
			check: func(t *testing.T, err error) {
				var te *TimeoutError
				if !errors.As(err, &te) || te.After != 10*time.Millisecond {
					t.Errorf("err = %#v, want *TimeoutError after 10ms", err)
				}
				if !Retryable(err) {
					t.Error("timeouts must be retryable")
				}
			},
		},
		{
			name:    "sees deadline",
			timeout: 20 * time.Millisecond,
			op: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrTimeout) {
					t.Errorf("err = %v, want ErrTimeout", err)
				}
			},
		},
		{
			name:    "passes errors through",
			timeout: time.Second,
			op: func(context.Context) error {
				return &ServerError{Status: 503}
			},
			check: func(t *testing.T, err error) {
				if StatusOf(err) != 503 {
					t.Errorf("err = %v, want 503", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Bound(context.Background(), tt.timeout, tt.op))
		})
	}
}

func TestBound_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Bound(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Bound() error = %v, want context.Canceled", err)
	}
}

func TestAttempts_TimeoutCountsAsAttempt(t *testing.T) {
	a := NewAttempts(NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}), 10*time.Millisecond)

	var seen []int
	err := a.Do(context.Background(), func(ctx context.Context) error {
		seen = append(seen, AttemptFrom(ctx))
		if len(seen) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", seen)
	}
}

func TestAttempts_ExhaustedReturnsTimeout(t *testing.T) {
	a := NewAttempts(NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}), 5*time.Millisecond)

	err := a.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Do() error = %v, want ErrTimeout", err)
	}
}

func TestAttemptFrom_OutsideRetry(t *testing.T) {
	if n := AttemptFrom(context.Background()); n != 0 {
		t.Errorf("AttemptFrom() = %d, want 0", n)
	}
}
