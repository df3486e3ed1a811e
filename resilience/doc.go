// Package resilience provides the retry and timeout machinery used by the
// fetch coordinator, together with the error taxonomy that drives it.
//
// # Errors
//
//   - NetworkError: transport failure, always retryable.
//   - ServerError: non-2xx response; retried for 5xx, not for 4xx.
//   - TimeoutError: one attempt exceeded its budget; retryable.
//   - ErrStaleResponse: a superseded response, dropped internally.
//
// # Usage
//
//	attempts := resilience.NewAttempts(resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 300 * time.Millisecond,
//	    MaxDelay:     5 * time.Second,
//	}), 30*time.Second)
//
//	err := attempts.Do(ctx, func(ctx context.Context) error {
//	    return callBackend(ctx)
//	})
package resilience
