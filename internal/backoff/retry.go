package backoff

import (
	"context"
)

// RetryResult holds the result of a provider call retried with backoff.
type RetryResult[T any] struct {
	// Value is the successful result value.
	Value T
	// Attempts is the number of attempts made (1-indexed).
	Attempts int
	// LastErr is the last error encountered, if any.
	LastErr error
}

// RetryIf runs fn up to maxAttempts times, sleeping between attempts
// according to policy. Unlike a blind retry loop, it consults shouldRetry
// after every failure: when shouldRetry returns false the function returns
// immediately with that error, without sleeping or burning a further
// attempt — this is what lets a model-provider adapter stop on the first
// non-retryable provider.FailoverReason instead of retrying a request that
// will never succeed (e.g. an auth or invalid_request failure).
//
// Context cancellation is checked between attempts, allowing graceful
// shutdown.
func RetryIf[T any](
	ctx context.Context,
	policy RetryPolicy,
	maxAttempts int,
	shouldRetry func(error) bool,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}

		result.LastErr = err
		if attempt == maxAttempts || !shouldRetry(err) {
			return result, err
		}

		if sleepErr := SleepBeforeRetry(ctx, policy, attempt); sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, result.LastErr
}
