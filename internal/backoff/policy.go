// Package backoff computes and sleeps the retry delays used by the
// conductor's model-provider adapters when a provider call fails with a
// retryable provider.FailoverReason (rate limit, timeout, transient server
// error). It holds no knowledge of the provider taxonomy itself — callers
// decide what's retryable and pass that decision to RetryIf as a predicate.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the parameters for exponential backoff calculation
// between provider-call retries.
type RetryPolicy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied to each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	Jitter float64
}

// ComputeRetryDelay calculates the backoff duration for a given attempt
// number. The formula is: base = initialMs * factor^(attempt-1), jitter =
// base * jitter * random(). Returns min(maxMs, base + jitter) as a
// time.Duration. Attempt numbers start at 1.
func ComputeRetryDelay(policy RetryPolicy, attempt int) time.Duration {
	return ComputeRetryDelayWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeRetryDelayWithRand calculates the backoff duration using a provided
// random value, letting tests pin a deterministic jitter draw.
func ComputeRetryDelayWithRand(policy RetryPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DefaultPolicy is the retry policy every model-provider adapter uses
// unless a deployment overrides it. Initial: 100ms, Max: 30s, Factor: 2,
// Jitter: 10%.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		InitialMs: 100,
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0.1,
	}
}
