package ledger

import (
	"context"
	"time"
)

// DefaultConflictRetries is the number of retries DefaultConflictPolicy allows.
const DefaultConflictRetries = 3

// RetryPolicy defines how to handle retries for failed operations.
type RetryPolicy interface {
	// ShouldRetry returns true if the operation should be retried.
	ShouldRetry(attempt int, err error) bool

	// Delay returns the duration to wait before the next retry.
	Delay(attempt int) time.Duration
}

// exponentialBackoffRetry implements RetryPolicy with exponential backoff.
type exponentialBackoffRetry struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// ExponentialBackoffRetry creates a new retry policy with exponential backoff.
func ExponentialBackoffRetry(maxRetries int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return &exponentialBackoffRetry{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (r *exponentialBackoffRetry) ShouldRetry(attempt int, err error) bool {
	if err == nil {
		return false
	}
	return attempt < r.maxRetries
}

func (r *exponentialBackoffRetry) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 {
		return r.maxDelay
	}
	delay := r.baseDelay * (1 << uint(attempt)) // #nosec G115 - attempt is clamped to 0-62
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	return delay
}

// noRetry is a retry policy that never retries.
type noRetry struct{}

// NoRetry returns a retry policy that never retries.
func NoRetry() RetryPolicy {
	return &noRetry{}
}

func (r *noRetry) ShouldRetry(attempt int, err error) bool {
	return false
}

func (r *noRetry) Delay(attempt int) time.Duration {
	return 0
}

// DefaultConflictPolicy retries a conflicting command three times, starting at 10ms.
func DefaultConflictPolicy() RetryPolicy {
	return ExponentialBackoffRetry(DefaultConflictRetries, 10*time.Millisecond, 500*time.Millisecond)
}

// RetryOnConflict runs fn and re-runs it while it fails with a concurrency
// conflict and policy allows. fn must perform the whole command: hydrate,
// validate, raise and save, so every attempt sees fresh state. Other errors
// are returned immediately. A nil policy means DefaultConflictPolicy.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy == nil {
		policy = DefaultConflictPolicy()
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !IsRetryable(err) || !policy.ShouldRetry(attempt, err) {
			return err
		}

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
