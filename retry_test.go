package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoffRetry(t *testing.T) {
	policy := ExponentialBackoffRetry(3, 100*time.Millisecond, time.Second)

	t.Run("ShouldRetry", func(t *testing.T) {
		err := errors.New("boom")
		assert.True(t, policy.ShouldRetry(0, err))
		assert.True(t, policy.ShouldRetry(2, err))
		assert.False(t, policy.ShouldRetry(3, err))
		assert.False(t, policy.ShouldRetry(0, nil))
	})

	t.Run("Delay", func(t *testing.T) {
		tests := []struct {
			attempt int
			want    time.Duration
		}{
			{-1, 100 * time.Millisecond},
			{0, 100 * time.Millisecond},
			{1, 200 * time.Millisecond},
			{2, 400 * time.Millisecond},
			{4, time.Second},
			{100, time.Second},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
		}
	})
}

func TestNoRetry(t *testing.T) {
	policy := NoRetry()
	assert.False(t, policy.ShouldRetry(0, errors.New("boom")))
	assert.Zero(t, policy.Delay(3))
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()
	fast := ExponentialBackoffRetry(3, time.Millisecond, time.Millisecond)

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, fast, func(context.Context) error {
			calls++
			if calls < 3 {
				return NewPersistenceError("save car", NewConcurrencyError("car-1", 2))
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, fast, func(context.Context) error {
			calls++
			return NewConcurrencyError("car-1", 2)
		})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.Equal(t, 4, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, fast, func(context.Context) error {
			calls++
			return NewDomainRuleError("car", "mileage cannot decrease")
		})
		assert.ErrorIs(t, err, ErrDomainRuleViolation)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		err := RetryOnConflict(ctx, ExponentialBackoffRetry(5, time.Hour, time.Hour), func(context.Context) error {
			cancel()
			return NewConcurrencyError("car-1", 2)
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil policy uses the default", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, nil, func(context.Context) error {
			calls++
			return NewConcurrencyError("car-1", 2)
		})
		assert.Error(t, err)
		assert.Equal(t, DefaultConflictRetries+1, calls)
	})
}
