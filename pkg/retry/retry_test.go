package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docdex/pkg/retry"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return retry.Transient(errors.New("rate limited"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
	}

	permanent := errors.New("invalid input")
	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return retry.Transient(errors.New("still down"))
	})

	assert.True(t, retry.IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func() error {
		return retry.Transient(errors.New("down"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, retry.IsTransient(retry.Transient(errors.New("429"))))
	assert.False(t, retry.IsTransient(errors.New("auth failed")))
	assert.NoError(t, retry.Transient(nil))
}
