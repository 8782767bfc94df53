package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

func TestWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return timeoutError{}
		}
		return nil
	}, isTransient)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		return timeoutError{}
	}, isTransient)

	assert.Error(t, err)
	assert.ErrorIs(t, err, timeoutError{})
	assert.Equal(t, 3, calls)
}

func TestWithRetry_PermanentErrorIsNotRetried(t *testing.T) {
	permanent := errors.New("closed")
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		return permanent
	}, isTransient)

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, RetryPolicy{Attempts: 5, Backoff: time.Hour}, func() error {
		calls++
		cancel()
		return timeoutError{}
	}, isTransient)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
