package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func TestWithRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhausts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}, func() error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)
	assert.ErrorContains(t, err, "failed after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
	}, func() error {
		calls++
		return permanent
	})
	require.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExponentialWaits(t *testing.T) {
	var waits []time.Duration
	_ = WithRetry(context.Background(), RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Backoff:     true,
		OnRetry:     func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) },
	}, func() error { return errBusy })

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, Delay: time.Hour}, func() error {
		calls++
		cancel()
		return errBusy
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
