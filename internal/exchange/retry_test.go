package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Backoffs:   []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return Errorf(ErrTransport, "connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryAbortsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return Errorf(ErrInsufficientFunds, "margin too low")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable errors abort immediately")
	assert.Equal(t, ErrInsufficientFunds, KindOf(err))
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return Errorf(ErrTransport, "timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts, "initial attempt plus three retries")
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestWithRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, fastRetryConfig(), func() error {
		t.Fatal("operation must not run after cancellation")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetryHonoursRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries: 1,
		Backoffs:   []time.Duration{50 * time.Millisecond},
	}
	attempts := 0
	start := time.Now()
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return &Error{Kind: ErrRateLimited, RetryAfterSec: 0, Err: assert.AnError}
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestStopOrderRetryConfigLadder(t *testing.T) {
	cfg := StopOrderRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second}, cfg.Backoffs)
}
