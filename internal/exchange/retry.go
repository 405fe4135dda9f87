package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig configures retry behaviour for exchange operations.
type RetryConfig struct {
	MaxRetries int
	Backoffs   []time.Duration
}

// DefaultRetryConfig is used for ordinary data requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Backoffs:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// StopOrderRetryConfig is the slower ladder used for protective stop-order
// placement.
func StopOrderRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Backoffs:   []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	if attempt < len(c.Backoffs) {
		return c.Backoffs[attempt]
	}
	if len(c.Backoffs) == 0 {
		return time.Second
	}
	return c.Backoffs[len(c.Backoffs)-1]
}

// RetryableOperation is one attempt of an exchange call.
type RetryableOperation func() error

// WithRetry executes an operation, retrying transport and rate-limit
// failures with the configured backoff ladder. Auth, invalid-argument,
// insufficient-funds and not-found errors abort immediately. Rate limits
// honour a Retry-After hint when the exchange provides one.
func WithRetry(ctx context.Context, config RetryConfig, operation RetryableOperation) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Int("attempt", attempt+1).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			log.Debug().
				Err(err).
				Str("kind", string(KindOf(err))).
				Msg("Error is not retryable, aborting")
			return err
		}

		if attempt == config.MaxRetries {
			break
		}

		wait := config.backoff(attempt)
		if KindOf(err) == ErrRateLimited {
			if ee, ok := lastErr.(*Error); ok && ee.RetryAfterSec > 0 {
				wait = time.Duration(ee.RetryAfterSec) * time.Second
			}
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxRetries+1).
			Dur("backoff", wait).
			Msg("Operation failed, retrying with backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
