// Package executor runs the per-position monitors between trading ticks:
// the staged partial take-profit ladder and the trend-reversal watch. Both
// serialise their writes through the distributed lock table so multiple
// engine instances (or a crash-recovery restart) cannot double-execute.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// recentCloseWindow suppresses execution shortly after any close event for
// the same (symbol, side). It covers the gap between an executed close and
// a restarted process re-reading a stale position row.
const recentCloseWindow = 30 * time.Second

// LockStore is the slice of the store the guard needs.
type LockStore interface {
	TryAcquireLock(ctx context.Context, key, holder string) (bool, error)
	ReleaseLock(ctx context.Context, key, holder string) error
	HasRecentClose(ctx context.Context, symbol string, side exchange.PositionSide, window time.Duration) (bool, error)
}

// Guard wraps the distributed lock table with the recent-close suppressor.
// One Guard per process; the holder identity is stable for its lifetime.
type Guard struct {
	store  LockStore
	holder string
	logger zerolog.Logger
}

// NewGuard creates a guard whose holder identity is hostname:pid.
func NewGuard(store LockStore) *Guard {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Guard{
		store:  store,
		holder: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		logger: config.NewLogger("executor.guard"),
	}
}

// Holder returns this process's lock identity.
func (g *Guard) Holder() string { return g.holder }

// Acquire checks the recent-close suppressor and then takes the named lock.
// On success it returns ok=true and a release func the caller must defer.
// ok=false with a nil error means another holder or a recent close won.
func (g *Guard) Acquire(ctx context.Context, key, symbol string, side exchange.PositionSide) (release func(), ok bool, err error) {
	recent, err := g.store.HasRecentClose(ctx, symbol, side, recentCloseWindow)
	if err != nil {
		return nil, false, fmt.Errorf("checking recent closes for %s/%s: %w", symbol, side, err)
	}
	if recent {
		g.logger.Debug().
			Str("symbol", symbol).
			Str("side", string(side)).
			Str("key", key).
			Msg("Recent close event, skipping")
		return nil, false, nil
	}

	acquired, err := g.store.TryAcquireLock(ctx, key, g.holder)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !acquired {
		g.logger.Debug().Str("key", key).Msg("Lock held elsewhere, skipping")
		return nil, false, nil
	}

	release = func() {
		// Release runs on its own context so shutdown cancellation cannot
		// strand the lease.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.store.ReleaseLock(rctx, key, g.holder); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
		}
	}
	return release, true, nil
}

// PartialTPLockKey names the stage lock for one ladder stage.
func PartialTPLockKey(symbol string, side exchange.PositionSide, stage int) string {
	return fmt.Sprintf("partial_tp_%s_%s_stage%d", symbol, side, stage)
}

// ReversalLockKey names the emergency-close lock for one position.
func ReversalLockKey(symbol string, side exchange.PositionSide) string {
	return fmt.Sprintf("reversal_close_%s_%s", symbol, side)
}
