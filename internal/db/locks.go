package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// LockLease is how long a held lock stays exclusive without a refresh.
// A holder that crashes is preempted by the next caller after the lease.
const LockLease = 30 * time.Second

// TryAcquireLock takes the distributed lock stored in system_config.
// Semantics: a missing row is inserted; a row held by the same holder is
// refreshed; a fresh row held by someone else fails; a stale row is
// preempted with a warning. Returns true when the caller holds the lock.
func (s *Store) TryAcquireLock(ctx context.Context, key, holder string) (bool, error) {
	var current string
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, updated_at FROM system_config WHERE key = $1`, key,
	).Scan(&current, &updatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No holder yet; fall through to the atomic upsert.
	case err != nil:
		return false, fmt.Errorf("failed to read lock %s: %w", key, err)
	case current != holder && time.Since(updatedAt) < LockLease:
		return false, nil
	case current != holder:
		s.logger.Warn().
			Str("key", key).
			Str("stale_holder", current).
			Str("holder", holder).
			Time("held_since", updatedAt).
			Msg("Preempting stale lock")
	}

	// The conditional upsert is the authoritative acquisition; the read
	// above only decides whether to warn. A concurrent caller loses here.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
		WHERE system_config.value = $2 OR system_config.updated_at < NOW() - $3::interval`,
		key, holder, fmt.Sprintf("%d seconds", int(LockLease.Seconds())),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock drops the lock, but only for its current holder.
func (s *Store) ReleaseLock(ctx context.Context, key, holder string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM system_config WHERE key = $1 AND value = $2`, key, holder)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug().Str("key", key).Str("holder", holder).
			Msg("Lock already released or taken over")
	}
	return nil
}
