package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertAccountSnapshot appends one account history row.
func (s *Store) InsertAccountSnapshot(ctx context.Context, snap *AccountSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO account_history (
			id, timestamp, total_value, available_cash, unrealized_pnl,
			realized_pnl, return_percent
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.Timestamp, snap.TotalValue, snap.AvailableCash,
		snap.UnrealizedPnL, snap.RealizedPnL, snap.ReturnPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent account history row, or nil when
// history is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	query := `
		SELECT id, timestamp, total_value, available_cash, unrealized_pnl,
		       realized_pnl, return_percent
		FROM account_history ORDER BY timestamp DESC LIMIT 1`
	var snap AccountSnapshot
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.ID, &snap.Timestamp, &snap.TotalValue, &snap.AvailableCash,
		&snap.UnrealizedPnL, &snap.RealizedPnL, &snap.ReturnPercent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest account snapshot: %w", err)
	}
	return &snap, nil
}

// AppendEquity derives the next equity-curve row from the running peak and
// persists it. Peak equity is monotonically non-decreasing within an
// uninterrupted lifetime.
func (s *Store) AppendEquity(ctx context.Context, equity float64) (*EquityPoint, error) {
	var peak float64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(peak_equity), 0) FROM equity_curve`).Scan(&peak)
	if err != nil {
		return nil, fmt.Errorf("failed to read peak equity: %w", err)
	}

	point := &EquityPoint{
		Timestamp:  time.Now().UTC(),
		Equity:     equity,
		PeakEquity: peak,
	}
	if equity > peak {
		point.PeakEquity = equity
		point.IsNewPeak = true
	}
	if point.PeakEquity > 0 {
		point.DrawdownValue = point.PeakEquity - equity
		point.DrawdownPct = point.DrawdownValue / point.PeakEquity * 100
	}

	query := `
		INSERT INTO equity_curve (
			timestamp, equity, peak_equity, drawdown_pct, drawdown_value, is_new_peak
		) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = s.pool.Exec(ctx, query,
		point.Timestamp, point.Equity, point.PeakEquity,
		point.DrawdownPct, point.DrawdownValue, point.IsNewPeak,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append equity point: %w", err)
	}
	return point, nil
}
