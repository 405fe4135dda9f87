package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// InsertCloseEvent appends one close event.
func (s *Store) InsertCloseEvent(ctx context.Context, e *CloseEvent) error {
	return insertCloseEvent(ctx, s.pool, e)
}

func insertCloseEvent(ctx context.Context, ex executor, e *CloseEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO position_close_events (
			id, symbol, side, close_reason, trigger_type, close_price,
			entry_price, quantity, leverage, pnl, pnl_percent, fee,
			position_order_id, trigger_order_id, processed, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := ex.Exec(ctx, query,
		e.ID, e.Symbol, e.Side, e.CloseReason, e.TriggerType, e.ClosePrice,
		e.EntryPrice, e.Quantity, e.Leverage, e.PnL, e.PnLPercent, e.Fee,
		e.PositionOrderID, e.TriggerOrderID, e.Processed, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert close event: %w", err)
	}
	return nil
}

// HasRecentClose reports whether any close event exists for (symbol, side)
// inside the window. The executors consult this before acting so a freshly
// restarted scheduler cannot double-close after a crash.
func (s *Store) HasRecentClose(ctx context.Context, symbol string, side exchange.PositionSide, window time.Duration) (bool, error) {
	query := `
		SELECT COUNT(*) FROM position_close_events
		WHERE symbol = $1 AND side = $2 AND created_at > $3`
	var count int
	cutoff := time.Now().UTC().Add(-window)
	if err := s.pool.QueryRow(ctx, query, symbol, side, cutoff).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check recent closes for %s/%s: %w", symbol, side, err)
	}
	return count > 0, nil
}

// UnprocessedCloseEvents returns close events the agent has not consumed,
// oldest first.
func (s *Store) UnprocessedCloseEvents(ctx context.Context, limit int) ([]*CloseEvent, error) {
	query := `
		SELECT id, symbol, side, close_reason, trigger_type, close_price,
		       entry_price, quantity, leverage, pnl, pnl_percent, fee,
		       position_order_id, trigger_order_id, processed, created_at
		FROM position_close_events
		WHERE processed = false
		ORDER BY created_at LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed close events: %w", err)
	}
	defer rows.Close()

	var out []*CloseEvent
	for rows.Next() {
		var e CloseEvent
		if err := rows.Scan(
			&e.ID, &e.Symbol, &e.Side, &e.CloseReason, &e.TriggerType,
			&e.ClosePrice, &e.EntryPrice, &e.Quantity, &e.Leverage, &e.PnL,
			&e.PnLPercent, &e.Fee, &e.PositionOrderID, &e.TriggerOrderID,
			&e.Processed, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan close event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkCloseEventProcessed flags one close event as consumed.
func (s *Store) MarkCloseEventProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE position_close_events SET processed = true WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark close event processed: %w", err)
	}
	return nil
}
