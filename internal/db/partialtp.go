package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

func insertPartialTP(ctx context.Context, ex executor, r *PartialTPRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	// The unique (position_order_id, stage) constraint makes the insert
	// idempotent per open-position lifetime.
	query := `
		INSERT INTO partial_take_profit_history (
			id, symbol, side, stage, position_order_id, trigger_price,
			closed_quantity, pnl, order_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := ex.Exec(ctx, query,
		r.ID, r.Symbol, r.Side, r.Stage, r.PositionOrderID, r.TriggerPrice,
		r.ClosedQuantity, r.PnL, r.OrderID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert partial TP record: %w", err)
	}
	return nil
}

// StageExecuted reports whether the given stage has already run for the
// position identified by its entry order.
func (s *Store) StageExecuted(ctx context.Context, positionOrderID string, stage int) (bool, error) {
	query := `
		SELECT COUNT(*) FROM partial_take_profit_history
		WHERE position_order_id = $1 AND stage = $2`
	var count int
	if err := s.pool.QueryRow(ctx, query, positionOrderID, stage).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check stage %d for %s: %w", stage, positionOrderID, err)
	}
	return count > 0, nil
}

// PartialHistory returns the executed stages for the position, in stage
// order.
func (s *Store) PartialHistory(ctx context.Context, symbol string, side exchange.PositionSide, positionOrderID string) ([]*PartialTPRecord, error) {
	query := `
		SELECT id, symbol, side, stage, position_order_id, trigger_price,
		       closed_quantity, pnl, order_id, created_at
		FROM partial_take_profit_history
		WHERE symbol = $1 AND side = $2 AND position_order_id = $3
		ORDER BY stage`
	rows, err := s.pool.Query(ctx, query, symbol, side, positionOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partial TP history for %s/%s: %w", symbol, side, err)
	}
	defer rows.Close()

	var out []*PartialTPRecord
	for rows.Next() {
		var r PartialTPRecord
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.Side, &r.Stage, &r.PositionOrderID,
			&r.TriggerPrice, &r.ClosedQuantity, &r.PnL, &r.OrderID, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan partial TP record: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
