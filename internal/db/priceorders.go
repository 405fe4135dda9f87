package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// InsertPriceOrder records one protective order. Idempotent on order_id:
// re-inserting an existing order refreshes its state instead of duplicating.
func (s *Store) InsertPriceOrder(ctx context.Context, o *PriceOrder) error {
	return insertPriceOrder(ctx, s.pool, o)
}

func insertPriceOrder(ctx context.Context, ex executor, o *PriceOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = PriceOrderActive
	}

	query := `
		INSERT INTO price_orders (
			id, order_id, position_order_id, symbol, side, type,
			trigger_price, order_price, quantity, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (order_id) DO UPDATE SET
			trigger_price = EXCLUDED.trigger_price,
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`
	_, err := ex.Exec(ctx, query,
		o.ID, o.OrderID, o.PositionOrderID, o.Symbol, o.Side, o.Type,
		o.TriggerPrice, o.OrderPrice, o.Quantity, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert price order: %w", err)
	}
	return nil
}

// ActivePriceOrders returns the active protective orders for (symbol, side).
func (s *Store) ActivePriceOrders(ctx context.Context, symbol string, side exchange.PositionSide) ([]*PriceOrder, error) {
	query := `
		SELECT id, order_id, position_order_id, symbol, side, type,
		       trigger_price, order_price, quantity, status, created_at, updated_at
		FROM price_orders
		WHERE symbol = $1 AND side = $2 AND status = 'active'
		ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, symbol, side)
	if err != nil {
		return nil, fmt.Errorf("failed to list price orders for %s/%s: %w", symbol, side, err)
	}
	defer rows.Close()

	var out []*PriceOrder
	for rows.Next() {
		var o PriceOrder
		if err := rows.Scan(
			&o.ID, &o.OrderID, &o.PositionOrderID, &o.Symbol, &o.Side,
			&o.Type, &o.TriggerPrice, &o.OrderPrice, &o.Quantity, &o.Status,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price order: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// MarkPriceOrder transitions one protective order's status.
func (s *Store) MarkPriceOrder(ctx context.Context, orderID string, status PriceOrderStatus) error {
	query := `UPDATE price_orders SET status = $2, updated_at = NOW() WHERE order_id = $1`
	_, err := s.pool.Exec(ctx, query, orderID, status)
	if err != nil {
		return fmt.Errorf("failed to mark price order %s %s: %w", orderID, status, err)
	}
	return nil
}

// cancelActivePriceOrders marks every active protective order for the pair
// cancelled, inside tx.
func cancelActivePriceOrders(ctx context.Context, ex executor, symbol string, side exchange.PositionSide) error {
	query := `
		UPDATE price_orders SET status = 'cancelled', updated_at = NOW()
		WHERE symbol = $1 AND side = $2 AND status = 'active'`
	if _, err := ex.Exec(ctx, query, symbol, side); err != nil {
		return fmt.Errorf("failed to cancel price orders for %s/%s: %w", symbol, side, err)
	}
	return nil
}
