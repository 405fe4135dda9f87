package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// executor is satisfied by both the pool and an open transaction.
type executor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// InsertTrade appends one trade row.
func (s *Store) InsertTrade(ctx context.Context, t *Trade) error {
	return insertTrade(ctx, s.pool, t)
}

func insertTrade(ctx context.Context, ex executor, t *Trade) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = "filled"
	}

	query := `
		INSERT INTO trades (
			id, order_id, symbol, side, type, price, quantity, leverage,
			fee, pnl, r_multiple, strategy_name, status, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := ex.Exec(ctx, query,
		t.ID, t.OrderID, t.Symbol, t.Side, t.Type, t.Price, t.Quantity,
		t.Leverage, t.Fee, t.PnL, t.RMultiple, t.StrategyName, t.Status,
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns the newest trades for a symbol, newest first.
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]*Trade, error) {
	query := `
		SELECT id, order_id, symbol, side, type, price, quantity, leverage,
		       fee, pnl, r_multiple, strategy_name, status, timestamp
		FROM trades WHERE symbol = $1
		ORDER BY timestamp DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Type, &t.Price,
			&t.Quantity, &t.Leverage, &t.Fee, &t.PnL, &t.RMultiple,
			&t.StrategyName, &t.Status, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
