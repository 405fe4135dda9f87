package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

const positionColumns = `
	id, symbol, exchange, side, entry_price, quantity, leverage,
	current_price, liquidation_price, unrealized_pnl, realized_pnl,
	stop_loss, take_profit, entry_order_id, sl_order_id, tp_order_id,
	opened_at, market_state, strategy_type, signal_strength,
	opportunity_score, entry_stop_loss, trailing_mode, metadata,
	created_at, updated_at`

func scanPosition(row pgx.Row) (*Position, error) {
	var p Position
	err := row.Scan(
		&p.ID, &p.Symbol, &p.Exchange, &p.Side, &p.EntryPrice, &p.Quantity,
		&p.Leverage, &p.CurrentPrice, &p.LiquidationPrice, &p.UnrealizedPnL,
		&p.RealizedPnL, &p.StopLoss, &p.TakeProfit, &p.EntryOrderID,
		&p.SLOrderID, &p.TPOrderID, &p.OpenedAt, &p.MarketState,
		&p.StrategyType, &p.SignalStrength, &p.OpportunityScore,
		&p.EntryStopLoss, &p.TrailingMode, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Position returns the open position for (symbol, side), or nil when none
// exists.
func (s *Store) Position(ctx context.Context, symbol string, side exchange.PositionSide) (*Position, error) {
	query := `SELECT` + positionColumns + ` FROM positions WHERE symbol = $1 AND side = $2`
	p, err := scanPosition(s.pool.QueryRow(ctx, query, symbol, side))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s/%s: %w", symbol, side, err)
	}
	return p, nil
}

// OpenPositions returns every open position row.
func (s *Store) OpenPositions(ctx context.Context) ([]*Position, error) {
	query := `SELECT` + positionColumns + ` FROM positions ORDER BY opened_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenSymbols returns the set of symbols with at least one open position.
func (s *Store) OpenSymbols(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT symbol FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open symbols: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		out[symbol] = true
	}
	return out, rows.Err()
}

// insertPosition writes a position row inside tx.
func insertPosition(ctx context.Context, tx pgx.Tx, p *Position) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
		        $17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`
	_, err := tx.Exec(ctx, query,
		p.ID, p.Symbol, p.Exchange, p.Side, p.EntryPrice, p.Quantity,
		p.Leverage, p.CurrentPrice, p.LiquidationPrice, p.UnrealizedPnL,
		p.RealizedPnL, p.StopLoss, p.TakeProfit, p.EntryOrderID,
		p.SLOrderID, p.TPOrderID, p.OpenedAt, p.MarketState,
		p.StrategyType, p.SignalStrength, p.OpportunityScore,
		p.EntryStopLoss, p.TrailingMode, p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// UpdatePositionStop records a new stop (and the protective order IDs that
// back it) after a trailing update or stage migration.
func (s *Store) UpdatePositionStop(ctx context.Context, symbol string, side exchange.PositionSide, stop float64, slOrderID, tpOrderID string) error {
	query := `
		UPDATE positions
		SET stop_loss = $3, sl_order_id = $4, tp_order_id = $5, updated_at = NOW()
		WHERE symbol = $1 AND side = $2`
	tag, err := s.pool.Exec(ctx, query, symbol, side, stop, slOrderID, tpOrderID)
	if err != nil {
		return fmt.Errorf("failed to update stop for %s/%s: %w", symbol, side, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no open position for %s/%s", symbol, side)
	}
	return nil
}

// UpdatePositionMark refreshes the mark-to-market fields of a position row.
func (s *Store) UpdatePositionMark(ctx context.Context, symbol string, side exchange.PositionSide, currentPrice, unrealizedPnL, liquidationPrice float64) error {
	query := `
		UPDATE positions
		SET current_price = $3, unrealized_pnl = $4, liquidation_price = $5, updated_at = NOW()
		WHERE symbol = $1 AND side = $2`
	_, err := s.pool.Exec(ctx, query, symbol, side, currentPrice, unrealizedPnL, liquidationPrice)
	if err != nil {
		return fmt.Errorf("failed to update mark for %s/%s: %w", symbol, side, err)
	}
	return nil
}

// SetTrailingMode flips the trailing flag, set after stage 3 of the partial
// take-profit ladder completes.
func (s *Store) SetTrailingMode(ctx context.Context, symbol string, side exchange.PositionSide, enabled bool) error {
	query := `
		UPDATE positions SET trailing_mode = $3, updated_at = NOW()
		WHERE symbol = $1 AND side = $2`
	_, err := s.pool.Exec(ctx, query, symbol, side, enabled)
	if err != nil {
		return fmt.Errorf("failed to set trailing mode for %s/%s: %w", symbol, side, err)
	}
	return nil
}
