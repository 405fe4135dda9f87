package db

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// OpenPosition atomically persists a freshly filled position: the position
// row, the entry trade, and the protective price orders. Any failure rolls
// the whole record back so the store never shows a position without its
// paper trail.
func (s *Store) OpenPosition(ctx context.Context, p *Position, entry *Trade, orders []*PriceOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin open-position tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertPosition(ctx, tx, p); err != nil {
		return err
	}
	if err := insertTrade(ctx, tx, entry); err != nil {
		return err
	}
	for _, o := range orders {
		if err := insertPriceOrder(ctx, tx, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit open-position tx: %w", err)
	}

	s.logger.Info().
		Str("symbol", p.Symbol).
		Str("side", string(p.Side)).
		Float64("entry", p.EntryPrice).
		Float64("quantity", p.Quantity).
		Float64("entry_stop_loss", p.EntryStopLoss).
		Msg("Position persisted")
	return nil
}

// ClosePosition atomically removes the position row, appends the close
// event and the close trade, and cancels any remaining active price orders.
func (s *Store) ClosePosition(ctx context.Context, symbol string, side exchange.PositionSide, event *CloseEvent, closeTrade *Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin close-position tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM positions WHERE symbol = $1 AND side = $2`, symbol, side)
	if err != nil {
		return fmt.Errorf("failed to delete position %s/%s: %w", symbol, side, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no open position for %s/%s", symbol, side)
	}

	if err := insertCloseEvent(ctx, tx, event); err != nil {
		return err
	}
	if closeTrade != nil {
		if err := insertTrade(ctx, tx, closeTrade); err != nil {
			return err
		}
	}
	if err := cancelActivePriceOrders(ctx, tx, symbol, side); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit close-position tx: %w", err)
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("reason", event.CloseReason).
		Float64("pnl", event.PnL).
		Msg("Position closed")
	return nil
}

// PartialClose carries everything one take-profit stage mutates.
type PartialClose struct {
	Symbol            string
	Side              exchange.PositionSide
	RemainingQuantity float64
	RealizedPnL       float64
	Record            *PartialTPRecord
	CloseTrade        *Trade
	Event             *CloseEvent
}

// ApplyPartialClose atomically shrinks the position, records the executed
// stage, and appends the close trade and event.
func (s *Store) ApplyPartialClose(ctx context.Context, pc PartialClose) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin partial-close tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE positions
		SET quantity = $3, realized_pnl = realized_pnl + $4, updated_at = NOW()
		WHERE symbol = $1 AND side = $2`,
		pc.Symbol, pc.Side, pc.RemainingQuantity, pc.RealizedPnL)
	if err != nil {
		return fmt.Errorf("failed to shrink position %s/%s: %w", pc.Symbol, pc.Side, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no open position for %s/%s", pc.Symbol, pc.Side)
	}

	if err := insertPartialTP(ctx, tx, pc.Record); err != nil {
		return err
	}
	if err := insertTrade(ctx, tx, pc.CloseTrade); err != nil {
		return err
	}
	if err := insertCloseEvent(ctx, tx, pc.Event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit partial-close tx: %w", err)
	}

	s.logger.Info().
		Str("symbol", pc.Symbol).
		Str("side", string(pc.Side)).
		Int("stage", pc.Record.Stage).
		Float64("closed", pc.Record.ClosedQuantity).
		Float64("remaining", pc.RemainingQuantity).
		Float64("pnl", pc.RealizedPnL).
		Msg("Partial take-profit applied")
	return nil
}
