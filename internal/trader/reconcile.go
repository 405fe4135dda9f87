package trader

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// reconcile aligns the store with the exchange. The exchange is
// authoritative for existence: a store row with no exchange counterpart
// means a protective order fired or the position was closed manually, so the
// row is closed out. The store stays authoritative for metadata; surviving
// rows get their mark-to-market fields refreshed from the exchange view.
func (t *Trader) reconcile(ctx context.Context) ([]*db.Position, error) {
	views, err := t.ex.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange positions: %w", err)
	}
	onExchange := make(map[string]exchange.PositionView, len(views))
	for _, v := range views {
		onExchange[pairKey(v.Symbol, v.Side())] = v
	}

	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]bool, len(positions))
	var live []*db.Position
	for _, pos := range positions {
		key := pairKey(pos.Symbol, pos.Side)
		tracked[key] = true

		view, ok := onExchange[key]
		if !ok {
			t.recordExternalClose(ctx, pos)
			continue
		}

		if err := t.store.UpdatePositionMark(ctx, pos.Symbol, pos.Side,
			view.MarkPrice, view.UnrealisedPnL, view.LiquidationPrice); err != nil {
			t.logger.Warn().Err(err).
				Str("symbol", pos.Symbol).
				Msg("Failed to refresh position mark")
		}
		pos.CurrentPrice = view.MarkPrice
		pos.UnrealizedPnL = view.UnrealisedPnL
		pos.LiquidationPrice = view.LiquidationPrice
		live = append(live, pos)
	}

	for key, view := range onExchange {
		if !tracked[key] {
			t.logger.Warn().
				Str("symbol", view.Symbol).
				Str("side", string(view.Side())).
				Float64("size", view.Size).
				Msg("Untracked exchange position, not managed by this engine")
		}
	}
	return live, nil
}

// recordExternalClose closes out a store row whose exchange position is
// gone. The close price is the best available estimate: the exchange already
// settled the position, the store just catches up.
func (t *Trader) recordExternalClose(ctx context.Context, pos *db.Position) {
	contract := t.ex.NormalizeSymbol(pos.Symbol)

	closePrice := pos.CurrentPrice
	if ticker, err := t.ex.Ticker(ctx, contract, true); err == nil {
		closePrice = ticker.MarkPrice
		if closePrice == 0 {
			closePrice = ticker.Last
		}
	}
	if closePrice == 0 {
		closePrice = pos.EntryPrice
	}

	var pnl float64
	if info, err := t.ex.ContractInfo(ctx, contract); err == nil {
		pnl = t.ex.PnL(pos.EntryPrice, closePrice, pos.Quantity, pos.Side, info)
	}
	rMultiple := rMultipleAt(pos, closePrice)

	err := t.store.ClosePosition(ctx, pos.Symbol, pos.Side, &db.CloseEvent{
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		CloseReason:     "exchange_close_detected",
		TriggerType:     "reconciliation",
		ClosePrice:      closePrice,
		EntryPrice:      pos.EntryPrice,
		Quantity:        pos.Quantity,
		Leverage:        pos.Leverage,
		PnL:             pnl,
		PnLPercent:      movePercentAt(pos, closePrice),
		PositionOrderID: pos.EntryOrderID,
	}, &db.Trade{
		OrderID:      pos.EntryOrderID + "-ext",
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		Type:         db.TradeClose,
		Price:        closePrice,
		Quantity:     pos.Quantity,
		Leverage:     pos.Leverage,
		PnL:          &pnl,
		RMultiple:    &rMultiple,
		StrategyName: pos.StrategyType,
	})
	if err != nil {
		t.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Msg("Failed to record externally closed position")
		return
	}

	t.events.PublishClose(ClosePayload{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		CloseReason: "exchange_close_detected",
		TriggerType: "reconciliation",
		ClosePrice:  closePrice,
		Quantity:    pos.Quantity,
		PnL:         pnl,
	})
	t.logger.Warn().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("close_price", closePrice).
		Float64("pnl", pnl).
		Msg("Position closed on exchange, store reconciled")
}

func pairKey(symbol string, side exchange.PositionSide) string {
	return symbol + "|" + string(side)
}
