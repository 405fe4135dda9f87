package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/strategy"
)

const (
	fillPollInterval = 500 * time.Millisecond
	fillPollAttempts = 20

	// stopRegistrationRetries bounds the protective-order attempts before
	// the position is persisted bare and handed to the monitor for repair.
	stopRegistrationRetries = 3
)

// openPosition runs the full open flow for one scored opportunity: the stop
// open-gate, sizing, leverage, entry order, fill polling, a stop recompute
// at the fill price, protective-order registration, and the transactional
// persist.
func (t *Trader) openPosition(ctx context.Context, opp *strategy.Opportunity) error {
	symbol := opp.Symbol
	side := opp.Action.Side()
	contract := t.ex.NormalizeSymbol(symbol)

	candles, err := t.ex.Candles(ctx, contract, t.cfg.Preset().Primary, t.candleLimit())
	if err != nil {
		return fmt.Errorf("fetching candles for %s: %w", symbol, err)
	}
	ticker, err := t.ex.Ticker(ctx, contract, true)
	if err != nil {
		return fmt.Errorf("fetching ticker for %s: %w", symbol, err)
	}
	price := ticker.MarkPrice
	if price == 0 {
		price = ticker.Last
	}

	stop, err := t.stops.Calculate(symbol, side, price, candles)
	if err != nil {
		return fmt.Errorf("calculating stop for %s: %w", symbol, err)
	}
	if t.cfg.Trading.EnableStopLossFilter {
		if ok, reason := t.stops.ShouldOpen(stop); !ok {
			t.logger.Info().
				Str("symbol", symbol).
				Str("side", string(side)).
				Str("reason", reason).
				Msg("Open rejected by stop gate")
			return nil
		}
	}

	info, err := t.ex.ContractInfo(ctx, contract)
	if err != nil {
		return fmt.Errorf("fetching contract info for %s: %w", symbol, err)
	}

	leverage := clampLeverage(opp.Leverage, t.cfg.Trading.MaxLeverage, info)
	qty := t.ex.QuantityFromUSDT(t.cfg.Trading.PositionSizeUSDT, price, leverage, info)
	if qty <= 0 {
		t.logger.Warn().
			Str("symbol", symbol).
			Float64("margin", t.cfg.Trading.PositionSizeUSDT).
			Float64("price", price).
			Msg("Order quantity below contract minimum, skipping open")
		return nil
	}

	if err := t.ex.SetLeverage(ctx, contract, int(leverage)); err != nil {
		return fmt.Errorf("setting leverage for %s: %w", symbol, err)
	}

	size := qty
	if side == exchange.SideShort {
		size = -qty
	}
	placed, err := t.placeOrder(ctx, exchange.OrderRequest{
		Contract: contract,
		Size:     size,
	})
	if err != nil {
		t.metrics.ordersPlaced.WithLabelValues("rejected").Inc()
		t.alerts.OrderFailed(ctx, symbol, string(side), qty, err)
		return fmt.Errorf("placing entry order for %s/%s: %w", symbol, side, err)
	}

	filled, err := t.awaitFill(ctx, contract, placed)
	if err != nil {
		t.metrics.ordersPlaced.WithLabelValues("unfilled").Inc()
		return err
	}
	t.metrics.ordersPlaced.WithLabelValues("filled").Inc()

	fillPrice := filled.AvgFillPrice
	if fillPrice == 0 {
		fillPrice = price
	}

	// The stop computed from the pre-order price drifts with slippage, so
	// it is recomputed at the actual fill before the protective orders go
	// out. The entry stop frozen here is the ladder's R unit.
	finalStop := stop
	if recomputed, err := t.stops.Calculate(symbol, side, fillPrice, candles); err == nil {
		finalStop = recomputed
	} else {
		t.logger.Warn().Err(err).
			Str("symbol", symbol).
			Msg("Stop recompute at fill failed, keeping pre-fill stop")
	}
	takeProfit := finalStop.TakeProfitAt(t.cfg.Preset().PartialTP.ExtremeR)

	protective, regErr := t.registerStops(ctx, contract, finalStop.StopLoss, takeProfit)
	if regErr != nil {
		t.alerts.BarePosition(ctx, symbol, string(side), qty, regErr)
	}

	pos := &db.Position{
		Symbol:           symbol,
		Exchange:         string(t.ex.Kind()),
		Side:             side,
		EntryPrice:       fillPrice,
		Quantity:         qty,
		Leverage:         leverage,
		CurrentPrice:     fillPrice,
		StopLoss:         finalStop.StopLoss,
		TakeProfit:       takeProfit,
		EntryOrderID:     placed.OrderID,
		SLOrderID:        protective.SLOrderID,
		TPOrderID:        protective.TPOrderID,
		OpenedAt:         t.ex.Now(),
		MarketState:      string(opp.Regime),
		StrategyType:     string(opp.Strategy),
		SignalStrength:   signalStrength(opp),
		OpportunityScore: opp.Score,
		EntryStopLoss:    finalStop.StopLoss,
	}

	entry := &db.Trade{
		OrderID:      placed.OrderID,
		Symbol:       symbol,
		Side:         side,
		Type:         db.TradeOpen,
		Price:        fillPrice,
		Quantity:     qty,
		Leverage:     leverage,
		StrategyName: string(opp.Strategy),
		Status:       string(exchange.OrderStatusFilled),
	}

	var orders []*db.PriceOrder
	if protective.SLOrderID != "" {
		orders = append(orders, &db.PriceOrder{
			OrderID:         protective.SLOrderID,
			PositionOrderID: placed.OrderID,
			Symbol:          symbol,
			Side:            side,
			Type:            db.PriceOrderStopLoss,
			TriggerPrice:    finalStop.StopLoss,
			Quantity:        qty,
			Status:          db.PriceOrderActive,
		})
	}
	if protective.TPOrderID != "" {
		orders = append(orders, &db.PriceOrder{
			OrderID:         protective.TPOrderID,
			PositionOrderID: placed.OrderID,
			Symbol:          symbol,
			Side:            side,
			Type:            db.PriceOrderTakeProfit,
			TriggerPrice:    takeProfit,
			Quantity:        qty,
			Status:          db.PriceOrderActive,
		})
	}

	if err := t.store.OpenPosition(ctx, pos, entry, orders); err != nil {
		// The exchange position is live; the next reconciliation pass
		// re-detects it as untracked for the operator.
		return fmt.Errorf("persisting position %s/%s: %w", symbol, side, err)
	}

	t.logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry", fillPrice).
		Float64("quantity", qty).
		Float64("leverage", leverage).
		Float64("stop", finalStop.StopLoss).
		Float64("take_profit", takeProfit).
		Int("score", opp.Score).
		Str("strategy", string(opp.Strategy)).
		Msg("Position opened")
	return nil
}

// awaitFill polls the entry order until it fills. On timeout the order is
// cancelled so no half-tracked position lingers.
func (t *Trader) awaitFill(ctx context.Context, contract string, order *exchange.OrderResponse) (*exchange.OrderResponse, error) {
	if order.Status == exchange.OrderStatusFilled {
		return order, nil
	}

	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fillPollInterval):
		}

		current, err := t.ex.GetOrder(ctx, contract, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("polling order %s: %w", order.OrderID, err)
		}
		switch current.Status {
		case exchange.OrderStatusFilled:
			return current, nil
		case exchange.OrderStatusCancelled, exchange.OrderStatusExpired, exchange.OrderStatusRejected:
			return nil, fmt.Errorf("entry order %s ended %s before filling", order.OrderID, current.Status)
		}
	}

	if err := t.ex.CancelOrder(ctx, contract, order.OrderID); err != nil {
		t.logger.Warn().Err(err).
			Str("order_id", order.OrderID).
			Msg("Failed to cancel unfilled entry order")
	}
	return nil, fmt.Errorf("entry order %s did not fill within %s",
		order.OrderID, time.Duration(fillPollAttempts)*fillPollInterval)
}

// registerStops places the protective legs, retrying transient failures.
// On exhaustion it returns an empty result and the last error; the position
// is persisted bare and repaired by the monitor loop.
func (t *Trader) registerStops(ctx context.Context, contract string, stop, takeProfit float64) (exchange.StopOrderResult, error) {
	var lastErr error
	for attempt := 1; attempt <= stopRegistrationRetries; attempt++ {
		result, err := t.ex.SetPositionStopLoss(ctx, contract, stop, takeProfit)
		if err == nil {
			return *result, nil
		}
		lastErr = err
		t.logger.Warn().Err(err).
			Str("contract", contract).
			Int("attempt", attempt).
			Msg("Protective order registration failed")
	}
	return exchange.StopOrderResult{}, lastErr
}

// clampLeverage bounds the recommended leverage by the configuration cap and
// the contract's own limits.
func clampLeverage(recommended, configMax float64, info *exchange.ContractInfo) float64 {
	lev := recommended
	if lev <= 0 {
		lev = 1
	}
	lev = math.Min(lev, configMax)
	if info != nil {
		if info.MaxLeverage > 0 {
			lev = math.Min(lev, info.MaxLeverage)
		}
		if info.MinLeverage > 0 {
			lev = math.Max(lev, info.MinLeverage)
		}
	}
	return math.Floor(lev)
}

// signalStrength recovers the raw strategy signal from the score breakdown.
func signalStrength(opp *strategy.Opportunity) float64 {
	if opp.Breakdown == nil {
		return 0
	}
	return opp.Breakdown.Signal / 30
}
