package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// ladderStages is the fixed depth of the take-profit ladder.
const ladderStages = 3

// PartialStore is the slice of the store the ladder executor writes through.
type PartialStore interface {
	LockStore
	Position(ctx context.Context, symbol string, side exchange.PositionSide) (*db.Position, error)
	StageExecuted(ctx context.Context, positionOrderID string, stage int) (bool, error)
	ApplyPartialClose(ctx context.Context, pc db.PartialClose) error
	UpdatePositionStop(ctx context.Context, symbol string, side exchange.PositionSide, stop float64, slOrderID, tpOrderID string) error
	SetTrailingMode(ctx context.Context, symbol string, side exchange.PositionSide, enabled bool) error
}

// StageResult reports one executed ladder stage.
type StageResult struct {
	Stage           int     `json:"stage"`
	TriggerPrice    float64 `json:"trigger_price"`
	ClosedQuantity  float64 `json:"closed_quantity"`
	FillPrice       float64 `json:"fill_price"`
	PnL             float64 `json:"pnl"`
	NewStopLoss     float64 `json:"new_stop_loss,omitempty"`
	TrailingEnabled bool    `json:"trailing_enabled,omitempty"`
}

// PartialTPExecutor walks each open position up the R-multiple ladder,
// closing a fraction of the remaining quantity at every stage and migrating
// the stop behind the realised profit.
type PartialTPExecutor struct {
	store  PartialStore
	ex     exchange.Exchange
	guard  *Guard
	plan   config.PartialTPPlan
	logger zerolog.Logger
}

// NewPartialTPExecutor creates the ladder executor for the active preset.
func NewPartialTPExecutor(store PartialStore, ex exchange.Exchange, guard *Guard, plan config.PartialTPPlan) *PartialTPExecutor {
	return &PartialTPExecutor{
		store:  store,
		ex:     ex,
		guard:  guard,
		plan:   plan,
		logger: config.NewLogger("executor.partial_tp"),
	}
}

// stageTrigger is the price at which the given stage fires.
func (e *PartialTPExecutor) stageTrigger(pos *db.Position, stage int) float64 {
	r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
	if pos.Side == exchange.SideShort {
		return pos.EntryPrice - e.plan.RMultiples[stage-1]*r
	}
	return pos.EntryPrice + e.plan.RMultiples[stage-1]*r
}

func triggerReached(side exchange.PositionSide, price, trigger float64) bool {
	if side == exchange.SideShort {
		return price <= trigger
	}
	return price >= trigger
}

// CheckAndExecute examines one open position and executes the lowest pending
// stage whose trigger the current price has reached. At most one stage fires
// per call; the monitor loop's cadence picks up the next one.
func (e *PartialTPExecutor) CheckAndExecute(ctx context.Context, pos *db.Position) (*StageResult, error) {
	r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
	if r <= 0 {
		return nil, fmt.Errorf("position %s/%s has no risk unit: entry %v, entry stop %v",
			pos.Symbol, pos.Side, pos.EntryPrice, pos.EntryStopLoss)
	}

	contract := e.ex.NormalizeSymbol(pos.Symbol)
	ticker, err := e.ex.Ticker(ctx, contract, true)
	if err != nil {
		return nil, fmt.Errorf("fetching ticker for %s: %w", pos.Symbol, err)
	}
	price := ticker.MarkPrice
	if price == 0 {
		price = ticker.Last
	}

	for stage := 1; stage <= ladderStages; stage++ {
		trigger := e.stageTrigger(pos, stage)
		if !triggerReached(pos.Side, price, trigger) {
			return nil, nil
		}
		done, err := e.store.StageExecuted(ctx, pos.EntryOrderID, stage)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		return e.executeStage(ctx, pos, stage, trigger, price)
	}
	return nil, nil
}

func (e *PartialTPExecutor) executeStage(ctx context.Context, pos *db.Position, stage int, trigger, price float64) (*StageResult, error) {
	release, ok, err := e.guard.Acquire(ctx, PartialTPLockKey(pos.Symbol, pos.Side, stage), pos.Symbol, pos.Side)
	if err != nil || !ok {
		return nil, err
	}
	defer release()

	// Re-verify under the lock: another holder may have executed the stage
	// or closed the position between the check and the acquisition.
	current, err := e.store.Position(ctx, pos.Symbol, pos.Side)
	if err != nil {
		return nil, err
	}
	if current == nil {
		e.logger.Debug().
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Msg("Position gone before stage execution")
		return nil, nil
	}
	done, err := e.store.StageExecuted(ctx, current.EntryOrderID, stage)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	contract := e.ex.NormalizeSymbol(current.Symbol)
	info, err := e.ex.ContractInfo(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("fetching contract info for %s: %w", current.Symbol, err)
	}

	qty := exchange.QuantizeSize(current.Quantity*e.plan.Fractions[stage-1], info)
	if qty == 0 {
		e.logger.Warn().
			Str("symbol", current.Symbol).
			Str("side", string(current.Side)).
			Int("stage", stage).
			Float64("remaining", current.Quantity).
			Float64("fraction", e.plan.Fractions[stage-1]).
			Msg("Stage quantity below contract minimum, skipping")
		return nil, nil
	}

	size := qty
	if current.Side == exchange.SideLong {
		size = -qty
	}
	order, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Contract:   contract,
		Size:       size,
		Price:      0,
		ReduceOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("placing stage %d close for %s/%s: %w", stage, current.Symbol, current.Side, err)
	}

	fill := order.AvgFillPrice
	if fill == 0 {
		fill = price
	}
	pnl := e.ex.PnL(current.EntryPrice, fill, qty, current.Side, info)
	rMultiple := priceRMultiple(current, fill)

	result := &StageResult{
		Stage:          stage,
		TriggerPrice:   trigger,
		ClosedQuantity: qty,
		FillPrice:      fill,
		PnL:            pnl,
	}

	err = e.store.ApplyPartialClose(ctx, db.PartialClose{
		Symbol:            current.Symbol,
		Side:              current.Side,
		RemainingQuantity: current.Quantity - qty,
		RealizedPnL:       pnl,
		Record: &db.PartialTPRecord{
			Symbol:          current.Symbol,
			Side:            current.Side,
			Stage:           stage,
			PositionOrderID: current.EntryOrderID,
			TriggerPrice:    trigger,
			ClosedQuantity:  qty,
			PnL:             pnl,
			OrderID:         order.OrderID,
		},
		CloseTrade: &db.Trade{
			OrderID:      order.OrderID,
			Symbol:       current.Symbol,
			Side:         current.Side,
			Type:         db.TradeClose,
			Price:        fill,
			Quantity:     qty,
			Leverage:     current.Leverage,
			PnL:          &pnl,
			RMultiple:    &rMultiple,
			StrategyName: current.StrategyType,
		},
		Event: &db.CloseEvent{
			Symbol:          current.Symbol,
			Side:            current.Side,
			CloseReason:     "partial_close",
			TriggerType:     fmt.Sprintf("partial_tp_stage%d", stage),
			ClosePrice:      fill,
			EntryPrice:      current.EntryPrice,
			Quantity:        qty,
			Leverage:        current.Leverage,
			PnL:             pnl,
			PnLPercent:      movePercent(current, fill),
			PositionOrderID: current.EntryOrderID,
			TriggerOrderID:  order.OrderID,
		},
	})
	if err != nil {
		// The exchange fill is real even though the bookkeeping failed; the
		// next reconciliation pass repairs the stored quantity.
		return nil, fmt.Errorf("recording stage %d close for %s/%s: %w", stage, current.Symbol, current.Side, err)
	}

	e.logger.Info().
		Str("symbol", current.Symbol).
		Str("side", string(current.Side)).
		Int("stage", stage).
		Float64("trigger", trigger).
		Float64("fill", fill).
		Float64("quantity", qty).
		Float64("pnl", pnl).
		Msg("Partial take-profit stage executed")

	e.migrateStop(ctx, current, stage, result)
	return result, nil
}

// migrateStop moves the protective stop after a stage fills: stage 1 to
// break-even, stage 2 to one R of locked profit, stage 3 hands the position
// to the trailing updater. Migration failures are logged, not returned; the
// stage itself is already committed.
func (e *PartialTPExecutor) migrateStop(ctx context.Context, pos *db.Position, stage int, result *StageResult) {
	if stage >= ladderStages {
		if err := e.store.SetTrailingMode(ctx, pos.Symbol, pos.Side, true); err != nil {
			e.logger.Error().Err(err).
				Str("symbol", pos.Symbol).
				Str("side", string(pos.Side)).
				Msg("Failed to enable trailing mode")
			return
		}
		result.TrailingEnabled = true
		return
	}

	r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
	newStop := pos.EntryPrice
	if stage == 2 {
		if pos.Side == exchange.SideShort {
			newStop = pos.EntryPrice - r
		} else {
			newStop = pos.EntryPrice + r
		}
	}

	contract := e.ex.NormalizeSymbol(pos.Symbol)
	stopResult, err := e.ex.SetPositionStopLoss(ctx, contract, newStop, pos.TakeProfit)
	if err != nil {
		e.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Int("stage", stage).
			Float64("new_stop", newStop).
			Msg("Failed to migrate stop on exchange")
		return
	}
	if err := e.store.UpdatePositionStop(ctx, pos.Symbol, pos.Side, newStop, stopResult.SLOrderID, stopResult.TPOrderID); err != nil {
		e.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Msg("Failed to persist migrated stop")
		return
	}
	result.NewStopLoss = newStop

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Int("stage", stage).
		Float64("new_stop", newStop).
		Msg("Stop migrated")
}

// priceRMultiple expresses the fill distance from entry in R units, signed
// so profit is positive for either side.
func priceRMultiple(pos *db.Position, fill float64) float64 {
	r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
	if r == 0 {
		return 0
	}
	if pos.Side == exchange.SideShort {
		return (pos.EntryPrice - fill) / r
	}
	return (fill - pos.EntryPrice) / r
}

// movePercent is the price move from entry in percent, signed by side.
func movePercent(pos *db.Position, fill float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	pct := (fill - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Side == exchange.SideShort {
		return -pct
	}
	return pct
}
