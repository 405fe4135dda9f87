// Package trader runs the scheduler: the periodic trading tick (account
// snapshot, reconciliation, kill switches, opportunity scan, open flow) and
// the shorter monitor loop driving the partial take-profit ladder and the
// reversal watch.
package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/perptrader/internal/alerts"
	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/executor"
	"github.com/ajitpratap0/perptrader/internal/market"
	"github.com/ajitpratap0/perptrader/internal/risk"
	"github.com/ajitpratap0/perptrader/internal/strategy"
)

// Store is the persistence surface the scheduler drives.
type Store interface {
	OpenPositions(ctx context.Context) ([]*db.Position, error)
	OpenPosition(ctx context.Context, p *db.Position, entry *db.Trade, orders []*db.PriceOrder) error
	ClosePosition(ctx context.Context, symbol string, side exchange.PositionSide, event *db.CloseEvent, closeTrade *db.Trade) error
	UpdatePositionStop(ctx context.Context, symbol string, side exchange.PositionSide, stop float64, slOrderID, tpOrderID string) error
	UpdatePositionMark(ctx context.Context, symbol string, side exchange.PositionSide, currentPrice, unrealizedPnL, liquidationPrice float64) error
	InsertAccountSnapshot(ctx context.Context, snap *db.AccountSnapshot) error
	AppendEquity(ctx context.Context, equity float64) (*db.EquityPoint, error)
	CheckIntegrity(ctx context.Context, exchangePositions map[string]bool) (*db.IntegrityReport, error)
}

// StageExecutor runs the partial take-profit ladder for one position.
type StageExecutor interface {
	CheckAndExecute(ctx context.Context, pos *db.Position) (*executor.StageResult, error)
}

// ReversalEvaluator scores reversal evidence for one position.
type ReversalEvaluator interface {
	Evaluate(ctx context.Context, pos *db.Position) (*executor.Assessment, error)
}

// MarketData yields indicator triples; the market data service satisfies it.
type MarketData interface {
	Timeframes(ctx context.Context, symbol string) (*market.TimeframeSet, error)
	TimeframesAll(ctx context.Context, symbols []string) map[string]*market.TimeframeSet
}

// Deps wires the scheduler's collaborators.
type Deps struct {
	Config     *config.Config
	Exchange   exchange.Exchange
	Store      Store
	Data       MarketData
	Classifier *market.Classifier
	Router     *strategy.Router
	Scorer     *strategy.Scorer
	Stops      *risk.Engine
	Breakers   *risk.BreakerManager
	Alerts     *alerts.Manager
	PartialTP  StageExecutor
	Reversal   ReversalEvaluator
	Events     *Publisher
}

// Trader owns the trading and monitor loops.
type Trader struct {
	cfg        *config.Config
	ex         exchange.Exchange
	store      Store
	data       MarketData
	classifier *market.Classifier
	router     *strategy.Router
	scorer     *strategy.Scorer
	stops      *risk.Engine
	breakers   *risk.BreakerManager
	alerts     *alerts.Manager
	partial    StageExecutor
	reversal   ReversalEvaluator
	events     *Publisher
	metrics    *traderMetrics
	logger     zerolog.Logger
}

// New assembles the scheduler.
func New(d Deps) *Trader {
	return &Trader{
		cfg:        d.Config,
		ex:         d.Exchange,
		store:      d.Store,
		data:       d.Data,
		classifier: d.Classifier,
		router:     d.Router,
		scorer:     d.Scorer,
		stops:      d.Stops,
		breakers:   d.Breakers,
		alerts:     d.Alerts,
		partial:    d.PartialTP,
		reversal:   d.Reversal,
		events:     d.Events,
		metrics:    initTraderMetrics(),
		logger:     config.NewLogger("trader"),
	}
}

// Run starts the loops and blocks until the context is cancelled. The first
// tick runs immediately; after that the trading tick and the monitor loop
// run on independent timers.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.ex.StartTimeSync(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Server time sync failed, continuing on local clock")
	}
	if err := t.startupIntegrity(ctx); err != nil {
		return fmt.Errorf("startup integrity check: %w", err)
	}

	t.logger.Info().
		Dur("tick_interval", t.cfg.TickInterval()).
		Dur("monitor_interval", t.cfg.MonitorInterval()).
		Strs("symbols", t.cfg.Trading.Symbols).
		Str("strategy", t.cfg.Trading.Strategy).
		Msg("Scheduler started")

	t.runTick(ctx)

	tick := time.NewTicker(t.cfg.TickInterval())
	defer tick.Stop()
	monitor := time.NewTicker(t.cfg.MonitorInterval())
	defer monitor.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Scheduler stopped")
			return nil
		case <-tick.C:
			t.runTick(ctx)
		case <-monitor.C:
			t.Monitor(ctx)
		}
	}
}

// runTick bounds one tick by the tick interval so an overrunning tick cannot
// skew the cadence, and converts failures to log-and-continue.
func (t *Trader) runTick(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, t.cfg.TickInterval())
	defer cancel()

	start := time.Now()
	err := t.Tick(tctx)
	t.metrics.tickDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.ticksTotal.WithLabelValues("error").Inc()
		t.logger.Error().Err(err).Msg("Tick failed")
		return
	}
	t.metrics.ticksTotal.WithLabelValues("ok").Inc()
}

// startupIntegrity reconciles the store against the exchange before the
// first tick: orphan protective orders are cancelled and phantom positions
// surfaced for the operator.
func (t *Trader) startupIntegrity(ctx context.Context) error {
	views, err := t.ex.Positions(ctx)
	if err != nil {
		return fmt.Errorf("fetching exchange positions: %w", err)
	}
	onExchange := make(map[string]bool, len(views))
	for _, v := range views {
		onExchange[v.Symbol] = true
	}

	report, err := t.store.CheckIntegrity(ctx, onExchange)
	if err != nil {
		return err
	}
	if report.OrphanOrdersCancelled > 0 || len(report.PhantomPositions) > 0 {
		t.logger.Warn().
			Int("orphan_orders_cancelled", report.OrphanOrdersCancelled).
			Strs("phantom_positions", report.PhantomPositions).
			Msg("Startup integrity check found inconsistencies")
	}
	return nil
}

// Monitor runs the per-position monitors: the take-profit ladder, the
// reversal watch, and the bare-position repair. Per-position failures are
// logged and the sweep continues.
func (t *Trader) Monitor(ctx context.Context) {
	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Monitor could not list positions")
		return
	}

	for _, pos := range positions {
		if pos.SLOrderID == "" && pos.StopLoss > 0 {
			t.repairBarePosition(ctx, pos)
		}

		stage, err := t.partial.CheckAndExecute(ctx, pos)
		if err != nil {
			t.logger.Error().Err(err).
				Str("symbol", pos.Symbol).
				Str("side", string(pos.Side)).
				Msg("Partial take-profit check failed")
		} else if stage != nil {
			t.events.PublishClose(ClosePayload{
				Symbol:      pos.Symbol,
				Side:        pos.Side,
				CloseReason: "partial_close",
				TriggerType: fmt.Sprintf("partial_tp_stage%d", stage.Stage),
				ClosePrice:  stage.FillPrice,
				Quantity:    stage.ClosedQuantity,
				PnL:         stage.PnL,
			})
		}

		assessment, err := t.reversal.Evaluate(ctx, pos)
		if err != nil {
			t.logger.Error().Err(err).
				Str("symbol", pos.Symbol).
				Str("side", string(pos.Side)).
				Msg("Reversal evaluation failed")
			continue
		}
		if assessment.Closed {
			t.alerts.EmergencyClose(ctx, pos.Symbol, string(pos.Side), assessment.PnL, assessment.Reason)
			t.events.PublishClose(ClosePayload{
				Symbol:      pos.Symbol,
				Side:        pos.Side,
				CloseReason: assessment.Reason,
				TriggerType: "reversal",
				Quantity:    pos.Quantity,
				PnL:         assessment.PnL,
			})
		}
	}
}

// repairBarePosition re-attempts protective-order registration for a
// position whose entry filled but whose stops never made it on.
func (t *Trader) repairBarePosition(ctx context.Context, pos *db.Position) {
	contract := t.ex.NormalizeSymbol(pos.Symbol)
	result, err := t.ex.SetPositionStopLoss(ctx, contract, pos.StopLoss, pos.TakeProfit)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Str("side", string(pos.Side)).
			Msg("Bare-position repair failed, will retry next pass")
		return
	}
	if err := t.store.UpdatePositionStop(ctx, pos.Symbol, pos.Side, pos.StopLoss, result.SLOrderID, result.TPOrderID); err != nil {
		t.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Failed to persist repaired protective orders")
		return
	}
	pos.SLOrderID = result.SLOrderID
	pos.TPOrderID = result.TPOrderID
	t.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("stop", pos.StopLoss).
		Msg("Protective orders restored on bare position")
}

// forceClose closes the whole position at market and records the event.
func (t *Trader) forceClose(ctx context.Context, pos *db.Position, reason, triggerType string) error {
	contract := t.ex.NormalizeSymbol(pos.Symbol)
	info, err := t.ex.ContractInfo(ctx, contract)
	if err != nil {
		return fmt.Errorf("fetching contract info for %s: %w", pos.Symbol, err)
	}

	size := pos.Quantity
	if pos.Side == exchange.SideLong {
		size = -size
	}
	order, err := t.placeOrder(ctx, exchange.OrderRequest{
		Contract:   contract,
		Size:       size,
		ReduceOnly: true,
		AutoSize:   true,
	})
	if err != nil {
		t.alerts.OrderFailed(ctx, pos.Symbol, string(pos.Side), pos.Quantity, err)
		return fmt.Errorf("placing forced close for %s/%s: %w", pos.Symbol, pos.Side, err)
	}

	fill := order.AvgFillPrice
	pnl := t.ex.PnL(pos.EntryPrice, fill, pos.Quantity, pos.Side, info)
	rMultiple := rMultipleAt(pos, fill)

	err = t.store.ClosePosition(ctx, pos.Symbol, pos.Side, &db.CloseEvent{
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		CloseReason:     reason,
		TriggerType:     triggerType,
		ClosePrice:      fill,
		EntryPrice:      pos.EntryPrice,
		Quantity:        pos.Quantity,
		Leverage:        pos.Leverage,
		PnL:             pnl,
		PnLPercent:      movePercentAt(pos, fill),
		PositionOrderID: pos.EntryOrderID,
		TriggerOrderID:  order.OrderID,
	}, &db.Trade{
		OrderID:      order.OrderID,
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		Type:         db.TradeClose,
		Price:        fill,
		Quantity:     pos.Quantity,
		Leverage:     pos.Leverage,
		PnL:          &pnl,
		RMultiple:    &rMultiple,
		StrategyName: pos.StrategyType,
	})
	if err != nil {
		return fmt.Errorf("recording forced close for %s/%s: %w", pos.Symbol, pos.Side, err)
	}

	if err := t.ex.CancelPositionStopLoss(ctx, contract); err != nil {
		t.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Failed to cancel protective orders after forced close")
	}

	t.events.PublishClose(ClosePayload{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		CloseReason: reason,
		TriggerType: triggerType,
		ClosePrice:  fill,
		Quantity:    pos.Quantity,
		PnL:         pnl,
	})
	t.logger.Warn().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Str("reason", reason).
		Float64("fill", fill).
		Float64("pnl", pnl).
		Msg("Position force-closed")
	return nil
}

// placeOrder routes an order through the exchange circuit breaker.
func (t *Trader) placeOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	out, err := t.breakers.Exchange().Execute(func() (interface{}, error) {
		return t.ex.PlaceOrder(ctx, req)
	})
	t.breakers.Record("exchange", err == nil)
	if err != nil {
		return nil, err
	}
	return out.(*exchange.OrderResponse), nil
}

// exchangeOpen reports whether the exchange breaker currently refuses work.
func (t *Trader) exchangeOpen() bool {
	return t.breakers.Exchange().State() == gobreaker.StateOpen
}

// rMultipleAt expresses a fill's distance from entry in R units, positive
// when profitable for the position's side.
func rMultipleAt(pos *db.Position, fill float64) float64 {
	r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
	if r == 0 {
		return 0
	}
	if pos.Side == exchange.SideShort {
		return (pos.EntryPrice - fill) / r
	}
	return (fill - pos.EntryPrice) / r
}

// movePercentAt is the price move from entry in percent, signed by side.
func movePercentAt(pos *db.Position, fill float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	pct := (fill - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Side == exchange.SideShort {
		return -pct
	}
	return pct
}
