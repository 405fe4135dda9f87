package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/strategy"
)

// Tick runs one trading cycle: account snapshot and equity curve, kill
// switches, reconciliation, per-position housekeeping, and the opportunity
// scan when budget allows.
func (t *Trader) Tick(ctx context.Context) error {
	blockNew, err := t.snapshotAccount(ctx)
	if err != nil {
		return err
	}

	positions, err := t.reconcile(ctx)
	if err != nil {
		return err
	}
	t.metrics.openPositions.Set(float64(len(positions)))

	positions = t.housekeeping(ctx, positions)

	budget := t.cfg.Trading.MaxPositions - len(positions)
	if budget <= 0 || blockNew {
		return nil
	}
	if t.exchangeOpen() {
		t.logger.Warn().Msg("Exchange breaker open, skipping opportunity scan")
		t.alerts.BreakerOpen(ctx, "exchange")
		return nil
	}
	return t.scanAndOpen(ctx, positions)
}

// snapshotAccount persists the account history row and the derived equity
// point, then evaluates the drawdown kill switches. It returns true when new
// positions must not be opened this tick.
func (t *Trader) snapshotAccount(ctx context.Context) (bool, error) {
	out, err := t.breakers.Exchange().Execute(func() (interface{}, error) {
		return t.ex.Account(ctx)
	})
	t.breakers.Record("exchange", err == nil)
	if err != nil {
		return false, fmt.Errorf("fetching account: %w", err)
	}
	account := out.(*exchange.AccountInfo)

	returnPct := 0.0
	if t.cfg.Trading.InitialBalance > 0 {
		returnPct = (account.Total - t.cfg.Trading.InitialBalance) / t.cfg.Trading.InitialBalance * 100
	}
	if err := t.store.InsertAccountSnapshot(ctx, &db.AccountSnapshot{
		TotalValue:    account.Total,
		AvailableCash: account.Available,
		UnrealizedPnL: account.UnrealisedPnL,
		ReturnPercent: returnPct,
	}); err != nil {
		return false, err
	}

	point, err := t.store.AppendEquity(ctx, account.Total)
	if err != nil {
		return false, err
	}
	return t.drawdownSwitches(ctx, point), nil
}

// drawdownSwitches evaluates the account-level kill switches against the
// latest equity point. The warning always fires; the no-new-position and
// force-close actions only run when explicitly enabled.
func (t *Trader) drawdownSwitches(ctx context.Context, point *db.EquityPoint) bool {
	dd := point.DrawdownPct
	if dd < t.cfg.Risk.DrawdownWarningPct {
		return false
	}

	t.logger.Warn().
		Float64("drawdown_pct", dd).
		Float64("equity", point.Equity).
		Float64("peak_equity", point.PeakEquity).
		Msg("Account drawdown past warning threshold")
	t.alerts.DrawdownWarning(ctx, dd, t.cfg.Risk.DrawdownWarningPct, point.Equity)

	if !t.cfg.Risk.EnableDrawdownActions {
		return false
	}

	if dd >= t.cfg.Risk.DrawdownForceClosePct {
		t.logger.Error().
			Float64("drawdown_pct", dd).
			Msg("Drawdown past force-close threshold, closing all positions")
		positions, err := t.store.OpenPositions(ctx)
		if err != nil {
			t.logger.Error().Err(err).Msg("Force-close sweep could not list positions")
			return true
		}
		for _, pos := range positions {
			if err := t.forceClose(ctx, pos, "drawdown_force_close", "kill_switch"); err != nil {
				t.logger.Error().Err(err).
					Str("symbol", pos.Symbol).
					Msg("Forced close failed")
			}
		}
		return true
	}
	return dd >= t.cfg.Risk.DrawdownNoNewPositionPct
}

// housekeeping enforces the maximum holding time and attempts trailing-stop
// updates. It returns the positions still open afterwards.
func (t *Trader) housekeeping(ctx context.Context, positions []*db.Position) []*db.Position {
	maxAge := time.Duration(t.cfg.Trading.MaxHoldingHours) * time.Hour
	now := t.ex.Now()

	var remaining []*db.Position
	for _, pos := range positions {
		if maxAge > 0 && now.Sub(pos.OpenedAt) > maxAge {
			if err := t.forceClose(ctx, pos, "max_holding_time_exceeded", "max_holding"); err != nil {
				t.logger.Error().Err(err).
					Str("symbol", pos.Symbol).
					Str("side", string(pos.Side)).
					Msg("Max-holding close failed")
				remaining = append(remaining, pos)
			}
			continue
		}

		if t.cfg.Trading.EnableTrailingStopLoss {
			t.updateTrailing(ctx, pos)
		}
		remaining = append(remaining, pos)
	}
	return remaining
}

// updateTrailing recomputes the stop from the current price and tightens it
// when the direction guard allows. Failures are logged, never fatal.
func (t *Trader) updateTrailing(ctx context.Context, pos *db.Position) {
	contract := t.ex.NormalizeSymbol(pos.Symbol)
	candles, err := t.ex.Candles(ctx, contract, t.cfg.Preset().Primary, t.candleLimit())
	if err != nil {
		t.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Trailing update skipped, candle fetch failed")
		return
	}

	price := pos.CurrentPrice
	if price == 0 {
		ticker, err := t.ex.Ticker(ctx, contract, true)
		if err != nil {
			t.logger.Warn().Err(err).
				Str("symbol", pos.Symbol).
				Msg("Trailing update skipped, no price")
			return
		}
		price = ticker.MarkPrice
		if price == 0 {
			price = ticker.Last
		}
	}

	update, err := t.stops.UpdateTrailing(pos.Symbol, pos.Side, price, pos.StopLoss, candles)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Trailing recalculation failed")
		return
	}
	if !update.ShouldUpdate {
		return
	}

	result, err := t.ex.SetPositionStopLoss(ctx, contract, update.NewStopLoss, pos.TakeProfit)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Float64("new_stop", update.NewStopLoss).
			Msg("Trailing stop rejected by exchange")
		return
	}
	if err := t.store.UpdatePositionStop(ctx, pos.Symbol, pos.Side, update.NewStopLoss, result.SLOrderID, result.TPOrderID); err != nil {
		t.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Failed to persist trailing stop")
		return
	}
	pos.StopLoss = update.NewStopLoss

	t.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("new_stop", update.NewStopLoss).
		Str("reason", update.Reason).
		Msg("Trailing stop tightened")
}

// scanAndOpen evaluates the watch-list and attempts to open the top
// survivor.
func (t *Trader) scanAndOpen(ctx context.Context, positions []*db.Position) error {
	openSymbols := make(map[string]bool, len(positions))
	for _, pos := range positions {
		openSymbols[pos.Symbol] = true
	}

	sets := t.data.TimeframesAll(ctx, t.cfg.Trading.Symbols)

	var opportunities []*strategy.Opportunity
	for _, symbol := range t.cfg.Trading.Symbols {
		set, ok := sets[symbol]
		if !ok {
			continue
		}
		analysis := t.classifier.Classify(symbol, set.Primary, set.Confirm, set.Filter)
		result := t.router.Evaluate(set, analysis)
		if result.Action == strategy.ActionWait {
			continue
		}
		opportunities = append(opportunities, t.scorer.Score(result, analysis))
	}

	ranked := t.scorer.Rank(opportunities, openSymbols, false)
	if len(ranked) == 0 {
		t.logger.Debug().
			Int("scanned", len(sets)).
			Msg("No opportunity survived ranking")
		return nil
	}

	return t.openPosition(ctx, ranked[0])
}

func (t *Trader) candleLimit() int {
	need := t.stops.CandleNeed()
	if limit := t.cfg.Preset().CandleLimit; limit > need {
		return limit
	}
	return need
}
