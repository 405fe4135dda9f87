package strategy

import (
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/market"
)

// TrendFollowing trades continuation of an established trend, entering on
// pullbacks or on steady mid-range momentum.
type TrendFollowing struct {
	MaxLeverage float64
}

func (s *TrendFollowing) Kind() Kind { return KindTrendFollowing }

// Evaluate enters with the trend on the confirm frame's pullback. The
// higher filter frame must agree with the direction or the setup is
// skipped outright.
func (s *TrendFollowing) Evaluate(set *market.TimeframeSet, analysis *market.Analysis) *Result {
	dir := dirLong
	if analysis.Regime.Bias() < 0 {
		dir = dirShort
	}

	confirm, filter := set.Confirm, set.Filter
	if confirm == nil || filter == nil {
		return wait(set.Symbol, s.Kind(), "missing timeframe data")
	}

	// Higher-frame agreement is a hard precondition.
	if dir == dirLong && filter.EMA20 <= filter.EMA50 {
		return wait(set.Symbol, s.Kind(), "filter frame not in uptrend")
	}
	if dir == dirShort && filter.EMA20 >= filter.EMA50 {
		return wait(set.Symbol, s.Kind(), "filter frame not in downtrend")
	}

	// Steady continuation: mid-range RSI during a continuation regime is
	// itself a signal, no pullback required.
	if steady, reason := s.steadyContinuation(analysis, confirm.RSI7, dir); steady {
		strength := adjustForVolatility(0.5, filter)
		return &Result{
			Symbol:         set.Symbol,
			Strategy:       s.Kind(),
			Action:         dir.action(),
			SignalStrength: strength,
			Leverage:       recommendLeverage(s.Kind(), strength, filter, s.MaxLeverage),
			Reason:         reason,
		}
	}

	// Otherwise demand a genuine pullback on the confirm frame.
	if dir == dirLong && confirm.RSI7 >= 40 {
		return wait(set.Symbol, s.Kind(), fmt.Sprintf("no pullback: confirm RSI7 %.1f >= 40", confirm.RSI7))
	}
	if dir == dirShort && confirm.RSI7 <= 60 {
		return wait(set.Symbol, s.Kind(), fmt.Sprintf("no rally: confirm RSI7 %.1f <= 60", confirm.RSI7))
	}

	strength := signalStrength(confirm, filter, dir, alignmentOf(analysis))

	// Price holding near the fast EMA keeps the pullback orderly.
	price := confirm.Close()
	if dir == dirLong && confirm.EMA20 > 0 && price >= 0.995*confirm.EMA20 {
		strength = clamp01(strength + 0.1)
	}
	if dir == dirShort && confirm.EMA20 > 0 && price <= 1.005*confirm.EMA20 {
		strength = clamp01(strength + 0.1)
	}

	strength = adjustForVolatility(strength, filter)
	return &Result{
		Symbol:         set.Symbol,
		Strategy:       s.Kind(),
		Action:         dir.action(),
		SignalStrength: strength,
		Leverage:       recommendLeverage(s.Kind(), strength, filter, s.MaxLeverage),
		Reason:         fmt.Sprintf("pullback entry, confirm RSI7 %.1f", confirm.RSI7),
	}
}

func (s *TrendFollowing) steadyContinuation(analysis *market.Analysis, rsi float64, dir direction) (bool, string) {
	switch {
	case dir == dirLong && analysis.Regime == market.RegimeUptrendContinuation && rsi >= 45 && rsi <= 65:
		return true, fmt.Sprintf("steady uptrend continuation, confirm RSI7 %.1f", rsi)
	case dir == dirShort && analysis.Regime == market.RegimeDowntrendContinuation && rsi >= 35 && rsi <= 55:
		return true, fmt.Sprintf("steady downtrend continuation, confirm RSI7 %.1f", rsi)
	}
	return false, ""
}
