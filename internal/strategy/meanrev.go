package strategy

import (
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/market"
)

// MeanReversion fades RSI extremes inside a range, with a falling-knife
// veto from the higher frame.
type MeanReversion struct {
	MaxLeverage float64
}

func (s *MeanReversion) Kind() Kind { return KindMeanReversion }

func (s *MeanReversion) Evaluate(set *market.TimeframeSet, analysis *market.Analysis) *Result {
	dir := dirLong
	if analysis.Regime == market.RegimeRangingOverbought {
		dir = dirShort
	}

	confirm, filter := set.Confirm, set.Filter
	if confirm == nil || filter == nil {
		return wait(set.Symbol, s.Kind(), "missing timeframe data")
	}

	if dir == dirLong && confirm.RSI7 >= 35 {
		return wait(set.Symbol, s.Kind(), fmt.Sprintf("not oversold: confirm RSI7 %.1f", confirm.RSI7))
	}
	if dir == dirShort && confirm.RSI7 <= 65 {
		return wait(set.Symbol, s.Kind(), fmt.Sprintf("not overbought: confirm RSI7 %.1f", confirm.RSI7))
	}

	// Falling-knife veto: a hard higher-frame trend against the fade.
	if dir == dirLong && filter.EMA20 < filter.EMA50 && filter.MACD < -50 {
		return wait(set.Symbol, s.Kind(), "higher frame falling hard, fade vetoed")
	}
	if dir == dirShort && filter.EMA20 > filter.EMA50 && filter.MACD > 50 {
		return wait(set.Symbol, s.Kind(), "higher frame rising hard, fade vetoed")
	}

	strength := signalStrength(confirm, filter, dir, alignmentOf(analysis))

	price := confirm.Close()
	// Band touch strengthens the reversion case.
	if dir == dirLong && confirm.BBLower > 0 && price <= confirm.BBLower {
		strength = clamp01(strength + 0.15)
	}
	if dir == dirShort && confirm.BBUpper > 0 && price >= confirm.BBUpper {
		strength = clamp01(strength + 0.15)
	}
	// A histogram pivot in the entry direction marks the turn.
	if (dir == dirLong && confirm.MACDTurn == 1) || (dir == dirShort && confirm.MACDTurn == -1) {
		strength = clamp01(strength + 0.1)
	}
	// Extreme readings scale the whole signal.
	if (dir == dirLong && confirm.RSI7 < 25) || (dir == dirShort && confirm.RSI7 > 75) {
		strength = clamp01(strength * 1.2)
	}

	strength = adjustForVolatility(strength, filter)
	return &Result{
		Symbol:         set.Symbol,
		Strategy:       s.Kind(),
		Action:         dir.action(),
		SignalStrength: strength,
		Leverage:       recommendLeverage(s.Kind(), strength, filter, s.MaxLeverage),
		Reason:         fmt.Sprintf("mean reversion, confirm RSI7 %.1f", confirm.RSI7),
	}
}
