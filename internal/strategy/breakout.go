package strategy

import (
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/market"
)

// Breakout trades range escapes: price pressing through the recent high
// (or low) with volume behind it.
type Breakout struct {
	MaxLeverage float64
}

// breakoutProximity is how close to the level price must press:
// close > 0.998 * resistance for a long, mirrored for a short.
const breakoutProximity = 0.002

func (s *Breakout) Kind() Kind { return KindBreakout }

func (s *Breakout) Evaluate(set *market.TimeframeSet, analysis *market.Analysis) *Result {
	confirm, filter := set.Confirm, set.Filter
	if confirm == nil || filter == nil {
		return wait(set.Symbol, s.Kind(), "missing timeframe data")
	}
	if len(confirm.Candles) < 20 {
		return wait(set.Symbol, s.Kind(), "insufficient candle history for level detection")
	}

	price := confirm.Close()
	resistance := confirm.RecentHigh
	support := confirm.RecentLow

	var dir direction
	var level float64
	switch {
	case resistance > 0 && price > (1-breakoutProximity)*resistance:
		dir, level = dirLong, resistance
	case support > 0 && price < (1+breakoutProximity)*support:
		dir, level = dirShort, support
	default:
		return wait(set.Symbol, s.Kind(), "price not pressing a recent level")
	}

	// An exhausted RSI makes a breakout entry a chase; a dead one means
	// no momentum to carry through. Shorts mirror the band.
	lowBand, highBand := 35.0, 75.0
	if dir == dirShort {
		lowBand, highBand = 25.0, 65.0
	}
	if confirm.RSI7 < lowBand || confirm.RSI7 > highBand {
		return wait(set.Symbol, s.Kind(), fmt.Sprintf("RSI7 %.1f outside breakout band [%.0f,%.0f]", confirm.RSI7, lowBand, highBand))
	}

	strength := signalStrength(confirm, filter, dir, alignmentOf(analysis))
	// A breakout runs with momentum, not against it: floor the raw
	// strength at the price-vs-level conviction.
	strength = clamp01(strength + 0.3)

	// Volume confirmation.
	switch {
	case confirm.VolumeRatio >= 2.5:
		strength = clamp01(strength*1.25 + 0.05)
	case confirm.VolumeRatio >= 1.5:
		strength = clamp01(strength * 1.25)
	}

	// Higher-frame MACD agreement is a soft confirmation.
	if (dir == dirLong && filter.MACD > 0) || (dir == dirShort && filter.MACD < 0) {
		strength = clamp01(strength + 0.05)
	}

	strength = adjustForVolatility(strength, filter)
	return &Result{
		Symbol:         set.Symbol,
		Strategy:       s.Kind(),
		Action:         dir.action(),
		SignalStrength: strength,
		Leverage:       recommendLeverage(s.Kind(), strength, filter, s.MaxLeverage),
		Reason:         fmt.Sprintf("level break at %.4f, volume ratio %.2f", level, confirm.VolumeRatio),
	}
}
