package strategy

import (
	"math"

	"github.com/ajitpratap0/perptrader/internal/indicators"
	"github.com/ajitpratap0/perptrader/internal/market"
)

// Signal strength component weights. They sum to 1.
const (
	weightRSI         = 0.25
	weightMACD        = 0.20
	weightEMA         = 0.25
	weightDeviation   = 0.15
	weightConsistency = 0.15
)

// direction is +1 for long setups, -1 for short.
type direction float64

const (
	dirLong  direction = 1
	dirShort direction = -1
)

func (d direction) action() Action {
	if d == dirShort {
		return ActionShort
	}
	return ActionLong
}

// signalStrength aggregates the weighted components into [0,1].
func signalStrength(confirm, filter *indicators.TimeframeIndicators, dir direction, alignment float64) float64 {
	if confirm == nil || filter == nil {
		return 0
	}

	strength := weightRSI*rsiComponent(confirm, dir) +
		weightMACD*macdComponent(confirm, dir) +
		weightEMA*emaComponent(filter, dir) +
		weightDeviation*deviationComponent(confirm, dir) +
		weightConsistency*clamp01(alignment)

	return clamp01(strength)
}

// rsiComponent rewards RSI displacement toward the entry side: a long
// wants a pulled-back (low) RSI, a short a stretched (high) one.
func rsiComponent(ti *indicators.TimeframeIndicators, dir direction) float64 {
	displacement := (50 - ti.RSI7) / 25 // +1 at RSI 25, -1 at RSI 75
	return clamp01(float64(dir) * displacement)
}

// macdComponent rewards MACD momentum in the entry direction, scaled
// against price so it is comparable across symbols.
func macdComponent(ti *indicators.TimeframeIndicators, dir direction) float64 {
	close := ti.Close()
	if close <= 0 {
		return 0
	}
	normalized := ti.MACD / close * 10000 / 30
	return clamp01(float64(dir) * normalized)
}

// emaComponent rewards EMA alignment with the entry direction on the
// higher frame, scaled by the spread.
func emaComponent(ti *indicators.TimeframeIndicators, dir direction) float64 {
	if ti.EMA50 <= 0 {
		return 0
	}
	spread := (ti.EMA20 - ti.EMA50) / ti.EMA50 * 1000 / 40
	return clamp01(float64(dir) * spread)
}

// deviationComponent rewards price stretched against the entry direction
// (room to revert toward the EMA).
func deviationComponent(ti *indicators.TimeframeIndicators, dir direction) float64 {
	return clamp01(float64(dir) * -ti.DeviationFromE20 / 3)
}

// volatilityMultiplier scales strength by the filter frame's ATR ratio.
// Quiet markets get a boost, stretched ones a haircut.
func volatilityMultiplier(atrRatio float64) float64 {
	switch {
	case atrRatio < 0.8:
		return 1.2
	case atrRatio <= 1.2:
		return 1.0
	case atrRatio <= 1.5:
		return 0.85
	case atrRatio <= 1.8:
		return 0.8
	}
	return 0.65
}

// adjustForVolatility applies the multiplier and re-clamps into [0,1].
func adjustForVolatility(strength float64, filter *indicators.TimeframeIndicators) float64 {
	if filter == nil {
		return clamp01(strength)
	}
	return clamp01(strength * volatilityMultiplier(filter.ATRRatio))
}

// recommendLeverage derives position leverage from the strategy base, the
// signal strength, and the volatility multiplier, clamped to
// [2, maxLeverage].
func recommendLeverage(kind Kind, strength float64, filter *indicators.TimeframeIndicators, maxLeverage float64) float64 {
	base := baseLeverage[kind]
	volMult := 1.0
	if filter != nil {
		volMult = volatilityMultiplier(filter.ATRRatio)
	}
	lev := base * strength * volMult
	if maxLeverage > 0 {
		lev = math.Min(lev, maxLeverage)
	}
	return math.Max(2, lev)
}

// alignmentOf is a nil-safe accessor for the analysis alignment score.
func alignmentOf(analysis *market.Analysis) float64 {
	if analysis == nil {
		return 0
	}
	return analysis.Alignment
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
