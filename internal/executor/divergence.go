package executor

import (
	"math"

	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/indicators"
)

// divergenceWindow is how many recent candles the comparison covers; the
// window is split into an earlier and a later half.
const divergenceWindow = 20

// minDivergenceStrength is the floor below which a detected divergence does
// not contribute to the reversal score.
const minDivergenceStrength = 60

// histogramDecayThreshold: a later histogram peak below this fraction of the
// earlier peak counts as a lower indicator high.
const histogramDecayThreshold = 0.95

// rsiDivergencePoints is the minimum RSI drop (or rise, mirrored) between
// the two halves.
const rsiDivergencePoints = 3.0

// Standard MACD and RSI parameters for the divergence series.
const (
	divMACDFast   = 12
	divMACDSlow   = 26
	divMACDSignal = 9
	divRSIPeriod  = 14
)

// Divergence is a price/indicator disagreement over the recent window.
// Bearish means price made a new high the indicator did not confirm;
// bullish is the mirror on lows.
type Divergence struct {
	Indicator string `json:"indicator"` // "macd" or "rsi"
	Bearish   bool   `json:"bearish"`
	Strength  int    `json:"strength"` // 0..100
}

// Contributes reports whether the divergence is strong enough to score and
// points against the given position side.
func (d *Divergence) Contributes(side exchange.PositionSide) bool {
	if d == nil || d.Strength < minDivergenceStrength {
		return false
	}
	if side == exchange.SideShort {
		return !d.Bearish
	}
	return d.Bearish
}

// DetectMACDDivergence compares price extremes against MACD histogram
// extremes across the two halves of the recent window.
func DetectMACDDivergence(candles []exchange.Candle) *Divergence {
	closes := indicators.Closes(candles)
	_, _, histogram := indicators.MACDSeries(closes, divMACDFast, divMACDSlow, divMACDSignal)
	return detectDivergence("macd", candles, histogram, macdStrength)
}

// DetectRSIDivergence compares price extremes against RSI extremes across
// the two halves of the recent window.
func DetectRSIDivergence(candles []exchange.Candle) *Divergence {
	closes := indicators.Closes(candles)
	rsi := indicators.RSISeries(closes, divRSIPeriod)
	return detectDivergence("rsi", candles, rsi, rsiStrength)
}

// detectDivergence takes the tail window of both series independently,
// splits each into halves, and compares per-half extremes. A few bars of
// warm-up offset between the series is tolerable because only the half
// maxima and minima matter.
func detectDivergence(name string, candles []exchange.Candle, series []float64, strength func(earlier, later float64) int) *Divergence {
	if len(candles) < divergenceWindow || len(series) < divergenceWindow {
		return nil
	}
	candles = candles[len(candles)-divergenceWindow:]
	series = series[len(series)-divergenceWindow:]
	half := divergenceWindow / 2

	earlyHigh, earlyLow := priceExtremes(candles[:half])
	lateHigh, lateLow := priceExtremes(candles[half:])
	earlyMax, earlyMin := seriesExtremes(series[:half])
	lateMax, lateMin := seriesExtremes(series[half:])

	// Bearish: price prints a higher high while the indicator prints a
	// lower high.
	if lateHigh > earlyHigh && indicatorLowerHigh(name, earlyMax, lateMax) {
		return &Divergence{Indicator: name, Bearish: true, Strength: strength(earlyMax, lateMax)}
	}
	// Bullish: price prints a lower low while the indicator prints a
	// higher low.
	if lateLow < earlyLow && indicatorHigherLow(name, earlyMin, lateMin) {
		return &Divergence{Indicator: name, Bearish: false, Strength: strength(-earlyMin, -lateMin)}
	}
	return nil
}

func indicatorLowerHigh(name string, earlier, later float64) bool {
	if name == "rsi" {
		return earlier-later >= rsiDivergencePoints
	}
	return earlier > 0 && later < earlier*histogramDecayThreshold
}

func indicatorHigherLow(name string, earlier, later float64) bool {
	if name == "rsi" {
		return later-earlier >= rsiDivergencePoints
	}
	return earlier < 0 && math.Abs(later) < math.Abs(earlier)*histogramDecayThreshold
}

// macdStrength scales the relative histogram deficit: a 25% lower peak maps
// to full strength.
func macdStrength(earlier, later float64) int {
	if earlier == 0 {
		return 0
	}
	deficit := 1 - later/earlier
	return clampInt(int(math.Round(deficit*400)), 0, 100)
}

// rsiStrength scales the RSI point difference: 10 points maps to full
// strength.
func rsiStrength(earlier, later float64) int {
	return clampInt(int(math.Round((earlier-later)*10)), 0, 100)
}

func priceExtremes(candles []exchange.Candle) (high, low float64) {
	high = candles[0].High
	low = candles[0].Low
	for _, c := range candles[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low
}

func seriesExtremes(series []float64) (max, min float64) {
	max, min = series[0], series[0]
	for _, v := range series[1:] {
		max = math.Max(max, v)
		min = math.Min(min, v)
	}
	return max, min
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
