package indicators

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// Standard periods for the timeframe pipeline.
const (
	emaFastPeriod   = 20
	emaSlowPeriod   = 50
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignal      = 9
	rsiFastPeriod   = 7
	rsiSlowPeriod   = 14
	bollingerPeriod = 20
	atrPeriod       = 14
	changeWindow    = 20
)

// TimeframeIndicators is the derived indicator set for one symbol and one
// candle interval. Never persisted; recomputed from candles on demand.
// Every numeric field is finite: missing data falls back to the neutral
// default (EMA and ATR 0, RSI 50, ratios 1).
type TimeframeIndicators struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`

	EMA20 float64 `json:"ema_20"`
	EMA50 float64 `json:"ema_50"`

	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	// MACDTurn is +1 on an upward histogram pivot below zero, -1 on a
	// downward pivot above zero, else 0.
	MACDTurn int `json:"macd_turn"`

	RSI7  float64 `json:"rsi_7"`
	RSI14 float64 `json:"rsi_14"`

	BBUpper     float64 `json:"bb_upper"`
	BBMiddle    float64 `json:"bb_middle"`
	BBLower     float64 `json:"bb_lower"`
	BBBandwidth float64 `json:"bb_bandwidth"` // percent of middle band

	ATR      float64 `json:"atr"`
	ATRRatio float64 `json:"atr_ratio"` // current ATR over series mean

	Volume      float64 `json:"volume"`
	AvgVolume   float64 `json:"avg_volume"`
	VolumeRatio float64 `json:"volume_ratio"`

	PriceChange20    float64 `json:"price_change_20"` // percent
	DeviationFromE20 float64 `json:"deviation_from_ema_20"`
	DeviationFromE50 float64 `json:"deviation_from_ema_50"`

	RecentHigh       float64   `json:"recent_high"`
	RecentLow        float64   `json:"recent_low"`
	ResistanceLevels []float64 `json:"resistance_levels"`
	SupportLevels    []float64 `json:"support_levels"`

	// Candles is the source series, kept for downstream stop and
	// divergence analysis.
	Candles []exchange.Candle `json:"-"`
}

// Close returns the most recent close price.
func (ti *TimeframeIndicators) Close() float64 {
	if len(ti.Candles) == 0 {
		return 0
	}
	return ti.Candles[len(ti.Candles)-1].Close
}

// Compute derives the full indicator set from an oldest-first candle
// sequence. Short inputs produce defaulted fields rather than errors.
func Compute(symbol, interval string, candles []exchange.Candle) *TimeframeIndicators {
	ti := &TimeframeIndicators{
		Symbol:      symbol,
		Interval:    interval,
		RSI7:        50,
		RSI14:       50,
		ATRRatio:    1,
		VolumeRatio: 1,
		Candles:     candles,
	}
	if len(candles) == 0 {
		return ti
	}

	closes := Closes(candles)
	price := closes[len(closes)-1]

	ti.EMA20 = last(EMASeries(closes, emaFastPeriod), 0)
	ti.EMA50 = last(EMASeries(closes, emaSlowPeriod), 0)

	macd, signal, histogram := MACDSeries(closes, macdFastPeriod, macdSlowPeriod, macdSignal)
	ti.MACD = last(macd, 0)
	ti.MACDSignal = last(signal, 0)
	ti.MACDHistogram = last(histogram, 0)
	ti.MACDTurn = histogramTurn(histogram)

	ti.RSI7 = clampRSI(last(RSISeries(closes, rsiFastPeriod), 50))
	ti.RSI14 = clampRSI(last(RSISeries(closes, rsiSlowPeriod), 50))

	lower, middle, upper := BollingerSeries(closes, bollingerPeriod)
	ti.BBLower = last(lower, 0)
	ti.BBMiddle = last(middle, 0)
	ti.BBUpper = last(upper, 0)
	if ti.BBMiddle > 0 {
		ti.BBBandwidth = finiteOr((ti.BBUpper-ti.BBLower)/ti.BBMiddle*100, 0)
	}

	atrSeries := ATRSeries(candles, atrPeriod)
	ti.ATR = last(atrSeries, 0)
	if avg := mean(atrSeries); avg > 0 {
		ti.ATRRatio = finiteOr(ti.ATR/avg, 1)
	}

	volumes := Volumes(candles)
	ti.Volume = volumes[len(volumes)-1]
	window := volumes
	if len(window) > changeWindow {
		window = window[len(window)-changeWindow:]
	}
	ti.AvgVolume = mean(window)
	if ti.AvgVolume > 0 {
		ti.VolumeRatio = finiteOr(ti.Volume/ti.AvgVolume, 1)
	}

	if len(closes) > changeWindow {
		ref := closes[len(closes)-1-changeWindow]
		if ref > 0 {
			ti.PriceChange20 = finiteOr((price-ref)/ref*100, 0)
		}
	}
	if ti.EMA20 > 0 {
		ti.DeviationFromE20 = finiteOr((price-ti.EMA20)/ti.EMA20*100, 0)
	}
	if ti.EMA50 > 0 {
		ti.DeviationFromE50 = finiteOr((price-ti.EMA50)/ti.EMA50*100, 0)
	}

	ti.RecentHigh, ti.RecentLow = RecentExtremes(candles)
	ti.ResistanceLevels = ResistanceLevels(candles)
	ti.SupportLevels = SupportLevels(candles)

	log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("candles", len(candles)).
		Float64("ema_20", ti.EMA20).
		Float64("rsi_14", ti.RSI14).
		Float64("atr", ti.ATR).
		Msg("Indicators computed")

	return ti
}

// histogramTurn detects a pivot in the last three histogram values.
func histogramTurn(histogram []float64) int {
	if len(histogram) < 3 {
		return 0
	}
	a := histogram[len(histogram)-3]
	b := histogram[len(histogram)-2]
	c := histogram[len(histogram)-1]
	if a > b && c > b && b < 0 {
		return 1
	}
	if a < b && c < b && b > 0 {
		return -1
	}
	return 0
}

func clampRSI(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
