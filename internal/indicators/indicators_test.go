package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// syntheticCandles builds a deterministic candle series around a price walk.
func syntheticCandles(closes []float64) []exchange.Candle {
	candles := make([]exchange.Candle, len(closes))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = exchange.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     c * 0.999,
			High:     c * 1.004,
			Low:      c * 0.996,
			Close:    c,
			Volume:   1000 + float64(i%7)*50,
		}
	}
	return candles
}

func trendingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeOnTrendingSeries(t *testing.T) {
	candles := syntheticCandles(trendingCloses(100, 2000, 5))
	ti := Compute("ETH", "1h", candles)

	require.NotNil(t, ti)
	assert.Equal(t, "ETH", ti.Symbol)
	assert.Equal(t, "1h", ti.Interval)

	// A steady uptrend keeps the fast EMA above the slow one and price
	// above both.
	assert.Greater(t, ti.EMA20, ti.EMA50)
	assert.Greater(t, ti.Close(), ti.EMA50)
	assert.Positive(t, ti.DeviationFromE20)
	assert.Positive(t, ti.DeviationFromE50)
	assert.Positive(t, ti.PriceChange20)

	// Monotonic gains push RSI to the ceiling.
	assert.Greater(t, ti.RSI14, 70.0)
	assert.LessOrEqual(t, ti.RSI14, 100.0)

	assert.Positive(t, ti.ATR)
	assert.Positive(t, ti.ATRRatio)
	assert.Greater(t, ti.BBUpper, ti.BBMiddle)
	assert.Greater(t, ti.BBMiddle, ti.BBLower)
	assert.Positive(t, ti.BBBandwidth)

	assert.Greater(t, ti.RecentHigh, ti.RecentLow)

	// Everything must be finite.
	for name, v := range map[string]float64{
		"ema_20": ti.EMA20, "ema_50": ti.EMA50,
		"macd": ti.MACD, "macd_signal": ti.MACDSignal, "macd_histogram": ti.MACDHistogram,
		"rsi_7": ti.RSI7, "rsi_14": ti.RSI14,
		"bb_upper": ti.BBUpper, "bb_middle": ti.BBMiddle, "bb_lower": ti.BBLower,
		"atr": ti.ATR, "atr_ratio": ti.ATRRatio,
		"volume_ratio": ti.VolumeRatio, "price_change_20": ti.PriceChange20,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s must be finite", name)
	}
}

func TestComputeDefaultsOnShortInput(t *testing.T) {
	tests := []struct {
		name    string
		candles []exchange.Candle
	}{
		{"empty input", nil},
		{"single candle", syntheticCandles([]float64{2000})},
		{"five candles", syntheticCandles(trendingCloses(5, 2000, 5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := Compute("ETH", "1h", tt.candles)
			require.NotNil(t, ti)
			assert.Zero(t, ti.EMA50, "EMA defaults to 0 without enough data")
			assert.Equal(t, 50.0, ti.RSI14, "RSI defaults to the neutral 50")
			assert.Zero(t, ti.MACD)
			assert.Equal(t, 0, ti.MACDTurn)
			assert.Equal(t, 1.0, ti.ATRRatio, "ratios default to 1")
			assert.Equal(t, 1.0, ti.VolumeRatio)
		})
	}
}

func TestHistogramTurn(t *testing.T) {
	tests := []struct {
		name      string
		histogram []float64
		want      int
	}{
		{"upward pivot below zero", []float64{-0.5, -0.9, -0.4}, 1},
		{"downward pivot above zero", []float64{0.5, 0.9, 0.4}, -1},
		{"pivot above zero is not bullish", []float64{0.9, 0.5, 0.8}, 0},
		{"monotonic rise", []float64{-0.9, -0.5, -0.1}, 0},
		{"too short", []float64{-0.5, -0.4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, histogramTurn(tt.histogram))
		})
	}
}

func TestATRSeriesWilderRecursion(t *testing.T) {
	// Constant-range candles: TR is the same every bar, so ATR equals it.
	candles := make([]exchange.Candle, 30)
	for i := range candles {
		candles[i] = exchange.Candle{Open: 100, High: 102, Low: 98, Close: 100}
	}
	series := ATRSeries(candles, 14)
	require.NotEmpty(t, series)
	for _, v := range series {
		assert.InDelta(t, 4.0, v, 1e-9)
	}

	assert.Nil(t, ATRSeries(candles[:10], 14), "needs period+1 candles")
}

func TestVolumeRatio(t *testing.T) {
	candles := syntheticCandles(trendingCloses(40, 2000, 1))
	// Spike the last bar's volume well above the window average.
	candles[len(candles)-1].Volume = 10_000
	ti := Compute("ETH", "1h", candles)
	assert.Greater(t, ti.VolumeRatio, 3.0)
	assert.InDelta(t, 10_000, ti.Volume, 1e-9)
}
