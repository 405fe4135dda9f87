package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// rampCandles builds a window where the earlier half tops out at earlyHigh
// and the later half pushes to lateHigh; lows mirror at -2 below the highs.
func rampCandles(earlyHigh, lateHigh float64) []exchange.Candle {
	out := make([]exchange.Candle, divergenceWindow)
	for i := range out {
		h := earlyHigh
		if i >= divergenceWindow/2 {
			h = lateHigh
		}
		out[i] = exchange.Candle{High: h, Low: h - 2, Close: h - 1}
	}
	return out
}

// flatSeries fills both halves of an indicator window with single peaks.
func flatSeries(earlyPeak, latePeak float64) []float64 {
	out := make([]float64, divergenceWindow)
	for i := range out {
		if i < divergenceWindow/2 {
			out[i] = earlyPeak
		} else {
			out[i] = latePeak
		}
	}
	return out
}

func TestBearishRSIDivergence(t *testing.T) {
	candles := rampCandles(110, 112) // higher price high
	series := flatSeries(70, 60)     // lower RSI high, 10 points

	d := detectDivergence("rsi", candles, series, rsiStrength)
	require.NotNil(t, d)
	assert.True(t, d.Bearish)
	assert.Equal(t, 100, d.Strength, "10 RSI points is full strength")
	assert.True(t, d.Contributes(exchange.SideLong))
	assert.False(t, d.Contributes(exchange.SideShort))
}

func TestRSIDivergenceNeedsThreePoints(t *testing.T) {
	candles := rampCandles(110, 112)
	series := flatSeries(70, 68) // only 2 points lower

	assert.Nil(t, detectDivergence("rsi", candles, series, rsiStrength))
}

func TestBearishMACDDivergence(t *testing.T) {
	candles := rampCandles(110, 112)
	series := flatSeries(1.0, 0.8) // histogram peak down 20%

	d := detectDivergence("macd", candles, series, macdStrength)
	require.NotNil(t, d)
	assert.True(t, d.Bearish)
	assert.Equal(t, 80, d.Strength)
	assert.True(t, d.Contributes(exchange.SideLong))
}

func TestWeakMACDDivergenceDoesNotContribute(t *testing.T) {
	candles := rampCandles(110, 112)
	series := flatSeries(1.0, 0.9) // 10% lower peak: detected but weak

	d := detectDivergence("macd", candles, series, macdStrength)
	require.NotNil(t, d)
	assert.Equal(t, 40, d.Strength)
	assert.False(t, d.Contributes(exchange.SideLong), "strength below %d must not score", minDivergenceStrength)
}

func TestMACDPeakWithinThresholdIsNoDivergence(t *testing.T) {
	candles := rampCandles(110, 112)
	series := flatSeries(1.0, 0.97) // above the 95% decay threshold

	assert.Nil(t, detectDivergence("macd", candles, series, macdStrength))
}

func TestBullishMACDDivergence(t *testing.T) {
	candles := rampCandles(112, 110) // lower price low (lows track highs)
	series := flatSeries(-1.0, -0.8) // shallower histogram trough

	d := detectDivergence("macd", candles, series, macdStrength)
	require.NotNil(t, d)
	assert.False(t, d.Bearish)
	assert.Equal(t, 80, d.Strength)
	assert.True(t, d.Contributes(exchange.SideShort))
	assert.False(t, d.Contributes(exchange.SideLong))
}

func TestBullishRSIDivergence(t *testing.T) {
	candles := rampCandles(112, 110)
	series := flatSeries(25, 32) // RSI holds 7 points higher on the new low

	d := detectDivergence("rsi", candles, series, rsiStrength)
	require.NotNil(t, d)
	assert.False(t, d.Bearish)
	assert.Equal(t, 70, d.Strength)
}

func TestNoDivergenceOnConfirmedHigh(t *testing.T) {
	candles := rampCandles(110, 112)
	series := flatSeries(60, 65) // indicator confirms the new high

	assert.Nil(t, detectDivergence("rsi", candles, series, rsiStrength))
}

func TestShortWindowDetectsNothing(t *testing.T) {
	candles := rampCandles(110, 112)[:divergenceWindow-1]
	assert.Nil(t, DetectRSIDivergence(candles))
	assert.Nil(t, DetectMACDDivergence(candles))
}

func TestNilDivergenceNeverContributes(t *testing.T) {
	var d *Divergence
	assert.False(t, d.Contributes(exchange.SideLong))
	assert.False(t, d.Contributes(exchange.SideShort))
}
