package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

func candlesFromHL(highs, lows []float64) []exchange.Candle {
	candles := make([]exchange.Candle, len(highs))
	for i := range highs {
		candles[i] = exchange.Candle{
			High:  highs[i],
			Low:   lows[i],
			Close: (highs[i] + lows[i]) / 2,
		}
	}
	return candles
}

func TestRecentExtremes(t *testing.T) {
	highs := []float64{10, 12, 11, 15, 13}
	lows := []float64{8, 9, 7, 11, 10}
	high, low := RecentExtremes(candlesFromHL(highs, lows))
	assert.Equal(t, 15.0, high)
	assert.Equal(t, 7.0, low)

	high, low = RecentExtremes(nil)
	assert.Zero(t, high)
	assert.Zero(t, low)
}

func TestRecentExtremesWindowed(t *testing.T) {
	// An early spike outside the 20-candle window must not count.
	highs := make([]float64, 30)
	lows := make([]float64, 30)
	for i := range highs {
		highs[i] = 100
		lows[i] = 90
	}
	highs[2] = 500
	lows[2] = 1
	high, low := RecentExtremes(candlesFromHL(highs, lows))
	assert.Equal(t, 100.0, high)
	assert.Equal(t, 90.0, low)
}

func TestResistanceAndSupportLevels(t *testing.T) {
	// Peaks at 110 and 120; troughs at 95 and 90.
	highs := []float64{100, 110, 100, 105, 120, 105, 100, 100, 100}
	lows := []float64{98, 99, 95, 97, 99, 90, 96, 98, 97}
	candles := candlesFromHL(highs, lows)

	resistance := ResistanceLevels(candles)
	require.Len(t, resistance, 2)
	// Most recent extremum first.
	assert.Equal(t, []float64{120, 110}, resistance)

	support := SupportLevels(candles)
	require.Len(t, support, 2)
	assert.Equal(t, []float64{90, 95}, support)
}

func TestLevelsCapAtThree(t *testing.T) {
	// Alternating sawtooth produces a peak on every odd index.
	highs := make([]float64, 20)
	lows := make([]float64, 20)
	for i := range highs {
		if i%2 == 1 {
			highs[i] = 110 + float64(i)
			lows[i] = 100
		} else {
			highs[i] = 100
			lows[i] = 90 - float64(i)
		}
	}
	resistance := ResistanceLevels(candlesFromHL(highs, lows))
	assert.Len(t, resistance, maxLevels)
	support := SupportLevels(candlesFromHL(highs, lows))
	assert.Len(t, support, maxLevels)
}
