package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/indicators"
)

func defaultThresholds() config.RegimeConfig {
	return config.RegimeConfig{
		OversoldExtreme:   20,
		OversoldMild:      30,
		OverboughtMild:    70,
		OverboughtExtreme: 80,
	}
}

// frame builds a minimal indicator set for classifier tests.
func frame(ema20, ema50, macd, rsi7, atrRatio, close float64) *indicators.TimeframeIndicators {
	ti := &indicators.TimeframeIndicators{
		EMA20:    ema20,
		EMA50:    ema50,
		MACD:     macd,
		RSI7:     rsi7,
		RSI14:    rsi7,
		ATRRatio: atrRatio,
		Candles:  []exchange.Candle{{Close: close}},
	}
	if ema20 > 0 {
		ti.DeviationFromE20 = (close - ema20) / ema20 * 100
	}
	return ti
}

func TestTrendScoreComponentsAndBounds(t *testing.T) {
	t.Run("strong uptrend saturates positive components", func(t *testing.T) {
		// EMA spread 10% => component saturates at +40; huge MACD => +30;
		// price 10% above EMA20 => +20; RSI pinned => +10.
		ti := frame(1100, 1000, 100, 100, 1, 1210)
		score := TrendScore(ti)
		assert.Equal(t, 100, score)
	})

	t.Run("strong downtrend saturates negative", func(t *testing.T) {
		ti := frame(900, 1000, -100, 0, 1, 810)
		assert.Equal(t, -100, TrendScore(ti))
	})

	t.Run("flat market scores near zero", func(t *testing.T) {
		ti := frame(1000, 1000, 0, 50, 1, 1000)
		assert.Equal(t, 0, TrendScore(ti))
	})

	t.Run("nil frame scores zero", func(t *testing.T) {
		assert.Equal(t, 0, TrendScore(nil))
	})

	t.Run("moderate trend lands mid-range", func(t *testing.T) {
		// 1% EMA spread => +10; small positive MACD; mild RSI.
		ti := frame(1010, 1000, 1, 60, 1, 1010)
		score := TrendScore(ti)
		assert.Greater(t, score, 0)
		assert.Less(t, score, 50)
	})
}

func TestClassifierStateTable(t *testing.T) {
	c := NewClassifier(defaultThresholds())
	up := frame(1100, 1000, 5, 50, 1, 1100)
	down := frame(900, 1000, -5, 50, 1, 900)
	flat := frame(1000, 1000, 0, 50, 1, 1000)

	tests := []struct {
		name       string
		primary    *indicators.TimeframeIndicators
		confirmRSI float64
		regime     Regime
		confidence float64
	}{
		{"uptrend oversold extreme", up, 15, RegimeUptrendOversold, 0.9},
		{"uptrend overbought extreme", up, 85, RegimeUptrendOverbought, 0.6},
		{"uptrend neutral continues", up, 50, RegimeUptrendContinuation, 0.7},
		{"uptrend mild pullback continues", up, 28, RegimeUptrendContinuation, 0.7},
		{"uptrend mild overbought", up, 72, RegimeUptrendOverbought, 0.5},
		{"downtrend overbought extreme", down, 85, RegimeDowntrendOverbought, 0.9},
		{"downtrend oversold extreme", down, 15, RegimeDowntrendOversold, 0.6},
		{"downtrend neutral continues", down, 50, RegimeDowntrendContinuation, 0.7},
		{"downtrend mild oversold", down, 28, RegimeDowntrendOversold, 0.5},
		{"ranging oversold extreme", flat, 15, RegimeRangingOversold, 0.8},
		{"ranging overbought extreme", flat, 85, RegimeRangingOverbought, 0.8},
		{"ranging neutral", flat, 50, RegimeRangingNeutral, 0.5},
		{"ranging mild momentum is unclear", flat, 28, RegimeNoClearSignal, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confirm := frame(1000, 1000, 0, tt.confirmRSI, 1, 1000)
			analysis := c.Classify("ETH", tt.primary, confirm, flat)
			require.NotNil(t, analysis)
			assert.Equal(t, tt.regime, analysis.Regime)
			assert.InDelta(t, tt.confidence, analysis.Confidence, 1e-9)
		})
	}
}

func TestClassifierMACDTurnBump(t *testing.T) {
	c := NewClassifier(defaultThresholds())
	up := frame(1100, 1000, 5, 50, 1, 1100)
	up.MACDTurn = 1 // agrees with the long bias
	confirm := frame(1000, 1000, 0, 15, 1, 1000)
	flat := frame(1000, 1000, 0, 50, 1, 1000)

	analysis := c.Classify("ETH", up, confirm, flat)
	assert.Equal(t, RegimeUptrendOversold, analysis.Regime)
	assert.InDelta(t, 1.0, analysis.Confidence, 1e-9, "0.9 base plus 0.1 bump, capped at 1")

	// A disagreeing turn leaves the base confidence untouched.
	up.MACDTurn = -1
	analysis = c.Classify("ETH", up, confirm, flat)
	assert.InDelta(t, 0.9, analysis.Confidence, 1e-9)
}

func TestClassifierVolatility(t *testing.T) {
	c := NewClassifier(defaultThresholds())
	up := frame(1100, 1000, 5, 50, 1, 1100)
	confirm := frame(1000, 1000, 0, 50, 1, 1000)

	high := frame(1000, 1000, 0, 50, 1.8, 1000)
	analysis := c.Classify("ETH", up, confirm, high)
	assert.Equal(t, VolatilityHigh, analysis.Volatility)
	assert.InDelta(t, 1.8, analysis.ATRRatio, 1e-9, "raw ratio is carried alongside the bucket")

	low := frame(1000, 1000, 0, 50, 0.5, 1000)
	assert.Equal(t, VolatilityLow, c.Classify("ETH", up, confirm, low).Volatility)

	normal := frame(1000, 1000, 0, 50, 1.0, 1000)
	assert.Equal(t, VolatilityNormal, c.Classify("ETH", up, confirm, normal).Volatility)

	missing := c.Classify("ETH", up, confirm, nil)
	assert.Equal(t, VolatilityNormal, missing.Volatility)
	assert.InDelta(t, 1.0, missing.ATRRatio, 1e-9)
}

func TestAlignmentScore(t *testing.T) {
	bullish := frame(1100, 1000, 5, 55, 1, 1100)
	bearish := frame(900, 1000, -5, 45, 1, 900)

	t.Run("full agreement scores 1", func(t *testing.T) {
		assert.InDelta(t, 1.0, AlignmentScore(bullish, bullish, bullish), 1e-9)
	})

	t.Run("disagreement loses the pairwise terms", func(t *testing.T) {
		score := AlignmentScore(bullish, bearish, bullish)
		// No EMA or MACD agreement in either pair, but each frame is
		// internally consistent (0.15+0.15 per pair).
		assert.InDelta(t, 0.3, score, 1e-9)
	})

	t.Run("nil frames score 0", func(t *testing.T) {
		assert.Zero(t, AlignmentScore(nil, nil, nil))
	})

	t.Run("range within 0 and 1", func(t *testing.T) {
		score := AlignmentScore(bullish, bullish, bearish)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})
}
