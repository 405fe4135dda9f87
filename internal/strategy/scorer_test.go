package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/market"
)

func testScorer() *Scorer {
	return NewScorer(config.ScorerConfig{MinScore: 40, MaxResults: 5})
}

func actionable(symbol string, strength, leverage float64) *Result {
	return &Result{
		Symbol:         symbol,
		Strategy:       KindTrendFollowing,
		Action:         ActionLong,
		SignalStrength: strength,
		Leverage:       leverage,
	}
}

func TestScoreActionable(t *testing.T) {
	s := testScorer()
	analysis := &market.Analysis{
		Symbol:     "ETH",
		Regime:     market.RegimeUptrendOversold,
		Alignment:  0.8,
		Volatility: market.VolatilityNormal,
	}

	opp := s.Score(actionable("ETH", 0.9, 4), analysis)
	require.NotNil(t, opp)
	require.NotNil(t, opp.Breakdown)

	// Components: 30*0.9 + 25*0.8 + 20*1.0 + 15*0.9 + 10*1.0 = 90.5.
	assert.InDelta(t, 27.0, opp.Breakdown.Signal, 1e-9)
	assert.InDelta(t, 20.0, opp.Breakdown.TrendConsistency, 1e-9)
	assert.InDelta(t, 20.0, opp.Breakdown.VolatilityFit, 1e-9)
	assert.InDelta(t, 13.5, opp.Breakdown.RiskReward, 1e-9)
	assert.InDelta(t, 10.0, opp.Breakdown.Liquidity, 1e-9)
	assert.Equal(t, 91, opp.Score)
	assert.Equal(t, ConfidenceHigh, opp.Confidence)
}

func TestScoreVolatilityFitUsesRawRatio(t *testing.T) {
	s := testScorer()
	score := func(ratio float64) float64 {
		analysis := &market.Analysis{
			Regime:     market.RegimeUptrendOversold,
			Alignment:  0.8,
			Volatility: market.VolatilityHigh,
			ATRRatio:   ratio,
		}
		return s.Score(actionable("ETH", 0.9, 4), analysis).Breakdown.VolatilityFit
	}

	assert.InDelta(t, 20.0, score(1.0), 1e-9, "inside the band")
	assert.InDelta(t, 20.0, score(1.2), 1e-9, "band edge")
	assert.InDelta(t, 17.0, score(1.35), 1e-9, "tapers with the ratio, not a bucket")
	assert.InDelta(t, 14.0, score(1.5), 1e-9)
	assert.InDelta(t, 6.0, score(2.5), 1e-9, "floored at 0.3")
	assert.InDelta(t, 16.0, score(0.6), 1e-9, "low side tapers too")

	// Ratios inside the same volatility bucket still rank differently.
	assert.Greater(t, score(1.35), score(1.6))

	// Missing ratio falls back to a neutral fit.
	assert.InDelta(t, 20.0, score(0), 1e-9)
}

func TestScoreLeverageDamping(t *testing.T) {
	s := testScorer()
	analysis := &market.Analysis{
		Regime:     market.RegimeUptrendOversold,
		Alignment:  0.8,
		Volatility: market.VolatilityNormal,
	}

	sweet := s.Score(actionable("ETH", 0.9, 4), analysis)
	high := s.Score(actionable("ETH", 0.9, 8), analysis)
	assert.Greater(t, sweet.Breakdown.RiskReward, high.Breakdown.RiskReward)
}

func TestScoreLiquidityTiers(t *testing.T) {
	s := testScorer()
	analysis := &market.Analysis{
		Regime:     market.RegimeUptrendOversold,
		Alignment:  0.8,
		Volatility: market.VolatilityNormal,
	}

	assert.InDelta(t, 10.0, s.Score(actionable("BTC", 0.9, 4), analysis).Breakdown.Liquidity, 1e-9)
	assert.InDelta(t, 8.0, s.Score(actionable("SOL", 0.9, 4), analysis).Breakdown.Liquidity, 1e-9)
	assert.InDelta(t, 6.0, s.Score(actionable("PEPE", 0.9, 4), analysis).Breakdown.Liquidity, 1e-9)
}

func TestScoreWaitFloors(t *testing.T) {
	s := testScorer()
	tests := []struct {
		regime market.Regime
		want   int
	}{
		{market.RegimeUptrendOversold, 55},
		{market.RegimeDowntrendOverbought, 55},
		{market.RegimeUptrendContinuation, 45},
		{market.RegimeRangingNeutral, 30},
		{market.RegimeNoClearSignal, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.regime), func(t *testing.T) {
			result := wait("ETH", KindNone, "test")
			opp := s.Score(result, &market.Analysis{Regime: tt.regime})
			assert.Equal(t, tt.want, opp.Score)
			assert.Nil(t, opp.Breakdown, "wait results carry no breakdown")
		})
	}
}

func TestRank(t *testing.T) {
	s := testScorer()
	opps := []*Opportunity{
		{Symbol: "BTC", Score: 82, Action: ActionLong},
		{Symbol: "ETH", Score: 91, Action: ActionLong},
		{Symbol: "SOL", Score: 35, Action: ActionLong}, // below min_score
		{Symbol: "XRP", Score: 61, Action: ActionShort},
		nil,
	}

	t.Run("filters sorts and keeps all survivors", func(t *testing.T) {
		ranked := s.Rank(opps, nil, false)
		require.Len(t, ranked, 3)
		assert.Equal(t, "ETH", ranked[0].Symbol)
		assert.Equal(t, "BTC", ranked[1].Symbol)
		assert.Equal(t, "XRP", ranked[2].Symbol)
	})

	t.Run("excludes symbols with open positions", func(t *testing.T) {
		ranked := s.Rank(opps, map[string]bool{"ETH": true}, false)
		require.Len(t, ranked, 2)
		assert.Equal(t, "BTC", ranked[0].Symbol)
	})

	t.Run("includes open positions when opted in", func(t *testing.T) {
		ranked := s.Rank(opps, map[string]bool{"ETH": true}, true)
		require.Len(t, ranked, 3)
		assert.Equal(t, "ETH", ranked[0].Symbol)
	})

	t.Run("truncates to max_results", func(t *testing.T) {
		small := NewScorer(config.ScorerConfig{MinScore: 40, MaxResults: 1})
		ranked := small.Rank(opps, nil, false)
		require.Len(t, ranked, 1)
		assert.Equal(t, "ETH", ranked[0].Symbol)
	})
}
