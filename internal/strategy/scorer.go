package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/market"
)

// ScoreBreakdown itemises an opportunity score. Components sum to the
// total before rounding.
type ScoreBreakdown struct {
	Signal           float64 `json:"signal"`            // 30 max
	TrendConsistency float64 `json:"trend_consistency"` // 25 max
	VolatilityFit    float64 `json:"volatility_fit"`    // 20 max
	RiskReward       float64 `json:"risk_reward"`       // 15 max
	Liquidity        float64 `json:"liquidity"`         // 10 max
}

// Confidence buckets an opportunity score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // score >= 75
	ConfidenceMedium Confidence = "medium" // score >= 60
	ConfidenceLow    Confidence = "low"
)

// Opportunity is one scored trading candidate.
type Opportunity struct {
	Symbol     string          `json:"symbol"`
	Score      int             `json:"score"`
	Confidence Confidence      `json:"confidence"`
	Action     Action          `json:"action"`
	Strategy   Kind            `json:"strategy"`
	Leverage   float64         `json:"leverage"`
	Regime     market.Regime   `json:"regime"`
	Breakdown  *ScoreBreakdown `json:"breakdown,omitempty"`
	Reason     string          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
}

// majorSymbols get full liquidity credit; secondTier a haircut; anything
// else is assumed thin.
var (
	majorSymbols      = map[string]bool{"BTC": true, "ETH": true}
	secondTierSymbols = map[string]bool{"SOL": true, "BNB": true, "XRP": true, "DOGE": true, "ADA": true}
)

// Scorer converts strategy results into comparable opportunity scores.
type Scorer struct {
	cfg    config.ScorerConfig
	logger zerolog.Logger
}

// NewScorer creates a scorer with the configured filter parameters.
func NewScorer(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg, logger: config.NewLogger("strategy.scorer")}
}

// Score rates one strategy result under its regime analysis.
func (s *Scorer) Score(result *Result, analysis *market.Analysis) *Opportunity {
	opp := &Opportunity{
		Symbol:    result.Symbol,
		Action:    result.Action,
		Strategy:  result.Strategy,
		Leverage:  result.Leverage,
		Regime:    analysis.Regime,
		Reason:    result.Reason,
		Timestamp: time.Now().UTC(),
	}

	if result.Action == ActionWait {
		// A wait still carries information: how close the regime came to
		// being tradeable.
		opp.Score = waitFloor(analysis.Regime)
		opp.Confidence = confidenceFor(opp.Score)
		return opp
	}

	breakdown := &ScoreBreakdown{
		Signal:           30 * result.SignalStrength,
		TrendConsistency: 25 * analysis.Alignment,
		VolatilityFit:    20 * volatilityFit(analysis),
		RiskReward:       15 * riskReward(analysis.Regime, result.Leverage),
		Liquidity:        10 * liquidityFactor(result.Symbol),
	}

	total := breakdown.Signal + breakdown.TrendConsistency + breakdown.VolatilityFit +
		breakdown.RiskReward + breakdown.Liquidity

	opp.Score = int(math.Round(total))
	opp.Confidence = confidenceFor(opp.Score)
	opp.Breakdown = breakdown
	return opp
}

// Rank filters, sorts and truncates scored opportunities. Symbols in
// openPositions are excluded unless includeOpen is set.
func (s *Scorer) Rank(opportunities []*Opportunity, openPositions map[string]bool, includeOpen bool) []*Opportunity {
	var survivors []*Opportunity
	for _, opp := range opportunities {
		if opp == nil {
			continue
		}
		if !includeOpen && openPositions[opp.Symbol] {
			continue
		}
		if float64(opp.Score) < s.cfg.MinScore {
			continue
		}
		survivors = append(survivors, opp)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})

	max := s.cfg.MaxResults
	if max > 0 && len(survivors) > max {
		survivors = survivors[:max]
	}

	s.logger.Debug().
		Int("candidates", len(opportunities)).
		Int("survivors", len(survivors)).
		Float64("min_score", s.cfg.MinScore).
		Msg("Opportunities ranked")

	return survivors
}

// waitFloor scores a non-actionable read by how near it came to a trade.
func waitFloor(regime market.Regime) int {
	switch regime {
	case market.RegimeUptrendOversold, market.RegimeDowntrendOverbought:
		return 55
	case market.RegimeUptrendContinuation, market.RegimeDowntrendContinuation:
		return 45
	case market.RegimeRangingOversold, market.RegimeRangingOverbought, market.RegimeRangingNeutral:
		return 30
	}
	return 0
}

// volatilityFit is 1 inside the comfortable ATR band, tapering toward a
// 0.3 floor outside it.
func volatilityFit(analysis *market.Analysis) float64 {
	ratio := analysis.ATRRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 1.0
	case ratio > 1.2:
		return math.Max(0.3, 1.0-(ratio-1.2))
	}
	return math.Max(0.3, 1.0-(0.8-ratio))
}

// riskReward rates the regime's expected edge, damped when leverage drifts
// out of the sweet spot.
func riskReward(regime market.Regime, leverage float64) float64 {
	var base float64
	switch regime {
	case market.RegimeUptrendOversold, market.RegimeDowntrendOverbought:
		base = 0.9
	case market.RegimeUptrendContinuation, market.RegimeDowntrendContinuation:
		base = 0.7
	case market.RegimeRangingOversold, market.RegimeRangingOverbought:
		base = 0.8
	default:
		base = 0.5
	}
	if leverage < 3 || leverage > 5 {
		base *= 0.85
	}
	return base
}

func liquidityFactor(symbol string) float64 {
	switch {
	case majorSymbols[symbol]:
		return 1.0
	case secondTierSymbols[symbol]:
		return 0.8
	}
	return 0.6
}

func confidenceFor(score int) Confidence {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	}
	return ConfidenceLow
}
