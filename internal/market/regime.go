// Package market classifies the current regime per symbol from a triple of
// timeframe indicator sets and keeps a short rolling history of trend
// scores for reversal detection.
package market

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/indicators"
)

// Regime is the classified market state for one symbol.
type Regime string

const (
	RegimeUptrendOversold       Regime = "uptrend_oversold"
	RegimeUptrendOverbought     Regime = "uptrend_overbought"
	RegimeUptrendContinuation   Regime = "uptrend_continuation"
	RegimeDowntrendOverbought   Regime = "downtrend_overbought"
	RegimeDowntrendOversold     Regime = "downtrend_oversold"
	RegimeDowntrendContinuation Regime = "downtrend_continuation"
	RegimeRangingOversold       Regime = "ranging_oversold"
	RegimeRangingOverbought     Regime = "ranging_overbought"
	RegimeRangingNeutral        Regime = "ranging_neutral"
	RegimeNoClearSignal         Regime = "no_clear_signal"
)

// Bias returns +1 for regimes that favour longs, -1 for shorts, 0 otherwise.
func (r Regime) Bias() int {
	switch r {
	case RegimeUptrendOversold, RegimeUptrendContinuation, RegimeRangingOversold:
		return 1
	case RegimeDowntrendOverbought, RegimeDowntrendContinuation, RegimeRangingOverbought:
		return -1
	}
	return 0
}

// TrendDirection is the primary-frame trend reading.
type TrendDirection string

const (
	TrendingUp   TrendDirection = "trending_up"
	TrendingDown TrendDirection = "trending_down"
	Ranging      TrendDirection = "ranging"
)

// Momentum is the confirm-frame RSI reading.
type Momentum string

const (
	MomentumOversoldExtreme   Momentum = "oversold_extreme"
	MomentumOversoldMild      Momentum = "oversold_mild"
	MomentumNeutral           Momentum = "neutral"
	MomentumOverboughtMild    Momentum = "overbought_mild"
	MomentumOverboughtExtreme Momentum = "overbought_extreme"
)

// Volatility is the filter-frame ATR-ratio reading.
type Volatility string

const (
	VolatilityHigh   Volatility = "high"
	VolatilityNormal Volatility = "normal"
	VolatilityLow    Volatility = "low"
)

// TrendScores holds the per-frame scores in [-100, 100].
type TrendScores struct {
	Primary int `json:"primary"`
	Confirm int `json:"confirm"`
	Filter  int `json:"filter"`
}

// Analysis is the full regime classification output for one symbol.
type Analysis struct {
	Symbol     string         `json:"symbol"`
	Regime     Regime         `json:"regime"`
	Confidence float64        `json:"confidence"`
	Trend      TrendDirection `json:"trend"`
	Momentum   Momentum       `json:"momentum"`
	Volatility Volatility     `json:"volatility"`
	ATRRatio   float64        `json:"atr_ratio"`
	Scores     TrendScores    `json:"scores"`
	Alignment  float64        `json:"alignment"` // [0,1]
	Timestamp  time.Time      `json:"timestamp"`
}

// TrendScore condenses one timeframe into a single score in [-100, 100].
// Four weighted components: EMA spread (40), MACD relative to price (30),
// deviation from the fast EMA (20), RSI7 displacement from neutral (10).
func TrendScore(ti *indicators.TimeframeIndicators) int {
	if ti == nil {
		return 0
	}

	score := 0.0
	if ti.EMA50 > 0 {
		score += clampF((ti.EMA20-ti.EMA50)/ti.EMA50*1000, -40, 40)
	}
	if close := ti.Close(); close > 0 {
		score += clampF(ti.MACD/close*10000, -30, 30)
	}
	score += clampF(ti.DeviationFromE20*2, -20, 20)
	score += clampF((ti.RSI7-50)/5, -10, 10)

	return int(math.Round(score))
}

// Classifier maps timeframe indicator triples onto regimes.
type Classifier struct {
	thresholds config.RegimeConfig
}

// NewClassifier creates a classifier with the configured RSI thresholds.
func NewClassifier(thresholds config.RegimeConfig) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Classify derives the regime from the (primary, confirm, filter) triple.
func (c *Classifier) Classify(symbol string, primary, confirm, filter *indicators.TimeframeIndicators) *Analysis {
	trend := trendOf(primary)
	momentum := c.momentumOf(confirm)
	volatility := volatilityOf(filter)

	regime, confidence := regimeFor(trend, momentum)

	// A MACD histogram pivot agreeing with the regime's bias firms up the
	// read.
	if primary != nil && primary.MACDTurn != 0 && primary.MACDTurn == regime.Bias() {
		confidence = math.Min(1.0, confidence+0.1)
	}

	analysis := &Analysis{
		Symbol:     symbol,
		Regime:     regime,
		Confidence: confidence,
		Trend:      trend,
		Momentum:   momentum,
		Volatility: volatility,
		ATRRatio:   atrRatioOf(filter),
		Scores: TrendScores{
			Primary: TrendScore(primary),
			Confirm: TrendScore(confirm),
			Filter:  TrendScore(filter),
		},
		Alignment: AlignmentScore(primary, confirm, filter),
		Timestamp: time.Now().UTC(),
	}

	log.Debug().
		Str("symbol", symbol).
		Str("regime", string(regime)).
		Float64("confidence", confidence).
		Int("primary_score", analysis.Scores.Primary).
		Int("confirm_score", analysis.Scores.Confirm).
		Int("filter_score", analysis.Scores.Filter).
		Msg("Regime classified")

	return analysis
}

func trendOf(ti *indicators.TimeframeIndicators) TrendDirection {
	if ti == nil {
		return Ranging
	}
	switch {
	case ti.EMA20 > ti.EMA50 && ti.MACD > 0:
		return TrendingUp
	case ti.EMA20 < ti.EMA50 && ti.MACD < 0:
		return TrendingDown
	}
	return Ranging
}

func (c *Classifier) momentumOf(ti *indicators.TimeframeIndicators) Momentum {
	if ti == nil {
		return MomentumNeutral
	}
	rsi := ti.RSI7
	switch {
	case rsi <= c.thresholds.OversoldExtreme:
		return MomentumOversoldExtreme
	case rsi <= c.thresholds.OversoldMild:
		return MomentumOversoldMild
	case rsi >= c.thresholds.OverboughtExtreme:
		return MomentumOverboughtExtreme
	case rsi >= c.thresholds.OverboughtMild:
		return MomentumOverboughtMild
	}
	return MomentumNeutral
}

func atrRatioOf(ti *indicators.TimeframeIndicators) float64 {
	if ti == nil {
		return 1.0
	}
	return ti.ATRRatio
}

func volatilityOf(ti *indicators.TimeframeIndicators) Volatility {
	if ti == nil {
		return VolatilityNormal
	}
	switch {
	case ti.ATRRatio > 1.5:
		return VolatilityHigh
	case ti.ATRRatio < 0.7:
		return VolatilityLow
	}
	return VolatilityNormal
}

// regimeFor is the (trend, momentum) state table with base confidences.
func regimeFor(trend TrendDirection, momentum Momentum) (Regime, float64) {
	switch trend {
	case TrendingUp:
		switch momentum {
		case MomentumOversoldExtreme:
			return RegimeUptrendOversold, 0.9
		case MomentumOverboughtExtreme:
			return RegimeUptrendOverbought, 0.6
		case MomentumOversoldMild, MomentumNeutral:
			return RegimeUptrendContinuation, 0.7
		case MomentumOverboughtMild:
			return RegimeUptrendOverbought, 0.5
		}
	case TrendingDown:
		switch momentum {
		case MomentumOverboughtExtreme:
			return RegimeDowntrendOverbought, 0.9
		case MomentumOversoldExtreme:
			return RegimeDowntrendOversold, 0.6
		case MomentumOverboughtMild, MomentumNeutral:
			return RegimeDowntrendContinuation, 0.7
		case MomentumOversoldMild:
			return RegimeDowntrendOversold, 0.5
		}
	case Ranging:
		switch momentum {
		case MomentumOversoldExtreme:
			return RegimeRangingOversold, 0.8
		case MomentumOverboughtExtreme:
			return RegimeRangingOverbought, 0.8
		case MomentumNeutral:
			return RegimeRangingNeutral, 0.5
		}
	}
	return RegimeNoClearSignal, 0.3
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
