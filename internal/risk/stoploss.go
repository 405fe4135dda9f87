// Package risk holds the stop-loss engine, trailing-stop updates, the
// account drawdown watch, and the circuit breakers guarding external
// dependencies.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/indicators"
)

// StopMethod names which calculation produced the final stop.
type StopMethod string

const (
	MethodATR        StopMethod = "atr"
	MethodStructural StopMethod = "structural"
	MethodHybrid     StopMethod = "hybrid"
	MethodMinimum    StopMethod = "minimum_floor"
)

// VolatilityLevel grades the market by ATR as a percentage of entry.
type VolatilityLevel string

const (
	VolLow     VolatilityLevel = "low"     // atr_pct < 1.5
	VolMedium  VolatilityLevel = "medium"  // atr_pct < 3.0
	VolHigh    VolatilityLevel = "high"    // atr_pct < 5.0
	VolExtreme VolatilityLevel = "extreme" // anything beyond
)

// StopResult is the full stop-loss calculation output.
type StopResult struct {
	Symbol          string                `json:"symbol"`
	Side            exchange.PositionSide `json:"side"`
	EntryPrice      float64               `json:"entry_price"`
	StopLoss        float64               `json:"stop_loss"`
	DistancePct     float64               `json:"distance_pct"`
	ATR             float64               `json:"atr"`
	ATRPct          float64               `json:"atr_pct"`
	QualityScore    float64               `json:"quality_score"`
	Volatility      VolatilityLevel       `json:"volatility"`
	Method          StopMethod            `json:"method"`
	StructuralFound bool                  `json:"structural_found"`
}

// RiskPerUnit is the distance between entry and stop, the R unit for the
// partial take-profit ladder.
func (r *StopResult) RiskPerUnit() float64 {
	return math.Abs(r.EntryPrice - r.StopLoss)
}

// TakeProfitAt returns the price a given R multiple away from entry on the
// profit side.
func (r *StopResult) TakeProfitAt(multiple float64) float64 {
	if r.Side == exchange.SideShort {
		return r.EntryPrice - multiple*r.RiskPerUnit()
	}
	return r.EntryPrice + multiple*r.RiskPerUnit()
}

// Engine computes stops from market structure and volatility.
type Engine struct {
	cfg    config.StopConfig
	logger zerolog.Logger
}

// NewEngine creates a stop engine with the configured parameters.
func NewEngine(cfg config.StopConfig) *Engine {
	return &Engine{cfg: cfg, logger: config.NewLogger("risk.stops")}
}

// CandleNeed is how many candles Calculate wants for a stable answer.
func (e *Engine) CandleNeed() int {
	need := e.cfg.ATRPeriod + 1
	if e.cfg.SupportResistanceLookback > need {
		need = e.cfg.SupportResistanceLookback
	}
	return need + 10
}

// Calculate derives the stop for a prospective or existing position.
// It blends an ATR distance with the nearest structural level and picks
// the tighter of the two, falling back to a minimum-percent floor when
// structure and volatility both fail to produce a valid stop.
func (e *Engine) Calculate(symbol string, side exchange.PositionSide, entry float64, candles []exchange.Candle) (*StopResult, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("invalid entry price %v for %s", entry, symbol)
	}

	result := &StopResult{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
	}

	atrSeries := indicators.ATRSeries(candles, e.cfg.ATRPeriod)
	if len(atrSeries) > 0 {
		result.ATR = atrSeries[len(atrSeries)-1]
		result.ATRPct = result.ATR / entry * 100
	}
	result.Volatility = volatilityLevelOf(result.ATRPct)

	atrStop := e.atrStop(side, entry, result.ATR)
	structStop, structFound := e.structuralStop(side, entry, candles)
	result.StructuralFound = structFound

	stop, method := pickStop(side, entry, atrStop, structStop, structFound)
	if stop == 0 || !onLossSide(side, entry, stop) {
		stop = e.minimumStop(side, entry)
		method = MethodMinimum
	}

	result.StopLoss = stop
	result.Method = method
	result.DistancePct = math.Abs(entry-stop) / entry * 100
	result.QualityScore = qualityScore(result.ATRPct, result.DistancePct, structFound)

	e.logger.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry", entry).
		Float64("stop", result.StopLoss).
		Float64("distance_pct", result.DistancePct).
		Float64("quality", result.QualityScore).
		Str("method", string(method)).
		Msg("Stop calculated")

	return result, nil
}

// ShouldOpen is the open-gate: a prospective position must carry an
// acceptable stop before any order goes out.
func (e *Engine) ShouldOpen(result *StopResult) (bool, string) {
	if result == nil {
		return false, "no stop calculation available"
	}
	if result.DistancePct > e.cfg.MaxStopLossPercent {
		return false, fmt.Sprintf("stop distance %.2f%% exceeds maximum %.2f%%",
			result.DistancePct, e.cfg.MaxStopLossPercent)
	}
	if result.Volatility == VolExtreme {
		return false, fmt.Sprintf("extreme volatility: ATR %.2f%% of entry", result.ATRPct)
	}
	if result.QualityScore < e.cfg.MinQualityScore {
		return false, fmt.Sprintf("stop quality %.0f below minimum %.0f",
			result.QualityScore, e.cfg.MinQualityScore)
	}
	return true, "stop accepted"
}

func (e *Engine) atrStop(side exchange.PositionSide, entry, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	if side == exchange.SideShort {
		return entry + atr*e.cfg.ATRMultiplier
	}
	return entry - atr*e.cfg.ATRMultiplier
}

// structuralStop finds the nearest swing level within the lookback window
// and pads it by the buffer. Levels on the wrong side of entry are
// discarded.
func (e *Engine) structuralStop(side exchange.PositionSide, entry float64, candles []exchange.Candle) (float64, bool) {
	lookback := e.cfg.SupportResistanceLookback
	if lookback <= 0 || len(candles) < lookback {
		return 0, false
	}
	window := candles[len(candles)-lookback:]

	if side == exchange.SideLong {
		low := window[0].Low
		for _, c := range window[1:] {
			if c.Low < low {
				low = c.Low
			}
		}
		stop := low * (1 - e.cfg.SupportResistanceBuffer/100)
		if stop >= entry {
			return 0, false
		}
		return stop, true
	}

	high := window[0].High
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
	}
	stop := high * (1 + e.cfg.SupportResistanceBuffer/100)
	if stop <= entry {
		return 0, false
	}
	return stop, true
}

func (e *Engine) minimumStop(side exchange.PositionSide, entry float64) float64 {
	if side == exchange.SideShort {
		return entry * (1 + e.cfg.MinStopLossPercent/100)
	}
	return entry * (1 - e.cfg.MinStopLossPercent/100)
}

// pickStop chooses between the ATR and structural stops: when both are
// valid the tighter one (closer to entry) wins.
func pickStop(side exchange.PositionSide, entry, atrStop, structStop float64, structFound bool) (float64, StopMethod) {
	atrValid := atrStop != 0 && onLossSide(side, entry, atrStop)
	structValid := structFound && onLossSide(side, entry, structStop)

	switch {
	case atrValid && structValid:
		if side == exchange.SideLong {
			return math.Max(atrStop, structStop), MethodHybrid
		}
		return math.Min(atrStop, structStop), MethodHybrid
	case atrValid:
		return atrStop, MethodATR
	case structValid:
		return structStop, MethodStructural
	}
	return 0, MethodMinimum
}

func onLossSide(side exchange.PositionSide, entry, stop float64) bool {
	if side == exchange.SideLong {
		return stop > 0 && stop < entry
	}
	return stop > entry
}

func volatilityLevelOf(atrPct float64) VolatilityLevel {
	switch {
	case atrPct < 1.5:
		return VolLow
	case atrPct < 3.0:
		return VolMedium
	case atrPct < 5.0:
		return VolHigh
	}
	return VolExtreme
}

// qualityScore grades a stop: a 50 base, up to 20 each for ATR and stop
// distance landing in the 1.5-3% sweet spot (half credit below it), and
// 10 for resting on real structure.
func qualityScore(atrPct, distancePct float64, structFound bool) float64 {
	score := 50.0
	switch {
	case atrPct >= 1.5 && atrPct <= 3.0:
		score += 20
	case atrPct > 0 && atrPct < 1.5:
		score += 10
	}
	switch {
	case distancePct >= 1.5 && distancePct <= 3.0:
		score += 20
	case distancePct < 1.5:
		score += 10
	}
	if structFound {
		score += 10
	}
	return math.Max(0, math.Min(100, score))
}
