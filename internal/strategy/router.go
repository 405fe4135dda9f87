package strategy

import (
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/market"
)

// Router picks the strategy family for a classified regime and runs it.
type Router struct {
	trend    *TrendFollowing
	meanRev  *MeanReversion
	breakout *Breakout
	logger   zerolog.Logger
}

// NewRouter creates a router with all strategies sharing the leverage cap.
func NewRouter(maxLeverage float64) *Router {
	return &Router{
		trend:    &TrendFollowing{MaxLeverage: maxLeverage},
		meanRev:  &MeanReversion{MaxLeverage: maxLeverage},
		breakout: &Breakout{MaxLeverage: maxLeverage},
		logger:   config.NewLogger("strategy.router"),
	}
}

// Route returns the strategy for a regime, or nil when the regime calls
// for waiting.
//
// Trend regimes follow the trend; ranging extremes fade back to the mean.
// A neutral range is handed to the breakout strategy, which waits unless
// price is actually pressing a level. Oversold downtrends and unclear
// reads trade nothing.
func (r *Router) Route(regime market.Regime) Strategy {
	switch regime {
	case market.RegimeUptrendOversold, market.RegimeUptrendContinuation, market.RegimeUptrendOverbought:
		return r.trend
	case market.RegimeDowntrendOverbought, market.RegimeDowntrendContinuation:
		return r.trend
	case market.RegimeRangingOversold, market.RegimeRangingOverbought:
		return r.meanRev
	case market.RegimeRangingNeutral:
		return r.breakout
	}
	return nil
}

// Evaluate routes and runs the strategy for one symbol.
func (r *Router) Evaluate(set *market.TimeframeSet, analysis *market.Analysis) *Result {
	strat := r.Route(analysis.Regime)
	if strat == nil {
		return wait(set.Symbol, KindNone, "regime "+string(analysis.Regime)+" trades nothing")
	}

	result := strat.Evaluate(set, analysis)

	r.logger.Debug().
		Str("symbol", set.Symbol).
		Str("regime", string(analysis.Regime)).
		Str("strategy", string(result.Strategy)).
		Str("action", string(result.Action)).
		Float64("signal_strength", result.SignalStrength).
		Float64("leverage", result.Leverage).
		Msg("Strategy evaluated")

	return result
}
