// Package strategy routes regimes to concrete trading strategies and
// scores the resulting signals into comparable opportunities.
package strategy

import (
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/market"
)

// Action is the strategy decision for one symbol.
type Action string

const (
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionWait  Action = "wait"
)

// Side converts a directional action to a position side.
func (a Action) Side() exchange.PositionSide {
	if a == ActionShort {
		return exchange.SideShort
	}
	return exchange.SideLong
}

// Kind names the strategy family that produced a result.
type Kind string

const (
	KindTrendFollowing Kind = "trend_following"
	KindMeanReversion  Kind = "mean_reversion"
	KindBreakout       Kind = "breakout"
	KindNone           Kind = "none"
)

// baseLeverage is the per-family leverage base before signal and
// volatility scaling.
var baseLeverage = map[Kind]float64{
	KindTrendFollowing: 5,
	KindMeanReversion:  3,
	KindBreakout:       4,
}

// Result is one strategy evaluation for one symbol.
type Result struct {
	Symbol         string  `json:"symbol"`
	Strategy       Kind    `json:"strategy"`
	Action         Action  `json:"action"`
	SignalStrength float64 `json:"signal_strength"` // [0,1]
	Leverage       float64 `json:"leverage"`
	Reason         string  `json:"reason"`
}

// wait builds a non-actionable result with the reason recorded.
func wait(symbol string, kind Kind, reason string) *Result {
	return &Result{
		Symbol:   symbol,
		Strategy: kind,
		Action:   ActionWait,
		Reason:   reason,
	}
}

// Strategy evaluates one symbol's timeframe set under a known regime.
type Strategy interface {
	Kind() Kind
	Evaluate(set *market.TimeframeSet, analysis *market.Analysis) *Result
}
