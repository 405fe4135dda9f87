package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/market"
)

// Weakening and reversal thresholds on trend scores.
const (
	weakeningRatio     = 0.8 // |current| < 0.8*|previous| is weakening
	severeWeakeningPct = 50  // severity at or above this is severe
	reversalJump       = 40  // absolute-point jump against the position
	rangingZone        = 10  // |score| below this is the ranging zone
	earlyWarningPct    = 40  // frame weakening beyond this feeds the flag
)

// Frame score weights and recommendation tier bounds.
const (
	primaryWeight    = 40
	confirmWeight    = 25
	filterWeight     = 15
	divergenceWeight = 10

	tierEarlyWarning   = 30
	tierAdvisoryClose  = 50
	tierEmergencyClose = 70
)

// Recommendation is the monitor's verdict tier.
type Recommendation string

const (
	RecommendHold           Recommendation = "hold"
	RecommendEarlyWarning   Recommendation = "early_warning"
	RecommendAdvisoryClose  Recommendation = "advisory_close"
	RecommendEmergencyClose Recommendation = "emergency_close"
)

// recommendationFor maps a reversal score onto its tier.
func recommendationFor(score int) Recommendation {
	switch {
	case score >= tierEmergencyClose:
		return RecommendEmergencyClose
	case score >= tierAdvisoryClose:
		return RecommendAdvisoryClose
	case score >= tierEarlyWarning:
		return RecommendEarlyWarning
	}
	return RecommendHold
}

// FrameState is the weakening/reversal read of one timeframe.
type FrameState struct {
	Name     string `json:"name"` // primary, confirm, filter
	Current  int    `json:"current"`
	Previous int    `json:"previous"`
	// Weakening means the score's magnitude decayed past the threshold
	// while still pointing the position's way.
	Weakening bool `json:"weakening"`
	Severity  int  `json:"severity"` // 0..100
	// Reversed means a sign crossing or a hard jump against the position.
	Reversed bool `json:"reversed"`
	// Ranging means the score fell into the neutral zone from outside it.
	Ranging bool `json:"ranging"`
}

// Assessment is the full reversal read for one position.
type Assessment struct {
	Symbol         string                `json:"symbol"`
	Side           exchange.PositionSide `json:"side"`
	Score          int                   `json:"score"`
	Frames         [3]FrameState         `json:"frames"`
	EarlyWarning   bool                  `json:"early_warning"`
	MACDDivergence *Divergence           `json:"macd_divergence,omitempty"`
	RSIDivergence  *Divergence           `json:"rsi_divergence,omitempty"`
	Recommendation Recommendation        `json:"recommendation"`
	// Closed is set when the monitor itself executed an emergency close.
	Closed bool    `json:"closed"`
	Reason string  `json:"reason,omitempty"`
	PnL    float64 `json:"pnl,omitempty"`
}

// ReversalStore is the slice of the store the monitor writes through.
type ReversalStore interface {
	LockStore
	Position(ctx context.Context, symbol string, side exchange.PositionSide) (*db.Position, error)
	ClosePosition(ctx context.Context, symbol string, side exchange.PositionSide, event *db.CloseEvent, closeTrade *db.Trade) error
}

// TimeframeSource yields fresh indicator triples; the market data service
// satisfies it.
type TimeframeSource interface {
	Timeframes(ctx context.Context, symbol string) (*market.TimeframeSet, error)
}

// ReversalMonitor watches open positions for trend exhaustion and executes
// emergency closes when the evidence crosses the top tier.
type ReversalMonitor struct {
	source  TimeframeSource
	history *market.ScoreHistory
	store   ReversalStore
	ex      exchange.Exchange
	guard   *Guard
	caller  string
	logger  zerolog.Logger
}

// NewReversalMonitor creates a monitor. The caller name tags emergency
// close-event reasons so operators can tell loops apart.
func NewReversalMonitor(source TimeframeSource, history *market.ScoreHistory, store ReversalStore, ex exchange.Exchange, guard *Guard, caller string) *ReversalMonitor {
	return &ReversalMonitor{
		source:  source,
		history: history,
		store:   store,
		ex:      ex,
		guard:   guard,
		caller:  caller,
		logger:  config.NewLogger("executor.reversal"),
	}
}

// Evaluate refreshes indicators for the position's symbol, scores the
// reversal evidence, and acts on the top tier. Lower tiers only report.
func (m *ReversalMonitor) Evaluate(ctx context.Context, pos *db.Position) (*Assessment, error) {
	set, err := m.source.Timeframes(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("refreshing timeframes for %s: %w", pos.Symbol, err)
	}

	scores := market.TrendScores{
		Primary: market.TrendScore(set.Primary),
		Confirm: market.TrendScore(set.Confirm),
		Filter:  market.TrendScore(set.Filter),
	}
	var previous market.TrendScores
	hasPrevious := false
	if recent := m.history.Recent(pos.Symbol); len(recent) > 0 {
		previous = recent[len(recent)-1]
		hasPrevious = true
	}
	m.history.Append(pos.Symbol, scores)

	assessment := &Assessment{
		Symbol: pos.Symbol,
		Side:   pos.Side,
	}
	assessment.Frames = [3]FrameState{
		frameState("primary", pos.Side, scores.Primary, previous.Primary, hasPrevious),
		frameState("confirm", pos.Side, scores.Confirm, previous.Confirm, hasPrevious),
		frameState("filter", pos.Side, scores.Filter, previous.Filter, hasPrevious),
	}

	if candles := primaryCandles(set); len(candles) > 0 {
		assessment.MACDDivergence = DetectMACDDivergence(candles)
		assessment.RSIDivergence = DetectRSIDivergence(candles)
	}

	assessment.Score = m.score(assessment)
	assessment.EarlyWarning = earlyWarning(assessment)
	assessment.Recommendation = recommendationFor(assessment.Score)

	m.logger.Debug().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Int("score", assessment.Score).
		Str("recommendation", string(assessment.Recommendation)).
		Bool("early_warning", assessment.EarlyWarning).
		Msg("Reversal assessment")

	if assessment.Recommendation == RecommendEmergencyClose {
		closed, pnl, err := m.emergencyClose(ctx, pos)
		if err != nil {
			return assessment, err
		}
		assessment.Closed = closed
		if closed {
			assessment.Reason = m.closeReason()
			assessment.PnL = pnl
		}
	}
	return assessment, nil
}

func primaryCandles(set *market.TimeframeSet) []exchange.Candle {
	if set.Primary == nil {
		return nil
	}
	return set.Primary.Candles
}

// frameState classifies one frame's score transition relative to the
// position's direction.
func frameState(name string, side exchange.PositionSide, current, previous int, hasPrevious bool) FrameState {
	state := FrameState{Name: name, Current: current, Previous: previous}
	if !hasPrevious {
		return state
	}

	cur, prev := float64(current), float64(previous)
	if math.Abs(prev) > 0 && math.Abs(cur) < weakeningRatio*math.Abs(prev) && favours(side, previous) {
		state.Weakening = true
		state.Severity = int(math.Round((1 - math.Abs(cur)/math.Abs(prev)) * 100))
	}
	state.Reversed = reversedAgainst(side, previous, current)
	state.Ranging = math.Abs(cur) < rangingZone && math.Abs(prev) >= rangingZone
	return state
}

// favours reports whether a score points the position's way.
func favours(side exchange.PositionSide, score int) bool {
	if side == exchange.SideShort {
		return score < 0
	}
	return score > 0
}

// reversedAgainst detects a sign crossing or a hard jump against the
// position between two consecutive scores.
func reversedAgainst(side exchange.PositionSide, previous, current int) bool {
	if side == exchange.SideShort {
		return (previous < 0 && current > 0) || current-previous >= reversalJump
	}
	return (previous > 0 && current < 0) || previous-current >= reversalJump
}

// score combines the weighted frame states with divergence evidence.
func (m *ReversalMonitor) score(a *Assessment) int {
	total := frameContribution(a.Frames[0], primaryWeight) +
		frameContribution(a.Frames[1], confirmWeight) +
		frameContribution(a.Frames[2], filterWeight)

	if a.MACDDivergence.Contributes(a.Side) {
		total += divergenceWeight
	}
	if a.RSIDivergence.Contributes(a.Side) {
		total += divergenceWeight
	}
	return clampInt(total, 0, 100)
}

// frameContribution grades one frame: the full weight on a hard reversal,
// half on severe weakening, thirty percent on a drop into the ranging zone.
func frameContribution(f FrameState, weight int) int {
	switch {
	case f.Reversed:
		return weight
	case f.Weakening && f.Severity >= severeWeakeningPct:
		return weight / 2
	case f.Ranging:
		return int(math.Round(float64(weight) * 0.3))
	}
	return 0
}

func earlyWarning(a *Assessment) bool {
	weakening, reversed := 0, 0
	for _, f := range a.Frames {
		if f.Weakening && f.Severity > earlyWarningPct {
			weakening++
		}
		if f.Reversed {
			reversed++
		}
	}
	return weakening >= 2 || reversed >= 2 ||
		a.MACDDivergence.Contributes(a.Side) || a.RSIDivergence.Contributes(a.Side)
}

func (m *ReversalMonitor) closeReason() string {
	return fmt.Sprintf("reversal_monitor_emergency_by_%s", m.caller)
}

// emergencyClose closes the whole remaining position under the reversal
// lock. Returns false without error when the lock, the recent-close
// suppressor, or a vanished position stopped the close.
func (m *ReversalMonitor) emergencyClose(ctx context.Context, pos *db.Position) (bool, float64, error) {
	release, ok, err := m.guard.Acquire(ctx, ReversalLockKey(pos.Symbol, pos.Side), pos.Symbol, pos.Side)
	if err != nil || !ok {
		return false, 0, err
	}
	defer release()

	current, err := m.store.Position(ctx, pos.Symbol, pos.Side)
	if err != nil {
		return false, 0, err
	}
	if current == nil {
		return false, 0, nil
	}

	contract := m.ex.NormalizeSymbol(current.Symbol)
	info, err := m.ex.ContractInfo(ctx, contract)
	if err != nil {
		return false, 0, fmt.Errorf("fetching contract info for %s: %w", current.Symbol, err)
	}

	size := current.Quantity
	if current.Side == exchange.SideLong {
		size = -size
	}
	order, err := m.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Contract:   contract,
		Size:       size,
		Price:      0,
		ReduceOnly: true,
		AutoSize:   true,
	})
	if err != nil {
		return false, 0, fmt.Errorf("placing emergency close for %s/%s: %w", current.Symbol, current.Side, err)
	}

	fill := order.AvgFillPrice
	pnl := m.ex.PnL(current.EntryPrice, fill, current.Quantity, current.Side, info)
	rMultiple := priceRMultiple(current, fill)
	reason := m.closeReason()

	err = m.store.ClosePosition(ctx, current.Symbol, current.Side, &db.CloseEvent{
		Symbol:          current.Symbol,
		Side:            current.Side,
		CloseReason:     reason,
		TriggerType:     "reversal",
		ClosePrice:      fill,
		EntryPrice:      current.EntryPrice,
		Quantity:        current.Quantity,
		Leverage:        current.Leverage,
		PnL:             pnl,
		PnLPercent:      movePercent(current, fill),
		PositionOrderID: current.EntryOrderID,
		TriggerOrderID:  order.OrderID,
	}, &db.Trade{
		OrderID:      order.OrderID,
		Symbol:       current.Symbol,
		Side:         current.Side,
		Type:         db.TradeClose,
		Price:        fill,
		Quantity:     current.Quantity,
		Leverage:     current.Leverage,
		PnL:          &pnl,
		RMultiple:    &rMultiple,
		StrategyName: current.StrategyType,
	})
	if err != nil {
		return false, 0, fmt.Errorf("recording emergency close for %s/%s: %w", current.Symbol, current.Side, err)
	}

	if err := m.ex.CancelPositionStopLoss(ctx, contract); err != nil {
		m.logger.Warn().Err(err).
			Str("symbol", current.Symbol).
			Msg("Failed to cancel protective orders after emergency close")
	}

	m.logger.Warn().
		Str("symbol", current.Symbol).
		Str("side", string(current.Side)).
		Float64("fill", fill).
		Float64("pnl", pnl).
		Str("reason", reason).
		Msg("Emergency close executed")
	return true, pnl, nil
}
