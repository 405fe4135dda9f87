package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/indicators"
	"github.com/ajitpratap0/perptrader/internal/market"
)

type fakeSource struct {
	set *market.TimeframeSet
	err error
}

func (f *fakeSource) Timeframes(ctx context.Context, symbol string) (*market.TimeframeSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

// bearishIndicators produce a trend score near -96: EMA spread, MACD,
// deviation and RSI all capped on the downside.
func bearishIndicators(symbol string) *indicators.TimeframeIndicators {
	return &indicators.TimeframeIndicators{
		Symbol:           symbol,
		EMA20:            90,
		EMA50:            100,
		MACD:             -5,
		RSI7:             20,
		DeviationFromE20: -15,
		Candles:          []exchange.Candle{{Close: 100}, {Close: 100}},
	}
}

// bullishIndicators mirror bearishIndicators near +96.
func bullishIndicators(symbol string) *indicators.TimeframeIndicators {
	return &indicators.TimeframeIndicators{
		Symbol:           symbol,
		EMA20:            110,
		EMA50:            100,
		MACD:             5,
		RSI7:             80,
		DeviationFromE20: 15,
		Candles:          []exchange.Candle{{Close: 100}, {Close: 100}},
	}
}

func timeframeSet(symbol string, ti *indicators.TimeframeIndicators) *market.TimeframeSet {
	return &market.TimeframeSet{Symbol: symbol, Primary: ti, Confirm: ti, Filter: ti}
}

func reversalPosition() *db.Position {
	return &db.Position{
		Symbol:        "ETH",
		Side:          exchange.SideLong,
		EntryPrice:    3000,
		Quantity:      0.3,
		Leverage:      8,
		StopLoss:      2952,
		EntryOrderID:  "entry-1",
		EntryStopLoss: 2952,
		StrategyType:  "trend_following",
	}
}

func reversalSetup(t *testing.T, ti *indicators.TimeframeIndicators) (*ReversalMonitor, *fakeStore, *exchange.MockExchange, *market.ScoreHistory) {
	t.Helper()
	store := newFakeStore()
	store.putPosition(reversalPosition())

	mock := exchange.NewMockExchange()
	mock.SetTicker("ETHUSDT", exchange.Ticker{Last: 2800, MarkPrice: 2800})
	mock.SetContract(exchange.ContractInfo{
		Contract: "ETHUSDT", Symbol: "ETH", Kind: exchange.KindLinear,
		TickSize: 0.01, MinOrderSize: 0.001, PriceDecimals: 2,
	})
	mock.SetPosition(exchange.PositionView{Contract: "ETHUSDT", Symbol: "ETH", Size: 0.3, MarkPrice: 2800})

	history := market.NewScoreHistory()
	source := &fakeSource{set: timeframeSet("ETH", ti)}
	monitor := NewReversalMonitor(source, history, store, mock, NewGuard(store), "monitor")
	return monitor, store, mock, history
}

func TestFullReversalTriggersEmergencyClose(t *testing.T) {
	monitor, store, mock, history := reversalSetup(t, bearishIndicators("ETH"))
	history.Append("ETH", market.TrendScores{Primary: 80, Confirm: 70, Filter: 60})

	assessment, err := monitor.Evaluate(context.Background(), reversalPosition())
	require.NoError(t, err)
	require.NotNil(t, assessment)

	assert.Equal(t, 80, assessment.Score, "all three frames reversed: 40+25+15")
	assert.Equal(t, RecommendEmergencyClose, assessment.Recommendation)
	assert.True(t, assessment.EarlyWarning)
	assert.True(t, assessment.Closed)
	assert.Equal(t, "reversal_monitor_emergency_by_monitor", assessment.Reason)

	require.Len(t, store.closeEvents, 1)
	event := store.closeEvents[0]
	assert.Equal(t, "reversal_monitor_emergency_by_monitor", event.CloseReason)
	assert.Equal(t, 2800.0, event.ClosePrice)
	assert.InDelta(t, -60.0, event.PnL, 1e-6)

	got, err := store.Position(context.Background(), "ETH", exchange.SideLong)
	require.NoError(t, err)
	assert.Nil(t, got, "emergency close removes the position row")

	require.Len(t, mock.PlacedOrders, 1)
	assert.True(t, mock.PlacedOrders[0].ReduceOnly)

	assert.Empty(t, store.locks, "reversal lock must be released")
}

func TestFirstObservationHolds(t *testing.T) {
	monitor, store, mock, _ := reversalSetup(t, bearishIndicators("ETH"))

	assessment, err := monitor.Evaluate(context.Background(), reversalPosition())
	require.NoError(t, err)

	assert.Equal(t, 0, assessment.Score, "no history means no transition evidence")
	assert.Equal(t, RecommendHold, assessment.Recommendation)
	assert.False(t, assessment.Closed)
	assert.Empty(t, store.closeEvents)
	assert.Empty(t, mock.PlacedOrders)
}

func TestSteadyTrendHolds(t *testing.T) {
	monitor, store, _, history := reversalSetup(t, bullishIndicators("ETH"))
	history.Append("ETH", market.TrendScores{Primary: 96, Confirm: 96, Filter: 96})

	assessment, err := monitor.Evaluate(context.Background(), reversalPosition())
	require.NoError(t, err)

	assert.Equal(t, 0, assessment.Score)
	assert.Equal(t, RecommendHold, assessment.Recommendation)
	assert.False(t, assessment.EarlyWarning)
	assert.Empty(t, store.closeEvents)
}

func TestRecentCloseSuppressesEmergency(t *testing.T) {
	monitor, store, mock, history := reversalSetup(t, bearishIndicators("ETH"))
	history.Append("ETH", market.TrendScores{Primary: 80, Confirm: 70, Filter: 60})
	store.recent[pairKey("ETH", exchange.SideLong)] = true

	assessment, err := monitor.Evaluate(context.Background(), reversalPosition())
	require.NoError(t, err)

	assert.Equal(t, RecommendEmergencyClose, assessment.Recommendation)
	assert.False(t, assessment.Closed, "suppressor must block the close")
	assert.Empty(t, mock.PlacedOrders)

	got, err := store.Position(context.Background(), "ETH", exchange.SideLong)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestLockHeldElsewhereBlocksEmergency(t *testing.T) {
	monitor, store, mock, history := reversalSetup(t, bearishIndicators("ETH"))
	history.Append("ETH", market.TrendScores{Primary: 80, Confirm: 70, Filter: 60})
	store.locks[ReversalLockKey("ETH", exchange.SideLong)] = "other-host:1"

	assessment, err := monitor.Evaluate(context.Background(), reversalPosition())
	require.NoError(t, err)
	assert.False(t, assessment.Closed)
	assert.Empty(t, mock.PlacedOrders)
}

func TestFrameStateTransitions(t *testing.T) {
	tests := []struct {
		name      string
		side      exchange.PositionSide
		previous  int
		current   int
		weakening bool
		severity  int
		reversed  bool
		ranging   bool
	}{
		{"sign crossing against long", exchange.SideLong, 80, -10, true, 88, true, false},
		{"hard jump against long", exchange.SideLong, 60, 15, true, 75, true, false},
		{"mild fade is weakening only", exchange.SideLong, 60, 40, true, 33, false, false},
		{"drop into ranging zone", exchange.SideLong, 30, 5, true, 83, false, true},
		{"steady trend is quiet", exchange.SideLong, 90, 88, false, 0, false, false},
		{"sign crossing against short", exchange.SideShort, -70, 20, true, 71, true, false},
		{"jump against short", exchange.SideShort, -50, -5, true, 90, true, true},
		{"strengthening short is quiet", exchange.SideShort, -40, -60, false, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := frameState("primary", tt.side, tt.current, tt.previous, true)
			assert.Equal(t, tt.weakening, state.Weakening, "weakening")
			assert.Equal(t, tt.severity, state.Severity, "severity")
			assert.Equal(t, tt.reversed, state.Reversed, "reversed")
			assert.Equal(t, tt.ranging, state.Ranging, "ranging")
		})
	}
}

func TestFrameContributionGrading(t *testing.T) {
	assert.Equal(t, 40, frameContribution(FrameState{Reversed: true}, primaryWeight))
	assert.Equal(t, 20, frameContribution(FrameState{Weakening: true, Severity: 60}, primaryWeight))
	assert.Equal(t, 12, frameContribution(FrameState{Ranging: true}, primaryWeight))
	assert.Equal(t, 0, frameContribution(FrameState{Weakening: true, Severity: 30}, primaryWeight))
	assert.Equal(t, 12, frameContribution(FrameState{Weakening: true, Severity: 60}, confirmWeight))
	assert.Equal(t, 25, frameContribution(FrameState{Reversed: true}, confirmWeight))
	assert.Equal(t, 15, frameContribution(FrameState{Reversed: true}, filterWeight))
}

func TestRecommendationTiers(t *testing.T) {
	tests := []struct {
		score int
		want  Recommendation
	}{
		{0, RecommendHold},
		{29, RecommendHold},
		{30, RecommendEarlyWarning},
		{49, RecommendEarlyWarning},
		{50, RecommendAdvisoryClose},
		{69, RecommendAdvisoryClose},
		{70, RecommendEmergencyClose},
		{100, RecommendEmergencyClose},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, recommendationFor(tt.score), "score %d", tt.score)
	}
}

func TestEarlyWarningFlag(t *testing.T) {
	base := &Assessment{Side: exchange.SideLong}

	base.Frames = [3]FrameState{
		{Weakening: true, Severity: 55},
		{Weakening: true, Severity: 45},
		{},
	}
	assert.True(t, earlyWarning(base), "two frames weakening beyond 40%")

	base.Frames = [3]FrameState{{Reversed: true}, {Reversed: true}, {}}
	assert.True(t, earlyWarning(base), "two frames reversed")

	base.Frames = [3]FrameState{{Weakening: true, Severity: 20}, {}, {}}
	assert.False(t, earlyWarning(base))

	base.MACDDivergence = &Divergence{Indicator: "macd", Bearish: true, Strength: 80}
	assert.True(t, earlyWarning(base), "a strong divergence alone flags")
}
