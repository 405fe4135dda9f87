package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

var testPlan = config.PartialTPPlan{
	RMultiples: [3]float64{1, 2, 3},
	Fractions:  [3]float64{0.33, 0.33, 0.34},
	ExtremeR:   5,
}

// ladderPosition: ETH long, entry 3000, entry stop 2952, so R = 48.
// Stage triggers sit at 3048, 3096, 3144.
func ladderPosition() *db.Position {
	return &db.Position{
		Symbol:        "ETH",
		Side:          exchange.SideLong,
		EntryPrice:    3000,
		Quantity:      0.3,
		Leverage:      8,
		StopLoss:      2952,
		TakeProfit:    3240,
		EntryOrderID:  "entry-1",
		EntryStopLoss: 2952,
		OpenedAt:      time.Now().UTC(),
		StrategyType:  "trend_following",
	}
}

func ladderSetup(t *testing.T, markPrice float64) (*PartialTPExecutor, *fakeStore, *exchange.MockExchange) {
	t.Helper()
	store := newFakeStore()
	store.putPosition(ladderPosition())

	mock := exchange.NewMockExchange()
	mock.SetTicker("ETHUSDT", exchange.Ticker{Last: markPrice, MarkPrice: markPrice})
	mock.SetContract(exchange.ContractInfo{
		Contract:      "ETHUSDT",
		Symbol:        "ETH",
		Kind:          exchange.KindLinear,
		TickSize:      0.01,
		MinOrderSize:  0.001,
		PriceDecimals: 2,
	})
	mock.SetPosition(exchange.PositionView{
		Contract:  "ETHUSDT",
		Symbol:    "ETH",
		Size:      0.3,
		MarkPrice: markPrice,
	})

	exec := NewPartialTPExecutor(store, mock, NewGuard(store), testPlan)
	return exec, store, mock
}

func TestStageOneClosesFractionAndMovesStopToBreakEven(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.Stage)
	assert.Equal(t, 3048.0, result.TriggerPrice)
	assert.InDelta(t, 0.099, result.ClosedQuantity, 1e-9)
	assert.InDelta(t, 3048*0.099-3000*0.099, result.PnL, 1e-6)
	assert.Equal(t, 3000.0, result.NewStopLoss, "stage 1 migrates the stop to break-even")

	require.Len(t, mock.PlacedOrders, 1)
	assert.True(t, mock.PlacedOrders[0].ReduceOnly)
	assert.InDelta(t, -0.099, mock.PlacedOrders[0].Size, 1e-9, "closing a long sells")

	require.Len(t, store.partialCloses, 1)
	pc := store.partialCloses[0]
	assert.Equal(t, "partial_close", pc.Event.CloseReason)
	assert.InDelta(t, 0.201, pc.RemainingQuantity, 1e-9)

	require.Len(t, store.stopUpdates, 1)
	assert.Equal(t, 3000.0, store.stopUpdates[0].stop)

	assert.Empty(t, store.locks, "stage lock must be released")
}

func TestStageTwoLocksInOneR(t *testing.T) {
	exec, store, _ := ladderSetup(t, 3096)
	store.stages[stageKey("entry-1", 1)] = true

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.Stage)
	assert.Equal(t, 3048.0, result.NewStopLoss, "stage 2 migrates the stop one R above entry")
}

func TestStageThreeEnablesTrailingMode(t *testing.T) {
	exec, store, _ := ladderSetup(t, 3144)
	store.stages[stageKey("entry-1", 1)] = true
	store.stages[stageKey("entry-1", 2)] = true

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.Stage)
	assert.True(t, result.TrailingEnabled)
	assert.True(t, store.trailing[pairKey("ETH", exchange.SideLong)])
	assert.Empty(t, store.stopUpdates, "stage 3 hands over to the trailing updater")
}

func TestExecutedStageDoesNotRepeat(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)
	store.stages[stageKey("entry-1", 1)] = true

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	assert.Nil(t, result, "stage 1 already executed, stage 2 not yet reached")
	assert.Empty(t, mock.PlacedOrders)
}

func TestNoStageBeforeFirstTrigger(t *testing.T) {
	exec, _, mock := ladderSetup(t, 3040)

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, mock.PlacedOrders)
}

func TestShortLadderTriggersBelowEntry(t *testing.T) {
	store := newFakeStore()
	pos := &db.Position{
		Symbol:        "ETH",
		Side:          exchange.SideShort,
		EntryPrice:    3000,
		Quantity:      0.3,
		StopLoss:      3048,
		EntryOrderID:  "entry-2",
		EntryStopLoss: 3048,
	}
	store.putPosition(pos)

	mock := exchange.NewMockExchange()
	mock.SetTicker("ETHUSDT", exchange.Ticker{Last: 2952, MarkPrice: 2952})
	mock.SetContract(exchange.ContractInfo{
		Contract: "ETHUSDT", Symbol: "ETH", Kind: exchange.KindLinear,
		TickSize: 0.01, MinOrderSize: 0.001, PriceDecimals: 2,
	})
	mock.SetPosition(exchange.PositionView{Contract: "ETHUSDT", Symbol: "ETH", Size: -0.3, MarkPrice: 2952})

	exec := NewPartialTPExecutor(store, mock, NewGuard(store), testPlan)
	result, err := exec.CheckAndExecute(context.Background(), pos)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.Stage)
	assert.Equal(t, 2952.0, result.TriggerPrice)
	require.Len(t, mock.PlacedOrders, 1)
	assert.InDelta(t, 0.099, mock.PlacedOrders[0].Size, 1e-9, "closing a short buys")
	assert.Equal(t, 3000.0, result.NewStopLoss)
}

func TestLockHeldElsewhereSkipsStage(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)
	store.locks[PartialTPLockKey("ETH", exchange.SideLong, 1)] = "other-host:1"

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, mock.PlacedOrders)
}

func TestRecentCloseSuppressesStage(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)
	store.recent[pairKey("ETH", exchange.SideLong)] = true

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, mock.PlacedOrders)
}

func TestPositionGoneAfterLockSkipsStage(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)
	delete(store.positions, pairKey("ETH", exchange.SideLong))

	result, err := exec.CheckAndExecute(context.Background(), ladderPosition())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, mock.PlacedOrders)
	assert.Empty(t, store.locks)
}

func TestStageQuantityBelowMinimumSkips(t *testing.T) {
	exec, store, mock := ladderSetup(t, 3048)
	tiny := ladderPosition()
	tiny.Quantity = 0.002 // 33% of it floors to zero at a 0.001 step
	store.putPosition(tiny)

	result, err := exec.CheckAndExecute(context.Background(), tiny)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, mock.PlacedOrders)
}

func TestZeroRiskUnitIsAnError(t *testing.T) {
	exec, _, _ := ladderSetup(t, 3048)
	broken := ladderPosition()
	broken.EntryStopLoss = broken.EntryPrice

	_, err := exec.CheckAndExecute(context.Background(), broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no risk unit")
}

func TestStageTriggersMatchPlan(t *testing.T) {
	exec, _, _ := ladderSetup(t, 3000)
	pos := ladderPosition()

	tests := []struct {
		stage int
		want  float64
	}{
		{1, 3048},
		{2, 3096},
		{3, 3144},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exec.stageTrigger(pos, tt.stage), "stage %d", tt.stage)
	}
}
