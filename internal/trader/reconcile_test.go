package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

func TestReconcileClosesPositionMissingOnExchange(t *testing.T) {
	h := newHarness(testConfig())

	opened := time.Now().UTC().Add(-time.Hour)
	h.store.putPosition(openedPosition("ETH", exchange.SideLong, opened))
	h.store.putPosition(openedPosition("BTC", exchange.SideShort, opened))

	// Only ETH survives on the exchange; BTC's stop must have fired.
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3050,
	})
	h.ex.SetTicker("BTCUSDT", exchange.Ticker{Last: 3060, MarkPrice: 3060})

	live, err := h.trader.reconcile(context.Background())
	require.NoError(t, err)

	require.Len(t, live, 1)
	assert.Equal(t, "ETH", live[0].Symbol)
	assert.Nil(t, h.store.position("BTC", exchange.SideShort))

	require.Len(t, h.store.closeEvents, 1)
	event := h.store.closeEvents[0]
	assert.Equal(t, "BTC", event.Symbol)
	assert.Equal(t, "exchange_close_detected", event.CloseReason)
	assert.Equal(t, "reconciliation", event.TriggerType)
	assert.Equal(t, 3060.0, event.ClosePrice)
	// Short entered at 3000, marked closed at 3060.
	assert.InDelta(t, -12.0, event.PnL, 1e-9)
}

func TestReconcileRefreshesMark(t *testing.T) {
	h := newHarness(testConfig())
	h.store.putPosition(openedPosition("ETH", exchange.SideLong, time.Now().UTC()))
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3100,
		UnrealisedPnL: 20, LiquidationPrice: 2500,
	})

	live, err := h.trader.reconcile(context.Background())
	require.NoError(t, err)

	require.Len(t, live, 1)
	assert.Equal(t, 3100.0, live[0].CurrentPrice)
	assert.Equal(t, 20.0, live[0].UnrealizedPnL)

	require.Len(t, h.store.markUpdates, 1)
	mark := h.store.markUpdates[0]
	assert.Equal(t, 3100.0, mark.price)
	assert.Equal(t, 2500.0, mark.liq)
}

func TestReconcileLeavesUntrackedExchangePositionsAlone(t *testing.T) {
	h := newHarness(testConfig())
	// An exchange position the engine never opened must not be adopted or
	// closed.
	h.ex.SetPosition(exchange.PositionView{
		Contract: "SOLUSDT", Symbol: "SOL", Size: 5,
		EntryPrice: 150, MarkPrice: 151,
	})

	live, err := h.trader.reconcile(context.Background())
	require.NoError(t, err)

	assert.Empty(t, live)
	assert.Empty(t, h.store.closeEvents)
	assert.Empty(t, h.store.openCalls)
}
