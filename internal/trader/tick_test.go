package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

func TestTickForceClosesExpiredPosition(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)

	// Opened 40 hours ago against a 36 hour limit.
	h.store.putPosition(openedPosition("ETH", exchange.SideLong, time.Now().UTC().Add(-40*time.Hour)))
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3100,
	})
	h.ex.SetTicker("ETHUSDT", exchange.Ticker{Last: 3100, MarkPrice: 3100})

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.Nil(t, h.store.position("ETH", exchange.SideLong), "expired position closed")
	require.Len(t, h.store.closeEvents, 1)
	event := h.store.closeEvents[0]
	assert.Equal(t, "max_holding_time_exceeded", event.CloseReason)
	assert.Equal(t, "max_holding", event.TriggerType)
	assert.InDelta(t, 20.0, event.PnL, 1e-9, "0.2 * (3100 - 3000)")
	require.Len(t, h.store.closeTrades, 1)
	assert.Equal(t, db.TradeClose, h.store.closeTrades[0].Type)
}

func TestTickYoungPositionSurvives(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)

	h.store.putPosition(openedPosition("ETH", exchange.SideLong, time.Now().UTC().Add(-time.Hour)))
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3050,
	})

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.NotNil(t, h.store.position("ETH", exchange.SideLong))
	assert.Empty(t, h.store.closeEvents)
}

func TestTickTrailingTightensStop(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.EnableTrailingStopLoss = true
	h := newHarness(cfg)

	pos := openedPosition("ETH", exchange.SideLong, time.Now().UTC().Add(-time.Hour))
	pos.StopLoss = 2990
	h.store.putPosition(pos)
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3050,
	})
	h.ex.SetTicker("ETHUSDT", exchange.Ticker{Last: 3050, MarkPrice: 3050})
	// Swing low 3026 with the 0.5% buffer gives 3010.87, above the old stop.
	h.ex.SetCandles("ETHUSDT", "15m", flatCandles(40, 3026, 3050))

	require.NoError(t, h.trader.Tick(context.Background()))

	require.Len(t, h.store.stopUpdates, 1)
	update := h.store.stopUpdates[0]
	assert.InDelta(t, 3010.87, update.stop, 1e-2)
	assert.NotEmpty(t, update.slOrderID)
	assert.InDelta(t, 3010.87, h.store.position("ETH", exchange.SideLong).StopLoss, 1e-2)
}

func TestTickTrailingNeverWidens(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.EnableTrailingStopLoss = true
	h := newHarness(cfg)

	pos := openedPosition("ETH", exchange.SideLong, time.Now().UTC().Add(-time.Hour))
	pos.StopLoss = 3020 // already tighter than any candidate below
	h.store.putPosition(pos)
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 3050,
	})
	h.ex.SetCandles("ETHUSDT", "15m", flatCandles(40, 3026, 3050))

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.Empty(t, h.store.stopUpdates, "a looser candidate is rejected")
	assert.Equal(t, 3020.0, h.store.position("ETH", exchange.SideLong).StopLoss)
}

func TestTickDrawdownWarningAlertsOnly(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)
	h.store.nextPoint = &db.EquityPoint{Equity: 880, PeakEquity: 1000, DrawdownPct: 12, DrawdownValue: 120}

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.Contains(t, h.rec.titles(), "Account drawdown warning")
	assert.Empty(t, h.store.closeEvents, "actions are disabled by default")
}

func TestTickDrawdownForceCloseWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.EnableDrawdownActions = true
	h := newHarness(cfg)
	h.store.nextPoint = &db.EquityPoint{Equity: 750, PeakEquity: 1000, DrawdownPct: 25, DrawdownValue: 250}

	h.store.putPosition(openedPosition("ETH", exchange.SideLong, time.Now().UTC().Add(-time.Hour)))
	h.ex.SetPosition(exchange.PositionView{
		Contract: "ETHUSDT", Symbol: "ETH", Size: 0.2,
		EntryPrice: 3000, MarkPrice: 2900,
	})
	h.ex.SetTicker("ETHUSDT", exchange.Ticker{Last: 2900, MarkPrice: 2900})

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.Nil(t, h.store.position("ETH", exchange.SideLong))
	require.Len(t, h.store.closeEvents, 1)
	assert.Equal(t, "drawdown_force_close", h.store.closeEvents[0].CloseReason)
	assert.Equal(t, "kill_switch", h.store.closeEvents[0].TriggerType)
}

func TestTickBelowWarningThresholdStaysQuiet(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)
	h.store.nextPoint = &db.EquityPoint{Equity: 950, PeakEquity: 1000, DrawdownPct: 5}

	require.NoError(t, h.trader.Tick(context.Background()))

	assert.NotContains(t, h.rec.titles(), "Account drawdown warning")
}
