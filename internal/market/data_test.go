package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

func testPreset() config.StrategyPreset {
	return config.StrategyPreset{
		Name:        "balanced",
		Primary:     "15m",
		Confirm:     "1h",
		Filter:      "4h",
		CandleLimit: 60,
	}
}

func seedCandles(m *exchange.MockExchange, contract string, intervals ...string) {
	candles := make([]exchange.Candle, 60)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 2000 + float64(i)*3
		candles[i] = exchange.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     price, High: price * 1.004, Low: price * 0.996, Close: price,
			Volume: 1000,
		}
	}
	for _, interval := range intervals {
		m.SetCandles(contract, interval, candles)
	}
}

func TestDataServiceTimeframes(t *testing.T) {
	m := exchange.NewMockExchange()
	seedCandles(m, "ETHUSDT", "15m", "1h", "4h")

	svc := NewDataService(m, testPreset())
	set, err := svc.Timeframes(context.Background(), "ETH")
	require.NoError(t, err)
	require.NotNil(t, set)

	assert.Equal(t, "ETH", set.Symbol)
	require.NotNil(t, set.Primary)
	require.NotNil(t, set.Confirm)
	require.NotNil(t, set.Filter)
	assert.Equal(t, "15m", set.Primary.Interval)
	assert.Equal(t, "1h", set.Confirm.Interval)
	assert.Equal(t, "4h", set.Filter.Interval)
	assert.Positive(t, set.Primary.EMA20)
}

func TestDataServiceTimeframesMissingData(t *testing.T) {
	m := exchange.NewMockExchange()
	seedCandles(m, "ETHUSDT", "15m", "1h") // filter interval absent

	svc := NewDataService(m, testPreset())
	_, err := svc.Timeframes(context.Background(), "ETH")
	require.Error(t, err)
}

func TestDataServiceTimeframesAllSkipsFailures(t *testing.T) {
	m := exchange.NewMockExchange()
	seedCandles(m, "ETHUSDT", "15m", "1h", "4h")
	// BTC has no candle data at all.

	svc := NewDataService(m, testPreset())
	sets := svc.TimeframesAll(context.Background(), []string{"ETH", "BTC"})

	require.Len(t, sets, 1)
	assert.Contains(t, sets, "ETH")
	assert.NotContains(t, sets, "BTC")
}
