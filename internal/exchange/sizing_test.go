package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorToStep(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{"exact multiple", 0.003, 0.001, 0.003},
		{"floors down", 0.0037, 0.001, 0.003},
		{"below one step", 0.0004, 0.001, 0},
		{"zero step passthrough", 1.2345, 0, 1.2345},
		{"integer step", 834.7, 1, 834},
		{"float drift", 0.1 + 0.2, 0.1, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FloorToStep(tt.value, tt.step), 1e-12)
		})
	}
}

func TestQuantizeSize(t *testing.T) {
	info := &ContractInfo{
		Contract:     "ETHUSDT",
		MinOrderSize: 0.01,
		MaxOrderSize: 500,
	}

	tests := []struct {
		name string
		size float64
		want float64
	}{
		{"floors to step", 1.237, 1.23},
		{"below min returns zero", 0.004, 0},
		{"clamps to max", 750, 500},
		{"keeps sign for shorts", -1.237, -1.23},
		{"exact min passes", 0.01, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, QuantizeSize(tt.size, info), 1e-9)
		})
	}

	t.Run("api cap applies when contract max is absent", func(t *testing.T) {
		open := &ContractInfo{MinOrderSize: 1}
		assert.Equal(t, apiOrderCap, QuantizeSize(5_000_000, open))
	})
}

func TestQuantizePrice(t *testing.T) {
	info := &ContractInfo{TickSize: 0.05, PriceDecimals: 2}
	assert.InDelta(t, 3021.15, QuantizePrice(3021.137, info), 1e-9)
	assert.InDelta(t, 3021.10, QuantizePrice(3021.12, info), 1e-9)
}

func TestClampToMark(t *testing.T) {
	mark := 1000.0
	assert.InDelta(t, 985.0, ClampToMark(900, mark), 1e-9)
	assert.InDelta(t, 1015.0, ClampToMark(1100, mark), 1e-9)
	assert.InDelta(t, 1005.0, ClampToMark(1005, mark), 1e-9)
	assert.InDelta(t, 1100.0, ClampToMark(1100, 0), 1e-9, "zero mark leaves price untouched")
}

func TestLinearQuantityFromUSDT(t *testing.T) {
	info := &ContractInfo{MinOrderSize: 0.001, MaxOrderSize: 10_000}

	// 500 USDT at 10x on a 2500 price buys 2 units exactly.
	q := linearQuantityFromUSDT(500, 2500, 10, info)
	assert.InDelta(t, 2.0, q, 1e-9)

	// Non-exact division floors to the size step.
	q = linearQuantityFromUSDT(100, 3333, 3, info)
	assert.InDelta(t, 0.09, q, 1e-9)

	assert.Zero(t, linearQuantityFromUSDT(100, 0, 3, info))
}

func TestInverseQuantityAndPnL(t *testing.T) {
	// BTC quanto contract: 0.0001 BTC per contract per price unit.
	info := &ContractInfo{
		Contract:         "BTCUSD_PERP",
		Kind:             KindInverse,
		QuantoMultiplier: 0.0001,
		MinOrderSize:     1,
		MaxOrderSize:     1_000_000,
	}

	// 500 margin at 10x and price 60000: floor(5000 / 6) = 833 contracts.
	q := inverseQuantityFromUSDT(500, 60_000, 10, info)
	assert.Equal(t, 833.0, q)
	assert.Equal(t, q, float64(int64(q)), "inverse quantities are integer contract counts")

	// Profit on a 1000-point move: 833 * 0.0001 * 1000 = 83.3.
	pnl := inversePnL(60_000, 61_000, q, SideLong, info)
	assert.InDelta(t, 83.3, pnl, 1e-9)

	// Same move against a short loses the same amount.
	pnl = inversePnL(60_000, 61_000, q, SideShort, info)
	assert.InDelta(t, -83.3, pnl, 1e-9)

	// Margin too small for one contract.
	assert.Zero(t, inverseQuantityFromUSDT(0.5, 60_000, 1, info))
}

func TestLinearPnL(t *testing.T) {
	assert.InDelta(t, 50.0, linearPnL(2500, 2550, 1, SideLong), 1e-9)
	assert.InDelta(t, -50.0, linearPnL(2500, 2550, 1, SideShort), 1e-9)
	assert.InDelta(t, 50.0, linearPnL(2500, 2450, 1, SideShort), 1e-9)
}

func TestFormatPriceAndSize(t *testing.T) {
	info := &ContractInfo{PriceDecimals: 2, MinOrderSize: 0.001}
	assert.Equal(t, "3021.14", FormatPrice(3021.137, info))
	assert.Equal(t, "1.230", FormatSize(1.23, info))
	assert.Equal(t, "1.230", FormatSize(-1.23, info), "sizes are formatted unsigned")

	whole := &ContractInfo{MinOrderSize: 1}
	assert.Equal(t, "833", FormatSize(833, whole))
}
