package exchange

import (
	"fmt"
	"math"
	"strconv"
)

// apiOrderCap bounds a single order's quantity regardless of the contract's
// stated maximum. Guards against fat-finger margin values.
const apiOrderCap = 1_000_000.0

// FloorToStep floors value to a multiple of step. A zero step returns the
// value unchanged.
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	steps := math.Floor(value/step + 1e-9)
	// Re-quantise to kill float drift from the division.
	return roundToPrecision(steps*step, decimalsOf(step))
}

// QuantizeSize floors size to the contract's minimum-size step and clamps
// it into [min_size, min(max_size, api cap)]. Returns 0 when the floored
// size falls below the minimum.
func QuantizeSize(size float64, info *ContractInfo) float64 {
	if info == nil {
		return size
	}
	q := FloorToStep(math.Abs(size), info.MinOrderSize)
	if q < info.MinOrderSize {
		return 0
	}
	maxSize := info.MaxOrderSize
	if maxSize <= 0 || maxSize > apiOrderCap {
		maxSize = apiOrderCap
	}
	if q > maxSize {
		q = maxSize
	}
	return math.Copysign(q, size)
}

// QuantizePrice snaps price to the contract's tick size.
func QuantizePrice(price float64, info *ContractInfo) float64 {
	if info == nil || info.TickSize <= 0 {
		return price
	}
	ticks := math.Round(price / info.TickSize)
	return roundToPrecision(ticks*info.TickSize, info.PriceDecimals)
}

// ClampToMark clamps a limit price to ±1.5% of the mark price. A zero mark
// leaves the price untouched.
func ClampToMark(price, mark float64) float64 {
	if mark <= 0 || price <= 0 {
		return price
	}
	lo, hi := mark*0.985, mark*1.015
	if price < lo {
		return lo
	}
	if price > hi {
		return hi
	}
	return price
}

// FormatPrice renders a price with the contract's decimal precision. All
// price formatting goes through here; callers never format by hand.
func FormatPrice(price float64, info *ContractInfo) string {
	decimals := 8
	if info != nil && info.PriceDecimals > 0 {
		decimals = info.PriceDecimals
	}
	return strconv.FormatFloat(price, 'f', decimals, 64)
}

// FormatSize renders an order quantity with the precision implied by the
// contract's minimum size step.
func FormatSize(size float64, info *ContractInfo) string {
	decimals := 8
	if info != nil && info.MinOrderSize > 0 {
		decimals = decimalsOf(info.MinOrderSize)
	}
	return strconv.FormatFloat(math.Abs(size), 'f', decimals, 64)
}

// linearQuantityFromUSDT sizes a USDT-margined order:
// floor_to_step((margin * leverage) / price, min_size).
func linearQuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64 {
	if price <= 0 {
		return 0
	}
	raw := margin * leverage / price
	return QuantizeSize(raw, info)
}

// linearPnL computes q * (exit - entry), sign-flipped for shorts.
func linearPnL(entry, exit, quantity float64, side PositionSide) float64 {
	pnl := quantity * (exit - entry)
	if side == SideShort {
		pnl = -pnl
	}
	return pnl
}

// inverseQuantityFromUSDT sizes a coin-margined order as an integer count
// of contracts: floor((margin * leverage) / (multiplier * price)).
func inverseQuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64 {
	multiplier := 1.0
	if info != nil && info.QuantoMultiplier > 0 {
		multiplier = info.QuantoMultiplier
	}
	if price <= 0 {
		return 0
	}
	count := math.Floor(margin * leverage / (multiplier * price))
	if info != nil {
		if count > info.MaxOrderSize && info.MaxOrderSize > 0 {
			count = math.Floor(info.MaxOrderSize)
		}
		if count < info.MinOrderSize {
			return 0
		}
	}
	return count
}

// inversePnL computes q * multiplier * (exit - entry), sign-flipped for
// shorts.
func inversePnL(entry, exit, quantity float64, side PositionSide, info *ContractInfo) float64 {
	multiplier := 1.0
	if info != nil && info.QuantoMultiplier > 0 {
		multiplier = info.QuantoMultiplier
	}
	pnl := quantity * multiplier * (exit - entry)
	if side == SideShort {
		pnl = -pnl
	}
	return pnl
}

func decimalsOf(step float64) int {
	if step >= 1 {
		return 0
	}
	s := strconv.FormatFloat(step, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

func roundToPrecision(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	pow := math.Pow10(decimals)
	return math.Round(v*pow) / pow
}

// sizeError builds the InvalidArgument error for a quantity that cannot be
// quantised into the contract's bounds.
func sizeError(size float64, info *ContractInfo) error {
	return Errorf(ErrInvalidArgument,
		"size %v cannot satisfy contract bounds [%v, %v] step %v",
		size, info.MinOrderSize, info.MaxOrderSize, fmt.Sprintf("%v", info.MinOrderSize))
}
