package risk

import (
	"fmt"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// TrailingUpdate is the outcome of a trailing-stop recalculation.
type TrailingUpdate struct {
	ShouldUpdate bool    `json:"should_update"`
	NewStopLoss  float64 `json:"new_stop_loss,omitempty"`
	Reason       string  `json:"reason"`
}

// UpdateTrailing recomputes the stop using the current price as the new
// pivot and accepts it only when it moves in the favourable direction.
// The stop is never widened: a long's stop only rises, a short's only
// falls.
func (e *Engine) UpdateTrailing(symbol string, side exchange.PositionSide, currentPrice, currentStop float64, candles []exchange.Candle) (*TrailingUpdate, error) {
	result, err := e.Calculate(symbol, side, currentPrice, candles)
	if err != nil {
		return nil, err
	}
	candidate := result.StopLoss

	if side == exchange.SideLong {
		if currentStop > 0 && candidate <= currentStop {
			return &TrailingUpdate{
				ShouldUpdate: false,
				Reason: fmt.Sprintf("candidate %.8g not above current stop %.8g",
					candidate, currentStop),
			}, nil
		}
	} else {
		if currentStop > 0 && candidate >= currentStop {
			return &TrailingUpdate{
				ShouldUpdate: false,
				Reason: fmt.Sprintf("candidate %.8g not below current stop %.8g",
					candidate, currentStop),
			}, nil
		}
	}

	return &TrailingUpdate{
		ShouldUpdate: true,
		NewStopLoss:  candidate,
		Reason:       fmt.Sprintf("stop tightened via %s method", result.Method),
	}, nil
}
