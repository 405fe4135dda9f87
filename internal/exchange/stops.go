package exchange

import (
	"context"

	"github.com/rs/zerolog/log"
)

// minStopDistancePct is the minimum distance between a trigger and the
// mark price. Closer triggers are allowed but warned about.
const minStopDistancePct = 0.3

// stopSafetyPct is the distance applied when a rejected stop price is
// re-derived as the single adjustment retry. The adapter sees only final
// trigger prices, so the retry anchors on the mark price.
const stopSafetyPct = 1.5

// prepareStopPrices validates protective trigger prices against the mark
// and quantises them to the contract tick.
//
// Direction contract: for a long position stop < mark < takeProfit, for a
// short the reverse. A violating stop is adjusted once to a 1.5% safety
// distance from the mark; if still invalid the operation fails with
// ErrPriceValidation. A violating take-profit is dropped (zeroed) rather
// than adjusted, since a wrong-side TP would close the position instantly.
func prepareStopPrices(side PositionSide, mark, stop, takeProfit float64, info *ContractInfo) (float64, float64, error) {
	if mark <= 0 {
		return 0, 0, Errorf(ErrPriceValidation, "mark price unavailable for stop validation")
	}

	if stop > 0 && !stopOnLossSide(side, mark, stop) {
		adjusted := safetyStop(side, mark)
		log.Warn().
			Float64("stop", stop).
			Float64("mark", mark).
			Float64("adjusted", adjusted).
			Str("side", string(side)).
			Msg("Stop price on wrong side of mark, applying safety distance")
		stop = adjusted
		if !stopOnLossSide(side, mark, stop) {
			return 0, 0, Errorf(ErrPriceValidation,
				"stop %.8f invalid for %s position at mark %.8f", stop, side, mark)
		}
	}

	if takeProfit > 0 && !tpOnProfitSide(side, mark, takeProfit) {
		log.Warn().
			Float64("take_profit", takeProfit).
			Float64("mark", mark).
			Str("side", string(side)).
			Msg("Take-profit on wrong side of mark, dropping leg")
		takeProfit = 0
	}

	warnIfTooClose(mark, stop, "stop_loss")
	warnIfTooClose(mark, takeProfit, "take_profit")

	return QuantizePrice(stop, info), QuantizePrice(takeProfit, info), nil
}

func stopOnLossSide(side PositionSide, mark, stop float64) bool {
	if side == SideLong {
		return stop < mark
	}
	return stop > mark
}

func tpOnProfitSide(side PositionSide, mark, tp float64) bool {
	if side == SideLong {
		return tp > mark
	}
	return tp < mark
}

func safetyStop(side PositionSide, mark float64) float64 {
	if side == SideLong {
		return mark * (1 - stopSafetyPct/100)
	}
	return mark * (1 + stopSafetyPct/100)
}

func warnIfTooClose(mark, trigger float64, leg string) {
	if trigger <= 0 || mark <= 0 {
		return
	}
	distPct := abs(trigger-mark) / mark * 100
	if distPct < minStopDistancePct {
		log.Warn().
			Str("leg", leg).
			Float64("trigger", trigger).
			Float64("mark", mark).
			Float64("distance_pct", distPct).
			Msg("Protective trigger very close to mark price")
	}
}

// stopLegSubmitter submits one protective conditional order leg and
// returns the exchange order id.
type stopLegSubmitter func(ctx context.Context, typ StopOrderType, trigger float64) (string, error)

// placeProtectiveLegs submits the stop leg then the take-profit leg, each
// under the slow retry ladder. Partial protection is never torn down: if
// the stop leg succeeds and the TP leg fails, the stop is preserved and
// the result reports both facts.
func placeProtectiveLegs(ctx context.Context, contract string, stop, takeProfit float64, submit stopLegSubmitter) (*StopOrderResult, error) {
	result := &StopOrderResult{}
	retryCfg := StopOrderRetryConfig()

	if stop > 0 {
		var slID string
		err := WithRetry(ctx, retryCfg, func() error {
			var err error
			slID, err = submit(ctx, StopOrderStopLoss, stop)
			return err
		})
		if err != nil {
			result.Message = "stop-loss leg failed: " + err.Error()
			return result, err
		}
		result.SLOrderID = slID
	}

	if takeProfit > 0 {
		var tpID string
		err := WithRetry(ctx, retryCfg, func() error {
			var err error
			tpID, err = submit(ctx, StopOrderTakeProfit, takeProfit)
			return err
		})
		if err != nil {
			// Keep the stop leg; report that TP is unset.
			result.OK = result.SLOrderID != ""
			result.Message = "stop-loss registered but take-profit failed: " + err.Error()
			log.Error().
				Err(err).
				Str("contract", contract).
				Str("sl_order_id", result.SLOrderID).
				Msg("Take-profit leg failed, stop leg preserved")
			return result, nil
		}
		result.TPOrderID = tpID
	}

	result.OK = true
	return result, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
