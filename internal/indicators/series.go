package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// feed converts a slice into the closed channel the indicator library
// consumes.
func feed(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func last(series []float64, fallback float64) float64 {
	if len(series) == 0 {
		return fallback
	}
	return finiteOr(series[len(series)-1], fallback)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EMASeries returns the exponential moving average series for the period.
// Returns nil when the input is shorter than the period.
func EMASeries(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return nil
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return collect(ema.Compute(feed(prices)))
}

// RSISeries returns the relative strength index series for the period.
func RSISeries(prices []float64, period int) []float64 {
	if period < 1 || len(prices) <= period {
		return nil
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return collect(rsi.Compute(feed(prices)))
}

// MACDSeries returns the MACD line, signal line and histogram series.
func MACDSeries(prices []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	if fast < 1 || slow <= fast || signal < 1 || len(prices) < slow+signal {
		return nil, nil, nil
	}
	ind := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := ind.Compute(feed(prices))
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macd = append(macd, m)
		signalLine = append(signalLine, s)
		histogram = append(histogram, m-s)
	}
	return macd, signalLine, histogram
}

// BollingerSeries returns the lower, middle and upper band series.
func BollingerSeries(prices []float64, period int) (lower, middle, upper []float64) {
	if period < 2 || len(prices) < period {
		return nil, nil, nil
	}
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerChan, middleChan, upperChan := bb.Compute(feed(prices))
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}
	return lower, middle, upper
}

// ATRSeries computes the Wilder average true range series:
// the first value is the simple mean of the first `period` true ranges,
// each following value is (prev*(period-1) + TR) / period.
func ATRSeries(candles []exchange.Candle, period int) []float64 {
	if period < 1 || len(candles) < period+1 {
		return nil
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, pc := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		trueRanges = append(trueRanges, tr)
	}

	atr := make([]float64, 0, len(trueRanges)-period+1)
	current := mean(trueRanges[:period])
	atr = append(atr, current)
	for i := period; i < len(trueRanges); i++ {
		current = (current*float64(period-1) + trueRanges[i]) / float64(period)
		atr = append(atr, current)
	}
	return atr
}

// Closes extracts the close series from a candle sequence.
func Closes(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series from a candle sequence.
func Volumes(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
