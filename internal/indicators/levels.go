package indicators

import "github.com/ajitpratap0/perptrader/internal/exchange"

// recentWindow is how many trailing candles the high/low and
// support/resistance scans cover.
const recentWindow = 20

// RecentExtremes returns the highest high and lowest low of the trailing
// window.
func RecentExtremes(candles []exchange.Candle) (high, low float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	window := candles
	if len(window) > recentWindow {
		window = window[len(window)-recentWindow:]
	}
	high, low = window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// maxLevels caps how many support/resistance levels are retained.
const maxLevels = 3

// ResistanceLevels returns up to three local highs from the trailing
// window, most recent first. A local high is strictly greater than both
// immediate neighbours.
func ResistanceLevels(candles []exchange.Candle) []float64 {
	return localExtrema(candles, func(prev, cur, next exchange.Candle) (float64, bool) {
		if cur.High > prev.High && cur.High > next.High {
			return cur.High, true
		}
		return 0, false
	})
}

// SupportLevels returns up to three local lows from the trailing window,
// most recent first.
func SupportLevels(candles []exchange.Candle) []float64 {
	return localExtrema(candles, func(prev, cur, next exchange.Candle) (float64, bool) {
		if cur.Low < prev.Low && cur.Low < next.Low {
			return cur.Low, true
		}
		return 0, false
	})
}

func localExtrema(candles []exchange.Candle, pick func(prev, cur, next exchange.Candle) (float64, bool)) []float64 {
	window := candles
	if len(window) > recentWindow {
		window = window[len(window)-recentWindow:]
	}
	var levels []float64
	// Walk newest to oldest so the retained levels are the most recent.
	for i := len(window) - 2; i >= 1 && len(levels) < maxLevels; i-- {
		if level, ok := pick(window[i-1], window[i], window[i+1]); ok {
			levels = append(levels, level)
		}
	}
	return levels
}
