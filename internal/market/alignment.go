package market

import "github.com/ajitpratap0/perptrader/internal/indicators"

// AlignmentScore measures how consistently the three timeframes agree, in
// [0,1]. The (primary, confirm) pair carries 60% of the weight and
// (confirm, filter) 40%; each pairwise term scores EMA-direction agreement
// at 40%, MACD-sign agreement at 30%, and internal consistency within each
// frame at 15% apiece.
func AlignmentScore(primary, confirm, filter *indicators.TimeframeIndicators) float64 {
	return 0.6*pairConsistency(primary, confirm) + 0.4*pairConsistency(confirm, filter)
}

func pairConsistency(a, b *indicators.TimeframeIndicators) float64 {
	if a == nil || b == nil {
		return 0
	}
	score := 0.0
	if emaDirection(a) == emaDirection(b) && emaDirection(a) != 0 {
		score += 0.4
	}
	if sign(a.MACD) == sign(b.MACD) && sign(a.MACD) != 0 {
		score += 0.3
	}
	score += 0.15 * internalConsistency(a)
	score += 0.15 * internalConsistency(b)
	return score
}

// internalConsistency is 1 when a frame's EMA direction and MACD sign tell
// the same story, 0 otherwise.
func internalConsistency(ti *indicators.TimeframeIndicators) float64 {
	dir := emaDirection(ti)
	if dir != 0 && dir == sign(ti.MACD) {
		return 1
	}
	return 0
}

func emaDirection(ti *indicators.TimeframeIndicators) int {
	switch {
	case ti.EMA20 > ti.EMA50:
		return 1
	case ti.EMA20 < ti.EMA50:
		return -1
	}
	return 0
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
