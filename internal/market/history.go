package market

import (
	"sync"
	"time"
)

// historyDepth is how many trend-score triples are retained per symbol.
const historyDepth = 5

// historyTTL expires a symbol's history after this long without an update.
const historyTTL = time.Hour

// ScoreHistory is a per-symbol rolling window of recent trend-score
// triples. The reversal monitor compares the newest entry against its
// predecessor to detect weakening and sign crossings.
type ScoreHistory struct {
	mu      sync.Mutex
	entries map[string]*historyEntry
	now     func() time.Time
}

type historyEntry struct {
	scores  []TrendScores
	updated time.Time
}

// NewScoreHistory creates an empty history.
func NewScoreHistory() *ScoreHistory {
	return &ScoreHistory{
		entries: make(map[string]*historyEntry),
		now:     time.Now,
	}
}

// Append records the latest triple for the symbol, evicting the oldest
// beyond the window depth. A stale entry is reset rather than extended.
func (h *ScoreHistory) Append(symbol string, scores TrendScores) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	e, ok := h.entries[symbol]
	if !ok || now.Sub(e.updated) > historyTTL {
		e = &historyEntry{}
		h.entries[symbol] = e
	}
	e.scores = append(e.scores, scores)
	if len(e.scores) > historyDepth {
		e.scores = e.scores[len(e.scores)-historyDepth:]
	}
	e.updated = now
}

// Recent returns the retained triples for the symbol, oldest-first, or nil
// when nothing fresh is known.
func (h *ScoreHistory) Recent(symbol string) []TrendScores {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[symbol]
	if !ok || h.now().Sub(e.updated) > historyTTL {
		return nil
	}
	out := make([]TrendScores, len(e.scores))
	copy(out, e.scores)
	return out
}

// Previous returns the triple immediately before the newest, if one exists.
func (h *ScoreHistory) Previous(symbol string) (TrendScores, bool) {
	recent := h.Recent(symbol)
	if len(recent) < 2 {
		return TrendScores{}, false
	}
	return recent[len(recent)-2], true
}
