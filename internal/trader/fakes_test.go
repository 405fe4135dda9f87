package trader

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/executor"
	"github.com/ajitpratap0/perptrader/internal/market"
)

type openCall struct {
	pos    *db.Position
	entry  *db.Trade
	orders []*db.PriceOrder
}

type stopUpdate struct {
	symbol    string
	side      exchange.PositionSide
	stop      float64
	slOrderID string
	tpOrderID string
}

type markUpdate struct {
	symbol string
	side   exchange.PositionSide
	price  float64
	pnl    float64
	liq    float64
}

// fakeStore is an in-memory Store that records every mutation.
type fakeStore struct {
	mu sync.Mutex

	open      []*db.Position
	snapshots []*db.AccountSnapshot
	peak      float64

	// nextPoint, when set, is returned by AppendEquity instead of the
	// computed one.
	nextPoint *db.EquityPoint

	openCalls     []openCall
	closeEvents   []*db.CloseEvent
	closeTrades   []*db.Trade
	stopUpdates   []stopUpdate
	markUpdates   []markUpdate
	integrityMaps []map[string]bool
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) putPosition(p *db.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = append(f.open, p)
}

func (f *fakeStore) position(symbol string, side exchange.PositionSide) *db.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.open {
		if p.Symbol == symbol && p.Side == side {
			return p
		}
	}
	return nil
}

func (f *fakeStore) OpenPositions(ctx context.Context) ([]*db.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*db.Position, len(f.open))
	copy(out, f.open)
	return out, nil
}

func (f *fakeStore) OpenPosition(ctx context.Context, p *db.Position, entry *db.Trade, orders []*db.PriceOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = append(f.open, p)
	f.openCalls = append(f.openCalls, openCall{pos: p, entry: entry, orders: orders})
	return nil
}

func (f *fakeStore) ClosePosition(ctx context.Context, symbol string, side exchange.PositionSide, event *db.CloseEvent, closeTrade *db.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.open {
		if p.Symbol == symbol && p.Side == side {
			f.open = append(f.open[:i], f.open[i+1:]...)
			f.closeEvents = append(f.closeEvents, event)
			if closeTrade != nil {
				f.closeTrades = append(f.closeTrades, closeTrade)
			}
			return nil
		}
	}
	return errNoPosition(symbol, side)
}

func (f *fakeStore) UpdatePositionStop(ctx context.Context, symbol string, side exchange.PositionSide, stop float64, slOrderID, tpOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopUpdates = append(f.stopUpdates, stopUpdate{symbol, side, stop, slOrderID, tpOrderID})
	for _, p := range f.open {
		if p.Symbol == symbol && p.Side == side {
			p.StopLoss = stop
			p.SLOrderID = slOrderID
			p.TPOrderID = tpOrderID
		}
	}
	return nil
}

func (f *fakeStore) UpdatePositionMark(ctx context.Context, symbol string, side exchange.PositionSide, price, pnl, liq float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markUpdates = append(f.markUpdates, markUpdate{symbol, side, price, pnl, liq})
	return nil
}

func (f *fakeStore) InsertAccountSnapshot(ctx context.Context, snap *db.AccountSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeStore) AppendEquity(ctx context.Context, equity float64) (*db.EquityPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextPoint != nil {
		return f.nextPoint, nil
	}
	point := &db.EquityPoint{Timestamp: time.Now().UTC(), Equity: equity, PeakEquity: f.peak}
	if equity > f.peak {
		f.peak = equity
		point.PeakEquity = equity
		point.IsNewPeak = true
	}
	if point.PeakEquity > 0 {
		point.DrawdownValue = point.PeakEquity - equity
		point.DrawdownPct = point.DrawdownValue / point.PeakEquity * 100
	}
	return point, nil
}

func (f *fakeStore) CheckIntegrity(ctx context.Context, exchangePositions map[string]bool) (*db.IntegrityReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.integrityMaps = append(f.integrityMaps, exchangePositions)
	return &db.IntegrityReport{}, nil
}

type noPositionError struct{ msg string }

func (e noPositionError) Error() string { return e.msg }

func errNoPosition(symbol string, side exchange.PositionSide) error {
	return noPositionError{msg: "no open position for " + symbol + "/" + string(side)}
}

// fakePartial records ladder checks and replays a configured result.
type fakePartial struct {
	mu     sync.Mutex
	calls  []string
	result *executor.StageResult
	err    error
}

func (f *fakePartial) CheckAndExecute(ctx context.Context, pos *db.Position) (*executor.StageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pos.Symbol)
	return f.result, f.err
}

// fakeReversal records evaluations and replays a configured assessment.
type fakeReversal struct {
	mu         sync.Mutex
	calls      []string
	assessment *executor.Assessment
	err        error
}

func (f *fakeReversal) Evaluate(ctx context.Context, pos *db.Position) (*executor.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pos.Symbol)
	if f.err != nil {
		return nil, f.err
	}
	if f.assessment != nil {
		return f.assessment, nil
	}
	return &executor.Assessment{Symbol: pos.Symbol, Side: pos.Side, Recommendation: executor.RecommendHold}, nil
}

// fakeData serves prebuilt timeframe sets.
type fakeData struct {
	sets map[string]*market.TimeframeSet
}

func (f *fakeData) Timeframes(ctx context.Context, symbol string) (*market.TimeframeSet, error) {
	if set, ok := f.sets[symbol]; ok {
		return set, nil
	}
	return nil, errNoPosition(symbol, "data")
}

func (f *fakeData) TimeframesAll(ctx context.Context, symbols []string) map[string]*market.TimeframeSet {
	out := make(map[string]*market.TimeframeSet)
	for _, s := range symbols {
		if set, ok := f.sets[s]; ok {
			out[s] = set
		}
	}
	return out
}
