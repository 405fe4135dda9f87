package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// fakeStore is an in-memory stand-in for the pgx store, implementing the
// narrow slices the executors consume.
type fakeStore struct {
	mu sync.Mutex

	positions map[string]*db.Position // symbol|side
	stages    map[string]bool         // positionOrderID|stage
	locks     map[string]string       // key -> holder
	recent    map[string]bool         // symbol|side

	partialCloses []db.PartialClose
	closeEvents   []*db.CloseEvent
	closeTrades   []*db.Trade
	stopUpdates   []stopUpdate
	trailing      map[string]bool

	applyErr error
}

type stopUpdate struct {
	symbol    string
	side      exchange.PositionSide
	stop      float64
	slOrderID string
	tpOrderID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: make(map[string]*db.Position),
		stages:    make(map[string]bool),
		locks:     make(map[string]string),
		recent:    make(map[string]bool),
		trailing:  make(map[string]bool),
	}
}

func pairKey(symbol string, side exchange.PositionSide) string {
	return symbol + "|" + string(side)
}

func stageKey(positionOrderID string, stage int) string {
	return fmt.Sprintf("%s|%d", positionOrderID, stage)
}

func (f *fakeStore) putPosition(p *db.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.positions[pairKey(p.Symbol, p.Side)] = &cp
}

func (f *fakeStore) TryAcquireLock(ctx context.Context, key, holder string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.locks[key]; ok && current != holder {
		return false, nil
	}
	f.locks[key] = holder
	return true, nil
}

func (f *fakeStore) ReleaseLock(ctx context.Context, key, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[key] == holder {
		delete(f.locks, key)
	}
	return nil
}

func (f *fakeStore) HasRecentClose(ctx context.Context, symbol string, side exchange.PositionSide, window time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent[pairKey(symbol, side)], nil
}

func (f *fakeStore) Position(ctx context.Context, symbol string, side exchange.PositionSide) (*db.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[pairKey(symbol, side)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) StageExecuted(ctx context.Context, positionOrderID string, stage int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stages[stageKey(positionOrderID, stage)], nil
}

func (f *fakeStore) ApplyPartialClose(ctx context.Context, pc db.PartialClose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	key := stageKey(pc.Record.PositionOrderID, pc.Record.Stage)
	if f.stages[key] {
		return fmt.Errorf("stage already recorded: %s", key)
	}
	f.stages[key] = true
	if p, ok := f.positions[pairKey(pc.Symbol, pc.Side)]; ok {
		p.Quantity = pc.RemainingQuantity
		p.RealizedPnL += pc.RealizedPnL
	}
	f.partialCloses = append(f.partialCloses, pc)
	return nil
}

func (f *fakeStore) UpdatePositionStop(ctx context.Context, symbol string, side exchange.PositionSide, stop float64, slOrderID, tpOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[pairKey(symbol, side)]; ok {
		p.StopLoss = stop
		p.SLOrderID = slOrderID
		p.TPOrderID = tpOrderID
	}
	f.stopUpdates = append(f.stopUpdates, stopUpdate{symbol, side, stop, slOrderID, tpOrderID})
	return nil
}

func (f *fakeStore) SetTrailingMode(ctx context.Context, symbol string, side exchange.PositionSide, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trailing[pairKey(symbol, side)] = enabled
	return nil
}

func (f *fakeStore) ClosePosition(ctx context.Context, symbol string, side exchange.PositionSide, event *db.CloseEvent, closeTrade *db.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(symbol, side)
	if _, ok := f.positions[key]; !ok {
		return fmt.Errorf("no open position for %s/%s", symbol, side)
	}
	delete(f.positions, key)
	f.closeEvents = append(f.closeEvents, event)
	f.closeTrades = append(f.closeTrades, closeTrade)
	f.recent[key] = true
	return nil
}
