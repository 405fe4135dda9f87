package exchange

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// MockExchange is a deterministic in-memory Exchange used by tests and the
// dry-run mode. Orders fill instantly at the configured last price.
type MockExchange struct {
	mu sync.Mutex

	kind      Kind
	tickers   map[string]*Ticker
	candles   map[string][]Candle
	contracts map[string]*ContractInfo
	funding   map[string]float64
	account   AccountInfo
	positions map[string]*PositionView
	orders    map[string]*OrderResponse
	stops     map[string][]StopOrder
	leverage  map[string]int
	fills     map[string][]TradeFill

	nextID          int64
	timeSyncStarted bool

	// Failure injection, keyed by operation name ("PlaceOrder",
	// "SetPositionStopLoss", ...). The error is returned once per Fail call.
	failures map[string][]error

	// PlacedOrders records every accepted order in submission sequence.
	PlacedOrders []OrderRequest
}

// NewMockExchange creates a mock linear exchange with one funded account.
func NewMockExchange() *MockExchange {
	return &MockExchange{
		kind:      KindLinear,
		tickers:   make(map[string]*Ticker),
		candles:   make(map[string][]Candle),
		contracts: make(map[string]*ContractInfo),
		funding:   make(map[string]float64),
		account: AccountInfo{
			Currency:  "USDT",
			Total:     10_000,
			Available: 10_000,
		},
		positions: make(map[string]*PositionView),
		orders:    make(map[string]*OrderResponse),
		stops:     make(map[string][]StopOrder),
		leverage:  make(map[string]int),
		fills:     make(map[string][]TradeFill),
		failures:  make(map[string][]error),
	}
}

// SetKind switches the variant the mock reports.
func (m *MockExchange) SetKind(kind Kind) { m.kind = kind }

// SetTicker installs a market snapshot for the contract.
func (m *MockExchange) SetTicker(contract string, t Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Contract = contract
	m.tickers[contract] = &t
}

// SetCandles installs the candle series for contract+interval.
func (m *MockExchange) SetCandles(contract, interval string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[contract+":"+interval] = candles
}

// SetContract installs contract metadata.
func (m *MockExchange) SetContract(info ContractInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[info.Contract] = &info
}

// SetFundingRate installs the funding rate for the contract.
func (m *MockExchange) SetFundingRate(contract string, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding[contract] = rate
}

// SetAccount replaces the account snapshot.
func (m *MockExchange) SetAccount(a AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = a
}

// SetPosition installs an open position.
func (m *MockExchange) SetPosition(p PositionView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Contract] = &p
}

// Fail queues an error for the named operation; each queued error fires
// exactly once, in order.
func (m *MockExchange) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

func (m *MockExchange) takeFailure(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[op] = queue[1:]
	return err
}

// Kind reports the configured variant.
func (m *MockExchange) Kind() Kind { return m.kind }

// NormalizeSymbol follows the configured variant's naming.
func (m *MockExchange) NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if m.kind == KindInverse {
		if strings.HasSuffix(symbol, inverseSuffix) {
			return symbol
		}
		return symbol + inverseSuffix
	}
	if strings.HasSuffix(symbol, quoteSuffix) {
		return symbol
	}
	return symbol + quoteSuffix
}

// ExtractSymbol inverts NormalizeSymbol.
func (m *MockExchange) ExtractSymbol(contract string) string {
	contract = strings.ToUpper(contract)
	if m.kind == KindInverse {
		return strings.TrimSuffix(contract, inverseSuffix)
	}
	return strings.TrimSuffix(contract, quoteSuffix)
}

// Ticker returns the configured snapshot.
func (m *MockExchange) Ticker(ctx context.Context, contract string, includeMark bool) (*Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("Ticker"); err != nil {
		return nil, err
	}
	t, ok := m.tickers[contract]
	if !ok {
		return nil, Errorf(ErrNotFound, "no ticker for contract %s", contract)
	}
	out := *t
	if !includeMark {
		out.MarkPrice = 0
		out.IndexPrice = 0
	}
	return &out, nil
}

// Candles returns the configured series, truncated to limit.
func (m *MockExchange) Candles(ctx context.Context, contract, interval string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("Candles"); err != nil {
		return nil, err
	}
	series, ok := m.candles[contract+":"+interval]
	if !ok {
		return nil, Errorf(ErrNotFound, "no candles for %s %s", contract, interval)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]Candle, len(series))
	copy(out, series)
	return out, nil
}

// Account returns the configured account snapshot.
func (m *MockExchange) Account(ctx context.Context) (*AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("Account"); err != nil {
		return nil, err
	}
	a := m.account
	return &a, nil
}

// Positions returns all open positions.
func (m *MockExchange) Positions(ctx context.Context) ([]PositionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("Positions"); err != nil {
		return nil, err
	}
	var out []PositionView
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

// PlaceOrder fills the order instantly at the last price (or the limit
// price when given) and updates the tracked position.
func (m *MockExchange) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("PlaceOrder"); err != nil {
		return nil, err
	}

	info := m.contracts[req.Contract]
	size := QuantizeSize(req.Size, info)
	if size == 0 && info != nil {
		return nil, sizeError(req.Size, info)
	}
	if size == 0 {
		size = req.Size
	}

	fillPrice := req.Price
	if fillPrice == 0 {
		t, ok := m.tickers[req.Contract]
		if !ok {
			return nil, Errorf(ErrPriceValidation, "no market price for contract %s", req.Contract)
		}
		fillPrice = t.Last
	}

	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)

	if req.AutoSize {
		if p, ok := m.positions[req.Contract]; ok {
			size = -p.Size
		}
	}
	m.applyFill(req.Contract, size, fillPrice, req.ReduceOnly)

	order := &OrderResponse{
		OrderID:      id,
		Contract:     req.Contract,
		Status:       OrderStatusFilled,
		Size:         size,
		FilledSize:   size,
		Price:        req.Price,
		AvgFillPrice: fillPrice,
		ReduceOnly:   req.ReduceOnly,
		CreatedAt:    time.Now().UTC(),
	}
	m.orders[id] = order
	m.PlacedOrders = append(m.PlacedOrders, req)
	m.fills[req.Contract] = append(m.fills[req.Contract], TradeFill{
		TradeID:   id,
		OrderID:   id,
		Contract:  req.Contract,
		Price:     fillPrice,
		Quantity:  math.Abs(size),
		IsBuyer:   size > 0,
		Timestamp: order.CreatedAt,
	})

	out := *order
	return &out, nil
}

func (m *MockExchange) applyFill(contract string, size, price float64, reduceOnly bool) {
	p, ok := m.positions[contract]
	if !ok {
		if reduceOnly {
			return
		}
		m.positions[contract] = &PositionView{
			Contract:   contract,
			Symbol:     m.ExtractSymbol(contract),
			Size:       size,
			EntryPrice: price,
			MarkPrice:  price,
		}
		return
	}
	newSize := p.Size + size
	if reduceOnly && math.Abs(newSize) > math.Abs(p.Size) {
		return
	}
	if newSize == 0 || math.Signbit(newSize) != math.Signbit(p.Size) {
		delete(m.positions, contract)
		delete(m.stops, contract)
		return
	}
	p.Size = newSize
	p.MarkPrice = price
}

// SetLeverage records the leverage setting.
func (m *MockExchange) SetLeverage(ctx context.Context, contract string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("SetLeverage"); err != nil {
		return err
	}
	m.leverage[contract] = leverage
	return nil
}

// Leverage reports the last leverage set for the contract.
func (m *MockExchange) Leverage(contract string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leverage[contract]
}

// FundingRate returns the configured rate.
func (m *MockExchange) FundingRate(ctx context.Context, contract string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("FundingRate"); err != nil {
		return 0, err
	}
	return m.funding[contract], nil
}

// ContractInfo returns the configured metadata, or a permissive default.
func (m *MockExchange) ContractInfo(ctx context.Context, contract string) (*ContractInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ContractInfo"); err != nil {
		return nil, err
	}
	if info, ok := m.contracts[contract]; ok {
		out := *info
		return &out, nil
	}
	return &ContractInfo{
		Contract:      contract,
		Symbol:        m.ExtractSymbol(contract),
		Kind:          m.kind,
		TickSize:      0.01,
		MinOrderSize:  0.001,
		MaxOrderSize:  apiOrderCap,
		PriceDecimals: 2,
		MinLeverage:   1,
		MaxLeverage:   100,
	}, nil
}

// MyTrades returns recorded fills, newest last.
func (m *MockExchange) MyTrades(ctx context.Context, contract string, limit int) ([]TradeFill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fills := m.fills[contract]
	if limit > 0 && len(fills) > limit {
		fills = fills[len(fills)-limit:]
	}
	out := make([]TradeFill, len(fills))
	copy(out, fills)
	return out, nil
}

// GetOrder returns a previously placed order.
func (m *MockExchange) GetOrder(ctx context.Context, contract, orderID string) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("GetOrder"); err != nil {
		return nil, err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, Errorf(ErrNotFound, "order %s not found", orderID)
	}
	out := *o
	return &out, nil
}

// CancelOrder marks an order cancelled; unknown orders are not errors.
func (m *MockExchange) CancelOrder(ctx context.Context, contract, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CancelOrder"); err != nil {
		return err
	}
	if o, ok := m.orders[orderID]; ok && o.Status == OrderStatusOpen {
		o.Status = OrderStatusCancelled
	}
	stops := m.stops[contract]
	for i, s := range stops {
		if s.OrderID == orderID {
			m.stops[contract] = append(stops[:i], stops[i+1:]...)
			break
		}
	}
	return nil
}

// OpenOrders returns orders still open for the contract.
func (m *MockExchange) OpenOrders(ctx context.Context, contract string) ([]OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderResponse
	for _, o := range m.orders {
		if o.Contract == contract && o.Status == OrderStatusOpen {
			out = append(out, *o)
		}
	}
	return out, nil
}

// OrderBook synthesises a one-level book around the last price.
func (m *MockExchange) OrderBook(ctx context.Context, contract string, depth int) (*OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickers[contract]
	if !ok {
		return nil, Errorf(ErrNotFound, "no ticker for contract %s", contract)
	}
	return &OrderBook{
		Contract: contract,
		Bids:     []BookLevel{{Price: t.Last * 0.9995, Quantity: 10}},
		Asks:     []BookLevel{{Price: t.Last * 1.0005, Quantity: 10}},
	}, nil
}

// OrderHistory returns every recorded order for the contract.
func (m *MockExchange) OrderHistory(ctx context.Context, contract string, limit int) ([]OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderResponse
	for _, o := range m.orders {
		if o.Contract == contract {
			out = append(out, *o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PositionHistory returns trade-derived settlement rows.
func (m *MockExchange) PositionHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	fills, err := m.MyTrades(ctx, contract, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SettlementRecord, 0, len(fills))
	for _, f := range fills {
		out = append(out, SettlementRecord{
			Contract:  contract,
			Kind:      "TRADE",
			Amount:    f.Quantity,
			Timestamp: f.Timestamp,
		})
	}
	return out, nil
}

// SettlementHistory returns nothing; the mock charges no funding.
func (m *MockExchange) SettlementHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	return nil, nil
}

// SetPositionStopLoss validates triggers against the position mark and
// registers the protective legs.
func (m *MockExchange) SetPositionStopLoss(ctx context.Context, contract string, stop, takeProfit float64) (*StopOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("SetPositionStopLoss"); err != nil {
		return nil, err
	}

	p, ok := m.positions[contract]
	if !ok {
		return nil, Errorf(ErrNotFound, "no open position for contract %s", contract)
	}
	info := m.contracts[contract]

	stop, takeProfit, err := prepareStopPrices(p.Side(), p.MarkPrice, stop, takeProfit, info)
	if err != nil {
		return nil, err
	}

	m.stops[contract] = nil
	result := &StopOrderResult{OK: true}
	if stop > 0 {
		m.nextID++
		result.SLOrderID = fmt.Sprintf("mock-sl-%d", m.nextID)
		m.stops[contract] = append(m.stops[contract], StopOrder{
			OrderID:      result.SLOrderID,
			Contract:     contract,
			Type:         StopOrderStopLoss,
			TriggerPrice: stop,
			Size:         p.Size,
		})
	}
	if takeProfit > 0 {
		m.nextID++
		result.TPOrderID = fmt.Sprintf("mock-tp-%d", m.nextID)
		m.stops[contract] = append(m.stops[contract], StopOrder{
			OrderID:      result.TPOrderID,
			Contract:     contract,
			Type:         StopOrderTakeProfit,
			TriggerPrice: takeProfit,
			Size:         p.Size,
		})
	}
	return result, nil
}

// CancelPositionStopLoss drops every protective order for the contract.
func (m *MockExchange) CancelPositionStopLoss(ctx context.Context, contract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CancelPositionStopLoss"); err != nil {
		return err
	}
	delete(m.stops, contract)
	return nil
}

// GetPositionStopOrders returns the registered protective orders.
func (m *MockExchange) GetPositionStopOrders(ctx context.Context, contract string) ([]StopOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StopOrder, len(m.stops[contract]))
	copy(out, m.stops[contract])
	return out, nil
}

// QuantityFromUSDT follows the configured variant's sizing rule.
func (m *MockExchange) QuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64 {
	if m.kind == KindInverse {
		return inverseQuantityFromUSDT(margin, price, leverage, info)
	}
	return linearQuantityFromUSDT(margin, price, leverage, info)
}

// PnL follows the configured variant's profit rule.
func (m *MockExchange) PnL(entry, exit, quantity float64, side PositionSide, info *ContractInfo) float64 {
	if m.kind == KindInverse {
		return inversePnL(entry, exit, quantity, side, info)
	}
	return linearPnL(entry, exit, quantity, side)
}

// SyncServerTime is a no-op; the mock runs on local time.
func (m *MockExchange) SyncServerTime(ctx context.Context) error { return nil }

// StartTimeSync records that the refresher was requested. The mock runs on
// local time, so no goroutine is launched.
func (m *MockExchange) StartTimeSync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("StartTimeSync"); err != nil {
		return err
	}
	m.timeSyncStarted = true
	return nil
}

// TimeSyncStarted reports whether StartTimeSync was called.
func (m *MockExchange) TimeSyncStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeSyncStarted
}

// Now returns local time.
func (m *MockExchange) Now() time.Time { return time.Now().UTC() }
