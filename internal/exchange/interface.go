package exchange

import (
	"context"
	"time"
)

// Exchange is the uniform capability over heterogeneous perpetual-futures
// venues. Two variants exist: linear (USDT-margined) and inverse
// (coin-margined). All candle sequences are oldest-first; all quantities
// follow the variant's sizing rules.
type Exchange interface {
	// Kind reports the margining variant.
	Kind() Kind

	// NormalizeSymbol maps a user symbol ("ETH") to the exchange
	// contract ("ETHUSDT" / "ETHUSD_PERP"). ExtractSymbol inverts it.
	NormalizeSymbol(symbol string) string
	ExtractSymbol(contract string) string

	// Ticker returns a market snapshot, cached for a short TTL.
	// includeMark requests the mark price at the cost of an extra
	// request on either variant.
	Ticker(ctx context.Context, contract string, includeMark bool) (*Ticker, error)

	// Candles returns up to limit bars for the interval, oldest-first.
	Candles(ctx context.Context, contract, interval string, limit int) ([]Candle, error)

	// Account returns the normalised account snapshot.
	Account(ctx context.Context) (*AccountInfo, error)

	// Positions returns open positions filtered to the watch-list.
	Positions(ctx context.Context) ([]PositionView, error)

	// PlaceOrder submits an order. Size is quantised to the contract's
	// minimum-size step and clamped to its bounds; limit prices are
	// clamped to ±1.5% of the mark price when one is known.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// SetLeverage sets position leverage; silently no-ops when the
	// exchange refuses because a position already exists.
	SetLeverage(ctx context.Context, contract string, leverage int) error

	// FundingRate returns the current funding rate, cached for one hour.
	FundingRate(ctx context.Context, contract string) (float64, error)

	// ContractInfo returns contract metadata, cached for the process
	// lifetime.
	ContractInfo(ctx context.Context, contract string) (*ContractInfo, error)

	// Passthroughs.
	MyTrades(ctx context.Context, contract string, limit int) ([]TradeFill, error)
	GetOrder(ctx context.Context, contract, orderID string) (*OrderResponse, error)
	CancelOrder(ctx context.Context, contract, orderID string) error
	OpenOrders(ctx context.Context, contract string) ([]OrderResponse, error)
	OrderBook(ctx context.Context, contract string, depth int) (*OrderBook, error)
	OrderHistory(ctx context.Context, contract string, limit int) ([]OrderResponse, error)
	PositionHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error)
	SettlementHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error)

	// SetPositionStopLoss registers protective stop and take-profit
	// conditional orders for the current position, cancelling existing
	// ones first. Pass 0 to skip a leg.
	SetPositionStopLoss(ctx context.Context, contract string, stop, takeProfit float64) (*StopOrderResult, error)

	// CancelPositionStopLoss cancels every protective order known for
	// the contract.
	CancelPositionStopLoss(ctx context.Context, contract string) error

	// GetPositionStopOrders returns the currently active protective
	// orders for the contract.
	GetPositionStopOrders(ctx context.Context, contract string) ([]StopOrder, error)

	// QuantityFromUSDT converts a margin amount at the given price and
	// leverage into an order quantity in the variant's native unit.
	QuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64

	// PnL computes the profit of a closed quantity in USDT terms for
	// linear, coin terms times multiplier for inverse.
	PnL(entry, exit, quantity float64, side PositionSide, info *ContractInfo) float64

	// SyncServerTime refreshes the local clock offset against the
	// exchange once.
	SyncServerTime(ctx context.Context) error

	// StartTimeSync performs an initial sync and launches the periodic
	// clock refresher, which stops with the context.
	StartTimeSync(ctx context.Context) error

	// Now returns the local time adjusted by the server offset.
	Now() time.Time
}
