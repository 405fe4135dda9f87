package exchange

import "time"

// Kind identifies the contract margining variant.
type Kind string

const (
	KindLinear  Kind = "linear"  // USDT-margined, fractional quantities
	KindInverse Kind = "inverse" // coin-margined, integer contract counts
)

// PositionSide represents the direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderStatus is the normalised order state across variants.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Candle is one OHLCV bar. Sequences are always oldest-first.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker is a normalised market snapshot.
type Ticker struct {
	Contract   string  `json:"contract"`
	Last       float64 `json:"last"`
	MarkPrice  float64 `json:"mark_price,omitempty"`
	IndexPrice float64 `json:"index_price,omitempty"`
	Volume24h  float64 `json:"volume_24h"`
	High24h    float64 `json:"high_24h"`
	Low24h     float64 `json:"low_24h"`
	Change24h  float64 `json:"change_24h"` // percent
}

// AccountInfo is a normalised account snapshot.
type AccountInfo struct {
	Currency       string  `json:"currency"`
	Total          float64 `json:"total"`
	Available      float64 `json:"available"`
	PositionMargin float64 `json:"position_margin"`
	OrderMargin    float64 `json:"order_margin"`
	UnrealisedPnL  float64 `json:"unrealised_pnl"`
}

// PositionView is the exchange's view of an open position. Size carries
// sign: positive is long, negative is short.
type PositionView struct {
	Contract         string  `json:"contract"`
	Symbol           string  `json:"symbol"`
	Size             float64 `json:"size"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	LiquidationPrice float64 `json:"liquidation_price"`
	UnrealisedPnL    float64 `json:"unrealised_pnl"`
	Leverage         float64 `json:"leverage"`
}

// Side returns the position side derived from the size sign.
func (p PositionView) Side() PositionSide {
	if p.Size < 0 {
		return SideShort
	}
	return SideLong
}

// ContractInfo is the cached per-contract metadata.
type ContractInfo struct {
	Contract        string  `json:"contract"`
	Symbol          string  `json:"symbol"`
	Kind            Kind    `json:"kind"`
	QuantoMultiplier float64 `json:"quanto_multiplier,omitempty"` // inverse only
	TickSize        float64 `json:"tick_size"`
	MinOrderSize    float64 `json:"min_order_size"`
	MaxOrderSize    float64 `json:"max_order_size"`
	PriceDecimals   int     `json:"price_decimals"`
	MinLeverage     float64 `json:"min_leverage"`
	MaxLeverage     float64 `json:"max_leverage"`
}

// OrderRequest places a new order. Size is signed: positive buys, negative
// sells. Price 0 submits a market order with IOC time-in-force.
type OrderRequest struct {
	Contract    string  `json:"contract"`
	Size        float64 `json:"size"`
	Price       float64 `json:"price"`
	TimeInForce string  `json:"time_in_force,omitempty"` // "gtc" (default for limit) or "ioc"
	ReduceOnly  bool    `json:"reduce_only,omitempty"`
	AutoSize    bool    `json:"auto_size,omitempty"` // close the whole position
}

// OrderResponse is the normalised order state returned by the exchange.
type OrderResponse struct {
	OrderID      string      `json:"order_id"`
	Contract     string      `json:"contract"`
	Status       OrderStatus `json:"status"`
	Size         float64     `json:"size"`
	FilledSize   float64     `json:"filled_size"`
	Price        float64     `json:"price"`
	AvgFillPrice float64     `json:"avg_fill_price"`
	ReduceOnly   bool        `json:"reduce_only"`
	CreatedAt    time.Time   `json:"created_at"`
}

// StopOrderType distinguishes the two protective legs.
type StopOrderType string

const (
	StopOrderStopLoss   StopOrderType = "stop_loss"
	StopOrderTakeProfit StopOrderType = "take_profit"
)

// StopOrder is a protective conditional order resident on the exchange.
type StopOrder struct {
	OrderID      string        `json:"order_id"`
	Contract     string        `json:"contract"`
	Type         StopOrderType `json:"type"`
	TriggerPrice float64       `json:"trigger_price"`
	OrderPrice   float64       `json:"order_price"` // 0 = market on trigger
	Size         float64       `json:"size"`
}

// StopOrderResult reports the outcome of SetPositionStopLoss. Partial
// success is possible: the stop leg may exist while the TP leg failed.
type StopOrderResult struct {
	OK           bool   `json:"ok"`
	SLOrderID    string `json:"sl_order_id,omitempty"`
	TPOrderID    string `json:"tp_order_id,omitempty"`
	Message      string `json:"message,omitempty"`
}

// TradeFill is one account trade (fill) row.
type TradeFill struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Contract  string    `json:"contract"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Fee       float64   `json:"fee"`
	IsBuyer   bool      `json:"is_buyer"`
	Timestamp time.Time `json:"timestamp"`
}

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds the top of the book, best first.
type OrderBook struct {
	Contract string      `json:"contract"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
}

// SettlementRecord is one funding or settlement income row.
type SettlementRecord struct {
	Contract  string    `json:"contract"`
	Kind      string    `json:"kind"` // e.g. FUNDING_FEE, REALIZED_PNL
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
