package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// TradeType distinguishes entry fills from closes.
type TradeType string

const (
	TradeOpen  TradeType = "open"
	TradeClose TradeType = "close"
)

// PriceOrderType names a protective leg.
type PriceOrderType string

const (
	PriceOrderStopLoss   PriceOrderType = "stop_loss"
	PriceOrderTakeProfit PriceOrderType = "take_profit"
)

// PriceOrderStatus is the lifecycle state of a protective order row.
type PriceOrderStatus string

const (
	PriceOrderActive    PriceOrderStatus = "active"
	PriceOrderTriggered PriceOrderStatus = "triggered"
	PriceOrderCancelled PriceOrderStatus = "cancelled"
)

// Position is an open position row. Quantity is always positive; direction
// comes from Side. Unique on (symbol, side) while open.
type Position struct {
	ID               uuid.UUID             `db:"id"`
	Symbol           string                `db:"symbol"`
	Exchange         string                `db:"exchange"`
	Side             exchange.PositionSide `db:"side"`
	EntryPrice       float64               `db:"entry_price"`
	Quantity         float64               `db:"quantity"`
	Leverage         float64               `db:"leverage"`
	CurrentPrice     float64               `db:"current_price"`
	LiquidationPrice float64               `db:"liquidation_price"`
	UnrealizedPnL    float64               `db:"unrealized_pnl"`
	RealizedPnL      float64               `db:"realized_pnl"`
	StopLoss         float64               `db:"stop_loss"`
	TakeProfit       float64               `db:"take_profit"`
	EntryOrderID     string                `db:"entry_order_id"`
	SLOrderID        string                `db:"sl_order_id"`
	TPOrderID        string                `db:"tp_order_id"`
	OpenedAt         time.Time             `db:"opened_at"`
	MarketState      string                `db:"market_state"`
	StrategyType     string                `db:"strategy_type"`
	SignalStrength   float64               `db:"signal_strength"`
	OpportunityScore int                   `db:"opportunity_score"`
	// EntryStopLoss is the stop at fill time, frozen as the R unit for the
	// partial take-profit ladder. Never mutated by trailing updates.
	EntryStopLoss float64                `db:"entry_stop_loss"`
	TrailingMode  bool                   `db:"trailing_mode"`
	Metadata      map[string]interface{} `db:"metadata"`
	CreatedAt     time.Time              `db:"created_at"`
	UpdatedAt     time.Time              `db:"updated_at"`
}

// Trade is one executed order row, entry or close.
type Trade struct {
	ID           uuid.UUID             `db:"id"`
	OrderID      string                `db:"order_id"`
	Symbol       string                `db:"symbol"`
	Side         exchange.PositionSide `db:"side"`
	Type         TradeType             `db:"type"`
	Price        float64               `db:"price"`
	Quantity     float64               `db:"quantity"`
	Leverage     float64               `db:"leverage"`
	Fee          float64               `db:"fee"`
	PnL          *float64              `db:"pnl"`
	RMultiple    *float64              `db:"r_multiple"`
	StrategyName string                `db:"strategy_name"`
	Status       string                `db:"status"`
	Timestamp    time.Time             `db:"timestamp"`
}

// PriceOrder mirrors an exchange-resident protective order.
type PriceOrder struct {
	ID              uuid.UUID             `db:"id"`
	OrderID         string                `db:"order_id"`
	PositionOrderID string                `db:"position_order_id"`
	Symbol          string                `db:"symbol"`
	Side            exchange.PositionSide `db:"side"`
	Type            PriceOrderType        `db:"type"`
	TriggerPrice    float64               `db:"trigger_price"`
	OrderPrice      float64               `db:"order_price"` // 0 = market on trigger
	Quantity        float64               `db:"quantity"`
	Status          PriceOrderStatus      `db:"status"`
	CreatedAt       time.Time             `db:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at"`
}

// CloseEvent is an append-only record of any position close, full or
// partial. Processed=false means the LLM agent has not consumed it yet.
type CloseEvent struct {
	ID              uuid.UUID             `db:"id"`
	Symbol          string                `db:"symbol"`
	Side            exchange.PositionSide `db:"side"`
	CloseReason     string                `db:"close_reason"`
	TriggerType     string                `db:"trigger_type"`
	ClosePrice      float64               `db:"close_price"`
	EntryPrice      float64               `db:"entry_price"`
	Quantity        float64               `db:"quantity"`
	Leverage        float64               `db:"leverage"`
	PnL             float64               `db:"pnl"`
	PnLPercent      float64               `db:"pnl_percent"`
	Fee             float64               `db:"fee"`
	PositionOrderID string                `db:"position_order_id"`
	TriggerOrderID  string                `db:"trigger_order_id"`
	Processed       bool                  `db:"processed"`
	CreatedAt       time.Time             `db:"created_at"`
}

// PartialTPRecord is one executed stage of the take-profit ladder.
type PartialTPRecord struct {
	ID              uuid.UUID             `db:"id"`
	Symbol          string                `db:"symbol"`
	Side            exchange.PositionSide `db:"side"`
	Stage           int                   `db:"stage"`
	PositionOrderID string                `db:"position_order_id"`
	TriggerPrice    float64               `db:"trigger_price"`
	ClosedQuantity  float64               `db:"closed_quantity"`
	PnL             float64               `db:"pnl"`
	OrderID         string                `db:"order_id"`
	CreatedAt       time.Time             `db:"created_at"`
}

// AccountSnapshot is one row of the account history.
type AccountSnapshot struct {
	ID            uuid.UUID `db:"id"`
	Timestamp     time.Time `db:"timestamp"`
	TotalValue    float64   `db:"total_value"`
	AvailableCash float64   `db:"available_cash"`
	UnrealizedPnL float64   `db:"unrealized_pnl"`
	RealizedPnL   float64   `db:"realized_pnl"`
	ReturnPercent float64   `db:"return_percent"`
}

// EquityPoint is one derived equity-curve row.
type EquityPoint struct {
	Timestamp     time.Time `db:"timestamp"`
	Equity        float64   `db:"equity"`
	PeakEquity    float64   `db:"peak_equity"`
	DrawdownPct   float64   `db:"drawdown_pct"`
	DrawdownValue float64   `db:"drawdown_value"`
	IsNewPeak     bool      `db:"is_new_peak"`
}
