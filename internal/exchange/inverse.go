package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/delivery"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// inverseSuffix is appended to user symbols for coin-margined perpetuals.
const inverseSuffix = "USD_PERP"

// quantoMultipliers maps symbols to the coin value of one contract per
// price unit. Sizing and PnL for the inverse variant run through these.
var quantoMultipliers = map[string]float64{
	"BTC": 0.0001,
	"ETH": 0.001,
}

const defaultQuantoMultiplier = 0.01

// InverseExchange implements Exchange for coin-margined perpetuals.
// Quantities are integer contract counts.
type InverseExchange struct {
	client    *delivery.Client
	tickers   *TickerCache
	contracts *contractCache
	funding   *fundingCache
	clock     clockOffset
	retryCfg  RetryConfig
	watch     map[string]bool
	logger    zerolog.Logger
}

// NewInverseExchange creates the inverse adapter.
func NewInverseExchange(cfg config.ExchangeConfig, redisClient *redis.Client, symbols []string) *InverseExchange {
	if cfg.UseTestnet {
		delivery.UseTestnet = true
	}
	watch := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		watch[strings.ToUpper(s)] = true
	}
	return &InverseExchange{
		client:    delivery.NewClient(cfg.APIKey, cfg.APISecret),
		tickers:   NewTickerCache(redisClient, TickerCacheTTL),
		contracts: newContractCache(),
		funding:   newFundingCache(),
		retryCfg:  DefaultRetryConfig(),
		watch:     watch,
		logger:    config.NewLogger("exchange.inverse"),
	}
}

// Kind reports the margining variant.
func (e *InverseExchange) Kind() Kind { return KindInverse }

// NormalizeSymbol maps "BTC" to "BTCUSD_PERP".
func (e *InverseExchange) NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.HasSuffix(symbol, inverseSuffix) {
		return symbol
	}
	return symbol + inverseSuffix
}

// ExtractSymbol maps "BTCUSD_PERP" back to "BTC".
func (e *InverseExchange) ExtractSymbol(contract string) string {
	return strings.TrimSuffix(strings.ToUpper(contract), inverseSuffix)
}

// Ticker returns a market snapshot. includeMark spends an extra request on
// the funding-rate row, which carries the mark price; the funding cache is
// seeded from the same row.
func (e *InverseExchange) Ticker(ctx context.Context, contract string, includeMark bool) (*Ticker, error) {
	if t := e.tickers.Get(ctx, contract, includeMark); t != nil {
		return t, nil
	}

	var stats []*delivery.PriceChangeStats
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		stats, err = e.client.NewListPriceChangeStatsService().Symbol(contract).Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, Errorf(ErrNotFound, "no ticker for contract %s", contract)
	}

	s := stats[0]
	t := &Ticker{
		Contract:  contract,
		Last:      parseF(s.LastPrice),
		Volume24h: parseF(s.Volume),
		High24h:   parseF(s.HighPrice),
		Low24h:    parseF(s.LowPrice),
		Change24h: parseF(s.PriceChangePercent),
	}

	if includeMark {
		if row, ferr := e.latestFunding(ctx, contract); ferr == nil {
			t.MarkPrice = parseF(row.MarkPrice)
			e.funding.put(contract, parseF(row.FundingRate))
		}
	}

	e.tickers.Put(ctx, includeMark, t)
	return t, nil
}

// latestFunding fetches the newest funding-rate row for the contract. The
// row carries the mark price alongside the rate.
func (e *InverseExchange) latestFunding(ctx context.Context, contract string) (*delivery.FundingRate, error) {
	var rates []*delivery.FundingRate
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		rates, err = e.client.NewFundingRateService().Symbol(contract).Limit(1).Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, Errorf(ErrNotFound, "no funding data for contract %s", contract)
	}
	// Rows arrive oldest-first.
	return rates[len(rates)-1], nil
}

// Candles returns up to limit bars, oldest-first.
func (e *InverseExchange) Candles(ctx context.Context, contract, interval string, limit int) ([]Candle, error) {
	var klines []*delivery.Kline
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		klines, err = e.client.NewKlinesService().
			Symbol(contract).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseF(k.Open),
			High:     parseF(k.High),
			Low:      parseF(k.Low),
			Close:    parseF(k.Close),
			Volume:   parseF(k.Volume),
		})
	}
	return candles, nil
}

// Account reports the margin asset with the largest wallet balance; a
// coin-margined account is segregated per asset.
func (e *InverseExchange) Account(ctx context.Context) (*AccountInfo, error) {
	var acct *delivery.Account
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		acct, err = e.client.NewGetAccountService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	info := &AccountInfo{}
	for _, a := range acct.Assets {
		total := parseF(a.WalletBalance)
		if total <= info.Total {
			continue
		}
		info.Currency = a.Asset
		info.Total = total
		info.Available = parseF(a.AvailableBalance)
		info.PositionMargin = parseF(a.PositionInitialMargin)
		info.OrderMargin = parseF(a.OpenOrderInitialMargin)
		info.UnrealisedPnL = parseF(a.UnrealizedProfit)
	}
	return info, nil
}

// Positions returns open positions filtered to the watch-list.
func (e *InverseExchange) Positions(ctx context.Context) ([]PositionView, error) {
	var risks []*delivery.PositionRisk
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		risks, err = e.client.NewGetPositionRiskService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	var views []PositionView
	for _, r := range risks {
		size := parseF(r.PositionAmt)
		if size == 0 {
			continue
		}
		symbol := e.ExtractSymbol(r.Symbol)
		if len(e.watch) > 0 && !e.watch[symbol] {
			continue
		}
		views = append(views, PositionView{
			Contract:         r.Symbol,
			Symbol:           symbol,
			Size:             size,
			EntryPrice:       parseF(r.EntryPrice),
			MarkPrice:        parseF(r.MarkPrice),
			LiquidationPrice: parseF(r.LiquidationPrice),
			UnrealisedPnL:    parseF(r.UnRealizedProfit),
			Leverage:         parseF(r.Leverage),
		})
	}
	return views, nil
}

// PlaceOrder submits an order. Sizes are integer contract counts.
func (e *InverseExchange) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	info, err := e.ContractInfo(ctx, req.Contract)
	if err != nil {
		return nil, err
	}

	size := QuantizeSize(req.Size, info)
	if size == 0 {
		return nil, sizeError(req.Size, info)
	}

	side := delivery.SideTypeBuy
	if size < 0 {
		side = delivery.SideTypeSell
	}

	svc := e.client.NewCreateOrderService().
		Symbol(req.Contract).
		Side(side).
		ReduceOnly(req.ReduceOnly)

	if req.Price == 0 {
		svc = svc.Type(delivery.OrderTypeMarket).Quantity(FormatSize(size, info))
	} else {
		price := req.Price
		if ticker, terr := e.Ticker(ctx, req.Contract, true); terr == nil && ticker.MarkPrice > 0 {
			price = ClampToMark(price, ticker.MarkPrice)
		}
		tif := delivery.TimeInForceTypeGTC
		if strings.EqualFold(req.TimeInForce, "ioc") {
			tif = delivery.TimeInForceTypeIOC
		}
		svc = svc.Type(delivery.OrderTypeLimit).
			TimeInForce(tif).
			Quantity(FormatSize(size, info)).
			Price(FormatPrice(QuantizePrice(price, info), info))
	}

	var resp *delivery.CreateOrderResponse
	err = WithRetry(ctx, e.retryCfg, func() error {
		var err error
		resp, err = svc.Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("contract", req.Contract).
		Float64("size", size).
		Bool("reduce_only", req.ReduceOnly).
		Int64("order_id", resp.OrderID).
		Msg("Order placed")

	return &OrderResponse{
		OrderID:    strconv.FormatInt(resp.OrderID, 10),
		Contract:   req.Contract,
		Status:     mapOrderStatus(string(resp.Status)),
		Size:       size,
		ReduceOnly: req.ReduceOnly,
		CreatedAt:  e.Now(),
	}, nil
}

// SetLeverage sets position leverage, swallowing refusals for contracts
// with an existing position.
func (e *InverseExchange) SetLeverage(ctx context.Context, contract string, leverage int) error {
	err := WithRetry(ctx, e.retryCfg, func() error {
		_, err := e.client.NewChangeLeverageService().
			Symbol(contract).
			Leverage(leverage).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil && KindOf(err) == ErrInvalidArgument {
		e.logger.Warn().
			Err(err).
			Str("contract", contract).
			Msg("Leverage change refused, keeping current setting")
		return nil
	}
	return err
}

// FundingRate returns the current funding rate, cached for one hour.
func (e *InverseExchange) FundingRate(ctx context.Context, contract string) (float64, error) {
	if rate, ok := e.funding.get(contract); ok {
		return rate, nil
	}
	row, err := e.latestFunding(ctx, contract)
	if err != nil {
		return 0, err
	}
	rate := parseF(row.FundingRate)
	e.funding.put(contract, rate)
	return rate, nil
}

// ContractInfo returns contract metadata, cached for the process lifetime.
// The quanto multiplier comes from the per-symbol table.
func (e *InverseExchange) ContractInfo(ctx context.Context, contract string) (*ContractInfo, error) {
	if info := e.contracts.get(contract); info != nil {
		return info, nil
	}

	var exchangeInfo *delivery.ExchangeInfo
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		exchangeInfo, err = e.client.NewExchangeInfoService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	symbol := e.ExtractSymbol(contract)
	multiplier, ok := quantoMultipliers[symbol]
	if !ok {
		multiplier = defaultQuantoMultiplier
	}

	for i := range exchangeInfo.Symbols {
		s := &exchangeInfo.Symbols[i]
		if s.Symbol != contract {
			continue
		}
		info := &ContractInfo{
			Contract:         contract,
			Symbol:           symbol,
			Kind:             KindInverse,
			QuantoMultiplier: multiplier,
			PriceDecimals:    s.PricePrecision,
			MinOrderSize:     1,
			MaxOrderSize:     1_000_000,
			MinLeverage:      1,
			MaxLeverage:      125,
		}
		if f := s.LotSizeFilter(); f != nil {
			if min := parseF(f.MinQuantity); min > 0 {
				info.MinOrderSize = min
			}
			if max := parseF(f.MaxQuantity); max > 0 {
				info.MaxOrderSize = max
			}
		}
		if f := s.PriceFilter(); f != nil {
			info.TickSize = parseF(f.TickSize)
		}
		e.contracts.put(info)
		return info, nil
	}
	return nil, Errorf(ErrNotFound, "contract %s not listed", contract)
}

// MyTrades returns recent fills for the contract. The delivery client has
// no account-trade endpoint, so fills are reconstructed from order history:
// one aggregate fill per executed order at its average price. Commission is
// not carried on order rows and reports as zero.
func (e *InverseExchange) MyTrades(ctx context.Context, contract string, limit int) ([]TradeFill, error) {
	var orders []*delivery.Order
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		orders, err = e.client.NewListOrdersService().
			Symbol(contract).
			Limit(limit).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	return fillsFromDeliveryOrders(contract, orders), nil
}

func fillsFromDeliveryOrders(contract string, orders []*delivery.Order) []TradeFill {
	fills := make([]TradeFill, 0, len(orders))
	for _, o := range orders {
		executed := parseF(o.ExecutedQuantity)
		if executed == 0 {
			continue
		}
		ts := o.UpdateTime
		if ts == 0 {
			ts = o.Time
		}
		fills = append(fills, TradeFill{
			TradeID:   strconv.FormatInt(o.OrderID, 10),
			OrderID:   strconv.FormatInt(o.OrderID, 10),
			Contract:  contract,
			Price:     parseF(o.AvgPrice),
			Quantity:  executed,
			IsBuyer:   o.Side == delivery.SideTypeBuy,
			Timestamp: time.UnixMilli(ts).UTC(),
		})
	}
	return fills
}

// GetOrder retrieves one order by id.
func (e *InverseExchange) GetOrder(ctx context.Context, contract, orderID string) (*OrderResponse, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, Errorf(ErrInvalidArgument, "invalid order id %q", orderID)
	}

	var order *delivery.Order
	err = WithRetry(ctx, e.retryCfg, func() error {
		var err error
		order, err = e.client.NewGetOrderService().
			Symbol(contract).
			OrderID(id).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	return convertDeliveryOrder(order), nil
}

// CancelOrder cancels an order; already-gone orders are not errors.
func (e *InverseExchange) CancelOrder(ctx context.Context, contract, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return Errorf(ErrInvalidArgument, "invalid order id %q", orderID)
	}
	err = WithRetry(ctx, e.retryCfg, func() error {
		_, err := e.client.NewCancelOrderService().
			Symbol(contract).
			OrderID(id).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil && KindOf(err) == ErrNotFound {
		return nil
	}
	return err
}

// OpenOrders lists all open orders for the contract.
func (e *InverseExchange) OpenOrders(ctx context.Context, contract string) ([]OrderResponse, error) {
	orders, err := e.listOpenOrders(ctx, contract)
	if err != nil {
		return nil, err
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, *convertDeliveryOrder(o))
	}
	return out, nil
}

func (e *InverseExchange) listOpenOrders(ctx context.Context, contract string) ([]*delivery.Order, error) {
	var orders []*delivery.Order
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		orders, err = e.client.NewListOpenOrdersService().Symbol(contract).Do(ctx)
		return e.wrap(err)
	})
	return orders, err
}

// OrderBook returns the best bid and ask. The delivery client exposes only
// the book ticker, so levels beyond the top are unavailable and the
// requested depth is ignored.
func (e *InverseExchange) OrderBook(ctx context.Context, contract string, depth int) (*OrderBook, error) {
	var tickers []*delivery.BookTicker
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		tickers, err = e.client.NewListBookTickersService().Symbol(contract).Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, Errorf(ErrNotFound, "no book ticker for contract %s", contract)
	}
	return bookFromTicker(contract, tickers[0]), nil
}

func bookFromTicker(contract string, bt *delivery.BookTicker) *OrderBook {
	book := &OrderBook{Contract: contract}
	if price := parseF(bt.BidPrice); price > 0 {
		book.Bids = append(book.Bids, BookLevel{Price: price, Quantity: parseF(bt.BidQuantity)})
	}
	if price := parseF(bt.AskPrice); price > 0 {
		book.Asks = append(book.Asks, BookLevel{Price: price, Quantity: parseF(bt.AskQuantity)})
	}
	return book
}

// OrderHistory lists recent orders for the contract.
func (e *InverseExchange) OrderHistory(ctx context.Context, contract string, limit int) ([]OrderResponse, error) {
	var orders []*delivery.Order
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		orders, err = e.client.NewListOrdersService().
			Symbol(contract).
			Limit(limit).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, *convertDeliveryOrder(o))
	}
	return out, nil
}

// PositionHistory returns realised-PnL settlement rows derived from
// account fills.
func (e *InverseExchange) PositionHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	fills, err := e.MyTrades(ctx, contract, limit)
	if err != nil {
		return nil, err
	}
	records := make([]SettlementRecord, 0, len(fills))
	for _, f := range fills {
		records = append(records, SettlementRecord{
			Contract:  contract,
			Kind:      "TRADE",
			Amount:    f.Quantity,
			Timestamp: f.Timestamp,
		})
	}
	return records, nil
}

// SettlementHistory returns funding settlements. The delivery API exposes
// funding through the funding-rate history endpoint.
func (e *InverseExchange) SettlementHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	var rates []*delivery.FundingRate
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		rates, err = e.client.NewFundingRateService().
			Symbol(contract).
			Limit(limit).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	records := make([]SettlementRecord, 0, len(rates))
	for _, r := range rates {
		records = append(records, SettlementRecord{
			Contract:  contract,
			Kind:      "FUNDING_FEE",
			Amount:    parseF(r.FundingRate),
			Timestamp: time.UnixMilli(r.FundingTime).UTC(),
		})
	}
	return records, nil
}

// SetPositionStopLoss registers protective conditional orders, cancelling
// existing protection first. Legs execute IOC when triggered.
func (e *InverseExchange) SetPositionStopLoss(ctx context.Context, contract string, stop, takeProfit float64) (*StopOrderResult, error) {
	if err := e.CancelPositionStopLoss(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to clear existing protection: %w", err)
	}

	position, err := e.findPosition(ctx, contract)
	if err != nil {
		return nil, err
	}

	info, err := e.ContractInfo(ctx, contract)
	if err != nil {
		return nil, err
	}

	side := position.Side()
	stop, takeProfit, err = prepareStopPrices(side, position.MarkPrice, stop, takeProfit, info)
	if err != nil {
		return nil, err
	}

	closeSide := delivery.SideTypeSell
	if side == SideShort {
		closeSide = delivery.SideTypeBuy
	}
	quantity := FormatSize(position.Size, info)

	submit := func(ctx context.Context, typ StopOrderType, trigger float64) (string, error) {
		orderType := delivery.OrderTypeStopMarket
		if typ == StopOrderTakeProfit {
			orderType = delivery.OrderTypeTakeProfitMarket
		}
		resp, err := e.client.NewCreateOrderService().
			Symbol(contract).
			Side(closeSide).
			Type(orderType).
			StopPrice(FormatPrice(trigger, info)).
			Quantity(quantity).
			ReduceOnly(true).
			WorkingType(delivery.WorkingTypeMarkPrice).
			Do(ctx)
		if err != nil {
			return "", e.wrap(err)
		}
		return strconv.FormatInt(resp.OrderID, 10), nil
	}

	return placeProtectiveLegs(ctx, contract, stop, takeProfit, submit)
}

// CancelPositionStopLoss cancels every protective order for the contract.
func (e *InverseExchange) CancelPositionStopLoss(ctx context.Context, contract string) error {
	stops, err := e.GetPositionStopOrders(ctx, contract)
	if err != nil {
		return err
	}
	for _, s := range stops {
		if err := e.CancelOrder(ctx, contract, s.OrderID); err != nil {
			return fmt.Errorf("failed to cancel protective order %s: %w", s.OrderID, err)
		}
	}
	return nil
}

// GetPositionStopOrders lists active protective conditional orders.
func (e *InverseExchange) GetPositionStopOrders(ctx context.Context, contract string) ([]StopOrder, error) {
	orders, err := e.listOpenOrders(ctx, contract)
	if err != nil {
		return nil, err
	}

	var stops []StopOrder
	for _, o := range orders {
		var typ StopOrderType
		switch o.Type {
		case delivery.OrderTypeStopMarket, delivery.OrderTypeStop:
			typ = StopOrderStopLoss
		case delivery.OrderTypeTakeProfitMarket, delivery.OrderTypeTakeProfit:
			typ = StopOrderTakeProfit
		default:
			continue
		}
		stops = append(stops, StopOrder{
			OrderID:      strconv.FormatInt(o.OrderID, 10),
			Contract:     contract,
			Type:         typ,
			TriggerPrice: parseF(o.StopPrice),
			OrderPrice:   parseF(o.Price),
			Size:         parseF(o.OrigQuantity),
		})
	}
	return stops, nil
}

// QuantityFromUSDT sizes an order as an integer count of contracts.
func (e *InverseExchange) QuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64 {
	return inverseQuantityFromUSDT(margin, price, leverage, info)
}

// PnL computes quanto profit: q * multiplier * (exit - entry).
func (e *InverseExchange) PnL(entry, exit, quantity float64, side PositionSide, info *ContractInfo) float64 {
	return inversePnL(entry, exit, quantity, side, info)
}

// SyncServerTime refreshes the clock offset against the exchange.
func (e *InverseExchange) SyncServerTime(ctx context.Context) error {
	var serverMs int64
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		serverMs, err = e.client.NewServerTimeService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return err
	}
	e.clock.set(time.Since(time.UnixMilli(serverMs)))
	return nil
}

// StartTimeSync launches the periodic clock refresher.
func (e *InverseExchange) StartTimeSync(ctx context.Context) error {
	if err := e.SyncServerTime(ctx); err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(clockSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.SyncServerTime(ctx); err != nil {
					e.logger.Warn().Err(err).Msg("Server time sync failed")
				}
			}
		}
	}()
	return nil
}

// Now returns local time adjusted by the server offset.
func (e *InverseExchange) Now() time.Time {
	return e.clock.now()
}

func (e *InverseExchange) findPosition(ctx context.Context, contract string) (*PositionView, error) {
	positions, err := e.Positions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Contract == contract {
			return &positions[i], nil
		}
	}
	return nil, Errorf(ErrNotFound, "no open position for contract %s", contract)
}

func (e *InverseExchange) wrap(err error) error {
	if err == nil {
		return nil
	}
	if IsClockSkew(err) {
		syncCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := e.SyncServerTime(syncCtx); serr != nil {
			e.logger.Warn().Err(serr).Msg("Resync after clock skew failed")
		}
	}
	return NewError(classify(err), err)
}

func convertDeliveryOrder(o *delivery.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:      strconv.FormatInt(o.OrderID, 10),
		Contract:     o.Symbol,
		Status:       mapOrderStatus(string(o.Status)),
		Size:         parseF(o.OrigQuantity),
		FilledSize:   parseF(o.ExecutedQuantity),
		Price:        parseF(o.Price),
		AvgFillPrice: parseF(o.AvgPrice),
		ReduceOnly:   o.ReduceOnly,
		CreatedAt:    time.UnixMilli(o.Time).UTC(),
	}
}
