package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// quoteSuffix is the linear quote asset appended to user symbols.
const quoteSuffix = "USDT"

// clockSyncInterval is how often the server-time offset is refreshed.
const clockSyncInterval = 2 * time.Minute

// LinearExchange implements Exchange for USDT-margined perpetuals.
type LinearExchange struct {
	client    *futures.Client
	tickers   *TickerCache
	contracts *contractCache
	funding   *fundingCache
	clock     clockOffset
	retryCfg  RetryConfig
	watch     map[string]bool
	logger    zerolog.Logger
}

// NewLinearExchange creates the linear adapter. symbols is the watch-list
// of user symbols; Positions() filters to it.
func NewLinearExchange(cfg config.ExchangeConfig, redisClient *redis.Client, symbols []string) *LinearExchange {
	if cfg.UseTestnet {
		futures.UseTestnet = true
	}
	watch := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		watch[strings.ToUpper(s)] = true
	}
	return &LinearExchange{
		client:    futures.NewClient(cfg.APIKey, cfg.APISecret),
		tickers:   NewTickerCache(redisClient, TickerCacheTTL),
		contracts: newContractCache(),
		funding:   newFundingCache(),
		retryCfg:  DefaultRetryConfig(),
		watch:     watch,
		logger:    config.NewLogger("exchange.linear"),
	}
}

// Kind reports the margining variant.
func (e *LinearExchange) Kind() Kind { return KindLinear }

// NormalizeSymbol maps "ETH" to "ETHUSDT".
func (e *LinearExchange) NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.HasSuffix(symbol, quoteSuffix) {
		return symbol
	}
	return symbol + quoteSuffix
}

// ExtractSymbol maps "ETHUSDT" back to "ETH".
func (e *LinearExchange) ExtractSymbol(contract string) string {
	return strings.TrimSuffix(strings.ToUpper(contract), quoteSuffix)
}

// Ticker returns a market snapshot. The 24h stats come from one request;
// includeMark spends a second request on the premium index, so the result
// is cached per (contract, includeMark).
func (e *LinearExchange) Ticker(ctx context.Context, contract string, includeMark bool) (*Ticker, error) {
	if t := e.tickers.Get(ctx, contract, includeMark); t != nil {
		return t, nil
	}

	var stats []*futures.PriceChangeStats
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
		premium, err := e.premiumIndex(ctx, contract)
		if err != nil {
			return nil, err
		}
		t.MarkPrice = parseF(premium.MarkPrice)
		t.IndexPrice = parseF(premium.IndexPrice)
	}

	e.tickers.Put(ctx, includeMark, t)
	return t, nil
}

func (e *LinearExchange) premiumIndex(ctx context.Context, contract string) (*futures.PremiumIndex, error) {
	var premiums []*futures.PremiumIndex
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		premiums, err = e.client.NewPremiumIndexService().Symbol(contract).Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}
	if len(premiums) == 0 {
		return nil, Errorf(ErrNotFound, "no premium index for contract %s", contract)
	}
	return premiums[0], nil
}

// Candles returns up to limit bars, oldest-first (Binance native order).
func (e *LinearExchange) Candles(ctx context.Context, contract, interval string, limit int) ([]Candle, error) {
	var klines []*futures.Kline
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

// Account returns the normalised account snapshot. Auth failures are not
// retried.
func (e *LinearExchange) Account(ctx context.Context) (*AccountInfo, error) {
	var acct *futures.Account
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		acct, err = e.client.NewGetAccountService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	return &AccountInfo{
		Currency:       "USDT",
		Total:          parseF(acct.TotalWalletBalance),
		Available:      parseF(acct.AvailableBalance),
		PositionMargin: parseF(acct.TotalPositionInitialMargin),
		OrderMargin:    parseF(acct.TotalOpenOrderInitialMargin),
		UnrealisedPnL:  parseF(acct.TotalUnrealizedProfit),
	}, nil
}

// Positions returns open positions filtered to the watch-list.
func (e *LinearExchange) Positions(ctx context.Context) ([]PositionView, error) {
	var risks []*futures.PositionRisk
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

// PlaceOrder submits an order with quantised size and clamped price.
func (e *LinearExchange) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	info, err := e.ContractInfo(ctx, req.Contract)
	if err != nil {
		return nil, err
	}

	size := QuantizeSize(req.Size, info)
	if size == 0 {
		return nil, sizeError(req.Size, info)
	}

	side := futures.SideTypeBuy
	if size < 0 {
		side = futures.SideTypeSell
	}

	svc := e.client.NewCreateOrderService().
		Symbol(req.Contract).
		Side(side).
		ReduceOnly(req.ReduceOnly)

	if req.Price == 0 {
		svc = svc.Type(futures.OrderTypeMarket).Quantity(FormatSize(size, info))
	} else {
		price := req.Price
		if ticker, terr := e.Ticker(ctx, req.Contract, true); terr == nil && ticker.MarkPrice > 0 {
			price = ClampToMark(price, ticker.MarkPrice)
		}
		tif := futures.TimeInForceTypeGTC
		if strings.EqualFold(req.TimeInForce, "ioc") {
			tif = futures.TimeInForceTypeIOC
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(tif).
			Quantity(FormatSize(size, info)).
			Price(FormatPrice(QuantizePrice(price, info), info))
	}

	var resp *futures.CreateOrderResponse
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
		Float64("price", req.Price).
		Bool("reduce_only", req.ReduceOnly).
		Int64("order_id", resp.OrderID).
		Msg("Order placed")

	return &OrderResponse{
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		Contract:     req.Contract,
		Status:       mapOrderStatus(string(resp.Status)),
		Size:         size,
		FilledSize:   parseF(resp.ExecutedQuantity),
		Price:        parseF(resp.Price),
		AvgFillPrice: parseF(resp.AvgPrice),
		ReduceOnly:   req.ReduceOnly,
		CreatedAt:    e.Now(),
	}, nil
}

// SetLeverage sets position leverage. Refusals caused by an existing
// position are logged and swallowed.
func (e *LinearExchange) SetLeverage(ctx context.Context, contract string, leverage int) error {
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
			Int("leverage", leverage).
			Msg("Leverage change refused, keeping current setting")
		return nil
	}
	return err
}

// FundingRate returns the current funding rate, cached for one hour.
func (e *LinearExchange) FundingRate(ctx context.Context, contract string) (float64, error) {
	if rate, ok := e.funding.get(contract); ok {
		return rate, nil
	}
	premium, err := e.premiumIndex(ctx, contract)
	if err != nil {
		return 0, err
	}
	rate := parseF(premium.LastFundingRate)
	e.funding.put(contract, rate)
	return rate, nil
}

// ContractInfo returns contract metadata, cached for the process lifetime.
func (e *LinearExchange) ContractInfo(ctx context.Context, contract string) (*ContractInfo, error) {
	if info := e.contracts.get(contract); info != nil {
		return info, nil
	}

	var exchangeInfo *futures.ExchangeInfo
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		exchangeInfo, err = e.client.NewExchangeInfoService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	for i := range exchangeInfo.Symbols {
		s := &exchangeInfo.Symbols[i]
		if s.Symbol != contract {
			continue
		}
		info := &ContractInfo{
			Contract:      contract,
			Symbol:        e.ExtractSymbol(contract),
			Kind:          KindLinear,
			PriceDecimals: s.PricePrecision,
			MinLeverage:   1,
			MaxLeverage:   125,
		}
		if f := s.LotSizeFilter(); f != nil {
			info.MinOrderSize = parseF(f.MinQuantity)
			info.MaxOrderSize = parseF(f.MaxQuantity)
		}
		if f := s.PriceFilter(); f != nil {
			info.TickSize = parseF(f.TickSize)
		}
		e.contracts.put(info)
		return info, nil
	}
	return nil, Errorf(ErrNotFound, "contract %s not listed", contract)
}

// MyTrades returns recent account fills for the contract.
func (e *LinearExchange) MyTrades(ctx context.Context, contract string, limit int) ([]TradeFill, error) {
	var trades []*futures.AccountTrade
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		trades, err = e.client.NewListAccountTradeService().
			Symbol(contract).
			Limit(limit).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	fills := make([]TradeFill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, TradeFill{
			TradeID:   strconv.FormatInt(t.ID, 10),
			OrderID:   strconv.FormatInt(t.OrderID, 10),
			Contract:  contract,
			Price:     parseF(t.Price),
			Quantity:  parseF(t.Quantity),
			Fee:       parseF(t.Commission),
			IsBuyer:   t.Buyer,
			Timestamp: time.UnixMilli(t.Time).UTC(),
		})
	}
	return fills, nil
}

// GetOrder retrieves one order by id.
func (e *LinearExchange) GetOrder(ctx context.Context, contract, orderID string) (*OrderResponse, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, Errorf(ErrInvalidArgument, "invalid order id %q", orderID)
	}

	var order *futures.Order
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
	return convertFuturesOrder(order), nil
}

// CancelOrder cancels an order; an already-gone order is not an error.
func (e *LinearExchange) CancelOrder(ctx context.Context, contract, orderID string) error {
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
		e.logger.Debug().
			Str("contract", contract).
			Str("order_id", orderID).
			Msg("Order already gone on cancel")
		return nil
	}
	return err
}

// OpenOrders lists all open orders for the contract.
func (e *LinearExchange) OpenOrders(ctx context.Context, contract string) ([]OrderResponse, error) {
	orders, err := e.listOpenOrders(ctx, contract)
	if err != nil {
		return nil, err
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, *convertFuturesOrder(o))
	}
	return out, nil
}

func (e *LinearExchange) listOpenOrders(ctx context.Context, contract string) ([]*futures.Order, error) {
	var orders []*futures.Order
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		orders, err = e.client.NewListOpenOrdersService().Symbol(contract).Do(ctx)
		return e.wrap(err)
	})
	return orders, err
}

// OrderBook returns the top of the book.
func (e *LinearExchange) OrderBook(ctx context.Context, contract string, depth int) (*OrderBook, error) {
	var resp *futures.DepthResponse
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		resp, err = e.client.NewDepthService().Symbol(contract).Limit(depth).Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	book := &OrderBook{Contract: contract}
	for _, b := range resp.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: parseF(b.Price), Quantity: parseF(b.Quantity)})
	}
	for _, a := range resp.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: parseF(a.Price), Quantity: parseF(a.Quantity)})
	}
	return book, nil
}

// OrderHistory lists recent orders for the contract.
func (e *LinearExchange) OrderHistory(ctx context.Context, contract string, limit int) ([]OrderResponse, error) {
	var orders []*futures.Order
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
		out = append(out, *convertFuturesOrder(o))
	}
	return out, nil
}

// PositionHistory returns realised-PnL income rows.
func (e *LinearExchange) PositionHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	return e.incomeHistory(ctx, contract, "REALIZED_PNL", limit)
}

// SettlementHistory returns funding-fee income rows.
func (e *LinearExchange) SettlementHistory(ctx context.Context, contract string, limit int) ([]SettlementRecord, error) {
	return e.incomeHistory(ctx, contract, "FUNDING_FEE", limit)
}

func (e *LinearExchange) incomeHistory(ctx context.Context, contract, incomeType string, limit int) ([]SettlementRecord, error) {
	var incomes []*futures.IncomeHistory
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		incomes, err = e.client.NewGetIncomeHistoryService().
			Symbol(contract).
			IncomeType(incomeType).
			Limit(int64(limit)).
			Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return nil, err
	}

	records := make([]SettlementRecord, 0, len(incomes))
	for _, inc := range incomes {
		records = append(records, SettlementRecord{
			Contract:  contract,
			Kind:      inc.IncomeType,
			Amount:    parseF(inc.Income),
			Timestamp: time.UnixMilli(inc.Time).UTC(),
		})
	}
	return records, nil
}

// SetPositionStopLoss registers protective stop/TP conditional orders for
// the current position, cancelling any existing protection first.
func (e *LinearExchange) SetPositionStopLoss(ctx context.Context, contract string, stop, takeProfit float64) (*StopOrderResult, error) {
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

	closeSide := futures.SideTypeSell
	if side == SideShort {
		closeSide = futures.SideTypeBuy
	}
	quantity := FormatSize(position.Size, info)

	submit := func(ctx context.Context, typ StopOrderType, trigger float64) (string, error) {
		orderType := futures.OrderTypeStopMarket
		if typ == StopOrderTakeProfit {
			orderType = futures.OrderTypeTakeProfitMarket
		}
		resp, err := e.client.NewCreateOrderService().
			Symbol(contract).
			Side(closeSide).
			Type(orderType).
			StopPrice(FormatPrice(trigger, info)).
			Quantity(quantity).
			ReduceOnly(true).
			WorkingType(futures.WorkingTypeMarkPrice).
			Do(ctx)
		if err != nil {
			return "", e.wrap(err)
		}
		return strconv.FormatInt(resp.OrderID, 10), nil
	}

	return placeProtectiveLegs(ctx, contract, stop, takeProfit, submit)
}

// CancelPositionStopLoss cancels every protective order for the contract.
func (e *LinearExchange) CancelPositionStopLoss(ctx context.Context, contract string) error {
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
func (e *LinearExchange) GetPositionStopOrders(ctx context.Context, contract string) ([]StopOrder, error) {
	orders, err := e.listOpenOrders(ctx, contract)
	if err != nil {
		return nil, err
	}

	var stops []StopOrder
	for _, o := range orders {
		var typ StopOrderType
		switch o.Type {
		case futures.OrderTypeStopMarket, futures.OrderTypeStop:
			typ = StopOrderStopLoss
		case futures.OrderTypeTakeProfitMarket, futures.OrderTypeTakeProfit:
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

// QuantityFromUSDT sizes an order from margin, price and leverage.
func (e *LinearExchange) QuantityFromUSDT(margin, price, leverage float64, info *ContractInfo) float64 {
	return linearQuantityFromUSDT(margin, price, leverage, info)
}

// PnL computes the USDT profit of a closed quantity.
func (e *LinearExchange) PnL(entry, exit, quantity float64, side PositionSide, info *ContractInfo) float64 {
	return linearPnL(entry, exit, quantity, side)
}

// SyncServerTime refreshes the clock offset against the exchange.
func (e *LinearExchange) SyncServerTime(ctx context.Context) error {
	var serverMs int64
	err := WithRetry(ctx, e.retryCfg, func() error {
		var err error
		serverMs, err = e.client.NewServerTimeService().Do(ctx)
		return e.wrap(err)
	})
	if err != nil {
		return err
	}
	offset := time.Since(time.UnixMilli(serverMs))
	e.clock.set(offset)
	e.logger.Debug().Dur("offset", offset).Msg("Server time synchronised")
	return nil
}

// StartTimeSync launches the periodic clock refresher. It returns after
// the first sync; the refresher stops when ctx is cancelled.
func (e *LinearExchange) StartTimeSync(ctx context.Context) error {
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
func (e *LinearExchange) Now() time.Time {
	return e.clock.now()
}

// findPosition locates the open position for the contract.
func (e *LinearExchange) findPosition(ctx context.Context, contract string) (*PositionView, error) {
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

// wrap classifies a raw client error; clock-skew errors trigger a resync
// before being surfaced as retryable transport errors.
func (e *LinearExchange) wrap(err error) error {
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

func convertFuturesOrder(o *futures.Order) *OrderResponse {
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

// mapOrderStatus normalises exchange order states onto the shared enum.
func mapOrderStatus(status string) OrderStatus {
	switch strings.ToUpper(status) {
	case "NEW":
		return OrderStatusOpen
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED", "CANCELLED":
		return OrderStatusCancelled
	case "EXPIRED":
		return OrderStatusExpired
	case "REJECTED":
		return OrderStatusRejected
	}
	return OrderStatusOpen
}

func parseF(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
