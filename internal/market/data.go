package market

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/indicators"
)

// TimeframeSet is the computed indicator triple for one symbol.
type TimeframeSet struct {
	Symbol  string
	Primary *indicators.TimeframeIndicators
	Confirm *indicators.TimeframeIndicators
	Filter  *indicators.TimeframeIndicators
}

// DataService fetches candles and computes indicator triples. Requests are
// throttled by a shared token bucket so parallel symbol scans stay inside
// the exchange's rate limits.
type DataService struct {
	exchange exchange.Exchange
	preset   config.StrategyPreset
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// requestsPerSecond bounds candle fetches across all goroutines.
const requestsPerSecond = 8

// NewDataService creates the market data service for the active preset.
func NewDataService(ex exchange.Exchange, preset config.StrategyPreset) *DataService {
	return &DataService{
		exchange: ex,
		preset:   preset,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:   config.NewLogger("market.data"),
	}
}

// Timeframes fetches the three preset intervals for a symbol in parallel
// and computes the indicator set for each.
func (s *DataService) Timeframes(ctx context.Context, symbol string) (*TimeframeSet, error) {
	contract := s.exchange.NormalizeSymbol(symbol)
	set := &TimeframeSet{Symbol: symbol}

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(interval string, dst **indicators.TimeframeIndicators) {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			candles, err := s.exchange.Candles(gctx, contract, interval, s.preset.CandleLimit)
			if err != nil {
				return fmt.Errorf("fetching %s %s candles: %w", symbol, interval, err)
			}
			*dst = indicators.Compute(symbol, interval, candles)
			return nil
		})
	}

	fetch(s.preset.Primary, &set.Primary)
	fetch(s.preset.Confirm, &set.Confirm)
	fetch(s.preset.Filter, &set.Filter)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// TimeframesAll fetches indicator triples for every symbol with bounded
// concurrency. Symbols that fail are logged and omitted rather than
// failing the whole scan.
func (s *DataService) TimeframesAll(ctx context.Context, symbols []string) map[string]*TimeframeSet {
	results := make([]*TimeframeSet, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, symbol := range symbols {
		g.Go(func() error {
			set, err := s.Timeframes(gctx, symbol)
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol, indicator fetch failed")
				return nil
			}
			results[i] = set
			return nil
		})
	}
	// Individual failures are swallowed above; Wait only surfaces context
	// cancellation.
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Msg("Symbol scan interrupted")
	}

	out := make(map[string]*TimeframeSet, len(symbols))
	for _, set := range results {
		if set != nil {
			out[set.Symbol] = set
		}
	}
	return out
}
