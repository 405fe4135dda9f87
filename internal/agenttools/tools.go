// Package agenttools exposes the engine's analysis and execution surface as
// tool calls for an external LLM agent, served over JSON-RPC on stdio.
package agenttools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/executor"
	"github.com/ajitpratap0/perptrader/internal/market"
	"github.com/ajitpratap0/perptrader/internal/risk"
	"github.com/ajitpratap0/perptrader/internal/strategy"
)

// MarketData yields indicator triples for the opportunity scan.
type MarketData interface {
	TimeframesAll(ctx context.Context, symbols []string) map[string]*market.TimeframeSet
}

// PositionStore is the read surface the tools need from the store.
type PositionStore interface {
	OpenPositions(ctx context.Context) ([]*db.Position, error)
	StageExecuted(ctx context.Context, positionOrderID string, stage int) (bool, error)
}

// StageExecutor runs the partial take-profit ladder for one position.
type StageExecutor interface {
	CheckAndExecute(ctx context.Context, pos *db.Position) (*executor.StageResult, error)
}

// Toolset implements the agent-facing tool calls on top of the engine's
// own components. Analysis tools are read-only; partial_take_profit is the
// single write path and runs under the same distributed lock the monitor
// loop uses.
type Toolset struct {
	cfg        *config.Config
	ex         exchange.Exchange
	data       MarketData
	classifier *market.Classifier
	router     *strategy.Router
	scorer     *strategy.Scorer
	stops      *risk.Engine
	store      PositionStore
	partial    StageExecutor
	logger     zerolog.Logger
}

// ToolsetDeps wires the toolset's collaborators.
type ToolsetDeps struct {
	Config     *config.Config
	Exchange   exchange.Exchange
	Data       MarketData
	Classifier *market.Classifier
	Router     *strategy.Router
	Scorer     *strategy.Scorer
	Stops      *risk.Engine
	Store      PositionStore
	PartialTP  StageExecutor
}

// NewToolset assembles the agent toolset.
func NewToolset(d ToolsetDeps) *Toolset {
	return &Toolset{
		cfg:        d.Config,
		ex:         d.Exchange,
		data:       d.Data,
		classifier: d.Classifier,
		router:     d.Router,
		scorer:     d.Scorer,
		stops:      d.Stops,
		store:      d.Store,
		partial:    d.PartialTP,
		logger:     config.NewLogger("agenttools"),
	}
}

// AnalyzeArgs are the inputs of analyze_opening_opportunities. Zero values
// fall back to the configured watch-list and scorer parameters.
type AnalyzeArgs struct {
	Symbols              []string `json:"symbols,omitempty"`
	MinScore             *float64 `json:"min_score,omitempty"`
	MaxResults           *int     `json:"max_results,omitempty"`
	IncludeOpenPositions bool     `json:"include_open_positions,omitempty"`
}

// FilterInfo reports the effective filter parameters of one analysis.
type FilterInfo struct {
	MinScore        float64  `json:"min_score"`
	MaxResults      int      `json:"max_results"`
	ExcludedSymbols []string `json:"excluded_symbols,omitempty"`
}

// AnalyzeResult is the output of analyze_opening_opportunities.
type AnalyzeResult struct {
	Success            bool                    `json:"success"`
	TotalAnalyzed      int                     `json:"total_analyzed"`
	OpportunitiesFound int                     `json:"opportunities_found"`
	TopOpportunities   []*strategy.Opportunity `json:"top_opportunities"`
	FilterInfo         FilterInfo              `json:"filter_info"`
	MarketSummary      map[string]string       `json:"market_summary"`
	Timestamp          time.Time               `json:"timestamp"`
}

// AnalyzeOpeningOpportunities runs the same scan the trading tick runs and
// returns the ranked survivors without opening anything.
func (t *Toolset) AnalyzeOpeningOpportunities(ctx context.Context, args AnalyzeArgs) (*AnalyzeResult, error) {
	symbols := args.Symbols
	if len(symbols) == 0 {
		symbols = t.cfg.Trading.Symbols
	}
	minScore := t.cfg.Scorer.MinScore
	if args.MinScore != nil {
		minScore = *args.MinScore
	}
	maxResults := t.cfg.Scorer.MaxResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}

	openSymbols := make(map[string]bool)
	if !args.IncludeOpenPositions {
		positions, err := t.store.OpenPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing open positions: %w", err)
		}
		for _, pos := range positions {
			openSymbols[pos.Symbol] = true
		}
	}

	sets := t.data.TimeframesAll(ctx, symbols)

	summary := make(map[string]string, len(sets))
	var candidates []*strategy.Opportunity
	for _, symbol := range symbols {
		set, ok := sets[symbol]
		if !ok {
			continue
		}
		analysis := t.classifier.Classify(symbol, set.Primary, set.Confirm, set.Filter)
		summary[symbol] = string(analysis.Regime)

		result := t.router.Evaluate(set, analysis)
		if result.Action == strategy.ActionWait {
			continue
		}
		candidates = append(candidates, t.scorer.Score(result, analysis))
	}

	var excluded []string
	var survivors []*strategy.Opportunity
	for _, opp := range candidates {
		if openSymbols[opp.Symbol] {
			excluded = append(excluded, opp.Symbol)
			continue
		}
		if float64(opp.Score) < minScore {
			continue
		}
		survivors = append(survivors, opp)
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})
	if maxResults > 0 && len(survivors) > maxResults {
		survivors = survivors[:maxResults]
	}

	return &AnalyzeResult{
		Success:            true,
		TotalAnalyzed:      len(sets),
		OpportunitiesFound: len(survivors),
		TopOpportunities:   survivors,
		FilterInfo: FilterInfo{
			MinScore:        minScore,
			MaxResults:      maxResults,
			ExcludedSymbols: excluded,
		},
		MarketSummary: summary,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// StopLossArgs are the inputs of calculate_stop_loss and, minus the
// timeframe, check_open_position.
type StopLossArgs struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Timeframe  string  `json:"timeframe,omitempty"`
}

// CalculateStopLoss computes a full stop result for a prospective entry.
func (t *Toolset) CalculateStopLoss(ctx context.Context, args StopLossArgs) (*risk.StopResult, error) {
	side, err := parseSide(args.Side)
	if err != nil {
		return nil, err
	}
	candles, err := t.fetchCandles(ctx, args.Symbol, args.Timeframe)
	if err != nil {
		return nil, err
	}
	return t.stops.Calculate(args.Symbol, side, args.EntryPrice, candles)
}

// OpenCheckResult is the output of check_open_position.
type OpenCheckResult struct {
	ShouldOpen bool             `json:"should_open"`
	Data       *risk.StopResult `json:"data,omitempty"`
	Message    string           `json:"message"`
}

// CheckOpenPosition runs the stop open-gate for a prospective entry.
func (t *Toolset) CheckOpenPosition(ctx context.Context, args StopLossArgs) (*OpenCheckResult, error) {
	result, err := t.CalculateStopLoss(ctx, args)
	if err != nil {
		return nil, err
	}
	ok, reason := t.stops.ShouldOpen(result)
	return &OpenCheckResult{ShouldOpen: ok, Data: result, Message: reason}, nil
}

// TrailingArgs are the inputs of update_trailing_stop.
type TrailingArgs struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	EntryPrice      float64 `json:"entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	CurrentStopLoss float64 `json:"current_stop_loss"`
}

// UpdateTrailingStop recomputes the trailing stop for an open position and
// reports whether it should tighten. The decision is advisory; the caller
// (or the scheduler's own trailing pass) applies it.
func (t *Toolset) UpdateTrailingStop(ctx context.Context, args TrailingArgs) (*risk.TrailingUpdate, error) {
	side, err := parseSide(args.Side)
	if err != nil {
		return nil, err
	}
	candles, err := t.fetchCandles(ctx, args.Symbol, "")
	if err != nil {
		return nil, err
	}
	return t.stops.UpdateTrailing(args.Symbol, side, args.CurrentPrice, args.CurrentStopLoss, candles)
}

// LadderStage is the agent-facing view of one take-profit stage.
type LadderStage struct {
	Stage        int     `json:"stage"`
	TriggerPrice float64 `json:"trigger_price"`
	Reached      bool    `json:"reached"`
	Executed     bool    `json:"executed"`
	Executable   bool    `json:"executable"`
}

// PositionLadder is the ladder state of one open position.
type PositionLadder struct {
	Symbol           string        `json:"symbol"`
	Side             string        `json:"side"`
	EntryPrice       float64       `json:"entry_price"`
	CurrentPrice     float64       `json:"current_price"`
	RiskPerUnit      float64       `json:"risk_per_unit"`
	Stages           []LadderStage `json:"stages"`
	ExecutableStages []int         `json:"executable_stages,omitempty"`
}

// LadderReport is the output of check_partial_take_profit_opportunity.
type LadderReport struct {
	Success   bool             `json:"success"`
	Positions []PositionLadder `json:"positions"`
	Timestamp time.Time        `json:"timestamp"`
}

// CheckPartialTakeProfit reports, per open position, which ladder stages the
// current price has reached and which are still pending execution.
func (t *Toolset) CheckPartialTakeProfit(ctx context.Context) (*LadderReport, error) {
	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open positions: %w", err)
	}
	plan := t.cfg.Preset().PartialTP

	report := &LadderReport{Success: true, Timestamp: time.Now().UTC()}
	for _, pos := range positions {
		r := math.Abs(pos.EntryPrice - pos.EntryStopLoss)
		if r <= 0 {
			t.logger.Warn().
				Str("symbol", pos.Symbol).
				Str("side", string(pos.Side)).
				Msg("Position has no risk unit, skipping ladder report")
			continue
		}

		contract := t.ex.NormalizeSymbol(pos.Symbol)
		ticker, err := t.ex.Ticker(ctx, contract, true)
		if err != nil {
			return nil, fmt.Errorf("fetching ticker for %s: %w", pos.Symbol, err)
		}
		price := ticker.MarkPrice
		if price == 0 {
			price = ticker.Last
		}

		ladder := PositionLadder{
			Symbol:       pos.Symbol,
			Side:         string(pos.Side),
			EntryPrice:   pos.EntryPrice,
			CurrentPrice: price,
			RiskPerUnit:  r,
		}
		for stage := 1; stage <= len(plan.RMultiples); stage++ {
			trigger := stageTrigger(pos, plan.RMultiples[stage-1], r)
			reached := triggerReached(pos.Side, price, trigger)
			executed, err := t.store.StageExecuted(ctx, pos.EntryOrderID, stage)
			if err != nil {
				return nil, err
			}
			entry := LadderStage{
				Stage:        stage,
				TriggerPrice: trigger,
				Reached:      reached,
				Executed:     executed,
				Executable:   reached && !executed,
			}
			ladder.Stages = append(ladder.Stages, entry)
			if entry.Executable {
				ladder.ExecutableStages = append(ladder.ExecutableStages, stage)
			}
		}
		report.Positions = append(report.Positions, ladder)
	}
	return report, nil
}

// PartialTPArgs are the inputs of partial_take_profit.
type PartialTPArgs struct {
	Symbol string `json:"symbol"`
	Stage  int    `json:"stage"`
}

// PartialTPResult is the output of partial_take_profit.
type PartialTPResult struct {
	Success bool                  `json:"success"`
	Result  *executor.StageResult `json:"result,omitempty"`
	Message string                `json:"message"`
}

// ExecutePartialTakeProfit acts on a previously reported opportunity. The
// ladder executor fires the lowest pending stage whose trigger is reached,
// so the executed stage can differ from the requested one when the agent's
// view is stale.
func (t *Toolset) ExecutePartialTakeProfit(ctx context.Context, args PartialTPArgs) (*PartialTPResult, error) {
	if args.Stage < 1 || args.Stage > 3 {
		return nil, fmt.Errorf("stage %d out of range [1,3]", args.Stage)
	}

	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open positions: %w", err)
	}
	var pos *db.Position
	for _, p := range positions {
		if p.Symbol == args.Symbol {
			pos = p
			break
		}
	}
	if pos == nil {
		return &PartialTPResult{
			Success: false,
			Message: fmt.Sprintf("no open position for %s", args.Symbol),
		}, nil
	}

	result, err := t.partial.CheckAndExecute(ctx, pos)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &PartialTPResult{
			Success: false,
			Message: "no stage executable at the current price",
		}, nil
	}

	message := fmt.Sprintf("stage %d executed", result.Stage)
	if result.Stage != args.Stage {
		message = fmt.Sprintf("stage %d was pending before stage %d and executed first", result.Stage, args.Stage)
	}
	return &PartialTPResult{Success: true, Result: result, Message: message}, nil
}

// fetchCandles pulls the primary-timeframe series sized for the stop engine.
func (t *Toolset) fetchCandles(ctx context.Context, symbol, timeframe string) ([]exchange.Candle, error) {
	if timeframe == "" {
		timeframe = t.cfg.Preset().Primary
	}
	limit := t.stops.CandleNeed()
	if presetLimit := t.cfg.Preset().CandleLimit; presetLimit > limit {
		limit = presetLimit
	}
	contract := t.ex.NormalizeSymbol(symbol)
	candles, err := t.ex.Candles(ctx, contract, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s candles: %w", symbol, timeframe, err)
	}
	return candles, nil
}

func parseSide(s string) (exchange.PositionSide, error) {
	switch s {
	case string(exchange.SideLong):
		return exchange.SideLong, nil
	case string(exchange.SideShort):
		return exchange.SideShort, nil
	}
	return "", fmt.Errorf("invalid side %q: must be long or short", s)
}

func stageTrigger(pos *db.Position, multiple, r float64) float64 {
	if pos.Side == exchange.SideShort {
		return pos.EntryPrice - multiple*r
	}
	return pos.EntryPrice + multiple*r
}

func triggerReached(side exchange.PositionSide, price, trigger float64) bool {
	if side == exchange.SideShort {
		return price <= trigger
	}
	return price >= trigger
}
