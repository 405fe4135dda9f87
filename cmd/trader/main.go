// Command trader is the engine binary. `trading start` runs the scheduler
// with the health/metrics server, `trading db init` applies the schema and
// seeds the account, and `trading tools serve` exposes the agent toolset
// over JSON-RPC on stdio.
//
// Exit codes: 0 on clean shutdown, 1 on configuration or initialization
// failure, 2 on a fatal runtime error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/perptrader/internal/agenttools"
	"github.com/ajitpratap0/perptrader/internal/alerts"
	"github.com/ajitpratap0/perptrader/internal/api"
	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/db"
	"github.com/ajitpratap0/perptrader/internal/exchange"
	"github.com/ajitpratap0/perptrader/internal/executor"
	"github.com/ajitpratap0/perptrader/internal/market"
	"github.com/ajitpratap0/perptrader/internal/risk"
	"github.com/ajitpratap0/perptrader/internal/strategy"
	"github.com/ajitpratap0/perptrader/internal/trader"
)

const shutdownGrace = 10 * time.Second

// runtimeError marks failures that happen after startup succeeded, so main
// can distinguish exit code 2 from configuration failures.
type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var rerr *runtimeError
		if errors.As(err, &rerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trading",
		Short:         "Autonomous perpetual-futures trading engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newStartCmd(), newDBCmd(), newToolsCmd())
	return root
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler and the health/metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ex, err := buildExchange(cfg, redisClient)
	if err != nil {
		return err
	}

	store, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	events, err := trader.NewPublisher(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connecting event publisher: %w", err)
	}
	if events != nil {
		defer events.Close()
	}

	alertMgr := alerts.NewManager(cfg.Alerts)
	if events != nil {
		alertMgr.Add(events)
	}

	data := market.NewDataService(ex, cfg.Preset())
	guard := executor.NewGuard(store)

	eng := trader.New(trader.Deps{
		Config:     cfg,
		Exchange:   ex,
		Store:      store,
		Data:       data,
		Classifier: market.NewClassifier(cfg.Regime),
		Router:     strategy.NewRouter(cfg.Trading.MaxLeverage),
		Scorer:     strategy.NewScorer(cfg.Scorer),
		Stops:      risk.NewEngine(cfg.Stops),
		Breakers:   risk.NewBreakerManager(),
		Alerts:     alertMgr,
		PartialTP:  executor.NewPartialTPExecutor(store, ex, guard, cfg.Preset().PartialTP),
		Reversal:   executor.NewReversalMonitor(data, market.NewScoreHistory(), store, ex, guard, "monitor"),
		Events:     events,
	})

	apiSrv := api.NewServer(cfg.API, store, ex)

	logger.Info().
		Str("exchange", string(cfg.Exchange.Name)).
		Str("strategy", cfg.Trading.Strategy).
		Str("api_addr", cfg.API.Addr).
		Msg("Engine starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(apiSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return apiSrv.Stop(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Engine stopped with error")
		return &runtimeError{err: err}
	}
	logger.Info().Msg("Engine stopped")
	return nil
}

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database administration",
	}

	var dbURL string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Apply the schema and seed the initial account row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd.Context(), dbURL)
		},
	}
	initCmd.Flags().StringVar(&dbURL, "db", "", "database URL (default: DATABASE_URL)")

	dbCmd.AddCommand(initCmd)
	return dbCmd
}

// runDBInit reads only the settings it needs so the schema can be applied
// before exchange credentials exist.
func runDBInit(ctx context.Context, dbURL string) error {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("initial_balance", 1000.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	config.InitLogger(v.GetString("log_level"), v.GetString("log_format"))
	logger := config.NewLogger("db-init")

	if dbURL == "" {
		dbURL = v.GetString("database_url")
	}
	if dbURL == "" {
		return fmt.Errorf("database_url is not set")
	}

	migrator, err := db.NewMigrator(dbURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	balance := v.GetFloat64("initial_balance")
	if err := migrator.SeedAccount(ctx, balance); err != nil {
		return fmt.Errorf("seeding account: %w", err)
	}

	logger.Info().Float64("initial_balance", balance).Msg("Database initialized")
	return nil
}

func newToolsCmd() *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Agent tooling",
	}
	toolsCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the agent toolset over JSON-RPC on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsServe()
		},
	})
	return toolsCmd
}

func runToolsServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Stdout carries the JSON-RPC stream; all logging goes to stderr.
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ex, err := buildExchange(cfg, redisClient)
	if err != nil {
		return err
	}

	store, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	data := market.NewDataService(ex, cfg.Preset())
	guard := executor.NewGuard(store)

	tools := agenttools.NewToolset(agenttools.ToolsetDeps{
		Config:     cfg,
		Exchange:   ex,
		Data:       data,
		Classifier: market.NewClassifier(cfg.Regime),
		Router:     strategy.NewRouter(cfg.Trading.MaxLeverage),
		Scorer:     strategy.NewScorer(cfg.Scorer),
		Stops:      risk.NewEngine(cfg.Stops),
		Store:      store,
		PartialTP:  executor.NewPartialTPExecutor(store, ex, guard, cfg.Preset().PartialTP),
	})

	if err := agenttools.NewServer(tools, os.Stdin, os.Stdout).Run(ctx); err != nil {
		return &runtimeError{err: err}
	}
	return nil
}

// buildExchange selects the adapter for the configured exchange kind. The
// mock adapter is accepted for paper runs against an empty book.
func buildExchange(cfg *config.Config, redisClient *redis.Client) (exchange.Exchange, error) {
	switch cfg.Exchange.Name {
	case config.ExchangeLinear:
		return exchange.NewLinearExchange(cfg.Exchange, redisClient, cfg.Trading.Symbols), nil
	case config.ExchangeInverse:
		return exchange.NewInverseExchange(cfg.Exchange, redisClient, cfg.Trading.Symbols), nil
	case config.ExchangeMock:
		return exchange.NewMockExchange(), nil
	}
	return nil, fmt.Errorf("unsupported exchange %q", cfg.Exchange.Name)
}
