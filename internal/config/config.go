// Package config loads engine configuration from environment variables and
// provides the strategy presets that select timeframes and partial
// take-profit parameters.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ExchangeKind selects the adapter variant.
type ExchangeKind string

const (
	ExchangeLinear  ExchangeKind = "linear"
	ExchangeInverse ExchangeKind = "inverse"
	// ExchangeMock is accepted for paper trading and tests only.
	ExchangeMock ExchangeKind = "mock"
)

// Config holds all engine configuration.
type Config struct {
	App      AppConfig
	Exchange ExchangeConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Trading  TradingConfig
	Stops    StopConfig
	Regime   RegimeConfig
	Scorer   ScorerConfig
	Risk     RiskConfig
	Alerts   AlertConfig
	API      APIConfig
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name      string
	LogLevel  string
	LogFormat string // "json" or "console"
}

// ExchangeConfig contains exchange credentials and endpoint selection.
type ExchangeConfig struct {
	Name       ExchangeKind
	APIKey     string
	APISecret  string
	UseTestnet bool
}

// DatabaseConfig contains the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	PoolSize int
}

// RedisConfig contains the short-TTL market cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig contains the optional event-publisher settings.
// An empty URL disables publishing.
type NATSConfig struct {
	URL string
}

// TradingConfig contains the scheduler and watch-list settings.
type TradingConfig struct {
	IntervalMinutes         int
	PriceOrderCheckInterval int // seconds
	Strategy                string
	Symbols                 []string
	MaxPositions            int
	MaxLeverage             float64
	MaxHoldingHours         int
	InitialBalance          float64
	PositionSizeUSDT        float64
	EnableTrailingStopLoss  bool
	EnableStopLossFilter    bool
	EnableScientificStop    bool
}

// StopConfig contains the stop-loss engine parameters.
type StopConfig struct {
	ATRPeriod                 int
	ATRMultiplier             float64
	SupportResistanceLookback int
	SupportResistanceBuffer   float64 // percent
	MinStopLossPercent        float64
	MaxStopLossPercent        float64
	MinQualityScore           float64
}

// RegimeConfig contains the classifier momentum thresholds.
type RegimeConfig struct {
	OversoldExtreme   float64
	OversoldMild      float64
	OverboughtMild    float64
	OverboughtExtreme float64
}

// ScorerConfig contains the opportunity scorer parameters.
type ScorerConfig struct {
	MinScore   float64
	MaxResults int
}

// RiskConfig contains account-level kill-switch settings.
type RiskConfig struct {
	DrawdownWarningPct       float64
	DrawdownNoNewPositionPct float64
	DrawdownForceClosePct    float64
	// EnableDrawdownActions gates the no-new-position and force-close
	// checks; the warning log fires regardless.
	EnableDrawdownActions bool
}

// AlertConfig contains operator alert fan-out settings.
type AlertConfig struct {
	TelegramToken  string
	TelegramChatID int64
}

// APIConfig contains the health/metrics server settings.
type APIConfig struct {
	Addr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name:      v.GetString("app_name"),
			LogLevel:  v.GetString("log_level"),
			LogFormat: v.GetString("log_format"),
		},
		Exchange: ExchangeConfig{
			Name:       ExchangeKind(strings.ToLower(v.GetString("exchange_name"))),
			UseTestnet: v.GetBool("exchange_use_testnet"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("database_url"),
			PoolSize: v.GetInt("database_pool_size"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		NATS: NATSConfig{
			URL: v.GetString("nats_url"),
		},
		Trading: TradingConfig{
			IntervalMinutes:         v.GetInt("trading_interval_minutes"),
			PriceOrderCheckInterval: v.GetInt("price_order_check_interval"),
			Strategy:                v.GetString("trading_strategy"),
			Symbols:                 splitSymbols(v.GetString("trading_symbols")),
			MaxPositions:            v.GetInt("max_positions"),
			MaxLeverage:             v.GetFloat64("max_leverage"),
			MaxHoldingHours:         v.GetInt("max_holding_hours"),
			InitialBalance:          v.GetFloat64("initial_balance"),
			PositionSizeUSDT:        v.GetFloat64("position_size_usdt"),
			EnableTrailingStopLoss:  v.GetBool("enable_trailing_stop_loss"),
			EnableStopLossFilter:    v.GetBool("enable_stop_loss_filter"),
			EnableScientificStop:    v.GetBool("enable_scientific_stop_loss"),
		},
		Stops: StopConfig{
			ATRPeriod:                 v.GetInt("atr_period"),
			ATRMultiplier:             v.GetFloat64("atr_multiplier"),
			SupportResistanceLookback: v.GetInt("support_resistance_lookback"),
			SupportResistanceBuffer:   v.GetFloat64("support_resistance_buffer"),
			MinStopLossPercent:        v.GetFloat64("min_stop_loss_percent"),
			MaxStopLossPercent:        v.GetFloat64("max_stop_loss_percent"),
			MinQualityScore:           v.GetFloat64("min_stop_loss_quality_score"),
		},
		Regime: RegimeConfig{
			OversoldExtreme:   v.GetFloat64("oversold_extreme_threshold"),
			OversoldMild:      v.GetFloat64("oversold_mild_threshold"),
			OverboughtMild:    v.GetFloat64("overbought_mild_threshold"),
			OverboughtExtreme: v.GetFloat64("overbought_extreme_threshold"),
		},
		Scorer: ScorerConfig{
			MinScore:   v.GetFloat64("min_opportunity_score"),
			MaxResults: v.GetInt("max_opportunities_to_show"),
		},
		Risk: RiskConfig{
			DrawdownWarningPct:       v.GetFloat64("account_drawdown_warning_pct"),
			DrawdownNoNewPositionPct: v.GetFloat64("account_drawdown_no_new_position_pct"),
			DrawdownForceClosePct:    v.GetFloat64("account_drawdown_force_close_pct"),
			EnableDrawdownActions:    v.GetBool("enable_drawdown_actions"),
		},
		Alerts: AlertConfig{
			TelegramToken:  v.GetString("telegram_bot_token"),
			TelegramChatID: v.GetInt64("telegram_chat_id"),
		},
		API: APIConfig{
			Addr: v.GetString("api_addr"),
		},
	}

	// Credentials are keyed by the exchange name, e.g. LINEAR_API_KEY.
	prefix := strings.ToLower(string(cfg.Exchange.Name))
	cfg.Exchange.APIKey = v.GetString(prefix + "_api_key")
	cfg.Exchange.APISecret = v.GetString(prefix + "_api_secret")
	if v.IsSet(prefix + "_use_testnet") {
		cfg.Exchange.UseTestnet = v.GetBool(prefix + "_use_testnet")
	}

	// Vault is an optional source; environment wins when both are set.
	if cfg.Exchange.APIKey == "" {
		if key, secret, err := loadVaultCredentials(v, prefix); err == nil && key != "" {
			cfg.Exchange.APIKey = key
			cfg.Exchange.APISecret = secret
		}
	}

	// A preset file registers (or overrides) a preset before validation so
	// trading_strategy may name it.
	if path := v.GetString("strategy_preset_file"); path != "" {
		if _, err := LoadPresetFile(path); err != nil {
			return nil, fmt.Errorf("loading preset file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "perptrader")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("exchange_name", "linear")
	v.SetDefault("exchange_use_testnet", false)

	v.SetDefault("database_pool_size", 10)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("trading_interval_minutes", 5)
	v.SetDefault("price_order_check_interval", 30)
	v.SetDefault("trading_strategy", "balanced")
	v.SetDefault("trading_symbols", "BTC,ETH")
	v.SetDefault("max_positions", 5)
	v.SetDefault("max_leverage", 10.0)
	v.SetDefault("max_holding_hours", 36)
	v.SetDefault("initial_balance", 1000.0)
	v.SetDefault("position_size_usdt", 100.0)
	v.SetDefault("enable_trailing_stop_loss", true)
	v.SetDefault("enable_stop_loss_filter", true)
	v.SetDefault("enable_scientific_stop_loss", true)

	v.SetDefault("atr_period", 14)
	v.SetDefault("atr_multiplier", 2.0)
	v.SetDefault("support_resistance_lookback", 20)
	v.SetDefault("support_resistance_buffer", 0.5)
	v.SetDefault("min_stop_loss_percent", 1.0)
	v.SetDefault("max_stop_loss_percent", 5.0)
	v.SetDefault("min_stop_loss_quality_score", 40.0)

	v.SetDefault("oversold_extreme_threshold", 20.0)
	v.SetDefault("oversold_mild_threshold", 30.0)
	v.SetDefault("overbought_mild_threshold", 70.0)
	v.SetDefault("overbought_extreme_threshold", 80.0)

	v.SetDefault("min_opportunity_score", 40.0)
	v.SetDefault("max_opportunities_to_show", 5)

	v.SetDefault("account_drawdown_warning_pct", 10.0)
	v.SetDefault("account_drawdown_no_new_position_pct", 15.0)
	v.SetDefault("account_drawdown_force_close_pct", 20.0)
	v.SetDefault("enable_drawdown_actions", false)

	v.SetDefault("api_addr", ":8090")
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case ExchangeLinear, ExchangeInverse, ExchangeMock:
	default:
		return fmt.Errorf("invalid exchange_name %q: must be linear, inverse or mock", c.Exchange.Name)
	}
	if c.Exchange.Name != ExchangeMock && c.Exchange.APIKey == "" {
		return fmt.Errorf("missing API key for exchange %q", c.Exchange.Name)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database_url is not set")
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading_symbols is empty")
	}
	if _, ok := Presets[c.Trading.Strategy]; !ok {
		return fmt.Errorf("unknown trading_strategy %q", c.Trading.Strategy)
	}
	if c.Trading.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1")
	}
	if c.Trading.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage must be at least 1")
	}
	if c.Stops.ATRPeriod < 2 {
		return fmt.Errorf("atr_period must be at least 2")
	}
	if c.Stops.MinStopLossPercent <= 0 || c.Stops.MaxStopLossPercent <= c.Stops.MinStopLossPercent {
		return fmt.Errorf("stop-loss percent bounds are inconsistent: min=%.2f max=%.2f",
			c.Stops.MinStopLossPercent, c.Stops.MaxStopLossPercent)
	}
	return nil
}

// Preset returns the active strategy preset.
func (c *Config) Preset() StrategyPreset {
	return Presets[c.Trading.Strategy]
}

// TickInterval returns the main trading-loop cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Trading.IntervalMinutes) * time.Minute
}

// MonitorInterval returns the short monitor-loop cadence.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Trading.PriceOrderCheckInterval) * time.Second
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
