// Package config defines the top-level configuration for the cross-venue
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Risk     RiskConfig     `toml:"risk"`
	Mexc     MexcConfig     `toml:"mexc"`
	Dex      DexConfig      `toml:"dex"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds scan cadence, symbol universe, and sizing parameters.
type TradingConfig struct {
	Symbols             []string `toml:"symbols"`
	ScanInterval        duration `toml:"scan_interval"`
	FetchTimeout        duration `toml:"fetch_timeout"` // per-venue quote fetch deadline
	TickTimeout         duration `toml:"tick_timeout"`  // hard deadline for one scan cycle
	MinSpreadPercent    float64  `toml:"min_spread_percent"`
	TargetSpreadPercent float64  `toml:"target_spread_percent"`
	SizingPolicy        string   `toml:"sizing_policy"`
	NotionalUSD         float64  `toml:"notional_usd"`
	RiskFraction        float64  `toml:"risk_fraction"`
	MaxNotionalUSD      float64  `toml:"max_notional_usd"`
	StatsLogEvery       int      `toml:"stats_log_every"`
}

// RiskConfig holds the position limits applied by the position manager.
type RiskConfig struct {
	MaxPositions      int      `toml:"max_positions"`
	Leverage          int      `toml:"leverage"`
	StopLossPercent   float64  `toml:"stop_loss_percent"`
	TakeProfitPercent float64  `toml:"take_profit_percent"`
	MaxHoldDuration   duration `toml:"max_hold_duration"`
	MaxQuoteAge       duration `toml:"max_quote_age"`
	FeeRate           float64  `toml:"fee_rate"`
	MaxDailyLoss      float64  `toml:"max_daily_loss"`
	InitialBalance    float64  `toml:"initial_balance"` // paper balance for test mode
}

// MexcConfig holds MEXC futures API endpoints and credentials. The API key
// pair is only required in live mode.
type MexcConfig struct {
	BaseURL        string   `toml:"base_url"`
	WsURL          string   `toml:"ws_url"`
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	SecretFile     string   `toml:"secret_file"`     // encrypted api_secret, used when api_secret is empty
	SecretPassword string   `toml:"secret_password"` // password for secret_file, normally set via env
	WsEnabled      bool     `toml:"ws_enabled"`
	Timeout        duration `toml:"timeout"`
}

// DexConfig holds the DEX price aggregator endpoint and the symbol-to-pair
// address mapping it requires.
type DexConfig struct {
	BaseURL  string            `toml:"base_url"`
	Chain    string            `toml:"chain"`
	TokenMap map[string]string `toml:"token_map"` // symbol -> pair address
	Timeout  duration          `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for trade event and
// statistics persistence.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the quote cache.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters for session reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Symbols:             []string{"BTC/USDT", "ETH/USDT"},
			ScanInterval:        duration{30 * time.Second},
			FetchTimeout:        duration{10 * time.Second},
			TickTimeout:         duration{25 * time.Second},
			MinSpreadPercent:    3.0,
			TargetSpreadPercent: 1.5,
			SizingPolicy:        "fixed_notional",
			NotionalUSD:         100,
			RiskFraction:        0.05,
			MaxNotionalUSD:      1000,
			StatsLogEvery:       10,
		},
		Risk: RiskConfig{
			MaxPositions:      3,
			Leverage:          1,
			StopLossPercent:   2.0,
			TakeProfitPercent: 4.0,
			MaxHoldDuration:   duration{time.Hour},
			MaxQuoteAge:       duration{2 * time.Minute},
			FeeRate:           0.0004,
			MaxDailyLoss:      0,
			InitialBalance:    10000,
		},
		Mexc: MexcConfig{
			BaseURL:   "https://contract.mexc.com",
			WsURL:     "wss://contract.mexc.com/edge",
			WsEnabled: false,
			Timeout:   duration{10 * time.Second},
		},
		Dex: DexConfig{
			BaseURL: "https://api.dexscreener.com",
			Chain:   "bsc",
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			QuoteTTL:   duration{10 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-reports",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed"},
		},
		Mode:     "test",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"test": true,
	"live": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSizingPolicies enumerates the accepted values for
// TradingConfig.SizingPolicy.
var validSizingPolicies = map[string]bool{
	"fixed_notional": true,
	"risk_fraction":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: test, live)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, "trading: symbols must not be empty")
	}
	if c.Trading.ScanInterval.Duration <= 0 {
		errs = append(errs, "trading: scan_interval must be > 0")
	}
	if c.Trading.FetchTimeout.Duration <= 0 {
		errs = append(errs, "trading: fetch_timeout must be > 0")
	}
	if c.Trading.TickTimeout.Duration <= 0 {
		errs = append(errs, "trading: tick_timeout must be > 0")
	}
	if c.Trading.MinSpreadPercent <= 0 {
		errs = append(errs, "trading: min_spread_percent must be > 0")
	}
	if c.Trading.TargetSpreadPercent <= 0 {
		errs = append(errs, "trading: target_spread_percent must be > 0")
	}
	if c.Trading.TargetSpreadPercent >= c.Trading.MinSpreadPercent {
		errs = append(errs, fmt.Sprintf("trading: target_spread_percent (%.2f) must be below min_spread_percent (%.2f)",
			c.Trading.TargetSpreadPercent, c.Trading.MinSpreadPercent))
	}
	if !validSizingPolicies[c.Trading.SizingPolicy] {
		errs = append(errs, fmt.Sprintf("trading: unknown sizing_policy %q (valid: fixed_notional, risk_fraction)", c.Trading.SizingPolicy))
	}
	switch c.Trading.SizingPolicy {
	case "fixed_notional":
		if c.Trading.NotionalUSD <= 0 {
			errs = append(errs, "trading: notional_usd must be > 0 for fixed_notional sizing")
		}
	case "risk_fraction":
		if c.Trading.RiskFraction <= 0 || c.Trading.RiskFraction > 1 {
			errs = append(errs, fmt.Sprintf("trading: risk_fraction must be in (0, 1], got %v", c.Trading.RiskFraction))
		}
		if c.Trading.MaxNotionalUSD <= 0 {
			errs = append(errs, "trading: max_notional_usd must be > 0 for risk_fraction sizing")
		}
	}

	// Risk
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}
	if c.Risk.Leverage < 1 {
		errs = append(errs, "risk: leverage must be >= 1")
	}
	if c.Risk.StopLossPercent <= 0 || c.Risk.StopLossPercent >= 100 {
		errs = append(errs, fmt.Sprintf("risk: stop_loss_percent must be in (0, 100), got %v", c.Risk.StopLossPercent))
	}
	if c.Risk.TakeProfitPercent <= 0 {
		errs = append(errs, "risk: take_profit_percent must be > 0")
	}
	if c.Risk.MaxHoldDuration.Duration <= 0 {
		errs = append(errs, "risk: max_hold_duration must be > 0")
	}
	if c.Risk.FeeRate < 0 {
		errs = append(errs, "risk: fee_rate must be >= 0")
	}
	if c.Risk.MaxDailyLoss < 0 {
		errs = append(errs, "risk: max_daily_loss must be >= 0 (0 disables the guard)")
	}
	if c.Mode == "test" && c.Risk.InitialBalance <= 0 {
		errs = append(errs, "risk: initial_balance must be > 0 in test mode")
	}

	// Mexc — credentials only matter when orders hit the real venue.
	if c.Mexc.BaseURL == "" {
		errs = append(errs, "mexc: base_url must not be empty")
	}
	if c.Mode == "live" {
		if c.Mexc.ApiKey == "" {
			errs = append(errs, "mexc: api_key is required in live mode")
		}
		if c.Mexc.ApiSecret == "" && c.Mexc.SecretFile == "" {
			errs = append(errs, "mexc: api_secret or secret_file is required in live mode")
		}
		if c.Mexc.SecretFile != "" && c.Mexc.ApiSecret == "" && c.Mexc.SecretPassword == "" {
			errs = append(errs, "mexc: secret_password is required to decrypt secret_file")
		}
	}
	if c.Mexc.WsEnabled && c.Mexc.WsURL == "" {
		errs = append(errs, "mexc: ws_url must not be empty when ws_enabled")
	}

	// Dex
	if c.Dex.BaseURL == "" {
		errs = append(errs, "dex: base_url must not be empty")
	}
	for _, sym := range c.Trading.Symbols {
		if _, ok := c.Dex.TokenMap[sym]; !ok {
			errs = append(errs, fmt.Sprintf("dex: token_map is missing an entry for symbol %q", sym))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
			if c.Postgres.User == "" {
				errs = append(errs, "postgres: user must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < c.Postgres.PoolMinConns {
			errs = append(errs, "postgres: pool_max_conns must be >= pool_min_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.QuoteTTL.Duration <= 0 {
			errs = append(errs, "redis: quote_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
