package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setStringSlice(&cfg.Trading.Symbols, "CROSSARB_TRADING_SYMBOLS")
	setDuration(&cfg.Trading.ScanInterval, "CROSSARB_TRADING_SCAN_INTERVAL")
	setDuration(&cfg.Trading.FetchTimeout, "CROSSARB_TRADING_FETCH_TIMEOUT")
	setDuration(&cfg.Trading.TickTimeout, "CROSSARB_TRADING_TICK_TIMEOUT")
	setFloat64(&cfg.Trading.MinSpreadPercent, "CROSSARB_TRADING_MIN_SPREAD_PERCENT")
	setFloat64(&cfg.Trading.TargetSpreadPercent, "CROSSARB_TRADING_TARGET_SPREAD_PERCENT")
	setStr(&cfg.Trading.SizingPolicy, "CROSSARB_TRADING_SIZING_POLICY")
	setFloat64(&cfg.Trading.NotionalUSD, "CROSSARB_TRADING_NOTIONAL_USD")
	setFloat64(&cfg.Trading.RiskFraction, "CROSSARB_TRADING_RISK_FRACTION")
	setFloat64(&cfg.Trading.MaxNotionalUSD, "CROSSARB_TRADING_MAX_NOTIONAL_USD")
	setInt(&cfg.Trading.StatsLogEvery, "CROSSARB_TRADING_STATS_LOG_EVERY")

	// ── Risk ──
	setInt(&cfg.Risk.MaxPositions, "CROSSARB_RISK_MAX_POSITIONS")
	setInt(&cfg.Risk.Leverage, "CROSSARB_RISK_LEVERAGE")
	setFloat64(&cfg.Risk.StopLossPercent, "CROSSARB_RISK_STOP_LOSS_PERCENT")
	setFloat64(&cfg.Risk.TakeProfitPercent, "CROSSARB_RISK_TAKE_PROFIT_PERCENT")
	setDuration(&cfg.Risk.MaxHoldDuration, "CROSSARB_RISK_MAX_HOLD_DURATION")
	setDuration(&cfg.Risk.MaxQuoteAge, "CROSSARB_RISK_MAX_QUOTE_AGE")
	setFloat64(&cfg.Risk.FeeRate, "CROSSARB_RISK_FEE_RATE")
	setFloat64(&cfg.Risk.MaxDailyLoss, "CROSSARB_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.InitialBalance, "CROSSARB_RISK_INITIAL_BALANCE")

	// ── Mexc ──
	setStr(&cfg.Mexc.BaseURL, "CROSSARB_MEXC_BASE_URL")
	setStr(&cfg.Mexc.WsURL, "CROSSARB_MEXC_WS_URL")
	setStr(&cfg.Mexc.ApiKey, "CROSSARB_MEXC_API_KEY")
	setStr(&cfg.Mexc.ApiSecret, "CROSSARB_MEXC_API_SECRET")
	setStr(&cfg.Mexc.SecretFile, "CROSSARB_MEXC_SECRET_FILE")
	setStr(&cfg.Mexc.SecretPassword, "CROSSARB_MEXC_SECRET_PASSWORD")
	setBool(&cfg.Mexc.WsEnabled, "CROSSARB_MEXC_WS_ENABLED")
	setDuration(&cfg.Mexc.Timeout, "CROSSARB_MEXC_TIMEOUT")

	// ── Dex ──
	setStr(&cfg.Dex.BaseURL, "CROSSARB_DEX_BASE_URL")
	setStr(&cfg.Dex.Chain, "CROSSARB_DEX_CHAIN")
	setDuration(&cfg.Dex.Timeout, "CROSSARB_DEX_TIMEOUT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CROSSARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setDuration(&cfg.Redis.QuoteTTL, "CROSSARB_REDIS_QUOTE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
