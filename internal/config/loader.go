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
// built-in defaults, applies UPDOWNBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known UPDOWNBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWNBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWNBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWNBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "UPDOWNBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWNBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "UPDOWNBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "UPDOWNBOT_POLYMARKET_CHAIN_ID")

	// ── Trading ──
	setStr(&cfg.Trading.Series, "UPDOWNBOT_TRADING_SERIES")
	setStr(&cfg.Trading.Feed, "UPDOWNBOT_TRADING_FEED")
	setFloat64(&cfg.Trading.TargetPairCost, "UPDOWNBOT_TRADING_TARGET_PAIR_COST")
	setFloat64(&cfg.Trading.OrderSize, "UPDOWNBOT_TRADING_ORDER_SIZE")
	setStr(&cfg.Trading.OrderType, "UPDOWNBOT_TRADING_ORDER_TYPE")
	setDuration(&cfg.Trading.Cooldown, "UPDOWNBOT_TRADING_COOLDOWN")
	setDuration(&cfg.Trading.PollInterval, "UPDOWNBOT_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.Debounce, "UPDOWNBOT_TRADING_DEBOUNCE")
	setDuration(&cfg.Trading.BalanceTTL, "UPDOWNBOT_TRADING_BALANCE_TTL")
	setFloat64(&cfg.Trading.BalanceSlack, "UPDOWNBOT_TRADING_BALANCE_SLACK")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLoss, "UPDOWNBOT_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxPositionSize, "UPDOWNBOT_RISK_MAX_POSITION_SIZE")
	setInt(&cfg.Risk.MaxTradesPerDay, "UPDOWNBOT_RISK_MAX_TRADES_PER_DAY")
	setFloat64(&cfg.Risk.MinBalanceRequired, "UPDOWNBOT_RISK_MIN_BALANCE_REQUIRED")
	setFloat64(&cfg.Risk.MaxBalanceUtilization, "UPDOWNBOT_RISK_MAX_BALANCE_UTILIZATION")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "UPDOWNBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWNBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWNBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWNBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWNBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWNBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWNBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWNBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWNBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWNBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWNBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWNBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWNBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWNBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWNBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWNBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWNBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWNBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWNBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWNBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWNBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWNBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWNBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWNBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWNBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWNBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWNBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWNBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWNBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWNBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setBool(&cfg.DryRun, "UPDOWNBOT_DRY_RUN")
	setFloat64(&cfg.SimBalance, "UPDOWNBOT_SIM_BALANCE")
	setStr(&cfg.LogLevel, "UPDOWNBOT_LOG_LEVEL")
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
