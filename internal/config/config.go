// Package config defines the top-level configuration for the up/down bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// minOrderSize is the venue's minimum order size in shares.
const minOrderSize = 5.0

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWNBOT_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`

	// DryRun routes orders to the in-process simulated venue instead of
	// the exchange. No wallet is required in this mode.
	DryRun     bool    `toml:"dry_run"`
	SimBalance float64 `toml:"sim_balance"`
	LogLevel   string  `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
}

// TradingConfig holds the pair-arbitrage strategy parameters.
type TradingConfig struct {
	// Series is the market series slug prefix, e.g. "btc-updown-15m".
	Series string `toml:"series"`
	// Feed selects the book source: "wss" (push) or "poll" (REST).
	Feed string `toml:"feed"`
	// TargetPairCost is the strict detection threshold; a pair is an
	// opportunity only while its combined cost is below this value.
	TargetPairCost float64 `toml:"target_pair_cost"`
	// OrderSize is the per-leg share count.
	OrderSize float64 `toml:"order_size"`
	// OrderType for entry legs: FOK, FAK, or GTC. Non-immediate types
	// are forced to FOK at execution time.
	OrderType    string   `toml:"order_type"`
	Cooldown     duration `toml:"cooldown"`
	PollInterval duration `toml:"poll_interval"`
	Debounce     duration `toml:"debounce"`
	BalanceTTL   duration `toml:"balance_ttl"`
	BalanceSlack float64  `toml:"balance_slack"`
}

// RiskConfig holds the daily risk limits.
type RiskConfig struct {
	MaxDailyLoss          float64 `toml:"max_daily_loss"`
	MaxPositionSize       float64 `toml:"max_position_size"`
	MaxTradesPerDay       int     `toml:"max_trades_per_day"`
	MinBalanceRequired    float64 `toml:"min_balance_required"`
	MaxBalanceUtilization float64 `toml:"max_balance_utilization"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
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
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
		},
		Trading: TradingConfig{
			Series:         "btc-updown-15m",
			Feed:           "wss",
			TargetPairCost: 0.99,
			OrderSize:      5.0,
			OrderType:      "FOK",
			Cooldown:       duration{5 * time.Second},
			PollInterval:   duration{2 * time.Second},
			Debounce:       duration{100 * time.Millisecond},
			BalanceTTL:     duration{30 * time.Second},
			BalanceSlack:   0.20,
		},
		Risk: RiskConfig{
			MaxDailyLoss:          50.0,
			MaxPositionSize:       100.0,
			MaxTradesPerDay:       50,
			MinBalanceRequired:    10.0,
			MaxBalanceUtilization: 0.5,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "updownbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-data",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_filled", "unwound", "unwind_failed", "risk_limit"},
		},
		DryRun:     false,
		SimBalance: 1000.0,
		LogLevel:   "info",
	}
}

// validFeeds enumerates the accepted values for TradingConfig.Feed.
var validFeeds = map[string]bool{
	"wss":  true,
	"poll": true,
}

// validOrderTypes enumerates the accepted values for TradingConfig.OrderType.
var validOrderTypes = map[string]bool{
	"FOK": true,
	"FAK": true,
	"GTC": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet credentials are only needed when trading against the real venue.
	if !c.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set (or enable dry_run)")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}
	if c.DryRun && c.SimBalance <= 0 {
		errs = append(errs, "sim_balance must be > 0 in dry_run mode")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Trading
	if c.Trading.Series == "" {
		errs = append(errs, "trading: series must not be empty")
	}
	if !validFeeds[strings.ToLower(c.Trading.Feed)] {
		errs = append(errs, fmt.Sprintf("trading: unknown feed %q (valid: wss, poll)", c.Trading.Feed))
	}
	if c.Trading.TargetPairCost <= 0 || c.Trading.TargetPairCost > 1 {
		errs = append(errs, fmt.Sprintf("trading: target_pair_cost must be in (0, 1], got %g", c.Trading.TargetPairCost))
	}
	if c.Trading.OrderSize < minOrderSize {
		errs = append(errs, fmt.Sprintf("trading: order_size must be >= %g (venue minimum), got %g", minOrderSize, c.Trading.OrderSize))
	}
	if !validOrderTypes[strings.ToUpper(c.Trading.OrderType)] {
		errs = append(errs, fmt.Sprintf("trading: unknown order_type %q (valid: FOK, FAK, GTC)", c.Trading.OrderType))
	}
	if c.Trading.BalanceSlack < 0 || c.Trading.BalanceSlack >= 1 {
		errs = append(errs, fmt.Sprintf("trading: balance_slack must be in [0, 1), got %g", c.Trading.BalanceSlack))
	}
	if c.Trading.PollInterval.Duration < 0 {
		errs = append(errs, "trading: poll_interval must not be negative (0 polls continuously)")
	}

	// Risk. Zero disables an individual limit, so only negative values
	// (and an impossible utilization) are rejected.
	if c.Risk.MaxDailyLoss < 0 {
		errs = append(errs, "risk: max_daily_loss must be >= 0 (0 disables the check)")
	}
	if c.Risk.MaxPositionSize < 0 {
		errs = append(errs, "risk: max_position_size must be >= 0 (0 disables the check)")
	}
	if c.Risk.MaxTradesPerDay < 0 {
		errs = append(errs, "risk: max_trades_per_day must be >= 0 (0 disables the check)")
	}
	if c.Risk.MaxBalanceUtilization < 0 || c.Risk.MaxBalanceUtilization > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_balance_utilization must be in [0, 1], got %g", c.Risk.MaxBalanceUtilization))
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
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Notify: a chat id without a token (or vice versa) is a config mistake.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
