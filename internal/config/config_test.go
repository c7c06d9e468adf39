package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
dry_run = true
log_level = "debug"

[trading]
series = "eth-updown-15m"
target_pair_cost = 0.985
cooldown = "10s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values win.
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "eth-updown-15m", cfg.Trading.Series)
	assert.Equal(t, 0.985, cfg.Trading.TargetPairCost)
	assert.Equal(t, 10*time.Second, cfg.Trading.Cooldown.Duration)

	// Untouched values keep their defaults.
	assert.Equal(t, "FOK", cfg.Trading.OrderType)
	assert.Equal(t, 5.0, cfg.Trading.OrderSize)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
	assert.Equal(t, 0.20, cfg.Trading.BalanceSlack)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UPDOWNBOT_WALLET_PRIVATE_KEY", "0xsecret")
	t.Setenv("UPDOWNBOT_TRADING_ORDER_SIZE", "12.5")
	t.Setenv("UPDOWNBOT_TRADING_POLL_INTERVAL", "750ms")
	t.Setenv("UPDOWNBOT_REDIS_ENABLED", "true")
	t.Setenv("UPDOWNBOT_NOTIFY_EVENTS", "trade_filled, unwind_failed")

	path := writeConfig(t, `
[trading]
order_size = 7.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)
	assert.Equal(t, 12.5, cfg.Trading.OrderSize) // env beats file
	assert.Equal(t, 750*time.Millisecond, cfg.Trading.PollInterval.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"trade_filled", "unwind_failed"}, cfg.Notify.Events)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateDefaultsWithWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xabc"
	assert.NoError(t, cfg.Validate())
}

func TestValidateDryRunNeedsNoWallet(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateZeroRiskLimitsDisableChecks(t *testing.T) {
	// Zeroing a risk limit turns that check off; validation must not
	// force every limit back on.
	cfg := Defaults()
	cfg.DryRun = true
	cfg.Risk.MaxDailyLoss = 0
	cfg.Risk.MaxPositionSize = 0
	cfg.Risk.MaxTradesPerDay = 0
	cfg.Risk.MaxBalanceUtilization = 0
	assert.NoError(t, cfg.Validate())

	// Negative limits are still malformed.
	cfg.Risk.MaxDailyLoss = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_daily_loss")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	// No wallet, undersized orders, bogus feed and threshold.
	cfg.Trading.OrderSize = 2
	cfg.Trading.Feed = "carrier-pigeon"
	cfg.Trading.TargetPairCost = 1.5
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "order_size")
	assert.Contains(t, msg, "feed")
	assert.Contains(t, msg, "target_pair_cost")
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "wallet")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.EncryptedKeyPath = "/keys/wallet.enc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func TestValidateSubsystemsOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = true

	// Disabled subsystems with broken settings do not fail validation.
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = true
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "tok"

	red := Redacted(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
}
