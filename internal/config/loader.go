package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix prefixes every environment override.
const envPrefix = "COINBOT_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, loads .env if present, applies COINBOT_* environment
// overrides, and returns the final Config. An empty path skips the file. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	normalizePairs(&cfg)
	return &cfg, nil
}

// normalizePairs upper-cases instrument names so pairs and pair_targets match
// the exchange's product ids regardless of how they were written.
func normalizePairs(cfg *Config) {
	for i, p := range cfg.Trading.Pairs {
		cfg.Trading.Pairs[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	if len(cfg.Exits.PairTargets) == 0 {
		return
	}
	targets := make(map[string]PairTarget, len(cfg.Exits.PairTargets))
	for pair, t := range cfg.Exits.PairTargets {
		targets[strings.ToUpper(strings.TrimSpace(pair))] = t
	}
	cfg.Exits.PairTargets = targets
}

// applyEnvOverrides reads well-known COINBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	// ── Exchange ──
	setStr(&cfg.Exchange.Provider, "EXCHANGE_PROVIDER")
	setStr(&cfg.Exchange.BaseURL, "EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKeyName, "EXCHANGE_API_KEY_NAME")
	setStr(&cfg.Exchange.APISecret, "EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedKeyPath, "EXCHANGE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Exchange.KeyPassword, "EXCHANGE_KEY_PASSWORD")
	setStr(&cfg.Exchange.BinanceAPIKey, "EXCHANGE_BINANCE_API_KEY")
	setStr(&cfg.Exchange.BinanceSecretKey, "EXCHANGE_BINANCE_SECRET_KEY")
	setStr(&cfg.Exchange.QuoteAsset, "EXCHANGE_QUOTE_ASSET")
	setFloat64(&cfg.Exchange.RequestsPerSec, "EXCHANGE_REQUESTS_PER_SEC")
	setInt(&cfg.Exchange.MaxRetries, "EXCHANGE_MAX_RETRIES")
	setDuration(&cfg.Exchange.Timeout, "EXCHANGE_TIMEOUT")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Pairs, "TRADING_PAIRS")
	setDuration(&cfg.Trading.LoopInterval, "TRADING_LOOP_INTERVAL")
	setStr(&cfg.Trading.Granularity, "TRADING_GRANULARITY")
	setDuration(&cfg.Trading.CandleLookback, "TRADING_CANDLE_LOOKBACK")
	setBool(&cfg.Trading.UseLivePrice, "TRADING_USE_LIVE_PRICE")

	// ── Risk ──
	setFloat64(&cfg.Risk.StartingBalance, "RISK_STARTING_BALANCE")
	setInt(&cfg.Risk.MaxPositions, "RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxExposure, "RISK_MAX_EXPOSURE")
	setFloat64(&cfg.Risk.MaxPerTrade, "RISK_MAX_PER_TRADE")
	setFloat64(&cfg.Risk.MinTradeUSD, "RISK_MIN_TRADE_USD")
	setFloat64(&cfg.Risk.RiskPerTrade, "RISK_RISK_PER_TRADE")
	setBool(&cfg.Risk.StrictInvariants, "RISK_STRICT_INVARIANTS")

	// ── Throttle ──
	setDuration(&cfg.Throttle.Window, "THROTTLE_WINDOW")
	setBool(&cfg.Throttle.Persist, "THROTTLE_PERSIST")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// ── S3 / export / archive ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setBool(&cfg.Export.Enabled, "EXPORT_ENABLED")
	setStr(&cfg.Export.Prefix, "EXPORT_PREFIX")
	setStr(&cfg.Export.LocalDir, "EXPORT_LOCAL_DIR")
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Schedule, "ARCHIVE_SCHEDULE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setStr(&cfg.Kafka.TopicPrefix, "KAFKA_TOPIC_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Backtest ──
	setStr(&cfg.Backtest.Start, "BACKTEST_START")
	setStr(&cfg.Backtest.End, "BACKTEST_END")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
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
