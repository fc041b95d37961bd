// Package config defines the top-level configuration for coinbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COINBOT_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Exits      ExitsConfig      `toml:"exits"`
	Indicators IndicatorsConfig `toml:"indicators"`
	Throttle   ThrottleConfig   `toml:"throttle"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Export     ExportConfig     `toml:"export"`
	Archive    ArchiveConfig    `toml:"archive"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Backtest   BacktestConfig   `toml:"backtest"`
}

// ExchangeConfig selects the venue and holds its credentials.
type ExchangeConfig struct {
	// Provider is "coinbase" or "binance".
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"` // empty selects the provider's production API

	// Coinbase CDP key: name plus ed25519 secret, or an encrypted key file.
	APIKeyName       string `toml:"api_key_name"`
	APISecret        string `toml:"api_secret"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`

	// Binance HMAC credentials and the stablecoin that stands in for USD.
	BinanceAPIKey    string `toml:"binance_api_key"`
	BinanceSecretKey string `toml:"binance_secret_key"`
	QuoteAsset       string `toml:"quote_asset"`

	RequestsPerSec float64  `toml:"requests_per_sec"`
	Burst          int      `toml:"burst"`
	MaxRetries     int      `toml:"max_retries"`
	Timeout        duration `toml:"timeout"`
}

// TradingConfig controls the decision loop.
type TradingConfig struct {
	Pairs            []string `toml:"pairs"`
	LoopInterval     duration `toml:"loop_interval"`
	Granularity      string   `toml:"granularity"`
	CandleLookback   duration `toml:"candle_lookback"`
	MinBuyCandles    int      `toml:"min_buy_candles"`
	MinSellCandles   int      `toml:"min_sell_candles"`
	UseLivePrice     bool     `toml:"use_live_price"`
	FetchConcurrency int      `toml:"fetch_concurrency"`
}

// RiskConfig holds the sizing and exposure limits.
type RiskConfig struct {
	StartingBalance  float64 `toml:"starting_balance"`
	MaxPositions     int     `toml:"max_positions"`
	MaxExposure      float64 `toml:"max_exposure"`
	MaxPerTrade      float64 `toml:"max_per_trade"`
	MinTradeUSD      float64 `toml:"min_trade_usd"`
	RiskPerTrade     float64 `toml:"risk_per_trade"`
	StrictInvariants bool    `toml:"strict_invariants"`
}

// PairTarget is a pair of absolute take-profit prices.
type PairTarget struct {
	TP1 float64 `toml:"tp1"`
	TP2 float64 `toml:"tp2"`
}

// ExitsConfig holds the tiered exit, trailing stop and RSI exit settings.
type ExitsConfig struct {
	ATRStopMultiplier  float64               `toml:"atr_stop_multiplier"`
	ATRTP1Multiplier   float64               `toml:"atr_tp1_multiplier"`
	ATRTP2Multiplier   float64               `toml:"atr_tp2_multiplier"`
	Tier1Fraction      float64               `toml:"tier1_fraction"`
	Tier2Fraction      float64               `toml:"tier2_fraction"`
	StaticTP1          float64               `toml:"static_tp1"`
	StaticTP2          float64               `toml:"static_tp2"`
	PairTargets        map[string]PairTarget `toml:"pair_targets"`
	TrailingActivation float64               `toml:"trailing_activation"`
	TrailingDistance   float64               `toml:"trailing_distance"`
	RSIOverbought      float64               `toml:"rsi_overbought"`
}

// IndicatorsConfig holds indicator periods and entry thresholds.
type IndicatorsConfig struct {
	RSIPeriod        int     `toml:"rsi_period"`
	EMAPeriod        int     `toml:"ema_period"`
	MACDFast         int     `toml:"macd_fast"`
	MACDSlow         int     `toml:"macd_slow"`
	MACDSignal       int     `toml:"macd_signal"`
	ATRPeriod        int     `toml:"atr_period"`
	RSIOversold      float64 `toml:"rsi_oversold"`
	RSISuperOversold float64 `toml:"rsi_super_oversold"`
	MaxVolatility    float64 `toml:"max_volatility"`
}

// ThrottleConfig controls the per-pair BUY signal cooldown.
type ThrottleConfig struct {
	Window duration `toml:"window"`

	// Persist stores signal times in Redis so restarts keep the cooldown.
	Persist bool `toml:"persist"`
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
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	PriceTTL   duration `toml:"price_ttl"`
	LockTTL    duration `toml:"lock_ttl"`
	StreamLen  int64    `toml:"stream_len"`
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

// ExportConfig controls the per-cycle dashboard documents.
type ExportConfig struct {
	Enabled  bool   `toml:"enabled"`
	Prefix   string `toml:"prefix"`
	LocalDir string `toml:"local_dir"`
}

// ArchiveConfig controls moving old trades to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	Schedule      string   `toml:"schedule"` // 5-field cron; overrides interval
	RetentionDays int      `toml:"retention_days"`
	Prune         bool     `toml:"prune"`
}

// KafkaConfig holds the event stream producer settings.
type KafkaConfig struct {
	Enabled     bool     `toml:"enabled"`
	Brokers     []string `toml:"brokers"`
	TopicPrefix string   `toml:"topic_prefix"`
	Channels    []string `toml:"channels"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint on the API server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// BacktestConfig is the replay window for backtest mode.
type BacktestConfig struct {
	Start  string `toml:"start"` // RFC 3339 or YYYY-MM-DD
	End    string `toml:"end"`
	Warmup int    `toml:"warmup"`
}

// Defaults returns a Config populated with the stock trading parameters.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Exchange: ExchangeConfig{
			Provider:       "coinbase",
			QuoteAsset:     "USDT",
			RequestsPerSec: 8,
			Burst:          4,
			MaxRetries:     3,
			Timeout:        duration{15 * time.Second},
		},
		Trading: TradingConfig{
			Pairs: []string{
				"BTC-USD", "ETH-USD", "XRP-USD", "ADA-USD", "SOL-USD",
				"DOGE-USD", "DOT-USD", "AVAX-USD", "MATIC-USD", "LINK-USD",
				"UNI-USD", "LTC-USD", "ATOM-USD", "XLM-USD", "ALGO-USD",
				"VET-USD", "ICP-USD", "FIL-USD", "ETC-USD",
				"OP-USD", "ARB-USD",
			},
			LoopInterval:     duration{60 * time.Second},
			Granularity:      "ONE_MINUTE",
			CandleLookback:   duration{1000 * time.Minute},
			MinBuyCandles:    50,
			MinSellCandles:   15,
			UseLivePrice:     false,
			FetchConcurrency: 4,
		},
		Risk: RiskConfig{
			StartingBalance:  1000,
			MaxPositions:     4,
			MaxExposure:      0.75,
			MaxPerTrade:      0.25,
			MinTradeUSD:      50,
			RiskPerTrade:     0.02,
			StrictInvariants: false,
		},
		Exits: ExitsConfig{
			ATRStopMultiplier: 1.5,
			ATRTP1Multiplier:  2.0,
			ATRTP2Multiplier:  4.0,
			Tier1Fraction:     0.30,
			Tier2Fraction:     0.30,
			StaticTP1:         0.10,
			StaticTP2:         0.20,
			PairTargets: map[string]PairTarget{
				"XLM-USD":  {TP1: 0.46, TP2: 0.50},
				"XRP-USD":  {TP1: 3.50, TP2: 4.00},
				"LINK-USD": {TP1: 22.00, TP2: 28.00},
				"OP-USD":   {TP1: 3.00, TP2: 4.50},
				"ARB-USD":  {TP1: 1.20, TP2: 1.50},
			},
			TrailingActivation: 0.15,
			TrailingDistance:   0.03,
			RSIOverbought:      70,
		},
		Indicators: IndicatorsConfig{
			RSIPeriod:        14,
			EMAPeriod:        50,
			MACDFast:         12,
			MACDSlow:         26,
			MACDSignal:       9,
			ATRPeriod:        14,
			RSIOversold:      32,
			RSISuperOversold: 25,
			MaxVolatility:    0.03,
		},
		Throttle: ThrottleConfig{
			Window:  duration{15 * time.Minute},
			Persist: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "coinbot",
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
			KeyPrefix:  "coinbot",
			PriceTTL:   duration{10 * time.Minute},
			LockTTL:    duration{30 * time.Second},
			StreamLen:  10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "coinbot-data",
			ForcePathStyle: true,
		},
		Export: ExportConfig{
			Enabled: true,
			Prefix:  "dashboard",
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			TopicPrefix: "coinbot",
			Channels:    []string{"trades", "signals", "cycles"},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_entry", "trade_exit", "cycle_error", "error"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Backtest: BacktestConfig{
			Warmup: 60,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":    true,
	"live":     true,
	"monitor":  true,
	"backtest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validGranularities = map[string]bool{
	"ONE_MINUTE":     true,
	"FIVE_MINUTE":    true,
	"FIFTEEN_MINUTE": true,
	"ONE_HOUR":       true,
	"ONE_DAY":        true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	fraction := func(name string, v float64, allowZero bool) {
		if v < 0 || v > 1 || (!allowZero && v == 0) {
			add("%s must be in (0, 1], got %g", name, v)
		}
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: paper, live, monitor, backtest)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Exchange
	switch c.Exchange.Provider {
	case "coinbase":
		if mode == "live" {
			if c.Exchange.APIKeyName == "" {
				add("exchange: api_key_name is required for live mode")
			}
			if c.Exchange.APISecret == "" && c.Exchange.EncryptedKeyPath == "" {
				add("exchange: either api_secret or encrypted_key_path must be set for live mode")
			}
		}
		if c.Exchange.EncryptedKeyPath != "" && c.Exchange.KeyPassword == "" {
			add("exchange: key_password is required when encrypted_key_path is set")
		}
	case "binance":
		if mode == "live" && (c.Exchange.BinanceAPIKey == "" || c.Exchange.BinanceSecretKey == "") {
			add("exchange: binance_api_key and binance_secret_key are required for live mode")
		}
	default:
		add("exchange: unknown provider %q (valid: coinbase, binance)", c.Exchange.Provider)
	}
	if c.Exchange.RequestsPerSec <= 0 {
		add("exchange: requests_per_sec must be > 0")
	}
	if c.Exchange.MaxRetries < 0 {
		add("exchange: max_retries must be >= 0")
	}

	// Trading
	if len(c.Trading.Pairs) == 0 {
		add("trading: pairs must not be empty")
	}
	seen := make(map[string]bool, len(c.Trading.Pairs))
	for _, p := range c.Trading.Pairs {
		if !strings.Contains(p, "-") {
			add("trading: pair %q must look like BASE-QUOTE", p)
		}
		if seen[p] {
			add("trading: duplicate pair %q", p)
		}
		seen[p] = true
	}
	if c.Trading.LoopInterval.Duration < time.Second {
		add("trading: loop_interval must be at least 1s")
	}
	if !validGranularities[c.Trading.Granularity] {
		add("trading: unknown granularity %q", c.Trading.Granularity)
	}
	if c.Trading.CandleLookback.Duration <= 0 {
		add("trading: candle_lookback must be > 0")
	}
	if c.Trading.MinBuyCandles < 1 || c.Trading.MinSellCandles < 1 {
		add("trading: min_buy_candles and min_sell_candles must be >= 1")
	}

	// Risk
	if c.Risk.StartingBalance <= 0 {
		add("risk: starting_balance must be > 0")
	}
	if c.Risk.MaxPositions < 0 {
		add("risk: max_positions must be >= 0")
	}
	fraction("risk: max_exposure", c.Risk.MaxExposure, false)
	fraction("risk: max_per_trade", c.Risk.MaxPerTrade, false)
	fraction("risk: risk_per_trade", c.Risk.RiskPerTrade, false)
	if c.Risk.MinTradeUSD < 0 {
		add("risk: min_trade_usd must be >= 0")
	}

	// Exits
	fraction("exits: tier1_fraction", c.Exits.Tier1Fraction, false)
	fraction("exits: tier2_fraction", c.Exits.Tier2Fraction, false)
	if c.Exits.Tier1Fraction+c.Exits.Tier2Fraction >= 1 {
		add("exits: tier1_fraction + tier2_fraction must leave a remainder for the trailing stop")
	}
	fraction("exits: trailing_distance", c.Exits.TrailingDistance, false)
	if c.Exits.TrailingActivation <= 0 {
		add("exits: trailing_activation must be > 0")
	}
	if c.Exits.ATRStopMultiplier <= 0 || c.Exits.ATRTP1Multiplier <= 0 || c.Exits.ATRTP2Multiplier <= 0 {
		add("exits: ATR multipliers must be > 0")
	}
	if c.Exits.ATRTP2Multiplier <= c.Exits.ATRTP1Multiplier {
		add("exits: atr_tp2_multiplier must exceed atr_tp1_multiplier")
	}
	if c.Exits.StaticTP2 <= c.Exits.StaticTP1 || c.Exits.StaticTP1 <= 0 {
		add("exits: static targets must satisfy 0 < static_tp1 < static_tp2")
	}
	for pair, t := range c.Exits.PairTargets {
		if t.TP1 <= 0 || t.TP2 <= t.TP1 {
			add("exits: pair_targets[%s] must satisfy 0 < tp1 < tp2", pair)
		}
	}

	// Indicators
	ind := c.Indicators
	if ind.RSIPeriod < 2 || ind.EMAPeriod < 1 || ind.ATRPeriod < 1 {
		add("indicators: rsi_period must be >= 2 and ema/atr periods >= 1")
	}
	if ind.MACDFast < 1 || ind.MACDSlow <= ind.MACDFast || ind.MACDSignal < 1 {
		add("indicators: MACD periods must satisfy 1 <= fast < slow and signal >= 1")
	}
	if ind.RSISuperOversold >= ind.RSIOversold {
		add("indicators: rsi_super_oversold must be below rsi_oversold")
	}
	if ind.MaxVolatility <= 0 {
		add("indicators: max_volatility must be > 0")
	}

	if c.Throttle.Window.Duration < 0 {
		add("throttle: window must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			add("redis: lock_ttl must be at least 1s")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must not be empty")
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled || !c.Postgres.Enabled {
			add("archive: requires both s3 and postgres to be enabled")
		}
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if c.Archive.Schedule == "" && c.Archive.Interval.Duration <= 0 {
			add("archive: either schedule or a positive interval is required")
		}
	}

	// Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		add("kafka: brokers must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
	}
	if mode == "monitor" && !c.Server.Enabled {
		add("monitor mode requires server.enabled")
	}

	// Backtest
	if mode == "backtest" {
		if _, err := ParseDate(c.Backtest.Start); err != nil {
			add("backtest: start: %v", err)
		}
		if c.Backtest.End != "" {
			if _, err := ParseDate(c.Backtest.End); err != nil {
				add("backtest: end: %v", err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC).
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want RFC 3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}
