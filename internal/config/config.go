// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	// MaxShardSize caps the instruments per socket
	MaxShardSize = 200
	// MaxStreamsPerSocket is the exchange limit on combined streams per connection
	MaxStreamsPerSocket = 1024
)

// KlineIntervals lists the timeframes the exchange serves kline streams for.
var KlineIntervals = []string{
	"1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// Config holds all configuration values for the candlewatch engine.
type Config struct {
	// Exchange endpoints
	ExchangeInfoURL string `env:"EXCHANGE_INFO_URL" envDefault:"https://fapi.binance.com/fapi/v1/exchangeInfo"`
	StreamURL       string `env:"STREAM_URL" envDefault:"wss://fstream.binance.com/stream"`
	QuoteAsset      string `env:"QUOTE_ASSET" envDefault:"USDT"`

	// Subscriptions
	Timeframes []string `env:"TIMEFRAMES" envDefault:"5m,15m,30m,1h" envSeparator:","`
	ShardSize  int      `env:"SHARD_SIZE" envDefault:"20"`

	// Detection thresholds, in percent
	Thresholds       map[string]string `env:"THRESHOLDS" envDefault:"5m:2,15m:3,30m:5,1h:10" envSeparator:"," envKeyValSeparator:":"`
	DefaultThreshold string            `env:"DEFAULT_THRESHOLD" envDefault:"5"`

	// Connection lifecycle
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	DiscoveryRetryDelay time.Duration `env:"DISCOVERY_RETRY_DELAY" envDefault:"5s"`
	DiscoveryTimeout    time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"10s"`
	HandshakeTimeout    time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	ReadTimeout         time.Duration `env:"WS_READ_TIMEOUT" envDefault:"70s"`

	// Dedup table
	DedupResetSchedule string `env:"DEDUP_RESET_SCHEDULE" envDefault:"@every 24h"`
	DedupMaxEntries    int    `env:"DEDUP_MAX_ENTRIES" envDefault:"100000"`

	// Alerting
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	TelegramChatID string        `env:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL string        `env:"TELEGRAM_API_URL"`
	AlertTimeout   time.Duration `env:"ALERT_TIMEOUT" envDefault:"10s"`
	AlertDryRun    bool          `env:"ALERT_DRY_RUN" envDefault:"false"`

	// Status API
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// UI
	EnableTUI   bool `env:"ENABLE_TUI" envDefault:"false"`
	UIRefreshMS int  `env:"UI_REFRESH_MS" envDefault:"500"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	thresholds       map[string]decimal.Decimal
	defaultThreshold decimal.Decimal
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
// It also resolves the threshold table.
func (c *Config) Validate() error {
	if c.ExchangeInfoURL == "" {
		return fmt.Errorf("EXCHANGE_INFO_URL is required")
	}

	if c.StreamURL == "" {
		return fmt.Errorf("STREAM_URL is required")
	}

	if c.QuoteAsset == "" {
		return fmt.Errorf("QUOTE_ASSET is required")
	}

	if len(c.Timeframes) == 0 {
		return fmt.Errorf("TIMEFRAMES must list at least one timeframe")
	}
	seen := make(map[string]bool, len(c.Timeframes))
	for i, tf := range c.Timeframes {
		tf = strings.TrimSpace(tf)
		if !slices.Contains(KlineIntervals, tf) {
			return fmt.Errorf("TIMEFRAMES: unsupported timeframe %q", tf)
		}
		if seen[tf] {
			return fmt.Errorf("TIMEFRAMES: duplicate timeframe %q", tf)
		}
		seen[tf] = true
		c.Timeframes[i] = tf
	}

	if c.ShardSize < 1 || c.ShardSize > MaxShardSize {
		return fmt.Errorf("SHARD_SIZE must be between 1 and %d", MaxShardSize)
	}

	if c.ShardSize*len(c.Timeframes) > MaxStreamsPerSocket {
		return fmt.Errorf("SHARD_SIZE x TIMEFRAMES exceeds %d streams per socket", MaxStreamsPerSocket)
	}

	def, err := parseThreshold(c.DefaultThreshold)
	if err != nil {
		return fmt.Errorf("DEFAULT_THRESHOLD: %w", err)
	}
	c.defaultThreshold = def

	c.thresholds = make(map[string]decimal.Decimal, len(c.Thresholds))
	for tf, raw := range c.Thresholds {
		tf = strings.TrimSpace(tf)
		if !slices.Contains(KlineIntervals, tf) {
			return fmt.Errorf("THRESHOLDS: unsupported timeframe %q", tf)
		}
		value, err := parseThreshold(raw)
		if err != nil {
			return fmt.Errorf("THRESHOLDS[%s]: %w", tf, err)
		}
		c.thresholds[tf] = value
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive")
	}

	if c.DiscoveryRetryDelay <= 0 {
		return fmt.Errorf("DISCOVERY_RETRY_DELAY must be positive")
	}

	if c.DiscoveryTimeout <= 0 || c.HandshakeTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("DISCOVERY_TIMEOUT, WS_HANDSHAKE_TIMEOUT and WS_READ_TIMEOUT must be positive")
	}

	if _, err := cron.ParseStandard(c.DedupResetSchedule); err != nil {
		return fmt.Errorf("DEDUP_RESET_SCHEDULE: %w", err)
	}

	if c.DedupMaxEntries < 1 {
		return fmt.Errorf("DEDUP_MAX_ENTRIES must be at least 1")
	}

	if !c.AlertDryRun {
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is required unless ALERT_DRY_RUN is set")
		}
		if c.TelegramChatID == "" {
			return fmt.Errorf("TELEGRAM_CHAT_ID is required unless ALERT_DRY_RUN is set")
		}
	}

	if c.AlertTimeout <= 0 {
		return fmt.Errorf("ALERT_TIMEOUT must be positive")
	}

	if c.UIRefreshMS < 50 {
		return fmt.Errorf("UI_REFRESH_MS must be at least 50")
	}

	return nil
}

// ThresholdTable returns the validated per-timeframe thresholds.
func (c *Config) ThresholdTable() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.thresholds))
	for tf, v := range c.thresholds {
		out[tf] = v
	}
	return out
}

// FallbackThreshold returns the threshold used for timeframes missing from the table.
func (c *Config) FallbackThreshold() decimal.Decimal {
	return c.defaultThreshold
}

// UIRefreshRate returns the dashboard refresh interval.
func (c *Config) UIRefreshRate() time.Duration {
	return time.Duration(c.UIRefreshMS) * time.Millisecond
}

// MaskedTelegramToken returns the bot token with most characters hidden for logging.
func (c *Config) MaskedTelegramToken() string {
	return maskSecret(c.TelegramToken)
}

// MaskedTelegramChatID returns the chat id with most characters hidden for logging.
func (c *Config) MaskedTelegramChatID() string {
	return maskSecret(c.TelegramChatID)
}

func parseThreshold(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be positive, got %s", value)
	}
	return value, nil
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
