// Package config defines the top-level configuration for the buy alert
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BUYALERT_* environment variables.
type Config struct {
	Mode          string   `toml:"mode"`
	LogLevel      string   `toml:"log_level"`
	Asset         string   `toml:"asset"`
	ValueRequire  float64  `toml:"value_require"`
	ActiveChatIDs []string `toml:"active_chat_ids"`

	LogFile          LogFileConfig          `toml:"log_file"`
	Telegram         TelegramConfig         `toml:"telegram"`
	Discord          DiscordConfig          `toml:"discord"`
	DynamicThreshold DynamicThresholdConfig `toml:"dynamic_threshold"`
	TradeAggregation TradeAggregationConfig `toml:"trade_aggregation"`
	SweepOrders      SweepOrdersConfig      `toml:"sweep_orders"`
	Availability     AvailabilityConfig     `toml:"availability"`
	Exchanges        ExchangesConfig        `toml:"exchanges"`
	Reconnect        ReconnectConfig        `toml:"reconnect"`
	Delivery         DeliveryConfig         `toml:"delivery"`
	Media            MediaConfig            `toml:"media"`
	Redis            RedisConfig            `toml:"redis"`
	Postgres         PostgresConfig         `toml:"postgres"`
	S3               S3Config               `toml:"s3"`
	Kafka            KafkaConfig            `toml:"kafka"`
	Server           ServerConfig           `toml:"server"`
}

// LogFileConfig enables a rotating log file next to stdout.
type LogFileConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string   `toml:"bot_token"`
	APIBase  string   `toml:"api_base"`
	Timeout  duration `toml:"timeout"`
}

// DiscordConfig lists Discord webhook targets.
type DiscordConfig struct {
	WebhookURLs []string `toml:"webhook_urls"`
}

// DynamicThresholdConfig controls volume-driven threshold recomputation.
type DynamicThresholdConfig struct {
	Enabled            bool     `toml:"enabled"`
	BaseValue          float64  `toml:"base_value"`
	VolumeMultiplier   float64  `toml:"volume_multiplier"`
	PriceCheckInterval duration `toml:"price_check_interval"`
	MinThreshold       float64  `toml:"min_threshold"`
	MaxThreshold       float64  `toml:"max_threshold"`
}

// TradeAggregationConfig controls per exchange+pair trade bucketing.
type TradeAggregationConfig struct {
	Enabled       bool     `toml:"enabled"`
	WindowSeconds int      `toml:"window_seconds"`
	SweepInterval duration `toml:"sweep_interval"`
}

// Window returns the aggregation window as a duration.
func (t TradeAggregationConfig) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// SweepOrdersConfig controls order-book sweep detection.
type SweepOrdersConfig struct {
	Enabled         bool    `toml:"enabled"`
	MinValue        float64 `toml:"min_value"`
	MaxAvgPriceUSDT float64 `toml:"max_avg_price_usdt"`
	MaxAvgPriceBTC  float64 `toml:"max_avg_price_btc"`
	Depth           int     `toml:"depth"`
}

// AvailabilityConfig controls listing probes.
type AvailabilityConfig struct {
	CheckInterval duration `toml:"check_interval"`
	PollInterval  duration `toml:"poll_interval"`
}

// ExchangesConfig groups per-venue settings.
type ExchangesConfig struct {
	NonKYC   VenueConfig `toml:"nonkyc"`
	CoinEx   VenueConfig `toml:"coinex"`
	AscendEX VenueConfig `toml:"ascendex"`
}

// VenueConfig holds endpoints, pairs, and optional credentials for a venue.
type VenueConfig struct {
	Enabled   bool     `toml:"enabled"`
	WsURL     string   `toml:"ws_url"`
	RestURL   string   `toml:"rest_url"`
	Pairs     []string `toml:"pairs"`
	Orderbook bool     `toml:"orderbook"`
	APIKey    string   `toml:"api_key"`
	SecretKey string   `toml:"secret_key"`
}

// ReconnectConfig holds the streaming reconnect policy.
type ReconnectConfig struct {
	InitialDelay   duration `toml:"initial_delay"`
	MaxDelay       duration `toml:"max_delay"`
	RateLimitedMax duration `toml:"rate_limited_max"`
	ReadTimeout    duration `toml:"read_timeout"`
}

// DeliveryConfig controls alert delivery pacing and layout.
type DeliveryConfig struct {
	PerTargetInterval duration `toml:"per_target_interval"`
	MaxBreakdownLines int      `toml:"max_breakdown_lines"`
	UTCOffsetHours    int      `toml:"utc_offset_hours"`
}

// MediaConfig selects where alert images come from. S3Prefix is used when
// s3.enabled is true; otherwise Dir is scanned.
type MediaConfig struct {
	Dir          string `toml:"dir"`
	DefaultImage string `toml:"default_image"`
	S3Prefix     string `toml:"s3_prefix"`
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
	ArchivePrefix  string `toml:"archive_prefix"`
}

// KafkaConfig enables the alert event topic.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled           bool `toml:"enabled"`
	Port              int  `toml:"port"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// Duration builds a config duration; used by tests and callers assembling
// a Config in code.
func Duration(d time.Duration) duration {
	return duration{d}
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
func Defaults() Config {
	return Config{
		Mode:         "alert",
		LogLevel:     "info",
		Asset:        "JKC",
		ValueRequire: 300,
		LogFile: LogFileConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Telegram: TelegramConfig{
			APIBase: "https://api.telegram.org",
			Timeout: duration{30 * time.Second},
		},
		DynamicThreshold: DynamicThresholdConfig{
			Enabled:            false,
			BaseValue:          300,
			VolumeMultiplier:   0.05,
			PriceCheckInterval: duration{time.Hour},
			MinThreshold:       100,
			MaxThreshold:       1000,
		},
		TradeAggregation: TradeAggregationConfig{
			Enabled:       true,
			WindowSeconds: 8,
			SweepInterval: duration{2 * time.Second},
		},
		SweepOrders: SweepOrdersConfig{
			Enabled:         true,
			MinValue:        80,
			MaxAvgPriceUSDT: 10,
			MaxAvgPriceBTC:  0.001,
			Depth:           20,
		},
		Availability: AvailabilityConfig{
			CheckInterval: duration{300 * time.Second},
			PollInterval:  duration{60 * time.Second},
		},
		Exchanges: ExchangesConfig{
			NonKYC: VenueConfig{
				Enabled:   true,
				WsURL:     "wss://ws.nonkyc.io",
				RestURL:   "https://api.nonkyc.io/api/v2",
				Pairs:     []string{"JKC/USDT"},
				Orderbook: true,
			},
			CoinEx: VenueConfig{
				Enabled: true,
				WsURL:   "wss://socket.coinex.com/",
				RestURL: "https://api.coinex.com/v1",
				Pairs:   []string{"JKC/USDT"},
			},
			AscendEX: VenueConfig{
				Enabled: true,
				WsURL:   "wss://ascendex.com/0/api/pro/v1/stream",
				RestURL: "https://ascendex.com/api/pro/v1",
				Pairs:   []string{"JKC/USDT"},
			},
		},
		Reconnect: ReconnectConfig{
			InitialDelay:   duration{5 * time.Second},
			MaxDelay:       duration{60 * time.Second},
			RateLimitedMax: duration{300 * time.Second},
			ReadTimeout:    duration{5 * time.Second},
		},
		Delivery: DeliveryConfig{
			PerTargetInterval: duration{time.Second},
			MaxBreakdownLines: 5,
			UTCOffsetHours:    7,
		},
		Media: MediaConfig{
			Dir:          "images",
			DefaultImage: "jkc_buy_alert.gif",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "buyalert",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "buyalert",
			ForcePathStyle: true,
			ArchivePrefix:  "dispatch",
		},
		Kafka: KafkaConfig{
			Topic: "buyalert.alerts",
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8080,
			RequestsPerMinute: 120,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"alert":   true,
	"dry-run": true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: alert, dry-run, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if strings.TrimSpace(c.Asset) == "" {
		errs = append(errs, "asset must not be empty")
	}
	if c.ValueRequire <= 0 {
		errs = append(errs, "value_require must be > 0")
	}

	// Delivery targets are only needed when alerts are actually sent.
	if strings.ToLower(c.Mode) == "alert" {
		if len(c.ActiveChatIDs) == 0 && len(c.Discord.WebhookURLs) == 0 {
			errs = append(errs, "at least one of active_chat_ids or discord.webhook_urls is required in alert mode")
		}
		if len(c.ActiveChatIDs) > 0 && c.Telegram.BotToken == "" {
			errs = append(errs, "telegram: bot_token is required when active_chat_ids is set")
		}
	}

	dt := c.DynamicThreshold
	if dt.MinThreshold <= 0 {
		errs = append(errs, "dynamic_threshold: min_threshold must be > 0")
	}
	if dt.MaxThreshold < dt.MinThreshold {
		errs = append(errs, "dynamic_threshold: max_threshold must be >= min_threshold")
	}
	if dt.Enabled {
		if dt.PriceCheckInterval.Duration <= 0 {
			errs = append(errs, "dynamic_threshold: price_check_interval must be > 0 when enabled")
		}
		if dt.VolumeMultiplier < 0 {
			errs = append(errs, "dynamic_threshold: volume_multiplier must be >= 0")
		}
	}

	if c.TradeAggregation.Enabled {
		if c.TradeAggregation.WindowSeconds < 1 {
			errs = append(errs, "trade_aggregation: window_seconds must be >= 1 when enabled")
		}
		if c.TradeAggregation.SweepInterval.Duration <= 0 {
			errs = append(errs, "trade_aggregation: sweep_interval must be > 0 when enabled")
		}
	}

	if c.SweepOrders.Enabled {
		if c.SweepOrders.MinValue < 0 {
			errs = append(errs, "sweep_orders: min_value must be >= 0")
		}
		if c.SweepOrders.MaxAvgPriceUSDT <= 0 || c.SweepOrders.MaxAvgPriceBTC <= 0 {
			errs = append(errs, "sweep_orders: max_avg_price_usdt and max_avg_price_btc must be > 0")
		}
	}

	if c.Availability.CheckInterval.Duration <= 0 {
		errs = append(errs, "availability: check_interval must be > 0")
	}
	if c.Availability.PollInterval.Duration <= 0 {
		errs = append(errs, "availability: poll_interval must be > 0")
	}

	enabled := 0
	for name, v := range c.Venues() {
		if !v.Enabled {
			continue
		}
		enabled++
		if v.WsURL == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: ws_url must not be empty", name))
		}
		if v.RestURL == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: rest_url must not be empty", name))
		}
		if len(v.Pairs) == 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: at least one pair is required", name))
		}
		for _, p := range v.Pairs {
			if !strings.Contains(p, "/") {
				errs = append(errs, fmt.Sprintf("exchanges.%s: pair %q must look like BASE/QUOTE", name, p))
			}
		}
	}
	if enabled == 0 {
		errs = append(errs, "exchanges: at least one exchange must be enabled")
	}

	if c.Reconnect.InitialDelay.Duration <= 0 {
		errs = append(errs, "reconnect: initial_delay must be > 0")
	}
	if c.Reconnect.MaxDelay.Duration < c.Reconnect.InitialDelay.Duration {
		errs = append(errs, "reconnect: max_delay must be >= initial_delay")
	}
	if c.Reconnect.ReadTimeout.Duration <= 0 {
		errs = append(errs, "reconnect: read_timeout must be > 0")
	}

	if c.Delivery.MaxBreakdownLines < 0 {
		errs = append(errs, "delivery: max_breakdown_lines must be >= 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: at least one broker is required when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Venues returns the per-exchange settings keyed by their TOML table name.
func (c *Config) Venues() map[string]VenueConfig {
	return map[string]VenueConfig{
		"nonkyc":   c.Exchanges.NonKYC,
		"coinex":   c.Exchanges.CoinEx,
		"ascendex": c.Exchanges.AscendEX,
	}
}
