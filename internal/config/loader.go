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
// built-in defaults, applies BUYALERT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BUYALERT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "BUYALERT_MODE")
	setStr(&cfg.LogLevel, "BUYALERT_LOG_LEVEL")
	setStr(&cfg.Asset, "BUYALERT_ASSET")
	setFloat64(&cfg.ValueRequire, "BUYALERT_VALUE_REQUIRE")
	setStringSlice(&cfg.ActiveChatIDs, "BUYALERT_ACTIVE_CHAT_IDS")
	setStr(&cfg.LogFile.Path, "BUYALERT_LOG_FILE")

	// ── Notification platforms ──
	setStr(&cfg.Telegram.BotToken, "BUYALERT_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.APIBase, "BUYALERT_TELEGRAM_API_BASE")
	setStringSlice(&cfg.Discord.WebhookURLs, "BUYALERT_DISCORD_WEBHOOK_URLS")

	// ── Threshold ──
	setBool(&cfg.DynamicThreshold.Enabled, "BUYALERT_DYNAMIC_THRESHOLD_ENABLED")
	setFloat64(&cfg.DynamicThreshold.BaseValue, "BUYALERT_DYNAMIC_THRESHOLD_BASE_VALUE")
	setFloat64(&cfg.DynamicThreshold.VolumeMultiplier, "BUYALERT_DYNAMIC_THRESHOLD_VOLUME_MULTIPLIER")
	setDuration(&cfg.DynamicThreshold.PriceCheckInterval, "BUYALERT_DYNAMIC_THRESHOLD_PRICE_CHECK_INTERVAL")
	setFloat64(&cfg.DynamicThreshold.MinThreshold, "BUYALERT_DYNAMIC_THRESHOLD_MIN")
	setFloat64(&cfg.DynamicThreshold.MaxThreshold, "BUYALERT_DYNAMIC_THRESHOLD_MAX")

	// ── Aggregation / sweeps ──
	setBool(&cfg.TradeAggregation.Enabled, "BUYALERT_TRADE_AGGREGATION_ENABLED")
	setInt(&cfg.TradeAggregation.WindowSeconds, "BUYALERT_TRADE_AGGREGATION_WINDOW_SECONDS")
	setBool(&cfg.SweepOrders.Enabled, "BUYALERT_SWEEP_ORDERS_ENABLED")
	setFloat64(&cfg.SweepOrders.MinValue, "BUYALERT_SWEEP_ORDERS_MIN_VALUE")

	// ── Exchanges ──
	setBool(&cfg.Exchanges.NonKYC.Enabled, "BUYALERT_NONKYC_ENABLED")
	setBool(&cfg.Exchanges.CoinEx.Enabled, "BUYALERT_COINEX_ENABLED")
	setStr(&cfg.Exchanges.CoinEx.APIKey, "BUYALERT_COINEX_ACCESS_ID")
	setStr(&cfg.Exchanges.CoinEx.SecretKey, "BUYALERT_COINEX_SECRET_KEY")
	setBool(&cfg.Exchanges.AscendEX.Enabled, "BUYALERT_ASCENDEX_ENABLED")
	setStr(&cfg.Exchanges.AscendEX.APIKey, "BUYALERT_ASCENDEX_API_KEY")
	setStr(&cfg.Exchanges.AscendEX.SecretKey, "BUYALERT_ASCENDEX_SECRET_KEY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BUYALERT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BUYALERT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BUYALERT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BUYALERT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "BUYALERT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BUYALERT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BUYALERT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BUYALERT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BUYALERT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BUYALERT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BUYALERT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BUYALERT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BUYALERT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "BUYALERT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BUYALERT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BUYALERT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BUYALERT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BUYALERT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BUYALERT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BUYALERT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "BUYALERT_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "BUYALERT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "BUYALERT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "BUYALERT_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BUYALERT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BUYALERT_SERVER_PORT")
	setInt(&cfg.Server.RequestsPerMinute, "BUYALERT_SERVER_REQUESTS_PER_MINUTE")
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
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		*dst = cleaned
	}
}
