package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RFQMAKER_"

// Load merges the TOML file at path over Defaults, loads a .env file if one
// exists, and applies RFQMAKER_* overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose RFQMAKER_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// wallet
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.VaultAddress, "WALLET_VAULT_ADDRESS")

	// chain
	setInt(&cfg.Chain.ChainID, "CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	setUint64(&cfg.Chain.GasLimit, "CHAIN_GAS_LIMIT")
	setStr(&cfg.Chain.NativeToken, "CHAIN_NATIVE_TOKEN")
	setStr(&cfg.Chain.SubmitVia, "CHAIN_SUBMIT_VIA")

	// feed
	setStr(&cfg.Feed.URL, "FEED_URL")
	setDuration(&cfg.Feed.PingInterval, "FEED_PING_INTERVAL")
	setDuration(&cfg.Feed.ReconnectDelay, "FEED_RECONNECT_DELAY")
	setStr(&cfg.Feed.SubscribeMethod, "FEED_SUBSCRIBE_METHOD")
	setStringSlice(&cfg.Feed.SubscribeParams, "FEED_SUBSCRIBE_PARAMS")

	// backend
	setStr(&cfg.Backend.URL, "BACKEND_URL")
	setStr(&cfg.Backend.APIKey, "BACKEND_API_KEY")
	setStr(&cfg.Backend.APISecret, "BACKEND_API_SECRET")
	setDuration(&cfg.Backend.Timeout, "BACKEND_TIMEOUT")

	// maker
	setInt(&cfg.Maker.SpreadBips, "MAKER_SPREAD_BIPS")
	setBool(&cfg.Maker.SponsorGas, "MAKER_SPONSOR_GAS")
	setDuration(&cfg.Maker.CancelAfter, "MAKER_CANCEL_AFTER")
	setDuration(&cfg.Maker.OrderTTL, "MAKER_ORDER_TTL")
	setStr(&cfg.Maker.Counter, "MAKER_COUNTER")
	setStr(&cfg.Maker.Zone, "MAKER_ZONE")
	setInt(&cfg.Maker.MaxConcurrentQuotes, "MAKER_MAX_CONCURRENT_QUOTES")
	setInt(&cfg.Maker.QuoteRateLimit, "MAKER_QUOTE_RATE_LIMIT")

	// quoter
	setStr(&cfg.Quoter.Name, "QUOTER_NAME")
	setStr(&cfg.Quoter.URL, "QUOTER_URL")
	setStr(&cfg.Quoter.APIKey, "QUOTER_API_KEY")
	setDuration(&cfg.Quoter.Timeout, "QUOTER_TIMEOUT")

	// redis
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// postgres
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// s3
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setStr(&cfg.S3.ArchiveCron, "S3_ARCHIVE_CRON")
	setInt(&cfg.S3.RetentionDays, "S3_RETENTION_DAYS")

	// events
	setStr(&cfg.Events.Backend, "EVENTS_BACKEND")
	setStr(&cfg.Events.NATSURL, "EVENTS_NATS_URL")

	// server
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")

	// notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// Typed env helpers. Each mutates dst only when the variable is set,
// non-empty and parses.

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
