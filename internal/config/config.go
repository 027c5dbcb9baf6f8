// Package config defines the maker's configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Modes accepted in Config.Mode.
const (
	ModeMaker   = "maker"
	ModeObserve = "observe"
)

// Config is the root configuration. Fields come from a TOML file and are then
// optionally overridden by RFQMAKER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Feed     FeedConfig     `toml:"feed"`
	Backend  BackendConfig  `toml:"backend"`
	Maker    MakerConfig    `toml:"maker"`
	Quoter   QuoterConfig   `toml:"quoter"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Events   EventsConfig   `toml:"events"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the maker key and the optional vault the key controls.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	VaultAddress     string `toml:"vault_address"`
}

// ChainConfig describes the chain orders are signed for and settled on.
type ChainConfig struct {
	ChainID        int      `toml:"chain_id"`
	RPCURL         string   `toml:"rpc_url"`
	GasLimit       uint64   `toml:"gas_limit"`
	NativeToken    string   `toml:"native_token"` // wrapped native token used to price gas
	SubmitVia      string   `toml:"submit_via"`   // "rpc" or "backend"
	ReceiptTimeout duration `toml:"receipt_timeout"`
}

// FeedConfig configures the websocket event feed.
type FeedConfig struct {
	URL             string   `toml:"url"`
	PingInterval    duration `toml:"ping_interval"`
	ReconnectDelay  duration `toml:"reconnect_delay"`
	SubscribeMethod string   `toml:"subscribe_method"`
	SubscribeParams []string `toml:"subscribe_params"`
}

// BackendConfig configures the settlement backend JSON-RPC client.
type BackendConfig struct {
	URL       string   `toml:"url"`
	APIKey    string   `toml:"api_key"`
	APISecret string   `toml:"api_secret"`
	Timeout   duration `toml:"timeout"`
}

// MakerConfig holds quoting and settlement policy.
type MakerConfig struct {
	SpreadBips          int      `toml:"spread_bips"`
	SponsorGas          bool     `toml:"sponsor_gas"`
	CancelAfter         duration `toml:"cancel_after"` // 0 disables timed cancellation
	OrderTTL            duration `toml:"order_ttl"`
	ExpiryGrace         duration `toml:"expiry_grace"`
	Counter             string   `toml:"counter"`
	Zone                string   `toml:"zone"`
	MaxConcurrentQuotes int      `toml:"max_concurrent_quotes"`
	QuoteRateLimit      int      `toml:"quote_rate_limit"` // per pair per second, 0 disables
	SweepInterval       duration `toml:"sweep_interval"`
	SettleTimeout       duration `toml:"settle_timeout"`
}

// QuoterConfig selects and configures the pricing source.
type QuoterConfig struct {
	Name    string   `toml:"name"`
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
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

// S3Config holds object storage parameters for the settlement archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ArchiveCron    string `toml:"archive_cron"`
	RetentionDays  int    `toml:"retention_days"`
}

// EventsConfig selects the lifecycle event sink.
type EventsConfig struct {
	Backend       string `toml:"backend"` // "", "redis" or "nats"
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
	Stream        string `toml:"stream"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with the built-in defaults.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:        1,
			GasLimit:       1_000_000,
			SubmitVia:      "rpc",
			ReceiptTimeout: duration{2 * time.Minute},
		},
		Feed: FeedConfig{
			PingInterval:    duration{10 * time.Second},
			ReconnectDelay:  duration{5 * time.Second},
			SubscribeMethod: "rfq_subscribe",
			SubscribeParams: []string{"quote-requested", "order-to-execute"},
		},
		Backend: BackendConfig{
			Timeout: duration{10 * time.Second},
		},
		Maker: MakerConfig{
			SpreadBips:          50,
			OrderTTL:            duration{2 * time.Minute},
			ExpiryGrace:         duration{time.Minute},
			Counter:             "0",
			Zone:                "0",
			MaxConcurrentQuotes: 32,
			SweepInterval:       duration{30 * time.Second},
			SettleTimeout:       duration{3 * time.Minute},
		},
		Quoter: QuoterConfig{
			Name:    "http",
			Timeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "rfqmaker",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rfqmaker-archive",
			ForcePathStyle: true,
			ArchiveCron:    "0 3 * * *",
			RetentionDays:  30,
		},
		Events: EventsConfig{
			SubjectPrefix: "rfq",
			Stream:        "rfq:lifecycle",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_failed"},
		},
		Mode:     ModeMaker,
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks c and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Mode) {
	case ModeMaker, ModeObserve:
	default:
		add("unknown mode %q (valid: maker, observe)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Feed.URL == "" {
		add("feed: url must not be empty")
	}
	if c.Feed.PingInterval.Duration <= 0 {
		add("feed: ping_interval must be positive")
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		add("feed: reconnect_delay must be positive")
	}
	if c.Chain.ChainID <= 0 || int64(c.Chain.ChainID) > int64(^uint32(0)) {
		add("chain: chain_id must be a positive uint32, got %d", c.Chain.ChainID)
	}

	if c.IsMaker() {
		c.validateMaker(add)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.S3.Enabled {
		if !c.Postgres.Enabled {
			add("s3: archiving requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.RetentionDays < 1 {
			add("s3: retention_days must be >= 1")
		}
		if len(strings.Fields(c.S3.ArchiveCron)) != 5 {
			add("s3: archive_cron %q must have 5 fields", c.S3.ArchiveCron)
		}
	}

	switch c.Events.Backend {
	case "":
	case "redis":
		if !c.Redis.Enabled {
			add("events: backend redis requires redis.enabled")
		}
	case "nats":
		if c.Events.NATSURL == "" {
			add("events: nats_url must be set for backend nats")
		}
	default:
		add("events: unknown backend %q (valid: \"\", redis, nats)", c.Events.Backend)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateMaker(add func(string, ...any)) {
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		add("wallet: either private_key or encrypted_key_path must be set for mode maker")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}
	if c.Wallet.VaultAddress != "" && !common.IsHexAddress(c.Wallet.VaultAddress) {
		add("wallet: vault_address %q is not an address", c.Wallet.VaultAddress)
	}
	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.SubmitVia != "rpc" && c.Chain.SubmitVia != "backend" {
		add("chain: submit_via must be rpc or backend, got %q", c.Chain.SubmitVia)
	}
	if c.Chain.NativeToken != "" && !common.IsHexAddress(c.Chain.NativeToken) {
		add("chain: native_token %q is not an address", c.Chain.NativeToken)
	}
	if c.Backend.URL == "" {
		add("backend: url must not be empty")
	}
	if c.Quoter.URL == "" {
		add("quoter: url must not be empty")
	}
	if c.Maker.SpreadBips < 0 || c.Maker.SpreadBips >= 10000 {
		add("maker: spread_bips must be in [0, 10000), got %d", c.Maker.SpreadBips)
	}
	if c.Maker.OrderTTL.Duration <= 0 {
		add("maker: order_ttl must be positive")
	}
	if c.Maker.CancelAfter.Duration < 0 {
		add("maker: cancel_after must not be negative")
	}
	if c.Maker.SweepInterval.Duration <= 0 {
		add("maker: sweep_interval must be positive")
	}
	if c.Maker.MaxConcurrentQuotes < 1 {
		add("maker: max_concurrent_quotes must be >= 1")
	}
	if c.Maker.QuoteRateLimit > 0 && !c.Redis.Enabled {
		add("maker: quote_rate_limit requires redis.enabled")
	}
	if _, ok := new(big.Int).SetString(c.Maker.Counter, 10); !ok {
		add("maker: counter %q is not a decimal integer", c.Maker.Counter)
	}
	if _, ok := new(big.Int).SetString(c.Maker.Zone, 0); !ok {
		add("maker: zone %q is not an integer", c.Maker.Zone)
	}
}

// IsMaker reports whether the config runs the full quoting pipeline.
func (c *Config) IsMaker() bool {
	return strings.EqualFold(c.Mode, ModeMaker)
}

// Vault returns the parsed vault address, zero when unset.
func (c *Config) Vault() common.Address {
	if c.Wallet.VaultAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Wallet.VaultAddress)
}

// CounterZone parses maker.counter and maker.zone. Call after Validate.
func (c *Config) CounterZone() (counter, zone *big.Int) {
	counter, _ = new(big.Int).SetString(c.Maker.Counter, 10)
	zone, _ = new(big.Int).SetString(c.Maker.Zone, 0)
	return counter, zone
}
