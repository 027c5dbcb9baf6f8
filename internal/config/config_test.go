package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMaker() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Feed.URL = "ws://localhost:8080/ws"
	cfg.Backend.URL = "http://localhost:8081/rpc"
	cfg.Quoter.URL = "http://localhost:8082/price"
	return cfg
}

func TestDefaultsNeedEndpoints(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "feed: url must not be empty")
	assert.ErrorContains(t, err, "wallet: either private_key or encrypted_key_path")

	cfg = validMaker()
	assert.NoError(t, cfg.Validate())
}

func TestObserveModeSkipsWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeObserve
	cfg.Feed.URL = "ws://localhost:8080/ws"
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.IsMaker())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := validMaker()
	cfg.Mode = "sideways"
	cfg.Maker.SpreadBips = 10000
	cfg.Maker.QuoteRateLimit = 5
	cfg.Wallet.VaultAddress = "not-an-address"
	cfg.Events.Backend = "kafka"
	cfg.S3.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "sideways"`,
		"spread_bips must be in [0, 10000)",
		"quote_rate_limit requires redis.enabled",
		"vault_address",
		`unknown backend "kafka"`,
		"archiving requires postgres.enabled",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestCounterZoneAndVault(t *testing.T) {
	cfg := validMaker()
	cfg.Maker.Counter = "7"
	cfg.Maker.Zone = "0x10"
	cfg.Wallet.VaultAddress = "0x00000000000000000000000000000000000000aa"
	require.NoError(t, cfg.Validate())

	counter, zone := cfg.CounterZone()
	assert.Equal(t, int64(7), counter.Int64())
	assert.Equal(t, int64(16), zone.Int64())
	assert.Equal(t, common.HexToAddress("0xaa"), cfg.Vault())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rfqmaker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "observe"

[feed]
url = "ws://file/ws"
ping_interval = "3s"

[maker]
spread_bips = 20
`), 0o600))

	t.Setenv("RFQMAKER_FEED_URL", "ws://env/ws")
	t.Setenv("RFQMAKER_MAKER_ORDER_TTL", "45s")
	t.Setenv("RFQMAKER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RFQMAKER_REDIS_POOL_SIZE", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeObserve, cfg.Mode)
	assert.Equal(t, "ws://env/ws", cfg.Feed.URL)
	assert.Equal(t, 3*time.Second, cfg.Feed.PingInterval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Feed.ReconnectDelay.Duration)
	assert.Equal(t, 20, cfg.Maker.SpreadBips)
	assert.Equal(t, 45*time.Second, cfg.Maker.OrderTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[feed]\nping_interval = \"soon\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validMaker()
	cfg.Backend.APISecret = "s3cret"
	cfg.Server.CORSOrigins = []string{"https://a.example"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Backend.APISecret)
	assert.Empty(t, out.Backend.APIKey)
	assert.Equal(t, cfg.Feed.URL, out.Feed.URL)

	out.Server.CORSOrigins[0] = "changed"
	assert.Equal(t, "https://a.example", cfg.Server.CORSOrigins[0])
	assert.NotEqual(t, "***", cfg.Wallet.PrivateKey)
}
