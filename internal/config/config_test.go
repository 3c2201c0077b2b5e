package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairarb.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Engine.Staleness.Duration)
	assert.Equal(t, "0.07", cfg.Fees["kalshi"].Rate.String())
}

func TestLoad(t *testing.T) {
	path := writeTOML(t, `
mode = "paper"
log_level = "debug"

[engine]
staleness = "1500ms"

[fees.kalshi]
basis = "profit"
rate = "0.07"

[fees.polymarket]
basis = "notional"
rate = "0.001"

[strategy]
enabled = ["two_sided_arb", "mispricing_alert"]

[strategy.two_sided_arb]
min_profit = "0.02"
cooldown = "3s"

[sizing]
fraction = "0.25"
max_contracts = 40

[execution]
mode = "sequential"
leg_timeout = "4s"

[matches]
source = "static"

[[matches.pairs]]
platform_a = "kalshi"
market_a = "KXFED-25DEC-T4.00"
platform_b = "polymarket"
market_b = "7134221"
orientation = "same"

[account.paper_balances]
kalshi = "250.50"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.Staleness.Duration)
	assert.True(t, decimal.RequireFromString("0.001").Equal(cfg.Fees["polymarket"].Rate.Decimal))
	assert.Equal(t, []string{"two_sided_arb", "mispricing_alert"}, cfg.Strategy.Enabled)
	assert.True(t, decimal.RequireFromString("0.02").Equal(cfg.Strategy.TwoSidedArb.MinProfit.Decimal))
	// untouched keys keep their defaults
	assert.True(t, decimal.RequireFromString("500").Equal(cfg.Strategy.TwoSidedArb.MaxPosition.Decimal))
	assert.True(t, decimal.NewFromInt(40).Equal(cfg.Sizing.MaxContracts.Decimal))
	assert.Equal(t, "sequential", cfg.Execution.Mode)
	assert.True(t, decimal.RequireFromString("250.50").Equal(cfg.Account.PaperBalances["kalshi"].Decimal))

	require.Len(t, cfg.Matches.Pairs, 1)
	pair, err := cfg.Matches.Pairs[0].MatchedPair()
	require.NoError(t, err)
	assert.Equal(t, domain.OrientationSame, pair.Orientation)
	assert.Equal(t, domain.MarketID("7134221"), pair.VenueB.MarketID)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, `
[engine]
stalenes = "1s"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.stalenes")
}

func TestLoadBadDecimal(t *testing.T) {
	path := writeTOML(t, `
[sizing]
fraction = "a tenth"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeTOML(t, `mode = "paper"`)
	t.Setenv("PAIRARB_MODE", "check")
	t.Setenv("PAIRARB_ENGINE_STALENESS", "750ms")
	t.Setenv("PAIRARB_SIZING_FRACTION", "0.5")
	t.Setenv("PAIRARB_STRATEGY_ENABLED", " mispricing_alert , two_sided_arb,")
	t.Setenv("PAIRARB_REDIS_STREAM_MAX_LEN", "500")
	t.Setenv("PAIRARB_SERVER_API_KEY", "k")
	// Unparsable values leave the field alone.
	t.Setenv("PAIRARB_POSTGRES_PORT", "five")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "check", cfg.Mode)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.Staleness.Duration)
	assert.Equal(t, "0.5", cfg.Sizing.Fraction.String())
	assert.Equal(t, []string{"mispricing_alert", "two_sided_arb"}, cfg.Strategy.Enabled)
	assert.Equal(t, int64(500), cfg.Redis.StreamMaxLen)
	assert.Equal(t, "k", cfg.Server.APIKey)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Fees["kalshi"] = FeeConfig{Basis: "volume", Rate: dec("0.07")}
	cfg.Strategy.Enabled = []string{"two_sided_arb", "two_sided_arb", "momentum"}
	cfg.Sizing.Fraction = dec("1.5")
	cfg.Execution.LegTimeout = duration{10 * time.Second}
	cfg.Matches.Source = "static"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "yolo"`,
		`fees.kalshi: unknown fee basis "volume"`,
		`"two_sided_arb" listed twice`,
		`unknown strategy "momentum"`,
		"sizing: fraction must be in (0, 1]",
		"leg_timeout must be between 2s and 5s",
		"static source needs at least one",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateLiveNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kalshi: api_key_id is required")
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")

	cfg.Kalshi.ApiKeyID = "key-id"
	cfg.Kalshi.PrivateKeyPath = "/etc/pairarb/kalshi.pem"
	cfg.Wallet.EncryptedKeyPath = "/etc/pairarb/wallet.json"
	cfg.Wallet.KeyPassword = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestPairConfigMatchedPair(t *testing.T) {
	p := PairConfig{PlatformA: "kalshi", MarketA: "K1", PlatformB: "polymarket", MarketB: "P1"}
	a, err := p.MatchedPair()
	require.NoError(t, err)
	b, err := p.MatchedPair()
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID, "derived ids are stable")
	assert.Equal(t, domain.OrientationComplement, a.Orientation)

	id := uuid.New()
	p.ID = id.String()
	c, err := p.MatchedPair()
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)

	_, err = PairConfig{PlatformA: "betfair", PlatformB: "kalshi"}.MatchedPair()
	assert.Error(t, err)
	_, err = PairConfig{PlatformA: "kalshi", PlatformB: "polymarket", Orientation: "inverse"}.MatchedPair()
	assert.Error(t, err)
	_, err = PairConfig{ID: "nope", PlatformA: "kalshi", PlatformB: "polymarket"}.MatchedPair()
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Polymarket.ApiSecret = "s3cret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Polymarket.ApiSecret)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Notify.TelegramToken, "empty secrets stay empty")

	out.Strategy.Enabled[0] = "changed"
	out.Fees["kalshi"] = FeeConfig{}
	assert.Equal(t, "two_sided_arb", cfg.Strategy.Enabled[0])
	assert.Equal(t, "profit", cfg.Fees["kalshi"].Basis)
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func TestKeySources(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.WalletKey().Configured())
	cfg.Kalshi.PrivateKeyPath = "/keys/kalshi.pem"
	assert.True(t, cfg.KalshiKey().Configured())
}
