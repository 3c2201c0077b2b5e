package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAIRARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAIRARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "PAIRARB_MODE")
	setStr(&cfg.LogLevel, "PAIRARB_LOG_LEVEL")
	setBool(&cfg.DebugInvariants, "PAIRARB_DEBUG_INVARIANTS")

	// ── Engine ──
	setDuration(&cfg.Engine.Staleness, "PAIRARB_ENGINE_STALENESS")
	setBool(&cfg.Engine.RetainDepth, "PAIRARB_ENGINE_RETAIN_DEPTH")

	// ── Strategy ──
	setStringSlice(&cfg.Strategy.Enabled, "PAIRARB_STRATEGY_ENABLED")
	setDecimal(&cfg.Strategy.TwoSidedArb.MinProfit, "PAIRARB_STRATEGY_TWO_SIDED_ARB_MIN_PROFIT")
	setDecimal(&cfg.Strategy.TwoSidedArb.MaxPosition, "PAIRARB_STRATEGY_TWO_SIDED_ARB_MAX_POSITION")
	setDecimal(&cfg.Strategy.MispricingAlert.MinDivergence, "PAIRARB_STRATEGY_MISPRICING_ALERT_MIN_DIVERGENCE")

	// ── Sizing ──
	setDecimal(&cfg.Sizing.Fraction, "PAIRARB_SIZING_FRACTION")
	setDecimal(&cfg.Sizing.MaxContracts, "PAIRARB_SIZING_MAX_CONTRACTS")

	// ── Execution ──
	setStr(&cfg.Execution.Mode, "PAIRARB_EXECUTION_MODE")
	setDuration(&cfg.Execution.LegTimeout, "PAIRARB_EXECUTION_LEG_TIMEOUT")
	setDuration(&cfg.Execution.LeaseTTL, "PAIRARB_EXECUTION_LEASE_TTL")

	// ── Matches ──
	setStr(&cfg.Matches.Source, "PAIRARB_MATCHES_SOURCE")

	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "PAIRARB_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "PAIRARB_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "PAIRARB_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.ApiKeyID, "PAIRARB_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKey, "PAIRARB_KALSHI_PRIVATE_KEY")
	setStr(&cfg.Kalshi.PrivateKeyPath, "PAIRARB_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "PAIRARB_KALSHI_KEY_PASSWORD")
	setFloat64(&cfg.Kalshi.RequestsPerSecond, "PAIRARB_KALSHI_REQUESTS_PER_SECOND")

	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "PAIRARB_POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.ClobHost, "PAIRARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "PAIRARB_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.GammaHost, "PAIRARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsURL, "PAIRARB_POLYMARKET_WS_URL")
	setInt(&cfg.Polymarket.ChainID, "PAIRARB_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.ExchangeAddress, "PAIRARB_POLYMARKET_EXCHANGE_ADDRESS")
	setInt(&cfg.Polymarket.FeeRateBps, "PAIRARB_POLYMARKET_FEE_RATE_BPS")
	setStr(&cfg.Polymarket.ApiKey, "PAIRARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "PAIRARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "PAIRARB_POLYMARKET_API_PASSPHRASE")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "PAIRARB_POLYMARKET_REQUESTS_PER_SECOND")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PAIRARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PAIRARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PAIRARB_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PAIRARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PAIRARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAIRARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAIRARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAIRARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAIRARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAIRARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAIRARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAIRARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAIRARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAIRARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAIRARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAIRARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAIRARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAIRARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAIRARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAIRARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PAIRARB_REDIS_KEY_PREFIX")
	setInt64(&cfg.Redis.StreamMaxLen, "PAIRARB_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAIRARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAIRARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAIRARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAIRARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAIRARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAIRARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAIRARB_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PAIRARB_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PAIRARB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Retention, "PAIRARB_ARCHIVE_RETENTION")
	setInt(&cfg.Archive.BatchSize, "PAIRARB_ARCHIVE_BATCH_SIZE")
	setStr(&cfg.Archive.Cron, "PAIRARB_ARCHIVE_CRON")

	// ── Audit ──
	setInt(&cfg.Audit.Buffer, "PAIRARB_AUDIT_BUFFER")
	setBool(&cfg.Audit.PersistNoGo, "PAIRARB_AUDIT_PERSIST_NO_GO")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAIRARB_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "PAIRARB_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "PAIRARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAIRARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAIRARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAIRARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAIRARB_NOTIFY_EVENTS")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setDecimal(dst *amount, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			dst.Decimal = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
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
