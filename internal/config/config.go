// Package config defines the top-level configuration for the pairarb engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAIRARB_* environment variables. It
// is read once at startup and never mutated afterwards.
type Config struct {
	Mode            string `toml:"mode"`
	LogLevel        string `toml:"log_level"`
	DebugInvariants bool   `toml:"debug_invariants"`

	Engine     EngineConfig         `toml:"engine"`
	Fees       map[string]FeeConfig `toml:"fees"`
	Strategy   StrategyConfig       `toml:"strategy"`
	Sizing     SizingConfig         `toml:"sizing"`
	Execution  ExecutionConfig      `toml:"execution"`
	Matches    MatchesConfig        `toml:"matches"`
	Account    AccountConfig        `toml:"account"`
	Kalshi     KalshiConfig         `toml:"kalshi"`
	Polymarket PolymarketConfig     `toml:"polymarket"`
	Wallet     WalletConfig         `toml:"wallet"`
	Postgres   PostgresConfig       `toml:"postgres"`
	Redis      RedisConfig          `toml:"redis"`
	S3         S3Config             `toml:"s3"`
	Archive    ArchiveConfig        `toml:"archive"`
	Audit      AuditConfig          `toml:"audit"`
	Server     ServerConfig         `toml:"server"`
	Notify     NotifyConfig         `toml:"notify"`
}

// EngineConfig tunes the aggregator and evaluator.
type EngineConfig struct {
	Staleness   duration `toml:"staleness"`
	RetainDepth bool     `toml:"retain_depth"`
	RecentLimit int      `toml:"recent_limit"`
}

// FeeConfig is one venue's fee model.
type FeeConfig struct {
	Basis string `toml:"basis"`
	Rate  amount `toml:"rate"`
}

// StrategyConfig lists the strategies to run, in evaluation order.
type StrategyConfig struct {
	Enabled         []string              `toml:"enabled"`
	TwoSidedArb     TwoSidedArbConfig     `toml:"two_sided_arb"`
	MispricingAlert MispricingAlertConfig `toml:"mispricing_alert"`
}

// TwoSidedArbConfig holds config for the two_sided_arb strategy.
type TwoSidedArbConfig struct {
	MinProfit   amount   `toml:"min_profit"`
	Cooldown    duration `toml:"cooldown"`
	MaxPosition amount   `toml:"max_position"`
}

// MispricingAlertConfig holds config for the mispricing_alert strategy.
type MispricingAlertConfig struct {
	MinDivergence amount   `toml:"min_divergence"`
	Cooldown      duration `toml:"cooldown"`
}

// SizingConfig holds the size calculator's policy and sweep interval.
type SizingConfig struct {
	Interval     duration `toml:"interval"`
	Fraction     amount   `toml:"fraction"`
	MaxContracts amount   `toml:"max_contracts"`
	LotSize      amount   `toml:"lot_size"`
}

// ExecutionConfig holds the coordinator's dispatch parameters.
type ExecutionConfig struct {
	// Mode is "simultaneous" or "sequential".
	Mode       string        `toml:"mode"`
	LegTimeout duration      `toml:"leg_timeout"`
	LeaseTTL   duration      `toml:"lease_ttl"`
	DedupTTL   duration      `toml:"dedup_ttl"`
	Breaker    BreakerConfig `toml:"breaker"`
}

// BreakerConfig holds the per-venue circuit breaker settings.
type BreakerConfig struct {
	ConsecutiveFailures int      `toml:"consecutive_failures"`
	OpenTimeout         duration `toml:"open_timeout"`
	HalfOpenRequests    int      `toml:"half_open_requests"`
}

// MatchesConfig selects where approved pairs come from.
type MatchesConfig struct {
	// Source is "postgres" or "static".
	Source string       `toml:"source"`
	Pairs  []PairConfig `toml:"pairs"`
}

// PairConfig declares one approved pair for the static source.
type PairConfig struct {
	ID          string `toml:"id"`
	PlatformA   string `toml:"platform_a"`
	MarketA     string `toml:"market_a"`
	PlatformB   string `toml:"platform_b"`
	MarketB     string `toml:"market_b"`
	Orientation string `toml:"orientation"`
}

// AccountConfig controls where balances and positions come from.
type AccountConfig struct {
	RefreshInterval duration          `toml:"refresh_interval"`
	Timeout         duration          `toml:"timeout"`
	Mirror          bool              `toml:"mirror"`
	PaperBalances   map[string]amount `toml:"paper_balances"`
}

// KalshiConfig holds Kalshi API endpoints and credentials.
type KalshiConfig struct {
	Enabled           bool     `toml:"enabled"`
	BaseURL           string   `toml:"base_url"`
	WsURL             string   `toml:"ws_url"`
	ApiKeyID          string   `toml:"api_key_id"`
	PrivateKey        string   `toml:"private_key"`
	PrivateKeyPath    string   `toml:"private_key_path"`
	KeyPassword       string   `toml:"key_password"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           duration `toml:"timeout"`
	WS                WSConfig `toml:"ws"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and L2
// credentials. Empty credentials are derived from the wallet at startup.
type PolymarketConfig struct {
	Enabled           bool     `toml:"enabled"`
	ClobHost          string   `toml:"clob_host"`
	DataHost          string   `toml:"data_host"`
	GammaHost         string   `toml:"gamma_host"`
	WsURL             string   `toml:"ws_url"`
	ChainID           int      `toml:"chain_id"`
	ExchangeAddress   string   `toml:"exchange_address"`
	FeeRateBps        int      `toml:"fee_rate_bps"`
	ApiKey            string   `toml:"api_key"`
	ApiSecret         string   `toml:"api_secret"`
	ApiPassphrase     string   `toml:"api_passphrase"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           duration `toml:"timeout"`
	WS                WSConfig `toml:"ws"`
}

// WSConfig tunes a venue feed connection.
type WSConfig struct {
	Depth         int      `toml:"depth"`
	Buffer        int      `toml:"buffer"`
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
}

// WalletConfig holds the Polygon wallet used to sign CLOB orders.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	KeyPrefix    string `toml:"key_prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	PartSize       int64  `toml:"part_size"`
}

// ArchiveConfig controls moving aged audit rows to object storage.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Retention duration `toml:"retention"`
	BatchSize int      `toml:"batch_size"`
	Cron      string   `toml:"cron"`
}

// AuditConfig tunes the audit dispatcher.
type AuditConfig struct {
	Buffer      int  `toml:"buffer"`
	PersistNoGo bool `toml:"persist_no_go"`
}

// ServerConfig holds ops HTTP server parameters.
type ServerConfig struct {
	Enabled      bool    `toml:"enabled"`
	Addr         string  `toml:"addr"`
	APIKey       string  `toml:"api_key"`
	RateLimitRPS float64 `toml:"rate_limit_rps"`
	RateBurst    int     `toml:"rate_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Timeout           duration `toml:"timeout"`
	Cooldown          duration `toml:"cooldown"`
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

// amount wraps decimal.Decimal so prices and sizes can be written as strings
// ("0.03") and never pass through a float.
type amount struct {
	decimal.Decimal
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *amount) UnmarshalText(text []byte) error {
	d, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", text, err)
	}
	a.Decimal = d
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a amount) MarshalText() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func dec(s string) amount { return amount{decimal.RequireFromString(s)} }

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Engine: EngineConfig{
			Staleness:   duration{2 * time.Second},
			RecentLimit: 128,
		},
		Fees: map[string]FeeConfig{
			"kalshi":     {Basis: "profit", Rate: dec("0.07")},
			"polymarket": {Basis: "notional", Rate: dec("0")},
		},
		Strategy: StrategyConfig{
			Enabled: []string{"two_sided_arb"},
			TwoSidedArb: TwoSidedArbConfig{
				MinProfit:   dec("0.01"),
				Cooldown:    duration{5 * time.Second},
				MaxPosition: dec("500"),
			},
			MispricingAlert: MispricingAlertConfig{
				MinDivergence: dec("0.05"),
				Cooldown:      duration{5 * time.Minute},
			},
		},
		Sizing: SizingConfig{
			Interval:     duration{time.Second},
			Fraction:     dec("0.1"),
			MaxContracts: dec("100"),
			LotSize:      dec("1"),
		},
		Execution: ExecutionConfig{
			Mode:       "simultaneous",
			LegTimeout: duration{3 * time.Second},
			LeaseTTL:   duration{10 * time.Second},
			DedupTTL:   duration{2 * time.Minute},
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         duration{30 * time.Second},
				HalfOpenRequests:    1,
			},
		},
		Matches: MatchesConfig{
			Source: "postgres",
		},
		Account: AccountConfig{
			RefreshInterval: duration{10 * time.Second},
			Timeout:         duration{5 * time.Second},
			Mirror:          true,
			PaperBalances: map[string]amount{
				"kalshi":     dec("1000"),
				"polymarket": dec("1000"),
			},
		},
		Kalshi: KalshiConfig{
			Enabled:           true,
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:             "wss://api.elections.kalshi.com/trade-api/ws/v2",
			RequestsPerSecond: 10,
			Timeout:           duration{10 * time.Second},
			WS:                defaultWS(),
		},
		Polymarket: PolymarketConfig{
			Enabled:           true,
			ClobHost:          "https://clob.polymarket.com",
			DataHost:          "https://data-api.polymarket.com",
			GammaHost:         "https://gamma-api.polymarket.com",
			WsURL:             "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:           137,
			ExchangeAddress:   "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			RequestsPerSecond: 10,
			Timeout:           duration{10 * time.Second},
			WS:                defaultWS(),
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "pairarb",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{5 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "pairarb:",
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairarb-archive",
			ForcePathStyle: true,
			PartSize:       8 << 20,
		},
		Archive: ArchiveConfig{
			Retention: duration{30 * 24 * time.Hour},
			BatchSize: 5000,
			Cron:      "0 3 * * *",
		},
		Audit: AuditConfig{
			Buffer: 4096,
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8000",
			RateLimitRPS: 20,
			RateBurst:    40,
		},
		Notify: NotifyConfig{
			Events:   []string{"mispricing", "leg_mismatch", "lifecycle"},
			Timeout:  duration{5 * time.Second},
			Cooldown: duration{5 * time.Minute},
		},
	}
}

func defaultWS() WSConfig {
	return WSConfig{
		Buffer:        1024,
		ReconnectBase: duration{500 * time.Millisecond},
		ReconnectMax:  duration{30 * time.Second},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
	"check": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var knownStrategies = map[string]bool{
	"two_sided_arb":    true,
	"mispricing_alert": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: live, paper, check)", c.Mode)
	}
	live := strings.EqualFold(c.Mode, "live")

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Engine
	if c.Engine.Staleness.Duration <= 0 {
		add("engine: staleness must be > 0")
	}
	if c.Engine.RecentLimit < 0 {
		add("engine: recent_limit must be >= 0")
	}

	// Fees
	for name, f := range c.Fees {
		if _, err := domain.ParsePlatform(name); err != nil {
			add("fees: %v", err)
			continue
		}
		m := domain.FeeModel{Basis: domain.FeeBasis(f.Basis), Rate: f.Rate.Decimal}
		if err := m.Validate(); err != nil {
			add("fees.%s: %v", name, err)
		}
	}

	// Strategy
	if len(c.Strategy.Enabled) == 0 {
		add("strategy: enabled must list at least one strategy")
	}
	seen := make(map[string]bool, len(c.Strategy.Enabled))
	for _, name := range c.Strategy.Enabled {
		if !knownStrategies[name] {
			add("strategy: unknown strategy %q", name)
		}
		if seen[name] {
			add("strategy: %q listed twice", name)
		}
		seen[name] = true
	}
	if c.Strategy.TwoSidedArb.MinProfit.IsNegative() {
		add("strategy.two_sided_arb: min_profit must be >= 0")
	}
	if c.Strategy.TwoSidedArb.MaxPosition.IsNegative() {
		add("strategy.two_sided_arb: max_position must be >= 0")
	}
	if seen["mispricing_alert"] && !c.Strategy.MispricingAlert.MinDivergence.IsPositive() {
		add("strategy.mispricing_alert: min_divergence must be > 0")
	}

	// Sizing
	if c.Sizing.Interval.Duration <= 0 {
		add("sizing: interval must be > 0")
	}
	if !c.Sizing.Fraction.IsPositive() || c.Sizing.Fraction.GreaterThan(decimal.NewFromInt(1)) {
		add("sizing: fraction must be in (0, 1], got %s", c.Sizing.Fraction)
	}
	if c.Sizing.MaxContracts.IsNegative() {
		add("sizing: max_contracts must be >= 0")
	}
	if c.Sizing.LotSize.IsNegative() {
		add("sizing: lot_size must be >= 0")
	}

	// Execution
	switch c.Execution.Mode {
	case "simultaneous", "sequential":
	default:
		add("execution: unknown mode %q (valid: simultaneous, sequential)", c.Execution.Mode)
	}
	if lt := c.Execution.LegTimeout.Duration; lt < 2*time.Second || lt > 5*time.Second {
		add("execution: leg_timeout must be between 2s and 5s, got %s", lt)
	}
	if c.Execution.LeaseTTL.Duration < 0 {
		add("execution: lease_ttl must be >= 0")
	}
	if c.Execution.Breaker.ConsecutiveFailures < 1 {
		add("execution.breaker: consecutive_failures must be >= 1")
	}
	if c.Execution.Breaker.HalfOpenRequests < 1 {
		add("execution.breaker: half_open_requests must be >= 1")
	}

	// Matches
	switch c.Matches.Source {
	case "postgres":
	case "static":
		if len(c.Matches.Pairs) == 0 {
			add("matches: static source needs at least one [[matches.pairs]] entry")
		}
		for i, p := range c.Matches.Pairs {
			if _, err := p.MatchedPair(); err != nil {
				add("matches.pairs[%d]: %v", i, err)
			}
		}
	default:
		add("matches: unknown source %q (valid: postgres, static)", c.Matches.Source)
	}

	// Account
	if c.Account.RefreshInterval.Duration <= 0 {
		add("account: refresh_interval must be > 0")
	}
	for name, bal := range c.Account.PaperBalances {
		if _, err := domain.ParsePlatform(name); err != nil {
			add("account.paper_balances: %v", err)
		}
		if bal.IsNegative() {
			add("account.paper_balances.%s: must be >= 0", name)
		}
	}

	// Venues
	if !c.Kalshi.Enabled && !c.Polymarket.Enabled {
		add("at least one of kalshi or polymarket must be enabled")
	}
	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			add("kalshi: base_url must not be empty")
		}
		if c.Kalshi.WsURL == "" {
			add("kalshi: ws_url must not be empty")
		}
		if live {
			if c.Kalshi.ApiKeyID == "" {
				add("kalshi: api_key_id is required for mode live")
			}
			if c.Kalshi.PrivateKey == "" && c.Kalshi.PrivateKeyPath == "" {
				add("kalshi: either private_key or private_key_path must be set for mode live")
			}
		}
	}
	if c.Polymarket.Enabled {
		if c.Polymarket.ClobHost == "" {
			add("polymarket: clob_host must not be empty")
		}
		if c.Polymarket.WsURL == "" {
			add("polymarket: ws_url must not be empty")
		}
		if c.Polymarket.ChainID <= 0 {
			add("polymarket: chain_id must be positive")
		}
		if c.Polymarket.FeeRateBps < 0 {
			add("polymarket: fee_rate_bps must be >= 0")
		}
		pk := c.Polymarket.ApiKey != ""
		ps := c.Polymarket.ApiSecret != ""
		pp := c.Polymarket.ApiPassphrase != ""
		if (pk || ps || pp) && !(pk && ps && pp) {
			add("polymarket: api_key, api_secret, and api_passphrase must all be set together")
		}
		if live {
			if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
				add("wallet: either private_key or encrypted_key_path must be set for mode live")
			}
			if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
				add("wallet: key_password is required when encrypted_key_path is set")
			}
		}
	}

	// Postgres
	if live || c.Matches.Source == "postgres" {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
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
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty when archive is enabled")
		}
		if c.Archive.Retention.Duration < time.Hour {
			add("archive: retention must be at least 1h")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			add("archive: cron must not be empty")
		}
	}

	// Audit
	if c.Audit.Buffer < 1 {
		add("audit: buffer must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			add("server: addr must not be empty")
		}
		if c.Server.RateLimitRPS < 0 {
			add("server: rate_limit_rps must be >= 0")
		}
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MatchedPair converts the declaration into a domain pair. An empty id is
// derived from the two market references so restarts keep the same id.
func (p PairConfig) MatchedPair() (domain.MatchedPair, error) {
	a, err := domain.ParsePlatform(p.PlatformA)
	if err != nil {
		return domain.MatchedPair{}, err
	}
	b, err := domain.ParsePlatform(p.PlatformB)
	if err != nil {
		return domain.MatchedPair{}, err
	}
	pair := domain.MatchedPair{
		VenueA:      domain.MarketRef{Platform: a, MarketID: domain.MarketID(p.MarketA)},
		VenueB:      domain.MarketRef{Platform: b, MarketID: domain.MarketID(p.MarketB)},
		Orientation: domain.Orientation(p.Orientation),
	}
	switch pair.Orientation {
	case domain.OrientationComplement, domain.OrientationSame:
	case "":
		pair.Orientation = domain.OrientationComplement
	default:
		return domain.MatchedPair{}, fmt.Errorf("unknown orientation %q", p.Orientation)
	}
	if p.ID == "" {
		pair.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(pair.VenueA.String()+"|"+pair.VenueB.String()))
		return pair, nil
	}
	if pair.ID, err = uuid.Parse(p.ID); err != nil {
		return domain.MatchedPair{}, fmt.Errorf("invalid id %q: %w", p.ID, err)
	}
	return pair, nil
}
