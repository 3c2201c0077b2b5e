package config

import (
	"maps"
	"slices"

	"github.com/alanyoungcy/pairarb/internal/crypto"
)

// WalletKey says where the Polygon signing key comes from.
func (c *Config) WalletKey() crypto.KeySource {
	return crypto.KeySource{
		Inline:   c.Wallet.PrivateKey,
		File:     c.Wallet.EncryptedKeyPath,
		Password: c.Wallet.KeyPassword,
	}
}

// KalshiKey says where the Kalshi RSA key comes from. A plain PEM file needs
// no password.
func (c *Config) KalshiKey() crypto.KeySource {
	return crypto.KeySource{
		Inline:   c.Kalshi.PrivateKey,
		File:     c.Kalshi.PrivateKeyPath,
		Password: c.Kalshi.KeyPassword,
	}
}

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Kalshi.PrivateKey)
	redact(&out.Kalshi.KeyPassword)

	redact(&out.Polymarket.ApiKey)
	redact(&out.Polymarket.ApiSecret)
	redact(&out.Polymarket.ApiPassphrase)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Fees = maps.Clone(cfg.Fees)
	out.Account.PaperBalances = maps.Clone(cfg.Account.PaperBalances)
	out.Strategy.Enabled = slices.Clone(cfg.Strategy.Enabled)
	out.Matches.Pairs = slices.Clone(cfg.Matches.Pairs)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
