// Command pairarb is the entry point for the cross-venue arbitrage engine. It
// loads configuration, validates it, sets up signal handling, and starts the
// application in the configured mode. With -seal it instead encrypts a venue
// key file and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/pairarb/internal/app"
	"github.com/alanyoungcy/pairarb/internal/config"
	"github.com/alanyoungcy/pairarb/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	sealKind := flag.String("seal", "", "encrypt a key file and exit: wallet or kalshi_rsa")
	sealIn := flag.String("in", "", "plaintext key file to encrypt (with -seal)")
	sealOut := flag.String("out", "", "destination of the sealed key file (with -seal)")
	flag.Parse()

	if *sealKind != "" {
		if err := sealKey(crypto.SecretKind(*sealKind), *sealIn, *sealOut, os.Getenv("PAIRARB_KEY_PASSWORD")); err != nil {
			fmt.Fprintf(os.Stderr, "seal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("pairarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("pairarb stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sealKey encrypts the plaintext key at in and writes the sealed file to out
// with owner-only permissions.
func sealKey(kind crypto.SecretKind, in, out, password string) error {
	if in == "" || out == "" {
		return errors.New("-in and -out are required")
	}
	if password == "" {
		return errors.New("PAIRARB_KEY_PASSWORD is not set")
	}
	raw, err := os.ReadFile(in)
	if err != nil {
		return err
	}

	var sealed []byte
	switch kind {
	case crypto.KindWallet:
		sealed, err = crypto.EncryptWalletKey(strings.TrimSpace(string(raw)), password)
	case crypto.KindKalshiRSA:
		sealed, err = crypto.Seal(kind, raw, password)
	default:
		return fmt.Errorf("unknown key kind %q", kind)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(out, sealed, 0o600)
}
