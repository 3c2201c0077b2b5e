package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/account"
	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/feed"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/platform/kalshi"
	"github.com/alanyoungcy/pairarb/internal/platform/polymarket"
)

// LiveMode trades real money: venue feeds drive the pipeline, legs go to the
// venue REST APIs behind circuit breakers, and balances are read from the
// venues.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	log := a.logger.With(slog.String("component", "app"))
	log.InfoContext(ctx, "starting live mode")

	var (
		venues   venueSet
		accounts []account.Venue
	)

	if a.cfg.Kalshi.Enabled {
		signer, err := a.kalshiSigner(true)
		if err != nil {
			return err
		}
		client, err := a.kalshiClient(signer)
		if err != nil {
			return err
		}
		ws, err := a.kalshiFeed(signer)
		if err != nil {
			return err
		}
		venues.feeds = append(venues.feeds, ws)
		venues.placers = append(venues.placers, client)
		accounts = append(accounts, client)
	}

	if a.cfg.Polymarket.Enabled {
		clob, err := a.polymarketClient(ctx)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "polymarket wallet ready", slog.String("address", clob.Address().Hex()))
		venues.feeds = append(venues.feeds, a.polymarketFeed())
		venues.placers = append(venues.placers, clob)
		accounts = append(accounts, clob)
	}

	venues.accounts = account.NewVenueSource(a.cfg.Account.Timeout.Duration, accounts...)

	eng, err := a.buildEngine(ctx, deps, venues)
	if err != nil {
		return err
	}
	return eng.run(ctx)
}

// PaperMode runs the full hot path on live market data but fills every leg
// immediately at its limit price and sizes against the configured paper
// balances. Venue credentials are optional.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	log := a.logger.With(slog.String("component", "app"))
	log.InfoContext(ctx, "starting paper mode")

	var venues venueSet

	if a.cfg.Kalshi.Enabled {
		signer, err := a.kalshiSigner(false)
		if err != nil {
			return err
		}
		ws, err := a.kalshiFeed(signer)
		if err != nil {
			return err
		}
		venues.feeds = append(venues.feeds, ws)
		venues.placers = append(venues.placers, executor.NewPaperPlacer(domain.PlatformKalshi))
	}
	if a.cfg.Polymarket.Enabled {
		venues.feeds = append(venues.feeds, a.polymarketFeed())
		venues.placers = append(venues.placers, executor.NewPaperPlacer(domain.PlatformPolymarket))
	}

	balances, err := paperBalances(a.cfg)
	if err != nil {
		return err
	}
	venues.accounts = account.NewStaticSource(balances)

	eng, err := a.buildEngine(ctx, deps, venues)
	if err != nil {
		return err
	}
	return eng.run(ctx)
}

// marketStatuser reports a market's lifecycle state.
type marketStatuser interface {
	MarketStatus(ctx context.Context, market domain.MarketID) (domain.MarketStatus, error)
}

// CheckMode loads and validates the approved matches, then asks each venue
// whether every matched market is still trading. It returns an error when
// any market is not tradeable or could not be checked.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	log := a.logger.With(slog.String("component", "app"))
	log.InfoContext(ctx, "starting check mode")

	matches, err := matchcache.Load(ctx, deps.Matches)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "approved matches valid", slog.Int("pairs", matches.Len()))

	statusers := make(map[domain.Platform]marketStatuser, 2)
	if a.cfg.Kalshi.Enabled {
		signer, err := a.kalshiSigner(false)
		if err != nil {
			return err
		}
		client, err := a.kalshiClient(signer)
		if err != nil {
			return err
		}
		statusers[domain.PlatformKalshi] = client
	}
	if a.cfg.Polymarket.Enabled && a.cfg.Polymarket.GammaHost != "" {
		statusers[domain.PlatformPolymarket] = polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	}

	type result struct {
		ref    domain.MarketRef
		status domain.MarketStatus
		err    error
	}
	var refs []domain.MarketRef
	for _, p := range matches.Pairs() {
		for _, ref := range []domain.MarketRef{p.VenueA, p.VenueB} {
			if _, ok := statusers[ref.Platform]; ok {
				refs = append(refs, ref)
			}
		}
	}
	results := make([]result, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, ref := range refs {
		g.Go(func() error {
			status, err := statusers[ref.Platform].MarketStatus(gctx, ref.MarketID)
			results[i] = result{ref: ref, status: status, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var failed, inactive int
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			log.WarnContext(ctx, "market status check failed",
				slog.String("market", r.ref.String()),
				slog.String("error", r.err.Error()),
			)
		case r.status != domain.MarketStatusActive:
			inactive++
			log.WarnContext(ctx, "matched market not tradeable",
				slog.String("market", r.ref.String()),
				slog.String("status", string(r.status)),
			)
		}
	}
	log.InfoContext(ctx, "check complete",
		slog.Int("markets", len(results)),
		slog.Int("inactive", inactive),
		slog.Int("failed", failed),
	)
	if failed > 0 || inactive > 0 {
		return fmt.Errorf("app: check: %d of %d markets not tradeable, %d unchecked", inactive, len(results), failed)
	}
	return nil
}

// kalshiSigner loads the RSA request signer. When required is false a
// missing key yields a nil signer.
func (a *App) kalshiSigner(required bool) (*crypto.RSASigner, error) {
	src := a.cfg.KalshiKey()
	if !src.Configured() || a.cfg.Kalshi.ApiKeyID == "" {
		if required {
			return nil, fmt.Errorf("app: kalshi credentials: %w", domain.ErrUnauthorized)
		}
		return nil, nil
	}
	pem, err := crypto.LoadKalshiPEM(src)
	if err != nil {
		return nil, fmt.Errorf("app: kalshi key: %w", err)
	}
	signer, err := crypto.NewRSASigner(a.cfg.Kalshi.ApiKeyID, pem)
	if err != nil {
		return nil, fmt.Errorf("app: kalshi key: %w", err)
	}
	return signer, nil
}

func (a *App) kalshiClient(signer *crypto.RSASigner) (*kalshi.Client, error) {
	client, err := kalshi.NewClient(kalshi.ClientConfig{
		BaseURL:           a.cfg.Kalshi.BaseURL,
		RequestsPerSecond: a.cfg.Kalshi.RequestsPerSecond,
		Timeout:           a.cfg.Kalshi.Timeout.Duration,
	}, signer)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return client, nil
}

func (a *App) kalshiFeed(signer *crypto.RSASigner) (feed.Venue, error) {
	ws, err := kalshi.NewWSClient(kalshi.WSConfig{
		URL:           a.cfg.Kalshi.WsURL,
		Depth:         a.cfg.Kalshi.WS.Depth,
		Buffer:        a.cfg.Kalshi.WS.Buffer,
		ReconnectBase: a.cfg.Kalshi.WS.ReconnectBase.Duration,
		ReconnectMax:  a.cfg.Kalshi.WS.ReconnectMax.Duration,
	}, signer, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return ws, nil
}

func (a *App) polymarketFeed() feed.Venue {
	return polymarket.NewWSClient(polymarket.WSConfig{
		URL:           a.cfg.Polymarket.WsURL,
		Depth:         a.cfg.Polymarket.WS.Depth,
		Buffer:        a.cfg.Polymarket.WS.Buffer,
		ReconnectBase: a.cfg.Polymarket.WS.ReconnectBase.Duration,
		ReconnectMax:  a.cfg.Polymarket.WS.ReconnectMax.Duration,
	}, a.logger)
}

// polymarketClient loads the wallet key and returns an authenticated CLOB
// client, deriving L2 credentials when none are configured.
func (a *App) polymarketClient(ctx context.Context) (*polymarket.ClobClient, error) {
	key, err := crypto.LoadWalletKey(a.cfg.WalletKey())
	if err != nil {
		return nil, fmt.Errorf("app: wallet key: %w", err)
	}
	if !common.IsHexAddress(a.cfg.Polymarket.ExchangeAddress) {
		return nil, fmt.Errorf("app: polymarket exchange_address %q is not an address", a.cfg.Polymarket.ExchangeAddress)
	}
	signer, err := crypto.NewSigner(key, int64(a.cfg.Polymarket.ChainID), common.HexToAddress(a.cfg.Polymarket.ExchangeAddress))
	if err != nil {
		return nil, fmt.Errorf("app: wallet signer: %w", err)
	}
	auth := crypto.HMACAuth{
		Key:        a.cfg.Polymarket.ApiKey,
		Secret:     a.cfg.Polymarket.ApiSecret,
		Passphrase: a.cfg.Polymarket.ApiPassphrase,
	}
	clob := polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:           a.cfg.Polymarket.ClobHost,
		DataURL:           a.cfg.Polymarket.DataHost,
		RequestsPerSecond: a.cfg.Polymarket.RequestsPerSecond,
		FeeRateBps:        int64(a.cfg.Polymarket.FeeRateBps),
		Timeout:           a.cfg.Polymarket.Timeout.Duration,
	}, signer, auth)
	if !auth.Valid() {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	return clob, nil
}
