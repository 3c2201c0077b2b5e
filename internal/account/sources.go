package account

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Venue is the account side of a venue REST client.
type Venue interface {
	Platform() domain.Platform
	Balance(ctx context.Context) (decimal.Decimal, error)
	Positions(ctx context.Context) (map[domain.MarketID]decimal.Decimal, error)
}

// VenueSource builds a snapshot by querying every venue concurrently.
type VenueSource struct {
	venues  []Venue
	timeout time.Duration
}

// NewVenueSource creates a VenueSource with a per-refresh timeout.
func NewVenueSource(timeout time.Duration, venues ...Venue) *VenueSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &VenueSource{venues: venues, timeout: timeout}
}

type venueAccount struct {
	balance   decimal.Decimal
	positions map[domain.MarketID]decimal.Decimal
}

// Snapshot fails as a whole when any venue fails, so a partial view never
// replaces a complete one.
func (s *VenueSource) Snapshot(ctx context.Context) (domain.StrategyContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]venueAccount, len(s.venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range s.venues {
		g.Go(func() error {
			bal, err := v.Balance(gctx)
			if err != nil {
				return fmt.Errorf("account: %s balance: %w", v.Platform(), err)
			}
			pos, err := v.Positions(gctx)
			if err != nil {
				return fmt.Errorf("account: %s positions: %w", v.Platform(), err)
			}
			results[i] = venueAccount{balance: bal, positions: pos}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.StrategyContext{}, err
	}

	sc := domain.StrategyContext{
		Balances:  make(map[domain.Platform]decimal.Decimal, len(s.venues)),
		Positions: make(map[domain.MarketRef]decimal.Decimal),
		TakenAt:   time.Now().UTC(),
	}
	for i, v := range s.venues {
		p := v.Platform()
		sc.Balances[p] = results[i].balance
		for m, q := range results[i].positions {
			sc.Positions[domain.MarketRef{Platform: p, MarketID: m}] = q
		}
	}
	return sc, nil
}

// StaticSource serves fixed balances, as used by paper mode.
type StaticSource struct {
	sc domain.StrategyContext
}

// NewStaticSource creates a StaticSource over the given balances.
func NewStaticSource(balances map[domain.Platform]decimal.Decimal) *StaticSource {
	b := make(map[domain.Platform]decimal.Decimal, len(balances))
	for p, v := range balances {
		b[p] = v
	}
	return &StaticSource{sc: domain.StrategyContext{
		Balances:  b,
		Positions: map[domain.MarketRef]decimal.Decimal{},
	}}
}

func (s *StaticSource) Snapshot(context.Context) (domain.StrategyContext, error) {
	return s.sc, nil
}

var (
	_ domain.AccountSource = (*VenueSource)(nil)
	_ domain.AccountSource = (*StaticSource)(nil)
)
