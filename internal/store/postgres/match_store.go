package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// MatchStore implements domain.MatchSource over the market_matches table.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// LoadApprovedMatches returns every approved match. Validation of the rows
// is left to the match cache so that one bad row is reported with the rest.
func (s *MatchStore) LoadApprovedMatches(ctx context.Context) ([]domain.MatchedPair, error) {
	const query = `
		SELECT id, venue_a_platform, venue_a_market, venue_b_platform, venue_b_market, orientation
		FROM market_matches
		WHERE status = 'approved'
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load approved matches: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MatchedPair
	for rows.Next() {
		var (
			p                    domain.MatchedPair
			aPlatform, bPlatform string
			aMarket, bMarket     string
			orientation          string
		)
		if err := rows.Scan(&p.ID, &aPlatform, &aMarket, &bPlatform, &bMarket, &orientation); err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		p.VenueA = domain.MarketRef{Platform: domain.Platform(aPlatform), MarketID: domain.MarketID(aMarket)}
		p.VenueB = domain.MarketRef{Platform: domain.Platform(bPlatform), MarketID: domain.MarketID(bMarket)}
		p.Orientation = domain.Orientation(orientation)
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load approved matches rows: %w", err)
	}
	return pairs, nil
}
