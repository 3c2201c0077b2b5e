// Package matchcache holds the approved cross-venue market pairs for the
// lifetime of the process.
package matchcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Match is the result of a lookup: the pair and which side the market is on.
type Match struct {
	Pair domain.MatchedPair
	Side domain.PairSide
}

// Cache is an immutable index of approved pairs. The only mutable part is
// the inactive overlay, which records pairs whose markets stopped trading.
type Cache struct {
	pairs    []domain.MatchedPair
	byMarket map[domain.MarketRef]Match
	byID     map[uuid.UUID]int
	inactive sync.Map // uuid.UUID -> struct{}
}

// Load reads the approved matches once and builds the index. Any failure
// wraps domain.ErrLoad.
func Load(ctx context.Context, src domain.MatchSource) (*Cache, error) {
	pairs, err := src.LoadApprovedMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("matchcache: %w: %w", domain.ErrLoad, err)
	}
	return build(pairs)
}

// New builds a cache from an in-memory list.
func New(pairs []domain.MatchedPair) (*Cache, error) {
	return build(pairs)
}

func build(pairs []domain.MatchedPair) (*Cache, error) {
	c := &Cache{
		pairs:    make([]domain.MatchedPair, 0, len(pairs)),
		byMarket: make(map[domain.MarketRef]Match, 2*len(pairs)),
		byID:     make(map[uuid.UUID]int, len(pairs)),
	}

	var errs []error
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("pair %s listed twice", p.ID))
			continue
		}
		conflict := false
		for _, side := range []domain.PairSide{domain.PairSideA, domain.PairSideB} {
			if prev, ok := c.byMarket[p.Ref(side)]; ok {
				errs = append(errs, fmt.Errorf("market %s belongs to pairs %s and %s", p.Ref(side), prev.Pair.ID, p.ID))
				conflict = true
			}
		}
		if conflict {
			continue
		}
		c.byID[p.ID] = len(c.pairs)
		c.pairs = append(c.pairs, p)
		c.byMarket[p.VenueA] = Match{Pair: p, Side: domain.PairSideA}
		c.byMarket[p.VenueB] = Match{Pair: p, Side: domain.PairSideB}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("matchcache: %w: %w", domain.ErrLoad, errors.Join(errs...))
	}
	return c, nil
}

// Lookup resolves a venue market to its pair. Unmatched markets and pairs in
// the inactive overlay both report false.
func (c *Cache) Lookup(platform domain.Platform, market domain.MarketID) (Match, bool) {
	m, ok := c.byMarket[domain.MarketRef{Platform: platform, MarketID: market}]
	if !ok {
		return Match{}, false
	}
	if _, off := c.inactive.Load(m.Pair.ID); off {
		return Match{}, false
	}
	return m, true
}

// Pair returns a pair by id regardless of the inactive overlay.
func (c *Cache) Pair(id uuid.UUID) (domain.MatchedPair, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.MatchedPair{}, false
	}
	return c.pairs[i], true
}

// MarkInactive records that a market stopped trading. Its pair is excluded
// from future lookups. It reports whether the market belonged to a pair that
// was still active.
func (c *Cache) MarkInactive(platform domain.Platform, market domain.MarketID) bool {
	m, ok := c.byMarket[domain.MarketRef{Platform: platform, MarketID: market}]
	if !ok {
		return false
	}
	_, already := c.inactive.LoadOrStore(m.Pair.ID, struct{}{})
	return !already
}

// Inactive reports whether a pair has been marked inactive.
func (c *Cache) Inactive(id uuid.UUID) bool {
	_, off := c.inactive.Load(id)
	return off
}

// Pairs returns every loaded pair in load order. The slice is shared and must
// not be modified.
func (c *Cache) Pairs() []domain.MatchedPair { return c.pairs }

// Len is the number of loaded pairs.
func (c *Cache) Len() int { return len(c.pairs) }

// Markets lists the venue market ids of all active pairs on a platform, for
// feed subscriptions.
func (c *Cache) Markets(platform domain.Platform) []domain.MarketID {
	var out []domain.MarketID
	for _, p := range c.pairs {
		if c.Inactive(p.ID) {
			continue
		}
		for _, ref := range []domain.MarketRef{p.VenueA, p.VenueB} {
			if ref.Platform == platform {
				out = append(out, ref.MarketID)
			}
		}
	}
	return out
}
