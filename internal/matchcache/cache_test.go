package matchcache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func pair(kalshi, poly string) domain.MatchedPair {
	return domain.MatchedPair{
		ID:          uuid.New(),
		VenueA:      domain.MarketRef{Platform: domain.PlatformKalshi, MarketID: domain.MarketID(kalshi)},
		VenueB:      domain.MarketRef{Platform: domain.PlatformPolymarket, MarketID: domain.MarketID(poly)},
		Orientation: domain.OrientationComplement,
	}
}

type failingSource struct{ err error }

func (f failingSource) LoadApprovedMatches(context.Context) ([]domain.MatchedPair, error) {
	return nil, f.err
}

func TestLoadAndLookup(t *testing.T) {
	p1 := pair("KXFED", "111")
	p2 := pair("KXCPI", "222")
	c, err := Load(context.Background(), NewStaticSource([]domain.MatchedPair{p1, p2}))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	m, ok := c.Lookup(domain.PlatformKalshi, "KXFED")
	require.True(t, ok)
	assert.Equal(t, p1.ID, m.Pair.ID)
	assert.Equal(t, domain.PairSideA, m.Side)

	m, ok = c.Lookup(domain.PlatformPolymarket, "222")
	require.True(t, ok)
	assert.Equal(t, p2.ID, m.Pair.ID)
	assert.Equal(t, domain.PairSideB, m.Side)

	// Market ids are only unique within a platform.
	_, ok = c.Lookup(domain.PlatformPolymarket, "KXFED")
	assert.False(t, ok)
	_, ok = c.Lookup(domain.PlatformKalshi, "unknown")
	assert.False(t, ok)
}

func TestLoadSourceFailure(t *testing.T) {
	_, err := Load(context.Background(), failingSource{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)
}

func TestLoadRejectsMarketInTwoPairs(t *testing.T) {
	p1 := pair("KXFED", "111")
	p2 := pair("KXFED", "333")
	_, err := New([]domain.MatchedPair{p1, p2})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.Contains(t, err.Error(), "kalshi:KXFED")
}

func TestLoadRejectsMalformed(t *testing.T) {
	bad := pair("", "111")
	_, err := New([]domain.MatchedPair{bad})
	assert.ErrorIs(t, err, domain.ErrLoad)

	dup := pair("KXA", "1")
	_, err = New([]domain.MatchedPair{dup, dup})
	assert.ErrorIs(t, err, domain.ErrLoad)
}

func TestMarkInactiveIsAnOverlay(t *testing.T) {
	p := pair("KXFED", "111")
	c, err := New([]domain.MatchedPair{p})
	require.NoError(t, err)

	assert.True(t, c.MarkInactive(domain.PlatformPolymarket, "111"))
	assert.False(t, c.MarkInactive(domain.PlatformPolymarket, "111"), "second mark is a no-op")
	assert.False(t, c.MarkInactive(domain.PlatformPolymarket, "999"))

	_, ok := c.Lookup(domain.PlatformKalshi, "KXFED")
	assert.False(t, ok, "both sides read as unmatched")
	assert.True(t, c.Inactive(p.ID))

	// The loaded record is untouched.
	got, ok := c.Pair(p.ID)
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, c.Markets(domain.PlatformKalshi))
}

func TestMarketsByPlatform(t *testing.T) {
	c, err := New([]domain.MatchedPair{pair("KXA", "1"), pair("KXB", "2")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.MarketID{"KXA", "KXB"}, c.Markets(domain.PlatformKalshi))
	assert.ElementsMatch(t, []domain.MarketID{"1", "2"}, c.Markets(domain.PlatformPolymarket))
}

func TestConcurrentLookups(t *testing.T) {
	pairs := make([]domain.MatchedPair, 0, 50)
	for i := 0; i < 50; i++ {
		pairs = append(pairs, pair("KX"+uuid.NewString(), uuid.NewString()))
	}
	c, err := New(pairs)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, p := range pairs {
				if i%8 == w {
					c.MarkInactive(p.VenueB.Platform, p.VenueB.MarketID)
				}
				c.Lookup(p.VenueA.Platform, p.VenueA.MarketID)
			}
		}(w)
	}
	wg.Wait()

	for _, p := range pairs {
		_, ok := c.Lookup(p.VenueA.Platform, p.VenueA.MarketID)
		assert.False(t, ok)
	}
}
