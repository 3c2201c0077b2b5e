package feed

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Book is a local price-level book for one market. It is not safe for
// concurrent use; each adapter owns its books from a single read loop.
type Book struct {
	bids map[string]domain.PriceLevel
	asks map[string]domain.PriceLevel
	// lastRaw is the latest venue time seen; last is the latest time emitted.
	lastRaw time.Time
	last    time.Time
	seq     uint64
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		bids: make(map[string]domain.PriceLevel),
		asks: make(map[string]domain.PriceLevel),
	}
}

// Replace swaps both sides for a full snapshot.
func (b *Book) Replace(bids, asks []domain.PriceLevel) {
	clear(b.bids)
	clear(b.asks)
	for _, l := range bids {
		b.Set(domain.OrderSideBuy, l.Price, l.Size)
	}
	for _, l := range asks {
		b.Set(domain.OrderSideSell, l.Price, l.Size)
	}
}

// Set replaces the size resting at price. A zero size removes the level.
func (b *Book) Set(side domain.OrderSide, price, size decimal.Decimal) {
	levels := b.asks
	if side == domain.OrderSideBuy {
		levels = b.bids
	}
	key := price.String()
	if !size.IsPositive() {
		delete(levels, key)
		return
	}
	levels[key] = domain.PriceLevel{Price: price, Size: size}
}

// Add applies a signed size change at price and returns the resulting size.
func (b *Book) Add(side domain.OrderSide, price, delta decimal.Decimal) decimal.Decimal {
	levels := b.asks
	if side == domain.OrderSideBuy {
		levels = b.bids
	}
	size := levels[price.String()].Size.Add(delta)
	b.Set(side, price, size)
	return size
}

// Levels returns bids best-first (descending) and asks best-first
// (ascending).
func (b *Book) Levels() (bids, asks []domain.PriceLevel) {
	bids = make([]domain.PriceLevel, 0, len(b.bids))
	for _, l := range b.bids {
		bids = append(bids, l)
	}
	asks = make([]domain.PriceLevel, 0, len(b.asks))
	for _, l := range b.asks {
		asks = append(asks, l)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	return bids, asks
}

// Snapshot builds the normalized snapshot for the book. Venue clocks have
// millisecond resolution, so an observation time that does not advance past
// the last emitted one is nudged a microsecond beyond it, as long as the venue
// time itself did not go backwards. A genuinely older time is kept so the
// aggregator can discard it.
func (b *Book) Snapshot(p domain.Platform, m domain.MarketID, at time.Time, depth int) domain.OrderBookSnapshot {
	raw := at
	if !raw.Before(b.lastRaw) && !raw.After(b.last) && !b.last.IsZero() {
		at = b.last.Add(time.Microsecond)
	}
	if raw.After(b.lastRaw) {
		b.lastRaw = raw
	}
	if at.After(b.last) {
		b.last = at
	}
	b.seq++

	bids, asks := b.Levels()
	snap := domain.OrderBookSnapshot{
		Platform:   p,
		MarketID:   m,
		ObservedAt: at,
		Sequence:   b.seq,
	}
	snap.BestBid, snap.BestAsk = domain.BestOf(bids, asks)
	if depth > 0 {
		snap.Bids = bids[:min(depth, len(bids))]
		snap.Asks = asks[:min(depth, len(asks))]
	}
	return snap
}
