package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
)

// One is the payout of a winning binary contract.
func One() decimal.Decimal { return one }

// PriceLevel is a single price+size entry in an orderbook. Prices are
// probabilities in [0,1].
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Equal compares price and size numerically.
func (l PriceLevel) Equal(o PriceLevel) bool {
	return l.Price.Equal(o.Price) && l.Size.Equal(o.Size)
}

func (l PriceLevel) validate() error {
	if l.Price.LessThan(zero) || l.Price.GreaterThan(one) {
		return fmt.Errorf("price %s outside [0,1]", l.Price)
	}
	if l.Size.LessThan(zero) {
		return fmt.Errorf("negative size %s", l.Size)
	}
	return nil
}

// OrderBookSnapshot is the best bid/ask of one market on one venue at the
// moment it was observed. Bids and Asks carry optional deeper levels.
type OrderBookSnapshot struct {
	Platform   Platform     `json:"platform"`
	MarketID   MarketID     `json:"market_id"`
	BestBid    *PriceLevel  `json:"best_bid,omitempty"`
	BestAsk    *PriceLevel  `json:"best_ask,omitempty"`
	Bids       []PriceLevel `json:"bids,omitempty"`
	Asks       []PriceLevel `json:"asks,omitempty"`
	ObservedAt time.Time    `json:"observed_at"`
	Sequence   uint64       `json:"sequence,omitempty"`
}

func (s OrderBookSnapshot) Source() Platform { return s.Platform }
func (s OrderBookSnapshot) Market() MarketID { return s.MarketID }
func (OrderBookSnapshot) isMarketEvent()     {}

// Validate reports malformed snapshots. Callers drop them with a warning.
func (s OrderBookSnapshot) Validate() error {
	if !s.Platform.Valid() {
		return fmt.Errorf("%w: platform %q", ErrInvalidSnapshot, s.Platform)
	}
	if s.MarketID == "" {
		return fmt.Errorf("%w: empty market id", ErrInvalidSnapshot)
	}
	if s.ObservedAt.IsZero() {
		return fmt.Errorf("%w: %s missing observed_at", ErrInvalidSnapshot, s.MarketID)
	}
	for _, lvl := range []*PriceLevel{s.BestBid, s.BestAsk} {
		if lvl == nil {
			continue
		}
		if err := lvl.validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, s.MarketID, err)
		}
	}
	if s.BestBid != nil && s.BestAsk != nil && s.BestBid.Price.GreaterThan(s.BestAsk.Price) {
		return fmt.Errorf("%w: %s crossed book bid %s > ask %s",
			ErrInvalidSnapshot, s.MarketID, s.BestBid.Price, s.BestAsk.Price)
	}
	return nil
}

// Empty reports whether the snapshot carries neither a bid nor an ask.
func (s OrderBookSnapshot) Empty() bool {
	return s.BestBid == nil && s.BestAsk == nil
}

// Mid returns the midpoint when both sides are present.
func (s OrderBookSnapshot) Mid() (decimal.Decimal, bool) {
	if s.BestBid == nil || s.BestAsk == nil {
		return decimal.Decimal{}, false
	}
	return s.BestBid.Price.Add(s.BestAsk.Price).Div(two), true
}

// SameTop reports whether two snapshots quote identical best levels.
func (s OrderBookSnapshot) SameTop(o OrderBookSnapshot) bool {
	return levelEqual(s.BestBid, o.BestBid) && levelEqual(s.BestAsk, o.BestAsk)
}

// WithoutDepth returns a copy holding only the best levels.
func (s OrderBookSnapshot) WithoutDepth() OrderBookSnapshot {
	s.Bids = nil
	s.Asks = nil
	return s
}

// Age is the time elapsed between observation and now.
func (s OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

func levelEqual(a, b *PriceLevel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// BestOf picks the best bid (highest price) and best ask (lowest price) among
// non-empty levels. Zero-size levels are ignored.
func BestOf(bids, asks []PriceLevel) (bestBid, bestAsk *PriceLevel) {
	for i := range bids {
		if !bids[i].Size.IsPositive() {
			continue
		}
		if bestBid == nil || bids[i].Price.GreaterThan(bestBid.Price) {
			lvl := bids[i]
			bestBid = &lvl
		}
	}
	for i := range asks {
		if !asks[i].Size.IsPositive() {
			continue
		}
		if bestAsk == nil || asks[i].Price.LessThan(bestAsk.Price) {
			lvl := asks[i]
			bestAsk = &lvl
		}
	}
	return bestBid, bestAsk
}
