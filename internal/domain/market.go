package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Orientation describes how the venue B market relates to the venue A market.
type Orientation string

const (
	// OrientationComplement means venue B's contract pays out exactly when
	// venue A's does not (for example the "No" token matched to a "Yes" ticker).
	OrientationComplement Orientation = "complement"
	// OrientationSame means both contracts pay out on the same outcome.
	OrientationSame Orientation = "same"
)

// PairSide selects one side of a matched pair.
type PairSide uint8

const (
	PairSideA PairSide = iota
	PairSideB
)

func (s PairSide) String() string {
	if s == PairSideA {
		return "a"
	}
	return "b"
}

// MatchedPair is an approved, immutable mapping between two markets on
// different venues that resolve on the same real-world event.
type MatchedPair struct {
	ID          uuid.UUID
	VenueA      MarketRef
	VenueB      MarketRef
	Orientation Orientation
}

// Ref returns the market reference for the given side.
func (p MatchedPair) Ref(side PairSide) MarketRef {
	if side == PairSideA {
		return p.VenueA
	}
	return p.VenueB
}

// Validate checks the structural invariants of an approved match record.
func (p MatchedPair) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: empty id", ErrInvalidPair)
	}
	if !p.VenueA.Platform.Valid() || !p.VenueB.Platform.Valid() {
		return fmt.Errorf("%w: %s: unknown platform (%q, %q)", ErrInvalidPair, p.ID, p.VenueA.Platform, p.VenueB.Platform)
	}
	if p.VenueA.Platform == p.VenueB.Platform {
		return fmt.Errorf("%w: %s: both sides on %s", ErrInvalidPair, p.ID, p.VenueA.Platform)
	}
	if p.VenueA.MarketID == "" || p.VenueB.MarketID == "" {
		return fmt.Errorf("%w: %s: empty market id", ErrInvalidPair, p.ID)
	}
	switch p.Orientation {
	case OrientationComplement, OrientationSame:
	default:
		return fmt.Errorf("%w: %s: unknown orientation %q", ErrInvalidPair, p.ID, p.Orientation)
	}
	return nil
}
