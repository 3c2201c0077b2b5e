package domain

import (
	"time"

	"github.com/google/uuid"
)

// PairState is the latest view of both venues for one matched pair. It is
// owned by the price aggregator; everyone else receives copies.
type PairState struct {
	PairID uuid.UUID
	Pair   MatchedPair
	VenueA *OrderBookSnapshot
	VenueB *OrderBookSnapshot
	// Version increments whenever either side's best levels change.
	Version         uint64
	LastEvaluatedAt time.Time
}

// Snapshot returns the snapshot held for a side, if any.
func (s PairState) Snapshot(side PairSide) *OrderBookSnapshot {
	if side == PairSideA {
		return s.VenueA
	}
	return s.VenueB
}

// Evaluable reports whether both sides hold a non-empty snapshot.
func (s PairState) Evaluable() bool {
	return s.VenueA != nil && s.VenueB != nil && !s.VenueA.Empty() && !s.VenueB.Empty()
}

// Fresh reports whether both sides are evaluable and strictly younger than
// maxAge at now.
func (s PairState) Fresh(now time.Time, maxAge time.Duration) bool {
	if !s.Evaluable() {
		return false
	}
	return s.VenueA.Age(now) < maxAge && s.VenueB.Age(now) < maxAge
}

// EvaluationTrigger is returned by the aggregator when a pair is ready to be
// evaluated. State is a copy taken under the pair's lock.
type EvaluationTrigger struct {
	PairID  uuid.UUID
	State   PairState
	Version uint64
	At      time.Time
}
