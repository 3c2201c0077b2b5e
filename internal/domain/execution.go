package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SizeEntry is a precomputed trade size for a pair, annotated with the pair
// state version it was computed against.
type SizeEntry struct {
	PairID               uuid.UUID
	ComputedSize         decimal.Decimal
	ComputedAt           time.Time
	InputSnapshotVersion uint64
}

// UsableFor reports whether the entry may size a decision evaluated at
// version.
func (e SizeEntry) UsableFor(version uint64) bool {
	return e.InputSnapshotVersion >= version && e.ComputedSize.IsPositive()
}

// LegStatus is the outcome of a single leg dispatch.
type LegStatus string

const (
	LegFilled          LegStatus = "filled"
	LegPartiallyFilled LegStatus = "partially_filled"
	LegRejected        LegStatus = "rejected"
	LegTimedOut        LegStatus = "timed_out"
)

// LegResult reports what happened to one leg.
type LegResult struct {
	Leg          TradeLeg        `json:"leg"`
	Status       LegStatus       `json:"status"`
	FilledSize   decimal.Decimal `json:"filled_size"`
	Reason       string          `json:"reason,omitempty"`
	VenueOrderID string          `json:"venue_order_id,omitempty"`
	Latency      time.Duration   `json:"latency"`
}

// Exposed reports whether the leg left a position open.
func (r LegResult) Exposed() bool {
	return r.Status == LegFilled || r.Status == LegPartiallyFilled
}

// ExecutionResult is the per-leg outcome of dispatching an intent.
type ExecutionResult struct {
	IntentID   uuid.UUID   `json:"intent_id"`
	PairID     uuid.UUID   `json:"pair_id"`
	Legs       []LegResult `json:"legs"`
	Mismatch   bool        `json:"leg_mismatch"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// AllFilled reports whether every leg filled completely.
func (r ExecutionResult) AllFilled() bool {
	for _, l := range r.Legs {
		if l.Status != LegFilled {
			return false
		}
	}
	return len(r.Legs) > 0
}

// DetectMismatch reports a LegMismatch: one leg left exposure while another
// failed, or legs filled unequal amounts.
func DetectMismatch(legs []LegResult) bool {
	exposed, failed := 0, 0
	var filled *decimal.Decimal
	unequal := false
	for i := range legs {
		if legs[i].Exposed() {
			exposed++
			if filled == nil {
				filled = &legs[i].FilledSize
			} else if !filled.Equal(legs[i].FilledSize) {
				unequal = true
			}
		} else {
			failed++
		}
	}
	return (exposed > 0 && failed > 0) || unequal
}
