// Package aggregator keeps the latest best-bid/best-ask of both venues for
// every matched pair and decides when a pair is ready to be evaluated.
package aggregator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// DefaultStaleness is the maximum snapshot age used when none is configured.
const DefaultStaleness = 2 * time.Second

// Config tunes the aggregator.
type Config struct {
	// Staleness is the age at which a snapshot stops counting as present.
	Staleness time.Duration
	// RetainDepth keeps levels beyond the top of book.
	RetainDepth bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// cell is the exclusive owner of one pair's state.
type cell struct {
	mu    sync.Mutex
	state domain.PairState
}

// Aggregator routes snapshots to per-pair cells. Cells are locked
// independently; no lock spans more than one pair.
type Aggregator struct {
	matches     *matchcache.Cache
	cells       sync.Map // uuid.UUID -> *cell
	staleness   time.Duration
	retainDepth bool
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates an aggregator over the loaded match cache.
func New(matches *matchcache.Cache, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		matches:     matches,
		staleness:   cfg.Staleness,
		retainDepth: cfg.RetainDepth,
		now:         cfg.Now,
		logger:      logger.With(slog.String("component", "aggregator")),
		metrics:     m,
	}
}

// Ingest applies a snapshot to its pair and returns a trigger when both sides
// are present and fresh. Unmatched, malformed, duplicate and out-of-order
// snapshots are dropped without a trigger.
func (a *Aggregator) Ingest(snap domain.OrderBookSnapshot) (domain.EvaluationTrigger, bool) {
	platform := string(snap.Platform)
	if err := snap.Validate(); err != nil {
		a.metrics.EventIngested(platform, "snapshot", "invalid")
		a.logger.Warn("dropping malformed snapshot", slog.String("error", err.Error()))
		return domain.EvaluationTrigger{}, false
	}
	match, ok := a.matches.Lookup(snap.Platform, snap.MarketID)
	if !ok {
		a.metrics.EventIngested(platform, "snapshot", "unmatched")
		a.logger.Debug("unmatched market",
			slog.String("platform", platform),
			slog.String("market_id", string(snap.MarketID)),
		)
		return domain.EvaluationTrigger{}, false
	}
	snap = own(snap, a.retainDepth)

	c := a.cell(match.Pair)
	now := a.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Snapshot(match.Side)
	if cur != nil {
		switch {
		case snap.ObservedAt.Equal(cur.ObservedAt):
			a.metrics.EventIngested(platform, "snapshot", "duplicate")
			return domain.EvaluationTrigger{}, false
		case snap.ObservedAt.Before(cur.ObservedAt):
			a.metrics.EventIngested(platform, "snapshot", "out_of_order")
			a.logger.Warn("ignoring out-of-order snapshot",
				slog.String("pair_id", match.Pair.ID.String()),
				slog.String("side", match.Side.String()),
				slog.Time("observed_at", snap.ObservedAt),
				slog.Time("held_at", cur.ObservedAt),
			)
			return domain.EvaluationTrigger{}, false
		}
	}

	if cur == nil || !cur.SameTop(snap) {
		c.state.Version++
	}
	if match.Side == domain.PairSideA {
		c.state.VenueA = &snap
	} else {
		c.state.VenueB = &snap
	}
	a.metrics.EventIngested(platform, "snapshot", "applied")

	if !c.state.Fresh(now, a.staleness) {
		return domain.EvaluationTrigger{}, false
	}
	c.state.LastEvaluatedAt = now
	a.metrics.Triggered()
	return domain.EvaluationTrigger{
		PairID:  c.state.PairID,
		State:   c.state,
		Version: c.state.Version,
		At:      now,
	}, true
}

// State returns a copy of a pair's state. Stored snapshots are never mutated
// in place, so the copy is safe to read without the lock.
func (a *Aggregator) State(pairID uuid.UUID) (domain.PairState, bool) {
	v, ok := a.cells.Load(pairID)
	if !ok {
		return domain.PairState{}, false
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, true
}

// Fresh returns a pair's current state and whether both sides are younger
// than the staleness threshold right now.
func (a *Aggregator) Fresh(pairID uuid.UUID) (domain.PairState, bool) {
	s, ok := a.State(pairID)
	if !ok {
		return domain.PairState{}, false
	}
	return s, s.Fresh(a.now(), a.staleness)
}

// Pairs lists every pair that has received at least one snapshot.
func (a *Aggregator) Pairs() []uuid.UUID {
	var out []uuid.UUID
	a.cells.Range(func(k, _ any) bool {
		out = append(out, k.(uuid.UUID))
		return true
	})
	return out
}

func (a *Aggregator) cell(p domain.MatchedPair) *cell {
	if v, ok := a.cells.Load(p.ID); ok {
		return v.(*cell)
	}
	v, _ := a.cells.LoadOrStore(p.ID, &cell{state: domain.PairState{PairID: p.ID, Pair: p}})
	return v.(*cell)
}

// own copies everything the caller could still mutate.
func own(s domain.OrderBookSnapshot, depth bool) domain.OrderBookSnapshot {
	if s.BestBid != nil {
		b := *s.BestBid
		s.BestBid = &b
	}
	if s.BestAsk != nil {
		a := *s.BestAsk
		s.BestAsk = &a
	}
	if !depth {
		return s.WithoutDepth()
	}
	s.Bids = append([]domain.PriceLevel(nil), s.Bids...)
	s.Asks = append([]domain.PriceLevel(nil), s.Asks...)
	return s
}
