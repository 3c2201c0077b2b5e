package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Strategy turns a pair's priced state into a Go/NoGo decision.
//
// Evaluate is synchronous and must not perform network or storage I/O; all
// external data arrives through the StrategyContext. Implementations may keep
// private state (cooldowns, counters) behind their own lock.
type Strategy interface {
	Name() string
	Evaluate(pairID uuid.UUID, state domain.PairState, result domain.EffectivePriceResult, sctx domain.StrategyContext) domain.Decision
}

// Committer is implemented by strategies whose state must only advance once
// a Go is actually dispatched. A Go that is later downgraded (stale, unsized,
// already in flight) never reaches Commit.
type Committer interface {
	// Commit records the dispatch of a Go evaluated at `at`. It reports
	// false when the strategy no longer allows it, and then nothing is sent.
	Commit(pairID uuid.UUID, at time.Time) bool
	// Release undoes a Commit whose legs were never sent.
	Release(pairID uuid.UUID, at time.Time)
}
