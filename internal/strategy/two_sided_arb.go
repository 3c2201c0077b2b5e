package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/fees"
)

// TwoSidedArbName is the registry name of TwoSidedArb.
const TwoSidedArbName = "two_sided_arb"

// TwoSidedArbConfig tunes TwoSidedArb.
type TwoSidedArbConfig struct {
	// MinProfit is the per-contract net profit that must be exceeded.
	MinProfit decimal.Decimal
	// Cooldown suppresses repeat dispatches on the same pair. It starts when
	// a Go is committed for dispatch, not when it is evaluated.
	Cooldown time.Duration
	// MaxPosition caps the absolute contracts held per market. Zero disables.
	MaxPosition decimal.Decimal
}

// TwoSidedArb buys (or sells) both venues of a matched pair when the
// worst-case fee-adjusted cost of the hedge is below the payout.
type TwoSidedArb struct {
	cfg TwoSidedArbConfig

	mu         sync.Mutex
	dispatched map[uuid.UUID]time.Time
}

// NewTwoSidedArb creates the strategy.
func NewTwoSidedArb(cfg TwoSidedArbConfig) *TwoSidedArb {
	return &TwoSidedArb{cfg: cfg, dispatched: make(map[uuid.UUID]time.Time)}
}

// Name returns the strategy identifier.
func (s *TwoSidedArb) Name() string { return TwoSidedArbName }

// Evaluate checks profit, cooldown, position limits and balances, in that
// order, and returns a two-leg intent with unsized legs.
func (s *TwoSidedArb) Evaluate(pairID uuid.UUID, state domain.PairState, result domain.EffectivePriceResult, sctx domain.StrategyContext) domain.Decision {
	if !result.NetProfit.GreaterThan(s.cfg.MinProfit) {
		return domain.NoGo(domain.NoGoBelowThreshold,
			fmt.Sprintf("net %s <= min %s", result.NetProfit, s.cfg.MinProfit))
	}

	now := state.LastEvaluatedAt
	if s.coolingDown(pairID, now) {
		return domain.NoGo(domain.NoGoCooldown, fmt.Sprintf("last dispatch within %s", s.cfg.Cooldown))
	}

	sideA, sideB := result.Direction.Sides()
	legs := []domain.TradeLeg{
		{Platform: state.Pair.VenueA.Platform, MarketID: state.Pair.VenueA.MarketID, Side: sideA, Price: result.PriceA},
		{Platform: state.Pair.VenueB.Platform, MarketID: state.Pair.VenueB.MarketID, Side: sideB, Price: result.PriceB},
	}

	if s.cfg.MaxPosition.IsPositive() {
		for _, leg := range legs {
			ref := domain.MarketRef{Platform: leg.Platform, MarketID: leg.MarketID}
			if sctx.Position(ref).Abs().GreaterThanOrEqual(s.cfg.MaxPosition) {
				return domain.NoGo(domain.NoGoPositionLimit,
					fmt.Sprintf("%s holds %s >= %s", ref, sctx.Position(ref), s.cfg.MaxPosition))
			}
		}
	}

	for _, leg := range legs {
		cost := fees.EntryCost(leg.Side, leg.Price)
		if sctx.Balance(leg.Platform).LessThan(cost) {
			return domain.NoGo(domain.NoGoInsufficientFunds,
				fmt.Sprintf("%s balance %s < %s", leg.Platform, sctx.Balance(leg.Platform), cost))
		}
	}

	return domain.Go(domain.TradeIntent{
		ID:             uuid.New(),
		PairID:         pairID,
		Strategy:       s.Name(),
		Legs:           legs,
		ExpectedProfit: result.NetProfit,
		Reason: fmt.Sprintf("%s entry=%s exit=%s net=%s",
			result.Direction, result.EntryCost, result.ExitValue, result.NetProfit),
		CreatedAt: now,
	})
}

func (s *TwoSidedArb) coolingDown(pairID uuid.UUID, now time.Time) bool {
	if s.cfg.Cooldown <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coolingDownLocked(pairID, now)
}

func (s *TwoSidedArb) coolingDownLocked(pairID uuid.UUID, now time.Time) bool {
	last, ok := s.dispatched[pairID]
	return ok && now.Sub(last) < s.cfg.Cooldown
}

// Commit starts the pair's cooldown at `at`. It reports false, and records
// nothing, when another Go for the pair was committed within the cooldown.
func (s *TwoSidedArb) Commit(pairID uuid.UUID, at time.Time) bool {
	if s.cfg.Cooldown <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coolingDownLocked(pairID, at) {
		return false
	}
	s.dispatched[pairID] = at
	return true
}

// Release undoes the Commit made at `at` when none of its legs were sent.
func (s *TwoSidedArb) Release(pairID uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.dispatched[pairID]; ok && last.Equal(at) {
		delete(s.dispatched, pairID)
	}
}
