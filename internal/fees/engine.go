package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Engine picks the most profitable hedged direction for a pair and judges it
// against the minimum-profit threshold.
type Engine struct {
	schedule  Schedule
	minProfit decimal.Decimal
}

// NewEngine validates the schedule and threshold.
func NewEngine(schedule Schedule, minProfit decimal.Decimal) (*Engine, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if minProfit.IsNegative() {
		return nil, fmt.Errorf("fees: negative min profit %s", minProfit)
	}
	return &Engine{schedule: schedule, minProfit: minProfit}, nil
}

// MinProfit returns the configured threshold.
func (e *Engine) MinProfit() decimal.Decimal { return e.minProfit }

// Schedule returns the configured fee schedule.
func (e *Engine) Schedule() Schedule { return e.schedule }

// Best evaluates every direction the pair's orientation allows and returns
// the one with the highest net profit. It returns false when no direction has
// quotes on both venues.
func (e *Engine) Best(state domain.PairState) (domain.EffectivePriceResult, bool) {
	if !state.Evaluable() {
		return domain.EffectivePriceResult{}, false
	}
	var (
		best  domain.EffectivePriceResult
		found bool
	)
	for _, dir := range domain.DirectionsFor(state.Pair.Orientation) {
		r, ok := e.Evaluate(state, dir)
		if !ok {
			continue
		}
		if !found || r.NetProfit.GreaterThan(best.NetProfit) {
			best, found = r, true
		}
	}
	return best, found
}

// Evaluate prices one direction. Buys execute at the ask and sells at the bid.
func (e *Engine) Evaluate(state domain.PairState, dir domain.Direction) (domain.EffectivePriceResult, bool) {
	sideA, sideB := dir.Sides()
	pa, ok := Executable(state.VenueA, sideA)
	if !ok {
		return domain.EffectivePriceResult{}, false
	}
	pb, ok := Executable(state.VenueB, sideB)
	if !ok {
		return domain.EffectivePriceResult{}, false
	}

	r := ArbitrageProfit(
		Leg{Platform: state.Pair.VenueA.Platform, Side: sideA, Price: pa.Price, Model: e.schedule.Model(state.Pair.VenueA.Platform)},
		Leg{Platform: state.Pair.VenueB.Platform, Side: sideB, Price: pb.Price, Model: e.schedule.Model(state.Pair.VenueB.Platform)},
	)
	r.PairID = state.PairID
	r.Direction = dir
	return r, true
}

// Actionable reports whether net profit strictly exceeds the threshold.
func (e *Engine) Actionable(r domain.EffectivePriceResult) bool {
	return r.NetProfit.GreaterThan(e.minProfit)
}

// Executable returns the level a marketable order on side would hit.
func Executable(snap *domain.OrderBookSnapshot, side domain.OrderSide) (domain.PriceLevel, bool) {
	if snap == nil {
		return domain.PriceLevel{}, false
	}
	lvl := snap.BestAsk
	if side == domain.OrderSideSell {
		lvl = snap.BestBid
	}
	if lvl == nil {
		return domain.PriceLevel{}, false
	}
	return *lvl, true
}
