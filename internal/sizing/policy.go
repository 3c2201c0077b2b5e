package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Policy turns a pair's state and an account snapshot into a contract count.
// Implementations must be pure functions of their inputs.
type Policy interface {
	Size(state domain.PairState, sctx domain.StrategyContext) decimal.Decimal
}

// BalancePolicy sizes a hedge as a fraction of the smaller venue budget,
// capped by top-of-book liquidity and a hard contract limit.
type BalancePolicy struct {
	// Fraction of each venue's available balance that one trade may use.
	Fraction decimal.Decimal
	// MaxContracts caps the size. Zero disables the cap.
	MaxContracts decimal.Decimal
	// LotSize is the increment sizes are floored to. Zero means whole contracts.
	LotSize decimal.Decimal
}

// Size implements Policy. It returns zero when either venue lacks quotes or
// funds.
func (p BalancePolicy) Size(state domain.PairState, sctx domain.StrategyContext) decimal.Decimal {
	if !state.Evaluable() {
		return decimal.Zero
	}
	size := decimal.Decimal{}
	first := true
	take := func(v decimal.Decimal) {
		if first || v.LessThan(size) {
			size = v
			first = false
		}
	}

	for _, side := range []domain.PairSide{domain.PairSideA, domain.PairSideB} {
		snap := state.Snapshot(side)
		cost := worstCost(snap)
		if !cost.IsPositive() {
			return decimal.Zero
		}
		budget := sctx.Balance(state.Pair.Ref(side).Platform).Mul(p.Fraction)
		take(budget.Div(cost))
		take(liquidity(snap))
	}
	if p.MaxContracts.IsPositive() {
		take(p.MaxContracts)
	}

	lot := p.LotSize
	if !lot.IsPositive() {
		lot = decimal.NewFromInt(1)
	}
	size = size.Div(lot).Floor().Mul(lot)
	if size.IsNegative() {
		return decimal.Zero
	}
	return size
}

// worstCost is the highest per-contract capital a leg on this venue could
// need, whichever side it ends up on.
func worstCost(snap *domain.OrderBookSnapshot) decimal.Decimal {
	cost := decimal.Zero
	if snap.BestAsk != nil {
		cost = snap.BestAsk.Price
	}
	if snap.BestBid != nil {
		cost = decimal.Max(cost, domain.One().Sub(snap.BestBid.Price))
	}
	return cost
}

// liquidity is the smallest size quoted at the top of book.
func liquidity(snap *domain.OrderBookSnapshot) decimal.Decimal {
	switch {
	case snap.BestAsk != nil && snap.BestBid != nil:
		return decimal.Min(snap.BestAsk.Size, snap.BestBid.Size)
	case snap.BestAsk != nil:
		return snap.BestAsk.Size
	case snap.BestBid != nil:
		return snap.BestBid.Size
	default:
		return decimal.Zero
	}
}
