package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyContext is a read-only snapshot of balances and positions supplied
// before evaluation. Positions are signed contract counts.
type StrategyContext struct {
	Balances  map[Platform]decimal.Decimal
	Positions map[MarketRef]decimal.Decimal
	TakenAt   time.Time
}

// Balance returns the available balance on a platform, zero when unknown.
func (c StrategyContext) Balance(p Platform) decimal.Decimal {
	if b, ok := c.Balances[p]; ok {
		return b
	}
	return decimal.Zero
}

// Position returns the signed position in a market, zero when flat.
func (c StrategyContext) Position(ref MarketRef) decimal.Decimal {
	if q, ok := c.Positions[ref]; ok {
		return q
	}
	return decimal.Zero
}

// BalancesEqual reports whether two snapshots hold the same balances.
func (c StrategyContext) BalancesEqual(o StrategyContext) bool {
	if len(c.Balances) != len(o.Balances) {
		return false
	}
	for p, b := range c.Balances {
		if ob, ok := o.Balances[p]; !ok || !ob.Equal(b) {
			return false
		}
	}
	return true
}
