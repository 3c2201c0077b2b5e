// Package fees computes worst-case fee-adjusted prices and the net profit of
// hedged two-venue positions. Everything here is pure decimal arithmetic.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Leg is one side of a hedged position as seen by the fee engine.
type Leg struct {
	Platform domain.Platform
	Side     domain.OrderSide
	Price    decimal.Decimal
	Model    domain.FeeModel
}

// EntryCost is the capital committed per contract. A buy costs the price; a
// sell locks the complement as collateral.
func EntryCost(side domain.OrderSide, raw decimal.Decimal) decimal.Decimal {
	if side == domain.OrderSideSell {
		return domain.One().Sub(raw)
	}
	return raw
}

// WinningFee is the fee charged per contract if this leg resolves in the
// money. Profit-based fees apply to the payout minus the entry cost.
func WinningFee(side domain.OrderSide, raw decimal.Decimal, m domain.FeeModel) decimal.Decimal {
	if m.Rate.IsZero() {
		return decimal.Zero
	}
	base := raw
	if m.Basis == domain.FeeOnProfit {
		base = domain.One().Sub(EntryCost(side, raw))
	}
	return m.Rate.Mul(base)
}

// EffectivePrice is the entry cost plus the worst-case fee, i.e. the price
// paid assuming the leg wins and the venue takes its cut.
func EffectivePrice(side domain.OrderSide, raw decimal.Decimal, m domain.FeeModel) decimal.Decimal {
	return EntryCost(side, raw).Add(WinningFee(side, raw, m))
}

// ArbitrageProfit evaluates a hedged pair of legs. Exactly one leg pays out
// 1, so only one fee is ever charged; the larger of the two is assumed.
func ArbitrageProfit(a, b Leg) domain.EffectivePriceResult {
	feeA := WinningFee(a.Side, a.Price, a.Model)
	feeB := WinningFee(b.Side, b.Price, b.Model)
	entry := EntryCost(a.Side, a.Price).Add(EntryCost(b.Side, b.Price))
	exit := domain.One().Sub(decimal.Max(feeA, feeB))

	return domain.EffectivePriceResult{
		PriceA:    a.Price,
		PriceB:    b.Price,
		EntryCost: entry,
		ExitValue: exit,
		NetProfit: exit.Sub(entry),
		Fees:      domain.FeeBreakdown{VenueA: feeA, VenueB: feeB},
	}
}

// Schedule maps each platform to its fee model.
type Schedule map[domain.Platform]domain.FeeModel

// Model returns the platform's fee model. Unknown platforms are fee-free.
func (s Schedule) Model(p domain.Platform) domain.FeeModel {
	if m, ok := s[p]; ok {
		return m
	}
	return domain.FeeModel{Basis: domain.FeeOnNotional}
}

// Validate checks every configured model.
func (s Schedule) Validate() error {
	for p, m := range s {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("fees: %s: %w", p, err)
		}
	}
	return nil
}
