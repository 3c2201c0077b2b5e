package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeBasis selects what a venue's fee rate is applied to.
type FeeBasis string

const (
	FeeOnNotional FeeBasis = "notional"
	FeeOnProfit   FeeBasis = "profit"
)

// FeeModel describes a venue's fee as data. Fees are only charged on the
// winning outcome of a position.
type FeeModel struct {
	Basis FeeBasis
	Rate  decimal.Decimal
}

// Validate rejects unknown bases and rates outside [0,1].
func (m FeeModel) Validate() error {
	switch m.Basis {
	case FeeOnNotional, FeeOnProfit:
	default:
		return fmt.Errorf("unknown fee basis %q", m.Basis)
	}
	if m.Rate.IsNegative() || m.Rate.GreaterThan(one) {
		return fmt.Errorf("fee rate %s outside [0,1]", m.Rate)
	}
	return nil
}

// Direction names which side each venue's leg takes.
type Direction string

const (
	DirectionBuyABuyB   Direction = "buy_a_buy_b"
	DirectionSellASellB Direction = "sell_a_sell_b"
	DirectionBuyASellB  Direction = "buy_a_sell_b"
	DirectionSellABuyB  Direction = "sell_a_buy_b"
)

// Sides returns the order side of the venue A and venue B legs.
func (d Direction) Sides() (a, b OrderSide) {
	switch d {
	case DirectionBuyABuyB:
		return OrderSideBuy, OrderSideBuy
	case DirectionSellASellB:
		return OrderSideSell, OrderSideSell
	case DirectionBuyASellB:
		return OrderSideBuy, OrderSideSell
	default:
		return OrderSideSell, OrderSideBuy
	}
}

// DirectionsFor lists the hedged directions available for an orientation.
func DirectionsFor(o Orientation) []Direction {
	if o == OrientationSame {
		return []Direction{DirectionBuyASellB, DirectionSellABuyB}
	}
	return []Direction{DirectionBuyABuyB, DirectionSellASellB}
}

// FeeBreakdown is the worst-case fee each venue would charge if its leg won.
type FeeBreakdown struct {
	VenueA decimal.Decimal `json:"venue_a_fee"`
	VenueB decimal.Decimal `json:"venue_b_fee"`
}

// EffectivePriceResult is the fee-adjusted economics of one direction on one
// pair, per contract.
type EffectivePriceResult struct {
	PairID    uuid.UUID       `json:"pair_id"`
	Direction Direction       `json:"direction"`
	PriceA    decimal.Decimal `json:"price_a"`
	PriceB    decimal.Decimal `json:"price_b"`
	EntryCost decimal.Decimal `json:"entry_cost"`
	ExitValue decimal.Decimal `json:"exit_value"`
	NetProfit decimal.Decimal `json:"net_profit"`
	Fees      FeeBreakdown    `json:"fee_breakdown"`
}
