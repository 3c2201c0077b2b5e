package fees

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

var (
	d          = decimal.RequireFromString
	flatZero   = domain.FeeModel{Basis: domain.FeeOnNotional, Rate: decimal.Zero}
	profit7pct = domain.FeeModel{Basis: domain.FeeOnProfit, Rate: d("0.07")}
)

func TestArbitrageProfitWorstCaseFee(t *testing.T) {
	r := ArbitrageProfit(
		Leg{Platform: domain.PlatformKalshi, Side: domain.OrderSideBuy, Price: d("0.40"), Model: flatZero},
		Leg{Platform: domain.PlatformPolymarket, Side: domain.OrderSideBuy, Price: d("0.45"), Model: profit7pct},
	)

	assert.True(t, d("0.85").Equal(r.EntryCost), "entry %s", r.EntryCost)
	assert.True(t, d("0").Equal(r.Fees.VenueA), "fee a %s", r.Fees.VenueA)
	assert.True(t, d("0.0385").Equal(r.Fees.VenueB), "fee b %s", r.Fees.VenueB)
	assert.True(t, d("0.9615").Equal(r.ExitValue), "exit %s", r.ExitValue)
	assert.Equal(t, "0.1115", r.NetProfit.String())
}

func TestEntryCostAndFees(t *testing.T) {
	tests := []struct {
		name      string
		side      domain.OrderSide
		raw       string
		model     domain.FeeModel
		wantEntry string
		wantFee   string
		wantEff   string
	}{
		{"buy_no_fee", domain.OrderSideBuy, "0.40", flatZero, "0.40", "0", "0.40"},
		{"buy_profit_fee", domain.OrderSideBuy, "0.45", profit7pct, "0.45", "0.0385", "0.4885"},
		{"sell_profit_fee", domain.OrderSideSell, "0.55", profit7pct, "0.45", "0.0385", "0.4885"},
		{"buy_notional_fee", domain.OrderSideBuy, "0.60", domain.FeeModel{Basis: domain.FeeOnNotional, Rate: d("0.02")}, "0.60", "0.012", "0.612"},
		{"sell_notional_fee", domain.OrderSideSell, "0.60", domain.FeeModel{Basis: domain.FeeOnNotional, Rate: d("0.02")}, "0.40", "0.012", "0.412"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := d(tt.raw)
			assert.True(t, d(tt.wantEntry).Equal(EntryCost(tt.side, raw)), "entry %s", EntryCost(tt.side, raw))
			assert.True(t, d(tt.wantFee).Equal(WinningFee(tt.side, raw, tt.model)), "fee %s", WinningFee(tt.side, raw, tt.model))
			assert.True(t, d(tt.wantEff).Equal(EffectivePrice(tt.side, raw, tt.model)), "effective %s", EffectivePrice(tt.side, raw, tt.model))
		})
	}
}

func TestNetProfitMonotonicInFeeRate(t *testing.T) {
	prices := []string{"0.01", "0.10", "0.33", "0.45", "0.50", "0.77", "0.99"}
	sides := []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell}
	bases := []domain.FeeBasis{domain.FeeOnNotional, domain.FeeOnProfit}
	rates := []string{"0.20", "0.10", "0.07", "0.035", "0.01", "0"}

	for _, basis := range bases {
		for _, side := range sides {
			for _, pa := range prices {
				for _, pb := range prices {
					prevNet := decimal.Zero
					prevEff := decimal.Zero
					for i, rate := range rates {
						model := domain.FeeModel{Basis: basis, Rate: d(rate)}
						r := ArbitrageProfit(
							Leg{Side: domain.OrderSideBuy, Price: d(pa), Model: profit7pct},
							Leg{Side: side, Price: d(pb), Model: model},
						)
						eff := EffectivePrice(side, d(pb), model)
						if i > 0 {
							require.Falsef(t, r.NetProfit.LessThan(prevNet),
								"basis=%s side=%s a=%s b=%s rate=%s: net %s < %s", basis, side, pa, pb, rate, r.NetProfit, prevNet)
							require.Falsef(t, eff.GreaterThan(prevEff),
								"basis=%s side=%s b=%s rate=%s: effective %s > %s", basis, side, pb, rate, eff, prevEff)
						}
						prevNet, prevEff = r.NetProfit, eff
					}
				}
			}
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, Schedule{domain.PlatformKalshi: flatZero, domain.PlatformPolymarket: profit7pct}.Validate())
	assert.Error(t, Schedule{domain.PlatformKalshi: {Basis: "volume", Rate: d("0.01")}}.Validate())
	assert.Error(t, Schedule{domain.PlatformKalshi: {Basis: domain.FeeOnProfit, Rate: d("1.5")}}.Validate())
	assert.Error(t, Schedule{domain.PlatformKalshi: {Basis: domain.FeeOnProfit, Rate: d("-0.1")}}.Validate())

	m := Schedule{}.Model(domain.PlatformKalshi)
	assert.True(t, m.Rate.IsZero())
}

func testState(orientation domain.Orientation, a, b *domain.OrderBookSnapshot) domain.PairState {
	id := uuid.New()
	return domain.PairState{
		PairID: id,
		Pair: domain.MatchedPair{
			ID:          id,
			VenueA:      domain.MarketRef{Platform: domain.PlatformKalshi, MarketID: "KXELECTION"},
			VenueB:      domain.MarketRef{Platform: domain.PlatformPolymarket, MarketID: "9001"},
			Orientation: orientation,
		},
		VenueA:  a,
		VenueB:  b,
		Version: 1,
	}
}

func book(platform domain.Platform, bid, ask string) *domain.OrderBookSnapshot {
	s := &domain.OrderBookSnapshot{Platform: platform, MarketID: "m", ObservedAt: time.Unix(1_700_000_000, 0)}
	if bid != "" {
		s.BestBid = &domain.PriceLevel{Price: d(bid), Size: d("100")}
	}
	if ask != "" {
		s.BestAsk = &domain.PriceLevel{Price: d(ask), Size: d("100")}
	}
	return s
}

func TestEngineBestComplement(t *testing.T) {
	e, err := NewEngine(Schedule{domain.PlatformKalshi: flatZero, domain.PlatformPolymarket: profit7pct}, d("0.03"))
	require.NoError(t, err)

	state := testState(domain.OrientationComplement,
		book(domain.PlatformKalshi, "0.38", "0.40"),
		book(domain.PlatformPolymarket, "0.50", "0.52"),
	)
	r, ok := e.Best(state)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuyABuyB, r.Direction)
	assert.Equal(t, state.PairID, r.PairID)
	assert.True(t, d("0.92").Equal(r.EntryCost))
	assert.True(t, d("0.0336").Equal(r.Fees.VenueB))
	assert.Equal(t, "0.0464", r.NetProfit.String())
	assert.True(t, e.Actionable(r))

	strict, err := NewEngine(e.Schedule(), d("0.10"))
	require.NoError(t, err)
	assert.False(t, strict.Actionable(r))
}

func TestEngineBestSameOrientationUsesOppositeSides(t *testing.T) {
	e, err := NewEngine(Schedule{}, decimal.Zero)
	require.NoError(t, err)

	// Same outcome quoted 0.40 ask on A and 0.55 bid on B: buy A, sell B.
	state := testState(domain.OrientationSame,
		book(domain.PlatformKalshi, "0.38", "0.40"),
		book(domain.PlatformPolymarket, "0.55", "0.57"),
	)
	r, ok := e.Best(state)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuyASellB, r.Direction)
	assert.True(t, d("0.85").Equal(r.EntryCost))
	assert.Equal(t, "0.15", r.NetProfit.String())
}

func TestEngineBestMissingQuotes(t *testing.T) {
	e, err := NewEngine(Schedule{}, decimal.Zero)
	require.NoError(t, err)

	// A quotes only an ask and B only a bid: no complement direction has both legs.
	state := testState(domain.OrientationComplement,
		book(domain.PlatformKalshi, "", "0.40"),
		book(domain.PlatformPolymarket, "0.50", ""),
	)
	_, ok := e.Best(state)
	assert.False(t, ok)

	state.VenueB = nil
	_, ok = e.Best(state)
	assert.False(t, ok)
}

func TestNewEngineRejectsNegativeThreshold(t *testing.T) {
	_, err := NewEngine(Schedule{}, d("-0.01"))
	assert.Error(t, err)
}
