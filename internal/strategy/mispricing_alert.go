package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// MispricingAlertName is the registry name of MispricingAlert.
const MispricingAlertName = "mispricing_alert"

// MispricingAlertConfig tunes MispricingAlert.
type MispricingAlertConfig struct {
	// MinDivergence is the mid-price gap between venues that raises an alert.
	MinDivergence decimal.Decimal
	// Cooldown suppresses repeat alerts on the same pair.
	Cooldown time.Duration
}

// MispricingAlert flags pairs whose venues disagree on the implied
// probability by more than a threshold. It produces alert-only intents with a
// single leg on the cheaper venue; they are reported and never dispatched.
type MispricingAlert struct {
	cfg MispricingAlertConfig

	mu       sync.Mutex
	lastEmit map[uuid.UUID]time.Time
}

// NewMispricingAlert creates the strategy.
func NewMispricingAlert(cfg MispricingAlertConfig) *MispricingAlert {
	return &MispricingAlert{cfg: cfg, lastEmit: make(map[uuid.UUID]time.Time)}
}

// Name returns the strategy identifier.
func (m *MispricingAlert) Name() string { return MispricingAlertName }

// Evaluate compares the venue A mid with the venue B mid mapped onto venue
// A's outcome.
func (m *MispricingAlert) Evaluate(pairID uuid.UUID, state domain.PairState, _ domain.EffectivePriceResult, _ domain.StrategyContext) domain.Decision {
	midA, okA := state.VenueA.Mid()
	midB, okB := state.VenueB.Mid()
	if !okA || !okB {
		return domain.NoGo(domain.NoGoNotEvaluable, "one-sided book")
	}
	impliedB := midB
	if state.Pair.Orientation == domain.OrientationComplement {
		impliedB = domain.One().Sub(midB)
	}
	gap := midA.Sub(impliedB).Abs()
	if !gap.GreaterThan(m.cfg.MinDivergence) {
		return domain.NoGo(domain.NoGoBelowThreshold,
			fmt.Sprintf("divergence %s <= %s", gap, m.cfg.MinDivergence))
	}

	now := state.LastEvaluatedAt
	m.mu.Lock()
	last, seen := m.lastEmit[pairID]
	if seen && m.cfg.Cooldown > 0 && now.Sub(last) < m.cfg.Cooldown {
		m.mu.Unlock()
		return domain.NoGo(domain.NoGoCooldown, "alert already raised")
	}
	m.lastEmit[pairID] = now
	m.mu.Unlock()

	// Take venue A's outcome wherever it is cheaper. On a complement pair
	// that means selling venue B's contract.
	leg := domain.TradeLeg{
		Platform: state.Pair.VenueA.Platform,
		MarketID: state.Pair.VenueA.MarketID,
		Side:     domain.OrderSideBuy,
		Price:    state.VenueA.BestAsk.Price,
	}
	if impliedB.LessThan(midA) {
		leg = domain.TradeLeg{
			Platform: state.Pair.VenueB.Platform,
			MarketID: state.Pair.VenueB.MarketID,
			Side:     domain.OrderSideBuy,
			Price:    state.VenueB.BestAsk.Price,
		}
		if state.Pair.Orientation == domain.OrientationComplement {
			leg.Side = domain.OrderSideSell
			leg.Price = state.VenueB.BestBid.Price
		}
	}

	return domain.Go(domain.TradeIntent{
		ID:             uuid.New(),
		PairID:         pairID,
		Strategy:       m.Name(),
		Legs:           []domain.TradeLeg{leg},
		ExpectedProfit: gap,
		Reason:         fmt.Sprintf("mid_a=%s implied_b=%s gap=%s", midA, impliedB, gap),
		AlertOnly:      true,
		CreatedAt:      now,
	})
}
