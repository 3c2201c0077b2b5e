package strategy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// scripted returns a fixed decision and counts calls.
type scripted struct {
	name  string
	fire  bool
	calls int
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Evaluate(pairID uuid.UUID, _ domain.PairState, r domain.EffectivePriceResult, _ domain.StrategyContext) domain.Decision {
	s.calls++
	if !s.fire {
		return domain.NoGo(domain.NoGoBelowThreshold, "scripted")
	}
	return domain.Go(domain.TradeIntent{ID: uuid.New(), PairID: pairID, Strategy: s.name, ExpectedProfit: r.NetProfit})
}

func trigger(state domain.PairState) domain.EvaluationTrigger {
	return domain.EvaluationTrigger{PairID: state.PairID, State: state, Version: state.Version, At: state.LastEvaluatedAt}
}

func newEvaluator(t *testing.T, minProfit string, now time.Time, strategies ...Strategy) *Evaluator {
	t.Helper()
	return NewEvaluator(feeEngine(t, minProfit), strategies,
		EvaluatorConfig{Staleness: 2 * time.Second, Now: func() time.Time { return now }},
		quietLogger(), nil)
}

func TestEvaluatorFirstGoWins(t *testing.T) {
	first := &scripted{name: "first", fire: false}
	second := &scripted{name: "second", fire: true}
	third := &scripted{name: "third", fire: true}
	e := newEvaluator(t, "0", base, first, second, third)

	state := pairState("0.38", "0.40", "0.50", "0.52", base)
	ev := e.Evaluate(trigger(state), funded())

	require.True(t, ev.Winner.IsGo())
	assert.Equal(t, "second", ev.Winner.Strategy)
	assert.Equal(t, state.Version, ev.Winner.Version)
	assert.Equal(t, state.PairID, ev.Winner.PairID)
	assert.Len(t, ev.Decisions, 2)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "later strategies are not evaluated")
}

func TestEvaluatorNoGoWinnerIsFirstStrategy(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b"}
	e := newEvaluator(t, "0", base, a, b)

	ev := e.Evaluate(trigger(pairState("0.38", "0.40", "0.50", "0.52", base)), funded())
	assert.False(t, ev.Winner.IsGo())
	assert.Equal(t, "a", ev.Winner.Strategy)
	assert.Len(t, ev.Decisions, 2)
}

func TestEvaluatorStalenessBoundary(t *testing.T) {
	threshold := 2 * time.Second
	tests := []struct {
		name   string
		age    time.Duration
		wantGo bool
	}{
		{"threshold_minus_1ms", threshold - time.Millisecond, true},
		{"at_threshold", threshold, false},
		{"threshold_plus_1ms", threshold + time.Millisecond, false},
	}
	for _, tt := range tests {
		for _, side := range []domain.PairSide{domain.PairSideA, domain.PairSideB} {
			t.Run(tt.name+"_"+side.String(), func(t *testing.T) {
				always := &scripted{name: "always", fire: true}
				e := newEvaluator(t, "0", base, always)

				state := pairState("0.38", "0.40", "0.50", "0.52", base)
				aged := *state.Snapshot(side)
				aged.ObservedAt = base.Add(-tt.age)
				if side == domain.PairSideA {
					state.VenueA = &aged
				} else {
					state.VenueB = &aged
				}

				ev := e.Evaluate(trigger(state), funded())
				assert.Equal(t, tt.wantGo, ev.Winner.IsGo())
				if !tt.wantGo {
					assert.Equal(t, domain.NoGoStale, ev.Winner.Reason)
					assert.Equal(t, 0, always.calls)
				}
			})
		}
	}
}

func TestEvaluatorEndToEndThresholds(t *testing.T) {
	tests := []struct {
		name      string
		threshold string
		wantGo    bool
	}{
		{"threshold_0.03", "0.03", true},
		{"threshold_0.10", "0.10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arb := NewTwoSidedArb(TwoSidedArbConfig{MinProfit: d(tt.threshold)})
			e := newEvaluator(t, tt.threshold, base, arb)

			state := pairState("0.38", "0.40", "0.50", "0.52", base)
			ev := e.Evaluate(trigger(state), funded())

			require.True(t, ev.Priced)
			assert.Equal(t, "0.0464", ev.Result.NetProfit.String())
			assert.Equal(t, tt.wantGo, ev.Actionable)
			assert.Equal(t, tt.wantGo, ev.Winner.IsGo())
			if !tt.wantGo {
				assert.Equal(t, domain.NoGoBelowThreshold, ev.Winner.Reason)
				return
			}
			legs := ev.Winner.Intent.Legs
			require.Len(t, legs, 2)
			assert.Equal(t, domain.OrderSideBuy, legs[0].Side)
			assert.True(t, d("0.40").Equal(legs[0].Price))
			assert.Equal(t, domain.OrderSideBuy, legs[1].Side)
			assert.True(t, d("0.52").Equal(legs[1].Price))
		})
	}
}

func TestEvaluatorNotEvaluable(t *testing.T) {
	e := newEvaluator(t, "0", base, &scripted{name: "x", fire: true})

	state := pairState("0.38", "0.40", "0.50", "0.52", base)
	state.VenueB = nil
	ev := e.Evaluate(trigger(state), funded())
	assert.Equal(t, domain.NoGoNotEvaluable, ev.Winner.Reason)

	// Complement pair quoting only A's ask and B's bid has no priced direction.
	state = pairState("", "0.40", "0.50", "", base)
	ev = e.Evaluate(trigger(state), funded())
	assert.Equal(t, domain.NoGoNotEvaluable, ev.Winner.Reason)
}

func TestEvaluatorRecentDecisionsAndInfo(t *testing.T) {
	arb := &scripted{name: "arb", fire: true}
	e := newEvaluator(t, "0", base, arb)
	e.recentLimit = 3

	var last uuid.UUID
	for i := 0; i < 5; i++ {
		state := pairState("0.38", "0.40", "0.50", "0.52", base)
		last = state.PairID
		e.Evaluate(trigger(state), funded())
	}

	recent := e.RecentDecisions(10)
	require.Len(t, recent, 3)
	assert.Equal(t, last, recent[0].PairID, "newest first")

	info := e.Info()
	require.Len(t, info, 1)
	assert.Equal(t, int64(5), info[0].Evaluated)
	assert.Equal(t, int64(5), info[0].Go)
	require.NotNil(t, info[0].LastGo)
}

func TestEvaluatorCommitRoutesToDecidingStrategy(t *testing.T) {
	arb := NewTwoSidedArb(TwoSidedArbConfig{MinProfit: d("0.03"), Cooldown: 5 * time.Second})
	e := newEvaluator(t, "0", base, arb)
	state := pairState("0.38", "0.40", "0.50", "0.52", base)

	first := e.Evaluate(trigger(state), funded()).Winner
	require.True(t, first.IsGo())
	again := e.Evaluate(trigger(state), funded()).Winner
	require.True(t, again.IsGo(), "evaluation alone does not start the cooldown")

	assert.True(t, e.Commit(first))
	assert.False(t, e.Commit(again), "the pair was dispatched within the cooldown")
	assert.Equal(t, domain.NoGoCooldown, e.Evaluate(trigger(state), funded()).Winner.Reason)

	e.Release(first)
	assert.True(t, e.Evaluate(trigger(state), funded()).Winner.IsGo())

	assert.False(t, e.Commit(domain.NoGo(domain.NoGoStale, "")), "NoGo decisions are never committed")

	plain := newEvaluator(t, "0", base, &scripted{name: "plain", fire: true})
	assert.True(t, plain.Commit(plain.Evaluate(trigger(state), funded()).Winner), "strategies without state always commit")
}
