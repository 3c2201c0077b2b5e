package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/aggregator"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/fees"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/sizing"
	"github.com/alanyoungcy/pairarb/internal/strategy"
)

var (
	d    = decimal.RequireFromString
	base = time.Date(2025, 11, 4, 14, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

type recordingAudit struct {
	mu         sync.Mutex
	decisions  []domain.Decision
	executions []domain.ExecutionResult
}

func (r *recordingAudit) EmitDecision(dec domain.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, dec)
}

func (r *recordingAudit) EmitExecution(_ domain.TradeIntent, res domain.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, res)
}

func (r *recordingAudit) last() domain.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[len(r.decisions)-1]
}

type recordingAlerts struct {
	mu         sync.Mutex
	mispricing []domain.TradeIntent
	mismatches []domain.ExecutionResult
}

func (r *recordingAlerts) MispricingAlert(_ context.Context, intent domain.TradeIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mispricing = append(r.mispricing, intent)
}

func (r *recordingAlerts) LegMismatch(_ context.Context, _ domain.TradeIntent, res domain.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mismatches = append(r.mismatches, res)
}

type staticAccounts struct{ sctx domain.StrategyContext }

func (s staticAccounts) Current() domain.StrategyContext { return s.sctx }

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type harness struct {
	pair   domain.MatchedPair
	pipe   *Pipeline
	calc   *sizing.Calculator
	audit  *recordingAudit
	alerts *recordingAlerts
	sctx   domain.StrategyContext
}

type harnessOpts struct {
	strategies []strategy.Strategy
	execute    bool
	leases     domain.LockManager
}

func newHarness(t *testing.T, now *time.Time, opts harnessOpts) *harness {
	t.Helper()
	pair := domain.MatchedPair{
		ID:          uuid.New(),
		VenueA:      domain.MarketRef{Platform: domain.PlatformKalshi, MarketID: "KXFEDDEC-25"},
		VenueB:      domain.MarketRef{Platform: domain.PlatformPolymarket, MarketID: "7812"},
		Orientation: domain.OrientationComplement,
	}
	matches, err := matchcache.New([]domain.MatchedPair{pair})
	require.NoError(t, err)

	clock := func() time.Time { return *now }
	agg := aggregator.New(matches, aggregator.Config{Staleness: 2 * time.Second, Now: clock}, quietLogger(), nil)

	engine, err := fees.NewEngine(fees.Schedule{
		domain.PlatformKalshi:     {Basis: domain.FeeOnNotional, Rate: decimal.Zero},
		domain.PlatformPolymarket: {Basis: domain.FeeOnProfit, Rate: d("0.07")},
	}, d("0.03"))
	require.NoError(t, err)
	eval := strategy.NewEvaluator(engine, opts.strategies,
		strategy.EvaluatorConfig{Staleness: 2 * time.Second, Now: clock}, quietLogger(), nil)

	sctx := domain.StrategyContext{Balances: map[domain.Platform]decimal.Decimal{
		domain.PlatformKalshi:     d("1000"),
		domain.PlatformPolymarket: d("1000"),
	}}
	accounts := staticAccounts{sctx: sctx}
	calc := sizing.New(agg, accounts, sizing.BalancePolicy{Fraction: d("0.1")}, sizing.Config{Now: clock}, quietLogger(), nil)

	var coord *executor.Coordinator
	if opts.execute {
		coord = executor.NewCoordinator(calc, agg,
			[]domain.OrderPlacer{
				executor.NewPaperPlacer(domain.PlatformKalshi),
				executor.NewPaperPlacer(domain.PlatformPolymarket),
			},
			opts.leases, executor.Config{LeaseTTL: time.Second, Now: clock}, nil, quietLogger(), nil)
	}

	h := &harness{pair: pair, calc: calc, audit: &recordingAudit{}, alerts: &recordingAlerts{}, sctx: sctx}
	h.pipe = New(Deps{
		Matches:     matches,
		Aggregator:  agg,
		Sizer:       calc,
		Accounts:    accounts,
		Evaluator:   eval,
		Coordinator: coord,
		Audit:       h.audit,
		Alerts:      h.alerts,
	}, quietLogger(), nil)
	return h
}

func book(ref domain.MarketRef, bid, ask string, at time.Time) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Platform:   ref.Platform,
		MarketID:   ref.MarketID,
		BestBid:    &domain.PriceLevel{Price: d(bid), Size: decimal.NewFromInt(50)},
		BestAsk:    &domain.PriceLevel{Price: d(ask), Size: decimal.NewFromInt(50)},
		ObservedAt: at,
	}
}

func arb() strategy.Strategy { return arbWithCooldown(0) }

func arbWithCooldown(cooldown time.Duration) strategy.Strategy {
	return strategy.NewTwoSidedArb(strategy.TwoSidedArbConfig{MinProfit: d("0.03"), Cooldown: cooldown})
}

func TestPipelineEndToEnd(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}, execute: true})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	assert.Empty(t, h.audit.decisions, "one side only does not trigger")

	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()
	last := h.audit.last()
	assert.Equal(t, domain.NoGoSizeUnavailable, last.Reason, "no size computed yet")

	entry, err := h.calc.Recompute(h.pair.ID, h.sctx)
	require.NoError(t, err)
	assert.Equal(t, "50", entry.ComputedSize.String())

	now = now.Add(100 * time.Millisecond)
	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Wait()

	require.Len(t, h.audit.executions, 1)
	res := h.audit.executions[0]
	assert.True(t, res.AllFilled())
	assert.False(t, res.Mismatch)
	for _, l := range res.Legs {
		assert.Equal(t, "50", l.FilledSize.String())
		assert.Equal(t, domain.OrderSideBuy, l.Leg.Side)
	}
	assert.Empty(t, h.alerts.mismatches)
}

func TestPipelineRepeatVersionIsNotDispatchedTwice(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}, execute: true})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()
	_, err := h.calc.Recompute(h.pair.ID, h.sctx)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		now = now.Add(50 * time.Millisecond)
		h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
		h.pipe.Wait()
	}
	assert.Len(t, h.audit.executions, 1)
	assert.Equal(t, domain.NoGoExecutionInFlight, h.audit.last().Reason)
}

func TestPipelineLeaseHeldBecomesNoGo(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}, execute: true, leases: heldLocks{}})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()
	_, err := h.calc.Recompute(h.pair.ID, h.sctx)
	require.NoError(t, err)

	now = now.Add(10 * time.Millisecond)
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()

	assert.Empty(t, h.audit.executions)
	assert.Equal(t, domain.NoGoExecutionInFlight, h.audit.last().Reason)
}

func TestPipelineCooldownStartsAtDispatch(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arbWithCooldown(5 * time.Second)}, execute: true})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()
	assert.Equal(t, domain.NoGoSizeUnavailable, h.audit.last().Reason)

	_, err := h.calc.Recompute(h.pair.ID, h.sctx)
	require.NoError(t, err)

	now = now.Add(100 * time.Millisecond)
	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Wait()
	require.Len(t, h.audit.executions, 1, "an unsized Go must not start the cooldown")

	now = now.Add(time.Second)
	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.37", "0.39", now))
	h.pipe.Wait()
	assert.Equal(t, domain.NoGoCooldown, h.audit.last().Reason)
	assert.Len(t, h.audit.executions, 1)
}

func TestPipelineRefusedLeaseKeepsPairOpen(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{
		strategies: []strategy.Strategy{arbWithCooldown(5 * time.Second)},
		execute:    true,
		leases:     heldLocks{},
	})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()

	// attempt sizes the current version and re-delivers the same book.
	attempt := func(ask string) domain.Decision {
		_, err := h.calc.Recompute(h.pair.ID, h.sctx)
		require.NoError(t, err)
		now = now.Add(100 * time.Millisecond)
		h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", ask, now))
		h.pipe.Wait()
		return h.audit.last()
	}

	assert.Equal(t, domain.NoGoExecutionInFlight, attempt("0.40").Reason)

	now = now.Add(100 * time.Millisecond)
	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.39", now))
	h.pipe.Wait()
	assert.Equal(t, domain.NoGoSizeUnavailable, h.audit.last().Reason)

	// The refused dispatch sent nothing, so no cooldown is running.
	assert.Equal(t, domain.NoGoExecutionInFlight, attempt("0.39").Reason)
	assert.Empty(t, h.audit.executions)
}

func TestPipelineAlertOnlyGoesToAlerter(t *testing.T) {
	now := base
	alert := strategy.NewMispricingAlert(strategy.MispricingAlertConfig{MinDivergence: d("0.05")})
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{alert}, execute: true})
	ctx := context.Background()

	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	h.pipe.Wait()

	require.Len(t, h.alerts.mispricing, 1)
	assert.True(t, h.alerts.mispricing[0].AlertOnly)
	assert.Empty(t, h.audit.executions)
	assert.True(t, h.audit.last().IsGo())
}

func TestPipelineClosedMarketStopsEvaluation(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}})
	ctx := context.Background()

	h.pipe.Handle(ctx, domain.MarketUpdate{
		Platform: h.pair.VenueB.Platform, MarketID: h.pair.VenueB.MarketID,
		Status: domain.MarketStatusClosed, ObservedAt: now,
	})
	h.pipe.Handle(ctx, book(h.pair.VenueA, "0.38", "0.40", now))
	h.pipe.Handle(ctx, book(h.pair.VenueB, "0.50", "0.52", now))
	assert.Empty(t, h.audit.decisions)
}

func TestPipelineIgnoresTradesAndConnectionEvents(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}})
	ctx := context.Background()

	h.pipe.Handle(ctx, domain.TradeEvent{Platform: domain.PlatformKalshi, MarketID: "KXFEDDEC-25", Price: d("0.4"), Size: d("3"), ObservedAt: now})
	h.pipe.Handle(ctx, domain.ConnectionEvent{Platform: domain.PlatformPolymarket, State: domain.ConnectionReconnecting, Attempt: 2})
	assert.Empty(t, h.audit.decisions)
}

type chanSource struct {
	platform domain.Platform
	ch       chan domain.MarketEvent
}

func (c chanSource) Platform() domain.Platform         { return c.platform }
func (c chanSource) Events() <-chan domain.MarketEvent { return c.ch }

func TestOrchestratorConsumesEachVenue(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{strategies: []strategy.Strategy{arb()}})
	kalshi := chanSource{platform: domain.PlatformKalshi, ch: make(chan domain.MarketEvent, 4)}
	poly := chanSource{platform: domain.PlatformPolymarket, ch: make(chan domain.MarketEvent, 4)}

	o := NewOrchestrator(h.pipe, []EventSource{kalshi, poly}, nil, "", time.Minute, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	kalshi.ch <- book(h.pair.VenueA, "0.38", "0.40", now)
	poly.ch <- book(h.pair.VenueB, "0.50", "0.52", now)

	assert.Eventually(t, func() bool {
		h.audit.mu.Lock()
		defer h.audit.mu.Unlock()
		return len(h.audit.decisions) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestOrchestratorFailsOnClosedStream(t *testing.T) {
	now := base
	h := newHarness(t, &now, harnessOpts{})
	src := chanSource{platform: domain.PlatformKalshi, ch: make(chan domain.MarketEvent)}
	close(src.ch)

	err := NewOrchestrator(h.pipe, []EventSource{src}, nil, "", 0, quietLogger()).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrWSDisconnect)
}
