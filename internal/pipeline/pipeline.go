// Package pipeline wires the hot path: venue events flow through the
// aggregator into evaluation and, on Go, into execution.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/aggregator"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/metrics"
	"github.com/alanyoungcy/pairarb/internal/strategy"
)

// Sizer is nudged whenever a pair's state changes.
type Sizer interface {
	Notify(pairID uuid.UUID)
}

// Accounts returns the cached account snapshot. It must not do I/O.
type Accounts interface {
	Current() domain.StrategyContext
}

// Alerter forwards operator alerts. Implementations must not block for long;
// the pipeline calls them off the hot path.
type Alerter interface {
	MispricingAlert(ctx context.Context, intent domain.TradeIntent)
	LegMismatch(ctx context.Context, intent domain.TradeIntent, result domain.ExecutionResult)
}

// Deps are the collaborators the pipeline drives. Coordinator may be nil, in
// which case Go decisions are audited but never executed.
type Deps struct {
	Matches     *matchcache.Cache
	Aggregator  *aggregator.Aggregator
	Sizer       Sizer
	Accounts    Accounts
	Evaluator   *strategy.Evaluator
	Coordinator *executor.Coordinator
	Audit       domain.AuditSink
	Alerts      Alerter
}

// Pipeline handles normalized venue events. Handle is safe to call from one
// goroutine per venue.
type Pipeline struct {
	matches  *matchcache.Cache
	agg      *aggregator.Aggregator
	sizer    Sizer
	accounts Accounts
	eval     *strategy.Evaluator
	coord    *executor.Coordinator
	audit    domain.AuditSink
	alerts   Alerter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	inflight sync.Map // uuid.UUID -> struct{}
	wg       sync.WaitGroup
}

// New creates a pipeline.
func New(deps Deps, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		matches:  deps.Matches,
		agg:      deps.Aggregator,
		sizer:    deps.Sizer,
		accounts: deps.Accounts,
		eval:     deps.Evaluator,
		coord:    deps.Coordinator,
		audit:    deps.Audit,
		alerts:   deps.Alerts,
		logger:   logger.With(slog.String("component", "pipeline")),
		metrics:  m,
	}
}

// Handle processes one event.
func (p *Pipeline) Handle(ctx context.Context, ev domain.MarketEvent) {
	switch e := ev.(type) {
	case domain.OrderBookSnapshot:
		p.handleSnapshot(ctx, e)
	case *domain.OrderBookSnapshot:
		if e != nil {
			p.handleSnapshot(ctx, *e)
		}
	case domain.MarketUpdate:
		p.handleMarketUpdate(ctx, e)
	case domain.TradeEvent:
		p.metrics.EventIngested(string(e.Platform), "trade", "observed")
	case domain.ConnectionEvent:
		p.handleConnection(ctx, e)
	default:
		p.logger.WarnContext(ctx, "unknown event type", slog.Any("event", ev))
	}
}

func (p *Pipeline) handleMarketUpdate(ctx context.Context, u domain.MarketUpdate) {
	platform := string(u.Platform)
	if u.Tradeable() {
		p.metrics.EventIngested(platform, "market_update", "active")
		return
	}
	if p.matches.MarkInactive(u.Platform, u.MarketID) {
		p.metrics.EventIngested(platform, "market_update", "deactivated")
		p.logger.WarnContext(ctx, "market stopped trading, pair inactive",
			slog.String("platform", platform),
			slog.String("market_id", string(u.MarketID)),
			slog.String("status", string(u.Status)),
		)
		return
	}
	p.metrics.EventIngested(platform, "market_update", "ignored")
}

func (p *Pipeline) handleConnection(ctx context.Context, c domain.ConnectionEvent) {
	p.metrics.FeedConnected(string(c.Platform), c.State == domain.ConnectionConnected)
	level := slog.LevelInfo
	if c.State != domain.ConnectionConnected {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "feed connection state",
		slog.String("platform", string(c.Platform)),
		slog.String("state", string(c.State)),
		slog.Int("attempt", c.Attempt),
		slog.String("reason", c.Reason),
	)
}

func (p *Pipeline) handleSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) {
	trig, ok := p.agg.Ingest(snap)
	if !ok {
		return
	}
	if p.sizer != nil {
		p.sizer.Notify(trig.PairID)
	}

	var sctx domain.StrategyContext
	if p.accounts != nil {
		sctx = p.accounts.Current()
	}
	ev := p.eval.Evaluate(trig, sctx)
	for _, d := range ev.Decisions {
		p.emitDecision(d)
	}

	w := ev.Winner
	if !w.IsGo() {
		return
	}
	if w.Intent.AlertOnly {
		if p.alerts != nil {
			p.alerts.MispricingAlert(ctx, *w.Intent)
		}
		return
	}
	if p.coord == nil {
		return
	}
	p.execute(ctx, w)
}

// execute sizes the decision and dispatches it in the background. At most
// one execution per pair is in flight in this process. The deciding strategy
// is only told about the dispatch once the coordinator accepted the Go.
func (p *Pipeline) execute(ctx context.Context, d domain.Decision) {
	if _, busy := p.inflight.LoadOrStore(d.PairID, struct{}{}); busy {
		p.emitDecision(d.Downgrade(domain.NoGoExecutionInFlight, "execution running for pair"))
		return
	}
	intent, prepared := p.coord.Prepare(d)
	if !prepared.IsGo() {
		p.inflight.Delete(d.PairID)
		p.emitDecision(prepared)
		return
	}
	if !p.eval.Commit(d) {
		p.inflight.Delete(d.PairID)
		p.emitDecision(d.Downgrade(domain.NoGoCooldown, "pair dispatched within cooldown"))
		return
	}

	// Legs run to completion even during shutdown; each has its own timeout.
	ectx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Delete(d.PairID)

		res, err := p.coord.Execute(ectx, intent)
		if err != nil {
			// No leg was sent.
			p.eval.Release(d)
			reason := domain.NoGoExecutionInFlight
			if errors.Is(err, domain.ErrInvalidOrder) {
				reason = domain.NoGoInvariantViolation
			}
			p.logger.WarnContext(ectx, "execution refused",
				slog.String("pair_id", d.PairID.String()),
				slog.String("intent_id", intent.ID.String()),
				slog.String("error", err.Error()),
			)
			p.emitDecision(d.Downgrade(reason, err.Error()))
			return
		}
		if p.audit != nil {
			p.audit.EmitExecution(intent, res)
		}
		if res.Mismatch && p.alerts != nil {
			p.alerts.LegMismatch(ectx, intent, res)
		}
	}()
}

func (p *Pipeline) emitDecision(d domain.Decision) {
	if p.audit != nil {
		p.audit.EmitDecision(d)
	}
}

// Wait blocks until background executions finish.
func (p *Pipeline) Wait() { p.wg.Wait() }
