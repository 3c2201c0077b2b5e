package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/fees"
	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// EvaluatorConfig tunes the Evaluator.
type EvaluatorConfig struct {
	Staleness   time.Duration
	RecentLimit int
	Now         func() time.Time
}

// Evaluation is everything produced for one trigger.
type Evaluation struct {
	Result     domain.EffectivePriceResult
	Priced     bool
	Actionable bool
	// Decisions holds every decision made, in evaluation order.
	Decisions []domain.Decision
	// Winner is the first Go, or the first strategy's NoGo when none fired.
	Winner domain.Decision
}

// StrategyInfo holds runtime counters for a strategy (for status APIs).
type StrategyInfo struct {
	Name       string     `json:"name"`
	Evaluated  int64      `json:"evaluated"`
	Go         int64      `json:"go"`
	LastGo     *time.Time `json:"last_go,omitempty"`
	LastReason string     `json:"last_reason,omitempty"`
}

// Evaluator prices a triggered pair and runs the configured strategies in
// order. The first Go wins; later strategies are skipped for that trigger.
type Evaluator struct {
	engine     *fees.Engine
	strategies []Strategy
	committers map[string]Committer
	staleness  time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	recent      []domain.Decision
	recentLimit int
	info        map[string]*StrategyInfo
}

// NewEvaluator creates an Evaluator over an ordered strategy list.
func NewEvaluator(engine *fees.Engine, strategies []Strategy, cfg EvaluatorConfig, logger *slog.Logger, m *metrics.Metrics) *Evaluator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 500
	}
	info := make(map[string]*StrategyInfo, len(strategies))
	committers := make(map[string]Committer)
	for _, s := range strategies {
		info[s.Name()] = &StrategyInfo{Name: s.Name()}
		if c, ok := s.(Committer); ok {
			committers[s.Name()] = c
		}
	}
	return &Evaluator{
		engine:      engine,
		strategies:  strategies,
		committers:  committers,
		staleness:   cfg.Staleness,
		now:         cfg.Now,
		logger:      logger.With(slog.String("component", "evaluator")),
		metrics:     m,
		recentLimit: cfg.RecentLimit,
		info:        info,
	}
}

// Evaluate runs one evaluation cycle for a trigger. It never blocks on I/O.
func (e *Evaluator) Evaluate(trig domain.EvaluationTrigger, sctx domain.StrategyContext) Evaluation {
	started := time.Now()
	now := e.now()
	stamp := func(d domain.Decision, name string) domain.Decision {
		d.Strategy = name
		d.PairID = trig.PairID
		d.Version = trig.Version
		d.DecidedAt = now
		return d
	}

	var ev Evaluation
	switch {
	case !trig.State.Evaluable():
		ev.Winner = stamp(domain.NoGo(domain.NoGoNotEvaluable, "missing venue snapshot"), "")
	case !trig.State.Fresh(now, e.staleness):
		ev.Winner = stamp(domain.NoGo(domain.NoGoStale, fmt.Sprintf("age a=%s b=%s max=%s",
			trig.State.VenueA.Age(now), trig.State.VenueB.Age(now), e.staleness)), "")
	default:
		ev.Result, ev.Priced = e.engine.Best(trig.State)
		if !ev.Priced {
			ev.Winner = stamp(domain.NoGo(domain.NoGoNotEvaluable, "no direction quoted on both venues"), "")
			break
		}
		ev.Actionable = e.engine.Actionable(ev.Result)
		for _, s := range e.strategies {
			d := stamp(s.Evaluate(trig.PairID, trig.State, ev.Result, sctx), s.Name())
			ev.Decisions = append(ev.Decisions, d)
			if d.IsGo() {
				ev.Winner = d
				break
			}
		}
		if !ev.Winner.IsGo() {
			if len(ev.Decisions) > 0 {
				ev.Winner = ev.Decisions[0]
			} else {
				ev.Winner = stamp(domain.NoGo(domain.NoGoNoSignal, "no strategies configured"), "")
			}
		}
	}
	if len(ev.Decisions) == 0 {
		ev.Decisions = []domain.Decision{ev.Winner}
	}

	e.record(ev.Decisions)
	e.metrics.ObserveEvaluation(time.Since(started))
	if ev.Winner.IsGo() {
		e.logger.Info("go decision",
			slog.String("pair_id", trig.PairID.String()),
			slog.String("strategy", ev.Winner.Strategy),
			slog.Uint64("version", trig.Version),
			slog.String("net_profit", ev.Result.NetProfit.String()),
			slog.String("direction", string(ev.Result.Direction)),
		)
	}
	return ev
}

// Commit tells the deciding strategy that its Go is about to be dispatched.
// It reports false when the strategy withdraws the decision, e.g. because
// another Go for the pair was committed within its cooldown.
func (e *Evaluator) Commit(d domain.Decision) bool {
	if !d.IsGo() {
		return false
	}
	c, ok := e.committers[d.Strategy]
	if !ok {
		return true
	}
	return c.Commit(d.PairID, d.Intent.CreatedAt)
}

// Release undoes Commit for a Go whose legs were never sent.
func (e *Evaluator) Release(d domain.Decision) {
	if !d.IsGo() {
		return
	}
	if c, ok := e.committers[d.Strategy]; ok {
		c.Release(d.PairID, d.Intent.CreatedAt)
	}
}

func (e *Evaluator) record(decisions []domain.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range decisions {
		e.metrics.Decision(d.Strategy, d.Verdict.String(), string(d.Reason))
		if info, ok := e.info[d.Strategy]; ok {
			info.Evaluated++
			info.LastReason = string(d.Reason)
			if d.IsGo() {
				info.Go++
				at := d.DecidedAt
				info.LastGo = &at
			}
		}
		e.recent = append(e.recent, d)
	}
	if over := len(e.recent) - e.recentLimit; over > 0 {
		e.recent = append(e.recent[:0:0], e.recent[over:]...)
	}
}

// RecentDecisions returns up to limit most recent decisions, newest first.
func (e *Evaluator) RecentDecisions(limit int) []domain.Decision {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.Decision, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// Info returns runtime counters for every configured strategy, by name.
func (e *Evaluator) Info() []StrategyInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StrategyInfo, 0, len(e.info))
	for _, i := range e.info {
		out = append(out, *i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
