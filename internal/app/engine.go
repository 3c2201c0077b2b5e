package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/account"
	"github.com/alanyoungcy/pairarb/internal/aggregator"
	"github.com/alanyoungcy/pairarb/internal/audit"
	"github.com/alanyoungcy/pairarb/internal/config"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/executor"
	"github.com/alanyoungcy/pairarb/internal/feed"
	"github.com/alanyoungcy/pairarb/internal/fees"
	"github.com/alanyoungcy/pairarb/internal/invariant"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/metrics"
	"github.com/alanyoungcy/pairarb/internal/notify"
	"github.com/alanyoungcy/pairarb/internal/pipeline"
	"github.com/alanyoungcy/pairarb/internal/server"
	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/sizing"
	"github.com/alanyoungcy/pairarb/internal/strategy"
)

// venueSet is what a mode plugs into the engine: where market data comes
// from, where legs go and where balances are read.
type venueSet struct {
	feeds    []feed.Venue
	placers  []domain.OrderPlacer
	accounts domain.AccountSource
}

// engine is the assembled hot path plus its background loops.
type engine struct {
	cfg       *config.Config
	deps      *Dependencies
	feeds     []feed.Venue
	matches   *matchcache.Cache
	refresher *account.Refresher
	sizer     *sizing.Calculator
	audit     *audit.Dispatcher
	alerter   *notify.Alerter
	pipe      *pipeline.Pipeline
	archiver  *pipeline.Archiver
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// feeSchedule converts the configured fee tables.
func feeSchedule(cfg *config.Config) (fees.Schedule, error) {
	schedule := make(fees.Schedule, len(cfg.Fees))
	for name, f := range cfg.Fees {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("fees: %w", err)
		}
		schedule[p] = domain.FeeModel{Basis: domain.FeeBasis(f.Basis), Rate: f.Rate.Decimal}
	}
	return schedule, nil
}

// paperBalances converts the configured paper balances.
func paperBalances(cfg *config.Config) (map[domain.Platform]decimal.Decimal, error) {
	out := make(map[domain.Platform]decimal.Decimal, len(cfg.Account.PaperBalances))
	for name, bal := range cfg.Account.PaperBalances {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("account.paper_balances: %w", err)
		}
		out[p] = bal.Decimal
	}
	return out, nil
}

// buildEngine loads the approved matches and assembles every hot-path
// component around the given venues.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies, venues venueSet) (*engine, error) {
	cfg := a.cfg
	logger := a.logger

	matches, err := matchcache.Load(ctx, deps.Matches)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "approved matches loaded",
		slog.String("component", "app"),
		slog.Int("pairs", matches.Len()),
	)

	m := metrics.New()
	checker := invariant.New(logger, m, cfg.DebugInvariants)

	agg := aggregator.New(matches, aggregator.Config{
		Staleness:   cfg.Engine.Staleness.Duration,
		RetainDepth: cfg.Engine.RetainDepth,
	}, logger, m)

	schedule, err := feeSchedule(cfg)
	if err != nil {
		return nil, err
	}
	feeEngine, err := fees.NewEngine(schedule, cfg.Strategy.TwoSidedArb.MinProfit.Decimal)
	if err != nil {
		return nil, err
	}

	registry := strategy.NewDefaultRegistry(strategy.Config{
		Enabled: cfg.Strategy.Enabled,
		TwoSidedArb: strategy.TwoSidedArbConfig{
			MinProfit:   cfg.Strategy.TwoSidedArb.MinProfit.Decimal,
			Cooldown:    cfg.Strategy.TwoSidedArb.Cooldown.Duration,
			MaxPosition: cfg.Strategy.TwoSidedArb.MaxPosition.Decimal,
		},
		MispricingAlert: strategy.MispricingAlertConfig{
			MinDivergence: cfg.Strategy.MispricingAlert.MinDivergence.Decimal,
			Cooldown:      cfg.Strategy.MispricingAlert.Cooldown.Duration,
		},
	})
	strategies, err := registry.Ordered(cfg.Strategy.Enabled)
	if err != nil {
		return nil, err
	}
	evaluator := strategy.NewEvaluator(feeEngine, strategies, strategy.EvaluatorConfig{
		Staleness:   cfg.Engine.Staleness.Duration,
		RecentLimit: cfg.Engine.RecentLimit,
	}, logger, m)

	var mirror account.Mirror
	if deps.AccountStore != nil {
		mirror = deps.AccountStore
	}
	refresher := account.NewRefresher(venues.accounts, cfg.Account.RefreshInterval.Duration, mirror, logger)

	sizer := sizing.New(agg, refresher, sizing.BalancePolicy{
		Fraction:     cfg.Sizing.Fraction.Decimal,
		MaxContracts: cfg.Sizing.MaxContracts.Decimal,
		LotSize:      cfg.Sizing.LotSize.Decimal,
	}, sizing.Config{Interval: cfg.Sizing.Interval.Duration}, logger, m)
	refresher.OnBalanceChange(sizer)

	breakerCfg := executor.BreakerConfig{
		ConsecutiveFailures: uint32(cfg.Execution.Breaker.ConsecutiveFailures),
		OpenTimeout:         cfg.Execution.Breaker.OpenTimeout.Duration,
		HalfOpenRequests:    uint32(cfg.Execution.Breaker.HalfOpenRequests),
	}
	placers := make([]domain.OrderPlacer, 0, len(venues.placers))
	for _, p := range venues.placers {
		placers = append(placers, executor.NewBreakerPlacer(p, breakerCfg, logger))
	}
	coord := executor.NewCoordinator(sizer, agg, placers, deps.Locks, executor.Config{
		Mode:       executor.DispatchMode(cfg.Execution.Mode),
		LegTimeout: cfg.Execution.LegTimeout.Duration,
		LeaseTTL:   cfg.Execution.LeaseTTL.Duration,
		DedupTTL:   cfg.Execution.DedupTTL.Duration,
	}, checker, logger, m)

	dispatcher := audit.NewDispatcher(audit.Sinks{
		Log:        deps.AuditLog,
		Executions: deps.Executions,
		Bus:        deps.SignalBus,
	}, audit.Config{
		Buffer:      cfg.Audit.Buffer,
		PersistNoGo: cfg.Audit.PersistNoGo,
	}, logger, m)

	alerter := notify.NewAlerter(deps.Notifier, notify.AlertConfig{
		Timeout:  cfg.Notify.Timeout.Duration,
		Cooldown: cfg.Notify.Cooldown.Duration,
	}, logger)

	pipe := pipeline.New(pipeline.Deps{
		Matches:     matches,
		Aggregator:  agg,
		Sizer:       sizer,
		Accounts:    refresher,
		Evaluator:   evaluator,
		Coordinator: coord,
		Audit:       dispatcher,
		Alerts:      alerter,
	}, logger, m)

	e := &engine{
		cfg:       cfg,
		deps:      deps,
		feeds:     venues.feeds,
		matches:   matches,
		refresher: refresher,
		sizer:     sizer,
		audit:     dispatcher,
		alerter:   alerter,
		pipe:      pipe,
		metrics:   m,
		logger:    logger.With(slog.String("component", "engine")),
	}
	if deps.Archiver != nil {
		e.archiver = pipeline.NewArchiver(deps.Archiver, logger)
	}
	return e, nil
}

// run connects the feeds, takes the first account snapshot and blocks until
// ctx is cancelled or a component fails.
func (e *engine) run(ctx context.Context) error {
	if err := e.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("app: initial account snapshot: %w", err)
	}

	sources := make([]pipeline.EventSource, 0, len(e.feeds))
	for _, f := range e.feeds {
		markets := e.matches.Markets(f.Platform())
		if len(markets) == 0 {
			e.logger.WarnContext(ctx, "no approved markets on venue, feed not started",
				slog.String("platform", string(f.Platform())))
			continue
		}
		if err := f.Subscribe(ctx, markets); err != nil {
			return fmt.Errorf("app: subscribe %s: %w", f.Platform(), err)
		}
		if err := f.Connect(ctx); err != nil {
			return fmt.Errorf("app: connect %s: %w", f.Platform(), err)
		}
		defer func() { _ = f.Close() }()
		sources = append(sources, f)
		e.logger.InfoContext(ctx, "feed connected",
			slog.String("platform", string(f.Platform())),
			slog.Int("markets", len(markets)),
		)
	}
	if len(sources) == 0 {
		return fmt.Errorf("app: no venue feed has approved markets")
	}

	archiveCron := ""
	if e.archiver != nil {
		archiveCron = e.cfg.Archive.Cron
	}
	orch := pipeline.NewOrchestrator(e.pipe, sources, e.archiver, archiveCron, time.Minute, e.logger)

	e.alerter.Lifecycle(ctx, fmt.Sprintf("pairarb started in %s mode with %d pairs", e.cfg.Mode, e.matches.Len()))
	defer e.alerter.Wait()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.audit.Run(gctx) })
	g.Go(func() error { return e.refresher.Run(gctx) })
	g.Go(func() error { return e.sizer.Run(gctx) })
	g.Go(func() error { return orch.Run(gctx) })
	if e.cfg.Server.Enabled {
		srv := e.server()
		g.Go(func() error { return srv.Run(gctx) })
	}

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		e.alerter.Lifecycle(context.WithoutCancel(ctx), "pairarb stopped: "+err.Error())
		return err
	}
	e.alerter.Lifecycle(context.WithoutCancel(ctx), "pairarb stopped")
	return nil
}

// server builds the ops API around the running engine.
func (e *engine) server() *server.Server {
	checks := make(map[string]handler.Check, len(e.deps.Checks)+len(e.feeds))
	for name, c := range e.deps.Checks {
		checks[name] = c
	}
	statusFeeds := make([]handler.Feed, 0, len(e.feeds))
	for _, f := range e.feeds {
		statusFeeds = append(statusFeeds, f)
		checks["feed_"+string(f.Platform())] = func(context.Context) error {
			if !f.Healthy() {
				return domain.ErrWSDisconnect
			}
			return nil
		}
	}

	h := server.Handlers{
		Health:  handler.NewHealthHandler(checks),
		Status:  handler.NewStatusHandler(e.cfg.Mode, statusFeeds, e.matches, e.refresher),
		Metrics: e.metrics.Handler(),
	}
	if e.deps.Executions != nil {
		h.Executions = handler.NewExecutionHandler(e.deps.Executions, e.logger)
	}
	if e.deps.SignalBus != nil {
		h.Decisions = handler.NewDecisionHandler(e.deps.SignalBus, audit.DecisionStream, e.logger)
	}
	if e.archiver != nil {
		h.Archive = handler.NewArchiveHandler(e.archiver, e.logger)
	}
	return server.New(server.Config{
		Addr:         e.cfg.Server.Addr,
		APIKey:       e.cfg.Server.APIKey,
		RateLimitRPS: e.cfg.Server.RateLimitRPS,
		RateBurst:    e.cfg.Server.RateBurst,
	}, h, e.logger)
}
