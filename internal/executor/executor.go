// Package executor turns Go decisions into sized intents and dispatches
// their legs to the venues.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/invariant"
	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// DispatchMode selects how legs are sent.
type DispatchMode string

const (
	// DispatchSimultaneous sends every leg at once to minimise the exposure
	// window between venues.
	DispatchSimultaneous DispatchMode = "simultaneous"
	// DispatchSequential sends legs in order and stops at the first leg
	// that does not fill.
	DispatchSequential DispatchMode = "sequential"
)

// SizeSource reads the precomputed size table.
type SizeSource interface {
	Lookup(pairID uuid.UUID) (domain.SizeEntry, bool)
}

// FreshnessSource reports whether a pair is still fresh right now.
type FreshnessSource interface {
	Fresh(pairID uuid.UUID) (domain.PairState, bool)
}

// Config tunes the coordinator.
type Config struct {
	Mode       DispatchMode
	LegTimeout time.Duration
	// LeaseTTL bounds the cross-process execution lease. Zero disables it.
	LeaseTTL time.Duration
	// DedupTTL suppresses repeat dispatches of the same pair version.
	DedupTTL time.Duration
	Now      func() time.Time
}

// Coordinator sizes Go decisions and dispatches legs. It never retries a leg
// and never unwinds a filled one.
type Coordinator struct {
	sizes      SizeSource
	freshness  FreshnessSource
	placers    map[domain.Platform]domain.OrderPlacer
	leases     domain.LockManager
	dedup      *Dedup
	mode       DispatchMode
	legTimeout time.Duration
	leaseTTL   time.Duration
	now        func() time.Time
	checker    *invariant.Checker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewCoordinator creates a coordinator. leases may be nil.
func NewCoordinator(
	sizes SizeSource,
	freshness FreshnessSource,
	placers []domain.OrderPlacer,
	leases domain.LockManager,
	cfg Config,
	checker *invariant.Checker,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Coordinator {
	if cfg.Mode == "" {
		cfg.Mode = DispatchSimultaneous
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 3 * time.Second
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	byPlatform := make(map[domain.Platform]domain.OrderPlacer, len(placers))
	for _, p := range placers {
		byPlatform[p.Platform()] = p
	}
	return &Coordinator{
		sizes:      sizes,
		freshness:  freshness,
		placers:    byPlatform,
		leases:     leases,
		dedup:      NewDedup(cfg.DedupTTL, cfg.Now),
		mode:       cfg.Mode,
		legTimeout: cfg.LegTimeout,
		leaseTTL:   cfg.LeaseTTL,
		now:        cfg.Now,
		checker:    checker,
		logger:     logger.With(slog.String("component", "coordinator")),
		metrics:    m,
	}
}

// Prepare turns a Go decision into a sized intent. The returned decision is
// the input unchanged, or a NoGo when the pair went stale, no usable size
// exists, or the same pair version was already dispatched.
func (c *Coordinator) Prepare(d domain.Decision) (domain.TradeIntent, domain.Decision) {
	if !d.IsGo() {
		return domain.TradeIntent{}, d
	}
	if !c.checker.Hold(!d.Intent.AlertOnly, "alert-only intent reached the coordinator",
		slog.String("pair_id", d.PairID.String())) {
		return domain.TradeIntent{}, d.Downgrade(domain.NoGoInvariantViolation, "alert-only intent")
	}

	if _, fresh := c.freshness.Fresh(d.PairID); !fresh {
		return domain.TradeIntent{}, d.Downgrade(domain.NoGoStale, "pair stale at size fetch")
	}

	entry, ok := c.sizes.Lookup(d.PairID)
	switch {
	case !ok:
		return domain.TradeIntent{}, d.Downgrade(domain.NoGoSizeUnavailable, "no size entry")
	case !entry.UsableFor(d.Version):
		return domain.TradeIntent{}, d.Downgrade(domain.NoGoSizeUnavailable,
			fmt.Sprintf("size %s computed at version %d, decision at %d",
				entry.ComputedSize, entry.InputSnapshotVersion, d.Version))
	}

	if c.dedup.IsDuplicate(d.PairID.String() + ":" + strconv.FormatUint(d.Version, 10)) {
		return domain.TradeIntent{}, d.Downgrade(domain.NoGoExecutionInFlight, "pair version already dispatched")
	}

	intent := *d.Intent
	intent.Legs = make([]domain.TradeLeg, len(d.Intent.Legs))
	for i, leg := range d.Intent.Legs {
		leg.Size = entry.ComputedSize
		leg.ClientOrderID = uuid.NewSHA1(intent.ID, []byte(strconv.Itoa(i))).String()
		intent.Legs[i] = leg
	}
	intent.ExpectedProfit = intent.ExpectedProfit.Mul(entry.ComputedSize)
	return intent, d
}

// Execute dispatches every leg of a sized intent and reports per-leg
// outcomes. It returns an error wrapping domain.ErrLockHeld when another
// process holds the pair's execution lease, or domain.ErrInvalidOrder for an
// unsized intent; no leg is sent in either case.
func (c *Coordinator) Execute(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{
		IntentID:  intent.ID,
		PairID:    intent.PairID,
		StartedAt: c.now(),
	}
	for _, leg := range intent.Legs {
		if !c.checker.Hold(leg.Size.IsPositive(), "dispatching unsized leg",
			slog.String("intent_id", intent.ID.String()),
			slog.String("platform", string(leg.Platform)),
		) {
			return result, fmt.Errorf("executor: intent %s: unsized leg on %s: %w", intent.ID, leg.Platform, domain.ErrInvalidOrder)
		}
	}

	if c.leases != nil && c.leaseTTL > 0 {
		unlock, err := c.leases.Acquire(ctx, "pairarb:exec:"+intent.PairID.String(), c.leaseTTL)
		if err != nil {
			return result, fmt.Errorf("executor: lease %s: %w", intent.PairID, err)
		}
		defer unlock()
	}

	if c.mode == DispatchSequential {
		result.Legs = c.sequential(ctx, intent.Legs)
	} else {
		result.Legs = c.simultaneous(ctx, intent.Legs)
	}
	result.FinishedAt = c.now()
	result.Mismatch = domain.DetectMismatch(result.Legs)

	for _, l := range result.Legs {
		c.metrics.LegOutcome(string(l.Leg.Platform), string(l.Status), l.Latency)
	}
	if result.Mismatch {
		c.metrics.LegMismatch()
		c.logger.ErrorContext(ctx, "leg mismatch",
			slog.String("intent_id", intent.ID.String()),
			slog.String("pair_id", intent.PairID.String()),
			slog.Any("legs", result.Legs),
		)
	}
	return result, nil
}

func (c *Coordinator) simultaneous(ctx context.Context, legs []domain.TradeLeg) []domain.LegResult {
	out := make([]domain.LegResult, len(legs))
	var g errgroup.Group
	for i, leg := range legs {
		g.Go(func() error {
			out[i] = c.dispatch(ctx, leg)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Coordinator) sequential(ctx context.Context, legs []domain.TradeLeg) []domain.LegResult {
	out := make([]domain.LegResult, len(legs))
	halted := false
	for i, leg := range legs {
		if halted {
			out[i] = domain.LegResult{Leg: leg, Status: domain.LegRejected, Reason: "not sent: earlier leg did not fill"}
			continue
		}
		out[i] = c.dispatch(ctx, leg)
		halted = out[i].Status != domain.LegFilled
	}
	return out
}

// dispatch sends one leg with its own timeout.
func (c *Coordinator) dispatch(ctx context.Context, leg domain.TradeLeg) domain.LegResult {
	placer, ok := c.placers[leg.Platform]
	if !ok {
		return domain.LegResult{Leg: leg, Status: domain.LegRejected, Reason: domain.ErrNoPlacer.Error()}
	}

	lctx, cancel := context.WithTimeout(ctx, c.legTimeout)
	defer cancel()

	start := time.Now()
	res, err := placer.PlaceOrder(lctx, leg)
	latency := time.Since(start)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(lctx.Err(), context.DeadlineExceeded)):
		return domain.LegResult{Leg: leg, Status: domain.LegTimedOut, Reason: "no response within " + c.legTimeout.String(), Latency: latency}
	case err != nil:
		return domain.LegResult{Leg: leg, Status: domain.LegRejected, Reason: err.Error(), Latency: latency}
	}
	res.Leg = leg
	res.Latency = latency
	if res.Status == "" {
		res.Status = domain.LegRejected
		res.Reason = "placer returned no status"
	}
	return res
}

// Cleanup expires old dedup keys. The pipeline calls it periodically.
func (c *Coordinator) Cleanup() { c.dedup.Cleanup() }
