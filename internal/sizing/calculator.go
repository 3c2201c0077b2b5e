// Package sizing precomputes trade sizes per pair off the hot path.
package sizing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// StateSource reads pair states. The aggregator implements it.
type StateSource interface {
	State(pairID uuid.UUID) (domain.PairState, bool)
	Pairs() []uuid.UUID
}

// ContextSource returns the latest cached account snapshot without I/O.
type ContextSource interface {
	Current() domain.StrategyContext
}

// Config tunes the calculator loop.
type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

// Calculator owns the size table. It is written only by its own goroutine
// (Run) or by direct Recompute calls, and read by the execution coordinator.
type Calculator struct {
	states   StateSource
	account  ContextSource
	policy   Policy
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	nudges chan uuid.UUID
	sweep  chan struct{}

	mu      sync.RWMutex
	entries map[uuid.UUID]domain.SizeEntry
}

// New creates a calculator.
func New(states StateSource, account ContextSource, policy Policy, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Calculator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Calculator{
		states:   states,
		account:  account,
		policy:   policy,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   logger.With(slog.String("component", "sizing")),
		metrics:  m,
		nudges:   make(chan uuid.UUID, 1024),
		sweep:    make(chan struct{}, 1),
		entries:  make(map[uuid.UUID]domain.SizeEntry),
	}
}

// Recompute sizes one pair against its current state and stores the entry.
func (c *Calculator) Recompute(pairID uuid.UUID, sctx domain.StrategyContext) (domain.SizeEntry, error) {
	state, ok := c.states.State(pairID)
	if !ok {
		return domain.SizeEntry{}, fmt.Errorf("sizing: pair %s: %w", pairID, domain.ErrNotFound)
	}
	entry := domain.SizeEntry{
		PairID:               pairID,
		ComputedSize:         c.policy.Size(state, sctx),
		ComputedAt:           c.now(),
		InputSnapshotVersion: state.Version,
	}

	c.mu.Lock()
	if prev, ok := c.entries[pairID]; ok && prev.InputSnapshotVersion > entry.InputSnapshotVersion {
		c.mu.Unlock()
		return prev, nil
	}
	c.entries[pairID] = entry
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.SizeEntries(n)
	return entry, nil
}

// Lookup returns the latest entry for a pair.
func (c *Calculator) Lookup(pairID uuid.UUID) (domain.SizeEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pairID]
	return e, ok
}

// Notify asks for a recompute of one pair. It never blocks; if the queue is
// full the next sweep covers the pair.
func (c *Calculator) Notify(pairID uuid.UUID) {
	select {
	case c.nudges <- pairID:
	default:
	}
}

// NotifyAll asks for a full sweep, e.g. after a balance change.
func (c *Calculator) NotifyAll() {
	select {
	case c.sweep <- struct{}{}:
	default:
	}
}

// Run recomputes every tracked pair each interval and serves nudges until
// ctx is cancelled.
func (c *Calculator) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "size calculator started", slog.Duration("interval", c.interval))
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweepAll(ctx)
		case <-c.sweep:
			c.sweepAll(ctx)
		case id := <-c.nudges:
			if _, err := c.Recompute(id, c.account.Current()); err != nil {
				c.logger.DebugContext(ctx, "recompute skipped",
					slog.String("pair_id", id.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (c *Calculator) sweepAll(ctx context.Context) {
	sctx := c.account.Current()
	for _, id := range c.states.Pairs() {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.Recompute(id, sctx); err != nil {
			c.logger.WarnContext(ctx, "recompute failed",
				slog.String("pair_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
