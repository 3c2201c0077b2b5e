// Package account keeps the balance and position snapshot that strategies
// and the size calculator read. Reads never do I/O; a background loop
// refreshes the cached snapshot from an AccountSource.
package account

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Mirror receives every refreshed snapshot, e.g. the redis account store so
// other processes see the same view.
type Mirror interface {
	Save(ctx context.Context, sc domain.StrategyContext) error
}

// BalanceListener is told when any balance changes between refreshes.
type BalanceListener interface {
	NotifyAll()
}

// Refresher caches the latest snapshot from its source.
type Refresher struct {
	source   domain.AccountSource
	interval time.Duration
	mirror   Mirror
	listener BalanceListener
	logger   *slog.Logger

	current atomic.Pointer[domain.StrategyContext]
}

// NewRefresher creates a Refresher. mirror and listener may be nil; the
// listener can also be attached later with OnBalanceChange.
func NewRefresher(source domain.AccountSource, interval time.Duration, mirror Mirror, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	r := &Refresher{
		source:   source,
		interval: interval,
		mirror:   mirror,
		logger:   logger.With(slog.String("component", "account")),
	}
	r.current.Store(&domain.StrategyContext{})
	return r
}

// OnBalanceChange registers the listener nudged after a balance change.
// Call before Run.
func (r *Refresher) OnBalanceChange(l BalanceListener) { r.listener = l }

// Current returns the cached snapshot. Before the first successful refresh
// it is empty, so every balance reads as zero.
func (r *Refresher) Current() domain.StrategyContext {
	return *r.current.Load()
}

// Refresh fetches one snapshot and swaps it in.
func (r *Refresher) Refresh(ctx context.Context) error {
	next, err := r.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	if next.TakenAt.IsZero() {
		next.TakenAt = time.Now().UTC()
	}
	prev := r.current.Swap(&next)

	if !prev.BalancesEqual(next) {
		r.logger.InfoContext(ctx, "balances changed", balanceAttrs(next)...)
		if r.listener != nil {
			r.listener.NotifyAll()
		}
	}
	if r.mirror != nil {
		if err := r.mirror.Save(ctx, next); err != nil {
			r.logger.WarnContext(ctx, "account mirror failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Failed refreshes keep the previous snapshot.
func (r *Refresher) Run(ctx context.Context) error {
	r.refreshLogged(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "account refresh failed", slog.String("error", err.Error()))
	}
}

func balanceAttrs(sc domain.StrategyContext) []any {
	attrs := make([]any, 0, len(sc.Balances))
	for p, b := range sc.Balances {
		attrs = append(attrs, slog.String(string(p), b.String()))
	}
	return attrs
}
