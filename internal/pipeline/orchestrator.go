package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// EventSource is one venue's normalized event stream.
type EventSource interface {
	Platform() domain.Platform
	Events() <-chan domain.MarketEvent
}

// Orchestrator runs one consumer goroutine per venue plus the periodic
// housekeeping of the hot path. Events from a single venue are handled in
// arrival order; venues are handled concurrently.
type Orchestrator struct {
	pipe            *Pipeline
	sources         []EventSource
	archiver        *Archiver
	archiveCron     string
	cleanupInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(
	pipe *Pipeline,
	sources []EventSource,
	archiver *Archiver,
	archiveCron string,
	cleanupInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Orchestrator{
		pipe:            pipe,
		sources:         sources,
		archiver:        archiver,
		archiveCron:     archiveCron,
		cleanupInterval: cleanupInterval,
		logger:          logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a consumer fails. It waits for
// in-flight executions before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("sources", len(o.sources)),
		slog.String("archive_cron", o.archiveCron),
	)
	defer o.pipe.Wait()

	g, ctx := errgroup.WithContext(ctx)

	for _, src := range o.sources {
		g.Go(func() error {
			err := o.consume(ctx, src)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if o.pipe.coord != nil {
		g.Go(func() error {
			ticker := time.NewTicker(o.cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					o.pipe.coord.Cleanup()
				}
			}
		})
	}

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// consume drains one venue's events until the channel closes or ctx ends.
func (o *Orchestrator) consume(ctx context.Context, src EventSource) error {
	platform := string(src.Platform())
	o.logger.Info("consuming venue events", slog.String("platform", platform))
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("pipeline: %s event stream closed: %w", platform, domain.ErrWSDisconnect)
			}
			o.pipe.Handle(ctx, ev)
		}
	}
}
