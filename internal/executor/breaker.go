package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// BreakerConfig tunes the per-platform circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// BreakerPlacer wraps an OrderPlacer with a circuit breaker. Transport errors
// count as failures; venue rejections reported in the LegResult do not.
type BreakerPlacer struct {
	inner domain.OrderPlacer
	cb    *gobreaker.CircuitBreaker[domain.LegResult]
}

// NewBreakerPlacer wraps inner.
func NewBreakerPlacer(inner domain.OrderPlacer, cfg BreakerConfig, logger *slog.Logger) *BreakerPlacer {
	name := "placer-" + string(inner.Platform())
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerPlacer{inner: inner, cb: gobreaker.NewCircuitBreaker[domain.LegResult](settings)}
}

// Platform returns the wrapped placer's platform.
func (b *BreakerPlacer) Platform() domain.Platform { return b.inner.Platform() }

// State exposes the breaker state for status reporting.
func (b *BreakerPlacer) State() string { return b.cb.State().String() }

// PlaceOrder forwards to the wrapped placer unless the breaker is open.
func (b *BreakerPlacer) PlaceOrder(ctx context.Context, leg domain.TradeLeg) (domain.LegResult, error) {
	res, err := b.cb.Execute(func() (domain.LegResult, error) {
		return b.inner.PlaceOrder(ctx, leg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.LegResult{}, fmt.Errorf("%w: circuit open", domain.ErrRejected)
	}
	return res, err
}
