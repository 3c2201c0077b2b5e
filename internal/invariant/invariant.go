// Package invariant reports internal programming defects. In debug builds a
// violation panics; otherwise it is logged, counted and the caller skips the
// offending step.
package invariant

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// Checker evaluates invariants. A nil *Checker only returns the condition.
type Checker struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	debug   bool
}

// New creates a checker. debug makes violations panic.
func New(logger *slog.Logger, m *metrics.Metrics, debug bool) *Checker {
	return &Checker{
		logger:  logger.With(slog.String("component", "invariant")),
		metrics: m,
		debug:   debug,
	}
}

// Hold returns cond. When cond is false the violation is reported.
func (c *Checker) Hold(cond bool, msg string, attrs ...any) bool {
	if cond || c == nil {
		return cond
	}
	if c.debug {
		panic(fmt.Sprintf("invariant violated: %s %v", msg, attrs))
	}
	c.metrics.InvariantViolation()
	c.logger.Error("invariant violated: "+msg, attrs...)
	return false
}
