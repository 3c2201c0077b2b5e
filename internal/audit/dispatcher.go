// Package audit records every decision and execution outcome without ever
// blocking the hot path. Records are queued and written by one background
// goroutine to the audit log, the execution store and the signal bus.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/metrics"
)

// Bus names.
const (
	DecisionStream   = "decisions"
	ExecutionChannel = "executions"
)

const drainTimeout = 5 * time.Second

// Config tunes the dispatcher.
type Config struct {
	Buffer int
	// PersistNoGo also writes NoGo decisions to the audit log. They always go
	// to the decision stream.
	PersistNoGo bool
}

// Sinks are the optional destinations. Nil sinks are skipped.
type Sinks struct {
	Log        domain.AuditStore
	Executions domain.ExecutionStore
	Bus        domain.SignalBus
}

type record struct {
	decision  *domain.Decision
	intent    domain.TradeIntent
	execution *domain.ExecutionResult
}

// Dispatcher implements domain.AuditSink.
type Dispatcher struct {
	sinks   Sinks
	cfg     Config
	queue   chan record
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. Call Run to start writing.
func NewDispatcher(sinks Sinks, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}
	return &Dispatcher{
		sinks:   sinks,
		cfg:     cfg,
		queue:   make(chan record, cfg.Buffer),
		logger:  logger.With(slog.String("component", "audit")),
		metrics: m,
	}
}

// EmitDecision queues a decision. It drops the record when the queue is full.
func (d *Dispatcher) EmitDecision(dec domain.Decision) {
	d.enqueue(record{decision: &dec})
}

// EmitExecution queues an execution outcome.
func (d *Dispatcher) EmitExecution(intent domain.TradeIntent, r domain.ExecutionResult) {
	d.enqueue(record{intent: intent, execution: &r})
}

func (d *Dispatcher) enqueue(r record) {
	select {
	case d.queue <- r:
	default:
		d.metrics.AuditDropped()
	}
}

// Run writes queued records until ctx is cancelled, then drains what is
// already queued on a short detached deadline.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case r := <-d.queue:
			d.write(ctx, r)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case r := <-d.queue:
			d.write(ctx, r)
		default:
			return
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, r record) {
	if r.decision != nil {
		d.writeDecision(ctx, *r.decision)
		return
	}
	d.writeExecution(ctx, r.intent, *r.execution)
}

func (d *Dispatcher) writeDecision(ctx context.Context, dec domain.Decision) {
	detail := DecisionDetail(dec)
	if d.sinks.Log != nil && (dec.IsGo() || d.cfg.PersistNoGo) {
		if err := d.sinks.Log.Log(ctx, "decision", detail); err != nil {
			d.warn(ctx, "audit log write failed", err)
		}
	}
	if d.sinks.Bus != nil {
		payload, _ := json.Marshal(detail)
		if err := d.sinks.Bus.StreamAppend(ctx, DecisionStream, payload); err != nil {
			d.warn(ctx, "decision stream append failed", err)
		}
	}
}

func (d *Dispatcher) writeExecution(ctx context.Context, intent domain.TradeIntent, r domain.ExecutionResult) {
	if d.sinks.Executions != nil {
		if err := d.sinks.Executions.Record(ctx, intent, r); err != nil {
			d.warn(ctx, "execution record failed", err)
		}
	}
	detail := ExecutionDetail(intent, r)
	if d.sinks.Log != nil {
		event := "execution"
		if r.Mismatch {
			event = "execution.leg_mismatch"
		}
		if err := d.sinks.Log.Log(ctx, event, detail); err != nil {
			d.warn(ctx, "audit log write failed", err)
		}
	}
	if d.sinks.Bus != nil {
		payload, _ := json.Marshal(detail)
		if err := d.sinks.Bus.Publish(ctx, ExecutionChannel, payload); err != nil {
			d.warn(ctx, "execution publish failed", err)
		}
	}
	d.logger.InfoContext(ctx, "execution recorded",
		slog.String("intent_id", r.IntentID.String()),
		slog.String("pair_id", r.PairID.String()),
		slog.Bool("leg_mismatch", r.Mismatch),
		slog.Duration("took", r.FinishedAt.Sub(r.StartedAt)),
	)
}

func (d *Dispatcher) warn(ctx context.Context, msg string, err error) {
	d.logger.WarnContext(ctx, msg, slog.String("error", err.Error()))
}

// DecisionDetail flattens a decision for the audit log and the stream.
func DecisionDetail(dec domain.Decision) map[string]any {
	detail := map[string]any{
		"verdict":    dec.Verdict.String(),
		"strategy":   dec.Strategy,
		"pair_id":    dec.PairID.String(),
		"version":    dec.Version,
		"decided_at": dec.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
	if dec.IsGo() {
		detail["intent"] = dec.Intent
		return detail
	}
	detail["reason"] = string(dec.Reason)
	if dec.Detail != "" {
		detail["detail"] = dec.Detail
	}
	return detail
}

// ExecutionDetail flattens an execution outcome.
func ExecutionDetail(intent domain.TradeIntent, r domain.ExecutionResult) map[string]any {
	return map[string]any{
		"intent_id":       r.IntentID.String(),
		"pair_id":         r.PairID.String(),
		"strategy":        intent.Strategy,
		"expected_profit": intent.ExpectedProfit.String(),
		"legs":            r.Legs,
		"leg_mismatch":    r.Mismatch,
		"started_at":      r.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":     r.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
}

var _ domain.AuditSink = (*Dispatcher)(nil)
