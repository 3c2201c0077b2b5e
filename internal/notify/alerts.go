package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

const (
	titleMispricing  = "Mispricing"
	titleLegMismatch = "LEG MISMATCH"
)

func isAlertTitle(title string) bool { return strings.HasPrefix(title, titleLegMismatch) }

// AlertConfig tunes the Alerter.
type AlertConfig struct {
	// Timeout bounds each delivery.
	Timeout time.Duration
	// Cooldown suppresses repeated mispricing alerts for one pair.
	Cooldown time.Duration
}

// Alerter formats pipeline events and delivers them in the background so
// callers on the hot path never wait on a chat API.
type Alerter struct {
	notifier *Notifier
	cfg      AlertConfig
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

// NewAlerter creates an Alerter over n.
func NewAlerter(n *Notifier, cfg AlertConfig, logger *slog.Logger) *Alerter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	return &Alerter{
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "alerter")),
		last:     make(map[string]time.Time),
	}
}

// MispricingAlert reports an alert-only opportunity, at most once per pair
// per cooldown.
func (a *Alerter) MispricingAlert(ctx context.Context, intent domain.TradeIntent) {
	if !a.allow("mispricing:" + intent.PairID.String()) {
		return
	}
	msg := fmt.Sprintf("pair %s (%s)\nexpected profit %s per contract\n%s",
		intent.PairID, intent.Strategy, intent.ExpectedProfit.StringFixed(4), formatLegs(intent.Legs))
	if intent.Reason != "" {
		msg += "\n" + intent.Reason
	}
	a.send(ctx, EventMispricing, titleMispricing, msg)
}

// LegMismatch reports an execution that left unhedged exposure. It is never
// throttled.
func (a *Alerter) LegMismatch(ctx context.Context, intent domain.TradeIntent, r domain.ExecutionResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "intent %s pair %s (%s)\n", r.IntentID, r.PairID, intent.Strategy)
	for _, l := range r.Legs {
		fmt.Fprintf(&b, "%s %s %s %s @ %s: %s filled %s",
			l.Leg.Platform, l.Leg.MarketID, l.Leg.Side, l.Leg.Size, l.Leg.Price, l.Status, l.FilledSize)
		if l.Reason != "" {
			b.WriteString(" (" + l.Reason + ")")
		}
		b.WriteByte('\n')
	}
	b.WriteString("manual hedge required")
	a.send(ctx, EventLegMismatch, titleLegMismatch, b.String())
}

// Lifecycle reports process start and stop.
func (a *Alerter) Lifecycle(ctx context.Context, message string) {
	a.send(ctx, EventLifecycle, "pairarb", message)
}

// Wait blocks until in-flight deliveries finish.
func (a *Alerter) Wait() { a.wg.Wait() }

func (a *Alerter) allow(key string) bool {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.last[key]; ok && now.Sub(last) < a.cfg.Cooldown {
		return false
	}
	a.last[key] = now
	return true
}

func (a *Alerter) send(ctx context.Context, event, title, message string) {
	if a.notifier == nil || !a.notifier.Enabled() {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Timeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if err := a.notifier.Notify(sctx, event, title, message); err != nil {
			a.logger.WarnContext(sctx, "alert delivery failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func formatLegs(legs []domain.TradeLeg) string {
	parts := make([]string, 0, len(legs))
	for _, l := range legs {
		parts = append(parts, fmt.Sprintf("%s %s %s @ %s", l.Platform, l.MarketID, l.Side, l.Price))
	}
	return strings.Join(parts, "\n")
}
