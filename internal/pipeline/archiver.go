package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Archiver periodically moves aged audit rows to cold storage.
type Archiver struct {
	blob    domain.Archiver
	now     func() time.Time
	logger  *slog.Logger
	trigger chan struct{}
}

// NewArchiver creates an Archiver over a blob archiver.
func NewArchiver(blob domain.Archiver, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:    blob,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "archiver")),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate run from RunCron. It reports false when a
// run is already pending.
func (a *Archiver) Trigger() bool {
	select {
	case a.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run executes a single archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	started := a.now()
	n, err := a.blob.ArchiveAudit(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: archive audit: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("audit_rows", n),
		slog.Duration("took", a.now().Sub(started)),
	)
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
// Fields accept "*", lists ("1,15"), ranges ("1-5") and steps ("*/10").
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	for {
		next, ok := sched.next(a.now())
		if !ok {
			return fmt.Errorf("cron %q never fires", expr)
		}
		wait := time.Until(next)
		a.logger.Debug("archiver waiting", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			a.runLogged(ctx)
		case <-a.trigger:
			timer.Stop()
			a.runLogged(ctx)
		}
	}
}

func (a *Archiver) runLogged(ctx context.Context) {
	if err := a.Run(ctx); err != nil {
		a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
	}
}

// cronField is the set of values a field matches.
type cronField map[int]bool

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func parseCron(expr string) (cronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}
	var fields [5]cronField
	for i, p := range parts {
		f, err := parseCronField(p, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("field %d %q: %w", i+1, p, err)
		}
		fields[i] = f
	}
	return cronSchedule{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

func parseCronField(s string, lo, hi int) (cronField, error) {
	out := cronField{}
	for _, term := range strings.Split(s, ",") {
		step := 1
		if base, st, ok := strings.Cut(term, "/"); ok {
			n, err := strconv.Atoi(st)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q", st)
			}
			term, step = base, n
		}
		from, to := lo, hi
		if term != "*" {
			a, b, isRange := strings.Cut(term, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid value %q", a)
			}
			to = from
			if isRange {
				if to, err = strconv.Atoi(b); err != nil {
					return nil, fmt.Errorf("invalid value %q", b)
				}
			}
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("range %d-%d outside %d-%d", from, to, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute[t.Minute()] && c.hour[t.Hour()] && c.dom[t.Day()] &&
		c.month[int(t.Month())] && c.dow[int(t.Weekday())]
}

// next returns the first matching minute strictly after t, searching one
// year ahead.
func (c cronSchedule) next(t time.Time) (time.Time, bool) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, true
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, false
}
