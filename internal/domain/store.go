package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MatchSource loads the approved cross-venue market pairs. It is invoked once
// at startup.
type MatchSource interface {
	LoadApprovedMatches(ctx context.Context) ([]MatchedPair, error)
}

// ExecutionStore persists executed intents and their leg outcomes.
type ExecutionStore interface {
	Record(ctx context.Context, intent TradeIntent, result ExecutionResult) error
	GetByIntent(ctx context.Context, intentID uuid.UUID) (ExecutionResult, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	CountMismatches(ctx context.Context, since time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AccountSource provides the balance and position snapshot strategies read.
type AccountSource interface {
	Snapshot(ctx context.Context) (StrategyContext, error)
}

// OrderPlacer submits a single leg to one venue. Implementations must be
// idempotent on TradeLeg.ClientOrderID.
type OrderPlacer interface {
	Platform() Platform
	PlaceOrder(ctx context.Context, leg TradeLeg) (LegResult, error)
}

// AuditSink receives decisions and execution outcomes. Calls never block.
type AuditSink interface {
	EmitDecision(d Decision)
	EmitExecution(intent TradeIntent, r ExecutionResult)
}
