package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Verdict is the binary outcome of an evaluation.
type Verdict uint8

const (
	VerdictNoGo Verdict = iota
	VerdictGo
)

func (v Verdict) String() string {
	if v == VerdictGo {
		return "go"
	}
	return "no_go"
}

// NoGoReason explains why an evaluation did not produce a trade.
type NoGoReason string

const (
	NoGoNotEvaluable       NoGoReason = "not_evaluable"
	NoGoStale              NoGoReason = "stale"
	NoGoBelowThreshold     NoGoReason = "below_threshold"
	NoGoCooldown           NoGoReason = "cooldown"
	NoGoPositionLimit      NoGoReason = "position_limit"
	NoGoInsufficientFunds  NoGoReason = "insufficient_balance"
	NoGoSizeUnavailable    NoGoReason = "size_unavailable"
	NoGoMarketInactive     NoGoReason = "market_inactive"
	NoGoNoSignal           NoGoReason = "no_signal"
	NoGoExecutionInFlight  NoGoReason = "execution_in_flight"
	NoGoInvariantViolation NoGoReason = "invariant_violation"
)

// TradeLeg is one venue-scoped order within an intent. Size stays zero until
// the execution coordinator fills it from the size table.
type TradeLeg struct {
	Platform      Platform        `json:"platform"`
	MarketID      MarketID        `json:"market_id"`
	Side          OrderSide       `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// TradeIntent is an ordered set of legs to execute together.
type TradeIntent struct {
	ID       uuid.UUID  `json:"intent_id"`
	PairID   uuid.UUID  `json:"pair_id"`
	Strategy string     `json:"strategy"`
	Legs     []TradeLeg `json:"legs"`
	// ExpectedProfit is per contract until sized, then for the full size.
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	Reason         string          `json:"reason"`
	// AlertOnly intents are reported to operators and never dispatched.
	AlertOnly bool      `json:"alert_only,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is the immutable verdict of one strategy evaluation.
type Decision struct {
	Verdict  Verdict
	Intent   *TradeIntent
	Reason   NoGoReason
	Detail   string
	Strategy string
	PairID   uuid.UUID
	// Version is the pair state version the decision was evaluated against.
	Version   uint64
	DecidedAt time.Time
}

// Go builds a positive decision.
func Go(intent TradeIntent) Decision {
	return Decision{
		Verdict:  VerdictGo,
		Intent:   &intent,
		Strategy: intent.Strategy,
		PairID:   intent.PairID,
	}
}

// NoGo builds a negative decision with a reason.
func NoGo(reason NoGoReason, detail string) Decision {
	return Decision{Verdict: VerdictNoGo, Reason: reason, Detail: detail}
}

// IsGo reports whether the decision carries an executable intent.
func (d Decision) IsGo() bool {
	return d.Verdict == VerdictGo && d.Intent != nil
}

// Downgrade turns d into a NoGo while keeping its provenance.
func (d Decision) Downgrade(reason NoGoReason, detail string) Decision {
	d.Verdict = VerdictNoGo
	d.Reason = reason
	d.Detail = detail
	return d
}
