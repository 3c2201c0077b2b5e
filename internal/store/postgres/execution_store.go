package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
// Decimals travel as text and are cast to NUMERIC in SQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Record inserts an execution and its legs. Recording the same intent twice
// is a no-op.
func (s *ExecutionStore) Record(ctx context.Context, intent domain.TradeIntent, r domain.ExecutionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO executions (intent_id, pair_id, strategy, expected_profit, leg_mismatch, started_at, finished_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (intent_id) DO NOTHING`,
		r.IntentID, r.PairID, intent.Strategy, intent.ExpectedProfit.String(),
		r.Mismatch, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", r.IntentID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for i, leg := range r.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (intent_id, leg_index, platform, market_id, side, price, size, client_order_id, status, filled_size, venue_order_id, reason, latency_ms)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10::numeric, $11, $12, $13)`,
			r.IntentID, i,
			string(leg.Leg.Platform), string(leg.Leg.MarketID), string(leg.Leg.Side),
			leg.Leg.Price.String(), leg.Leg.Size.String(), leg.Leg.ClientOrderID,
			string(leg.Status), leg.FilledSize.String(), leg.VenueOrderID, leg.Reason,
			leg.Latency.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByIntent returns an execution with its legs.
func (s *ExecutionStore) GetByIntent(ctx context.Context, intentID uuid.UUID) (domain.ExecutionResult, error) {
	var r domain.ExecutionResult
	err := s.pool.QueryRow(ctx, `
		SELECT intent_id, pair_id, leg_mismatch, started_at, finished_at
		FROM executions WHERE intent_id = $1`,
		intentID,
	).Scan(&r.IntentID, &r.PairID, &r.Mismatch, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", intentID, err)
	}

	legs, err := s.legs(ctx, intentID)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	r.Legs = legs
	return r, nil
}

// ListRecent returns the most recent executions without their legs.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT intent_id, pair_id, leg_mismatch, started_at, finished_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionResult
	for rows.Next() {
		var r domain.ExecutionResult
		if err := rows.Scan(&r.IntentID, &r.PairID, &r.Mismatch, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// CountMismatches counts executions that ended in a leg mismatch since the
// given time.
func (s *ExecutionStore) CountMismatches(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM executions WHERE leg_mismatch AND started_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count mismatches: %w", err)
	}
	return n, nil
}

func (s *ExecutionStore) legs(ctx context.Context, intentID uuid.UUID) ([]domain.LegResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT platform, market_id, side, price::text, size::text, client_order_id,
		       status, filled_size::text, venue_order_id, reason, latency_ms
		FROM execution_legs WHERE intent_id = $1 ORDER BY leg_index`,
		intentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get execution legs: %w", err)
	}
	defer rows.Close()

	var legs []domain.LegResult
	for rows.Next() {
		var (
			lr                             domain.LegResult
			platform, market, side, status string
			price, size, filled            string
			latencyMS                      int64
		)
		if err := rows.Scan(&platform, &market, &side, &price, &size, &lr.Leg.ClientOrderID,
			&status, &filled, &lr.VenueOrderID, &lr.Reason, &latencyMS); err != nil {
			return nil, fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		lr.Leg.Platform = domain.Platform(platform)
		lr.Leg.MarketID = domain.MarketID(market)
		lr.Leg.Side = domain.OrderSide(side)
		lr.Status = domain.LegStatus(status)
		lr.Latency = time.Duration(latencyMS) * time.Millisecond
		if lr.Leg.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: leg price %q: %w", price, err)
		}
		if lr.Leg.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("postgres: leg size %q: %w", size, err)
		}
		if lr.FilledSize, err = decimal.NewFromString(filled); err != nil {
			return nil, fmt.Errorf("postgres: leg filled size %q: %w", filled, err)
		}
		legs = append(legs, lr)
	}
	return legs, rows.Err()
}
