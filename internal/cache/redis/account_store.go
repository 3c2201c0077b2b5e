package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// AccountStore keeps the latest balances and positions in two hashes:
//
//	{prefix}account:balances   field = platform,             value = decimal
//	{prefix}account:positions  field = platform:market_id,   value = signed decimal
//	{prefix}account:taken_at   unix nanoseconds
//
// It implements domain.AccountSource for deployments where another process
// maintains the account view, and Save lets the refresher mirror its own.
type AccountStore struct {
	client *Client
}

// NewAccountStore creates an AccountStore backed by the given Client.
func NewAccountStore(c *Client) *AccountStore {
	return &AccountStore{client: c}
}

func (s *AccountStore) keys() (balances, positions, takenAt string) {
	return s.client.key("account", "balances"),
		s.client.key("account", "positions"),
		s.client.key("account", "taken_at")
}

// Snapshot reads the stored account view. Missing keys yield an empty
// snapshot rather than an error.
func (s *AccountStore) Snapshot(ctx context.Context) (domain.StrategyContext, error) {
	bk, pk, tk := s.keys()

	var (
		balCmd *redis.MapStringStringCmd
		posCmd *redis.MapStringStringCmd
		tsCmd  *redis.StringCmd
	)
	_, err := s.client.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		balCmd = p.HGetAll(ctx, bk)
		posCmd = p.HGetAll(ctx, pk)
		tsCmd = p.Get(ctx, tk)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.StrategyContext{}, fmt.Errorf("redis: account snapshot: %w", err)
	}

	ts, err := tsCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.StrategyContext{}, fmt.Errorf("redis: account taken_at: %w", err)
	}
	return decodeSnapshot(balCmd.Val(), posCmd.Val(), ts)
}

// Save replaces the stored view with sc in one transaction.
func (s *AccountStore) Save(ctx context.Context, sc domain.StrategyContext) error {
	bk, pk, tk := s.keys()
	balances, positions := encodeSnapshot(sc)

	_, err := s.client.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, bk, pk)
		if len(balances) > 0 {
			p.HSet(ctx, bk, balances)
		}
		if len(positions) > 0 {
			p.HSet(ctx, pk, positions)
		}
		p.Set(ctx, tk, strconv.FormatInt(sc.TakenAt.UnixNano(), 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save account snapshot: %w", err)
	}
	return nil
}

func encodeSnapshot(sc domain.StrategyContext) (balances, positions map[string]any) {
	balances = make(map[string]any, len(sc.Balances))
	for p, b := range sc.Balances {
		balances[string(p)] = b.String()
	}
	positions = make(map[string]any, len(sc.Positions))
	for ref, q := range sc.Positions {
		positions[ref.String()] = q.String()
	}
	return balances, positions
}

func decodeSnapshot(balances, positions map[string]string, takenAt string) (domain.StrategyContext, error) {
	sc := domain.StrategyContext{
		Balances:  make(map[domain.Platform]decimal.Decimal, len(balances)),
		Positions: make(map[domain.MarketRef]decimal.Decimal, len(positions)),
	}
	for field, v := range balances {
		p, err := domain.ParsePlatform(field)
		if err != nil {
			return domain.StrategyContext{}, fmt.Errorf("redis: balance field: %w", err)
		}
		b, err := decimal.NewFromString(v)
		if err != nil {
			return domain.StrategyContext{}, fmt.Errorf("redis: balance %s: %w", field, err)
		}
		sc.Balances[p] = b
	}
	for field, v := range positions {
		name, market, ok := strings.Cut(field, ":")
		if !ok || market == "" {
			return domain.StrategyContext{}, fmt.Errorf("redis: position field %q: want platform:market", field)
		}
		p, err := domain.ParsePlatform(name)
		if err != nil {
			return domain.StrategyContext{}, fmt.Errorf("redis: position field: %w", err)
		}
		q, err := decimal.NewFromString(v)
		if err != nil {
			return domain.StrategyContext{}, fmt.Errorf("redis: position %s: %w", field, err)
		}
		sc.Positions[domain.MarketRef{Platform: p, MarketID: domain.MarketID(market)}] = q
	}
	if takenAt != "" {
		ns, err := strconv.ParseInt(takenAt, 10, 64)
		if err != nil {
			return domain.StrategyContext{}, fmt.Errorf("redis: taken_at %q: %w", takenAt, err)
		}
		sc.TakenAt = time.Unix(0, ns).UTC()
	}
	return sc, nil
}

var _ domain.AccountSource = (*AccountStore)(nil)
