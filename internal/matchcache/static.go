package matchcache

import (
	"context"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// StaticSource serves pairs declared in configuration.
type StaticSource struct {
	pairs []domain.MatchedPair
}

// NewStaticSource wraps a fixed list of pairs.
func NewStaticSource(pairs []domain.MatchedPair) *StaticSource {
	return &StaticSource{pairs: pairs}
}

// LoadApprovedMatches returns a copy of the configured pairs.
func (s *StaticSource) LoadApprovedMatches(ctx context.Context) ([]domain.MatchedPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.MatchedPair, len(s.pairs))
	copy(out, s.pairs)
	return out, nil
}
