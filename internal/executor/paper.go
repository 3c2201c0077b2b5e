package executor

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// PaperPlacer fills every leg in full at its limit price without touching a
// venue.
type PaperPlacer struct {
	platform domain.Platform
}

// NewPaperPlacer creates a paper placer for one platform.
func NewPaperPlacer(p domain.Platform) *PaperPlacer {
	return &PaperPlacer{platform: p}
}

func (p *PaperPlacer) Platform() domain.Platform { return p.platform }

func (p *PaperPlacer) PlaceOrder(ctx context.Context, leg domain.TradeLeg) (domain.LegResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.LegResult{}, err
	}
	if leg.Platform != p.platform {
		return domain.LegResult{}, fmt.Errorf("paper: leg for %s sent to %s placer", leg.Platform, p.platform)
	}
	return domain.LegResult{
		Leg:          leg,
		Status:       domain.LegFilled,
		FilledSize:   leg.Size,
		VenueOrderID: "paper-" + leg.ClientOrderID,
	}, nil
}
