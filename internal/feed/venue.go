// Package feed holds the venue-neutral pieces of the market-data adapters:
// the Venue contract, local book maintenance and the event stream.
package feed

import (
	"context"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Venue is a live market-data connection to one venue. Events are delivered
// in arrival order on a single channel that is closed by Close.
type Venue interface {
	Platform() domain.Platform
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, markets []domain.MarketID) error
	Unsubscribe(ctx context.Context, markets []domain.MarketID) error
	Events() <-chan domain.MarketEvent
	Healthy() bool
	Close() error
}
