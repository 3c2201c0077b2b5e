package domain

import "fmt"

// Platform identifies the venue an event, leg or balance belongs to. It is
// used for routing and fee selection only, never as a business key.
type Platform string

const (
	PlatformKalshi     Platform = "kalshi"
	PlatformPolymarket Platform = "polymarket"
)

// Valid reports whether p is a known venue.
func (p Platform) Valid() bool {
	switch p {
	case PlatformKalshi, PlatformPolymarket:
		return true
	default:
		return false
	}
}

// ParsePlatform converts a config or database string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// MarketID is a venue-native market identifier: a Kalshi ticker or a
// Polymarket outcome token id. Unique within a platform only.
type MarketID string

// MarketRef names one market on one venue.
type MarketRef struct {
	Platform Platform `json:"platform"`
	MarketID MarketID `json:"market_id"`
}

func (r MarketRef) String() string {
	return string(r.Platform) + ":" + string(r.MarketID)
}

// OrderSide indicates whether a leg buys or sells the market's contract.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)
