package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketEvent is any normalized event produced by a venue feed. The set is
// closed: OrderBookSnapshot, TradeEvent, MarketUpdate and ConnectionEvent.
type MarketEvent interface {
	Source() Platform
	Market() MarketID
	isMarketEvent()
}

// TradeEvent is a single public trade print on a venue.
type TradeEvent struct {
	Platform   Platform
	MarketID   MarketID
	TradeID    string
	Price      decimal.Decimal
	Size       decimal.Decimal
	TakerSide  OrderSide
	ObservedAt time.Time
}

func (t TradeEvent) Source() Platform { return t.Platform }
func (t TradeEvent) Market() MarketID { return t.MarketID }
func (TradeEvent) isMarketEvent()     {}

// MarketUpdate reports a lifecycle change for a market.
type MarketUpdate struct {
	Platform   Platform
	MarketID   MarketID
	Status     MarketStatus
	ObservedAt time.Time
}

func (u MarketUpdate) Source() Platform { return u.Platform }
func (u MarketUpdate) Market() MarketID { return u.MarketID }
func (MarketUpdate) isMarketEvent()     {}

// Tradeable reports whether the market still accepts orders.
func (u MarketUpdate) Tradeable() bool {
	return u.Status == MarketStatusActive
}

// ConnectionState is the health of a venue feed connection.
type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionReconnecting ConnectionState = "reconnecting"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// ConnectionEvent is emitted by a feed when its connection state changes.
type ConnectionEvent struct {
	Platform   Platform
	State      ConnectionState
	Attempt    int
	Reason     string
	ObservedAt time.Time
}

func (c ConnectionEvent) Source() Platform { return c.Platform }
func (ConnectionEvent) Market() MarketID   { return "" }
func (ConnectionEvent) isMarketEvent()     {}
