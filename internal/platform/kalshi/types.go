package kalshi

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// WebSocket messages
// --------------------------------------------------------------------------

// wsEnvelope is the outer frame of every server message.
type wsEnvelope struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // orderbook_snapshot, orderbook_delta, trade, market_lifecycle_v2, subscribed, error
	SID  int64           `json:"sid"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// level is a [price_cents, quantity] pair.
type level [2]int64

func (l *level) UnmarshalJSON(b []byte) error {
	var raw []int64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("kalshi: level has %d elements", len(raw))
	}
	l[0], l[1] = raw[0], raw[1]
	return nil
}

type bookSnapshotMsg struct {
	Ticker string  `json:"market_ticker"`
	Yes    []level `json:"yes"`
	No     []level `json:"no"`
}

type bookDeltaMsg struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	Delta  int64  `json:"delta"`
	Side   string `json:"side"` // yes | no
}

type tradeMsg struct {
	TradeID   string `json:"trade_id"`
	Ticker    string `json:"market_ticker"`
	YesPrice  int64  `json:"yes_price"`
	Count     int64  `json:"count"`
	TakerSide string `json:"taker_side"`
	TS        int64  `json:"ts"`
}

type lifecycleMsg struct {
	Ticker    string `json:"market_ticker"`
	EventType string `json:"event_type"` // activated, deactivated, determined, settled, ...
}

type subscribedMsg struct {
	Channel string `json:"channel"`
	SID     int64  `json:"sid"`
}

type errorMsg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type wsCommand struct {
	ID     int64    `json:"id"`
	Cmd    string   `json:"cmd"` // subscribe | update_subscription
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels []string `json:"channels,omitempty"`
	Tickers  []string `json:"market_tickers,omitempty"`
	SIDs     []int64  `json:"sids,omitempty"`
	Action   string   `json:"action,omitempty"` // add_markets | delete_markets
}

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // buy | sell
	Side          string `json:"side"`   // yes | no
	Type          string `json:"type"`   // limit
	Count         int64  `json:"count"`
	YesPrice      int64  `json:"yes_price"`
	TimeInForce   string `json:"time_in_force,omitempty"`
}

type orderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		ClientOrderID  string `json:"client_order_id"`
		Status         string `json:"status"` // resting, canceled, executed
		TakerFillCount int64  `json:"taker_fill_count"`
		MakerFillCount int64  `json:"maker_fill_count"`
		RemainingCount int64  `json:"remaining_count"`
	} `json:"order"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

type positionsResponse struct {
	MarketPositions []struct {
		Ticker   string `json:"ticker"`
		Position int64  `json:"position"` // signed YES contracts
	} `json:"market_positions"`
	Cursor string `json:"cursor"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type marketResponse struct {
	Market struct {
		Ticker string `json:"ticker"`
		Status string `json:"status"` // initialized, active, closed, determined, settled, finalized
	} `json:"market"`
}
