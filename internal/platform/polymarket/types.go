package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// apiOrder is the order body accepted by POST /order.
type apiOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"` // "BUY" or "SELL"
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderRequest struct {
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"` // GTC, GTD, FOK, FAK
}

// postOrderResponse is the response from placing an order. Amounts are in
// whole units (USDC or shares) as decimal strings.
type postOrderResponse struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"` // matched, live, delayed, unmatched
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

type apiKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// balanceResponse holds 1e6-scaled USDC.
type balanceResponse struct {
	Balance string `json:"balance"`
}

type dataPosition struct {
	Asset string  `json:"asset"`
	Size  float64 `json:"size"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// apiMarket is the subset of a Gamma market used for status checks.
type apiMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	ConditionID     string   `json:"conditionId"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	Archived        bool     `json:"archived"`
	AcceptingOrders flexBool `json:"acceptingOrders"`
	UMAResolution   string   `json:"umaResolutionStatus"`
	ClobTokenIDs    string   `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
}

// tokenIDs decodes the embedded token id list.
func (m apiMarket) tokenIDs() []string {
	var ids []string
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &ids)
	return ids
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsLevel is a single bid/ask level in websocket book data.
type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsMessage is the union of market channel events. Fields are populated
// depending on EventType.
type wsMessage struct {
	EventType string `json:"event_type"` // book, price_change, last_trade_price, tick_size_change, market_resolved
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`

	// book
	Bids []wsLevel `json:"bids"`
	Asks []wsLevel `json:"asks"`

	// price_change, current and legacy layouts
	PriceChanges []wsPriceChange `json:"price_changes"`
	Changes      []wsPriceChange `json:"changes"`

	// last_trade_price
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`

	// market_resolved
	AssetIDs []string `json:"assets_ids"`
}

// wsPriceChange sets the size resting at one level. Size "0" removes it.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // BUY | SELL
}

// wsSubscribe is the initial market channel subscription.
type wsSubscribe struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// wsOperation changes subscriptions on a live connection.
type wsOperation struct {
	Operation string   `json:"operation"` // subscribe | unsubscribe
	AssetIDs  []string `json:"assets_ids"`
}

// parseMillis converts a millisecond epoch string. Zero time on failure.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
