package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

const testWalletKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testCreds = crypto.HMACAuth{Key: "key", Secret: "c2VjcmV0LXNlY3JldC1zZWNyZXQ=", Passphrase: "pass"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testWalletKey, 137, common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"))
	require.NoError(t, err)
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --------------------------------------------------------------------------
// CLOB
// --------------------------------------------------------------------------

func TestPlaceOrder(t *testing.T) {
	tests := []struct {
		name       string
		leg        domain.TradeLeg
		resp       string
		wantSide   string
		wantMaker  string
		wantTaker  string
		wantStatus domain.LegStatus
		wantFilled string
	}{
		{
			name:       "buy filled",
			leg:        domain.TradeLeg{Side: domain.OrderSideBuy, Price: d("0.47"), Size: d("50")},
			resp:       `{"success":true,"orderID":"0xo1","status":"matched","makingAmount":"23.5","takingAmount":"50"}`,
			wantSide:   "BUY",
			wantMaker:  "23500000",
			wantTaker:  "50000000",
			wantStatus: domain.LegFilled,
			wantFilled: "50",
		},
		{
			name:       "sell partial",
			leg:        domain.TradeLeg{Side: domain.OrderSideSell, Price: d("0.6"), Size: d("10")},
			resp:       `{"success":true,"orderID":"0xo2","status":"matched","makingAmount":"4","takingAmount":"2.4"}`,
			wantSide:   "SELL",
			wantMaker:  "10000000",
			wantTaker:  "6000000",
			wantStatus: domain.LegPartiallyFilled,
			wantFilled: "4",
		},
		{
			name:       "venue refusal",
			leg:        domain.TradeLeg{Side: domain.OrderSideBuy, Price: d("0.5"), Size: d("1")},
			resp:       `{"success":false,"errorMsg":"not enough balance / allowance"}`,
			wantSide:   "BUY",
			wantMaker:  "500000",
			wantTaker:  "1000000",
			wantStatus: domain.LegRejected,
			wantFilled: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got postOrderRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/order", r.URL.Path)
				assert.Equal(t, "key", r.Header.Get("POLY_API_KEY"))
				assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = io.WriteString(w, tt.resp)
			}))
			defer srv.Close()

			signer := testSigner(t)
			c := NewClobClient(ClobConfig{BaseURL: srv.URL}, signer, testCreds)

			leg := tt.leg
			leg.Platform = domain.PlatformPolymarket
			leg.MarketID = "7132"
			leg.ClientOrderID = "cid-" + tt.name
			res, err := c.PlaceOrder(context.Background(), leg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantFilled, res.FilledSize.String())

			assert.Equal(t, "FAK", got.OrderType)
			assert.Equal(t, "key", got.Owner)
			assert.Equal(t, tt.wantSide, got.Order.Side)
			assert.Equal(t, tt.wantMaker, got.Order.MakerAmount)
			assert.Equal(t, tt.wantTaker, got.Order.TakerAmount)
			assert.Equal(t, "7132", got.Order.TokenID)
			assert.Equal(t, signer.Address().Hex(), got.Order.Maker)
			assert.Equal(t, orderSalt(leg.ClientOrderID), got.Order.Salt)
			assert.Len(t, got.Order.Signature, 132)
		})
	}
}

func TestPlaceOrder_Guards(t *testing.T) {
	c := NewClobClient(ClobConfig{BaseURL: "http://127.0.0.1:1"}, testSigner(t), crypto.HMACAuth{})

	_, err := c.PlaceOrder(context.Background(), domain.TradeLeg{
		Platform: domain.PlatformPolymarket, MarketID: "1", Side: domain.OrderSideBuy, Price: d("0.5"), Size: d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = c.PlaceOrder(context.Background(), domain.TradeLeg{
		Platform: domain.PlatformPolymarket, MarketID: "1", Side: domain.OrderSideBuy, Price: d("1"), Size: d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = c.PlaceOrder(context.Background(), domain.TradeLeg{
		Platform: domain.PlatformKalshi, MarketID: "1", Side: domain.OrderSideBuy, Price: d("0.5"), Size: d("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderSalt(t *testing.T) {
	a := orderSalt("7d4f2a0e-0000-5000-8000-000000000001")
	assert.Equal(t, a, orderSalt("7d4f2a0e-0000-5000-8000-000000000001"))
	assert.NotEqual(t, a, orderSalt("7d4f2a0e-0000-5000-8000-000000000002"))
	assert.Positive(t, a)
	assert.Less(t, a, int64(1)<<53)
}

func TestDeriveAPIKeyThenBalance(t *testing.T) {
	signer := testSigner(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/derive-api-key":
			assert.Equal(t, signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
			_, _ = io.WriteString(w, `{"apiKey":"key","secret":"c2VjcmV0LXNlY3JldC1zZWNyZXQ=","passphrase":"pass"}`)
		case "/balance-allowance":
			if r.Header.Get("POLY_API_KEY") != "key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"balance":"123450000","allowance":"0"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClobClient(ClobConfig{BaseURL: srv.URL}, signer, crypto.HMACAuth{})

	_, err := c.Balance(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, c.DeriveAPIKey(context.Background()))
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123.45", bal.String())
}

func TestPositions(t *testing.T) {
	signer := testSigner(t)
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, signer.Address().Hex(), r.URL.Query().Get("user"))
		_, _ = io.WriteString(w, `[{"asset":"111","size":12.5},{"asset":"222","size":0}]`)
	}))
	defer data.Close()

	c := NewClobClient(ClobConfig{BaseURL: "http://unused", DataURL: data.URL}, signer, testCreds)
	pos, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.True(t, pos["111"].Equal(d("12.5")))
}

// --------------------------------------------------------------------------
// Gamma
// --------------------------------------------------------------------------

func TestGammaMarketStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("clob_token_ids") {
		case "111":
			_, _ = io.WriteString(w, `[{"id":"1","active":true,"closed":false,"acceptingOrders":true,"clobTokenIds":"[\"111\",\"112\"]"}]`)
		case "222":
			_, _ = io.WriteString(w, `[{"id":"2","active":"true","closed":true,"umaResolutionStatus":"resolved","clobTokenIds":"[\"221\",\"222\"]"}]`)
		case "333":
			_, _ = io.WriteString(w, `[{"id":"3","active":true,"closed":false,"acceptingOrders":false,"clobTokenIds":"[\"333\"]"}]`)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	ctx := context.Background()

	st, err := g.MarketStatus(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, st)

	st, err = g.MarketStatus(ctx, "222")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusSettled, st)

	st, err = g.MarketStatus(ctx, "333")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, st)

	_, err = g.MarketStatus(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --------------------------------------------------------------------------
// WebSocket
// --------------------------------------------------------------------------

func nextEvent(t *testing.T, ch <-chan domain.MarketEvent) domain.MarketEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestWSClient_Events(t *testing.T) {
	frames := []string{
		`[{"event_type":"book","asset_id":"tok","market":"0xabc","bids":[{"price":"0.47","size":"100"},{"price":"0.48","size":"30"}],"asks":[{"price":"0.52","size":"25"},{"price":"0.53","size":"60"}],"timestamp":"1762264050000"}]`,
		`{"event_type":"price_change","market":"0xabc","price_changes":[{"asset_id":"tok","price":"0.52","size":"0","side":"SELL"}],"timestamp":"1762264050000"}`,
		`{"event_type":"price_change","asset_id":"tok","market":"0xabc","changes":[{"price":"0.49","size":"10","side":"BUY"}],"timestamp":"1762264051000"}`,
		`{"event_type":"last_trade_price","asset_id":"tok","market":"0xabc","price":"0.49","size":"10","side":"SELL","timestamp":"1762264051500"}`,
		`PONG`,
		`{"event_type":"market_resolved","market":"0xabc","assets_ids":["tok","other"],"timestamp":"1762264060000"}`,
	}
	cmds := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		first := true
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmds <- string(msg)
			if first {
				first = false
				for _, f := range frames {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
				}
			}
		}
	}))
	defer srv.Close()

	ws := NewWSClient(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Depth: 3}, quietLogger())
	defer ws.Close()
	require.NoError(t, ws.Subscribe(context.Background(), []domain.MarketID{"tok"}))
	require.NoError(t, ws.Connect(context.Background()))

	assert.JSONEq(t, `{"type":"market","assets_ids":["tok"]}`, <-cmds)

	conn, ok := nextEvent(t, ws.Events()).(domain.ConnectionEvent)
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionConnected, conn.State)

	book, ok := nextEvent(t, ws.Events()).(domain.OrderBookSnapshot)
	require.True(t, ok)
	assert.Equal(t, domain.PlatformPolymarket, book.Platform)
	assert.Equal(t, "0.48", book.BestBid.Price.String())
	assert.Equal(t, "0.52", book.BestAsk.Price.String())
	assert.Equal(t, time.UnixMilli(1762264050000), book.ObservedAt)

	removed, ok := nextEvent(t, ws.Events()).(domain.OrderBookSnapshot)
	require.True(t, ok)
	assert.Equal(t, "0.53", removed.BestAsk.Price.String())
	assert.True(t, removed.ObservedAt.After(book.ObservedAt), "equal venue timestamp still advances")

	legacy, ok := nextEvent(t, ws.Events()).(domain.OrderBookSnapshot)
	require.True(t, ok)
	assert.Equal(t, "0.49", legacy.BestBid.Price.String())

	trade, ok := nextEvent(t, ws.Events()).(domain.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, domain.OrderSideSell, trade.TakerSide)
	assert.Equal(t, "10", trade.Size.String())

	upd, ok := nextEvent(t, ws.Events()).(domain.MarketUpdate)
	require.True(t, ok)
	assert.Equal(t, domain.MarketID("tok"), upd.MarketID)
	assert.Equal(t, domain.MarketStatusSettled, upd.Status)

	require.NoError(t, ws.Subscribe(context.Background(), []domain.MarketID{"tok2"}))
	assert.JSONEq(t, `{"operation":"subscribe","assets_ids":["tok2"]}`, <-cmds)
	require.NoError(t, ws.Unsubscribe(context.Background(), []domain.MarketID{"tok"}))
	assert.JSONEq(t, `{"operation":"unsubscribe","assets_ids":["tok"]}`, <-cmds)

	require.NoError(t, ws.Close())
	assert.False(t, ws.Healthy())
}

func TestHandleMessage_SkipsUnsubscribedAndUnknown(t *testing.T) {
	ws := NewWSClient(WSConfig{URL: "ws://unused"}, quietLogger())
	defer ws.Close()
	ws.assets["tok"] = struct{}{}

	ws.handleMessage([]byte(`{"event_type":"book","asset_id":"other","bids":[],"asks":[]}`))
	ws.handleMessage([]byte(`{"event_type":"price_change","price_changes":[{"asset_id":"tok","price":"0.5","size":"1","side":"BUY"}]}`))
	ws.handleMessage([]byte(`{"event_type":"tick_size_change","asset_id":"tok"}`))
	ws.handleMessage([]byte(`not json`))
	ws.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"tok","price":"0.5","size":"1","side":"HOLD"}`))

	assert.Zero(t, ws.stream.Emitted(), "price change before a book and bad events emit nothing")
}
