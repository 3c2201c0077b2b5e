package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/feed"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the longest silence tolerated, heartbeat replies included.
	readWait = 60 * time.Second

	// heartbeatPeriod is how often a "PING" text frame is sent.
	heartbeatPeriod = 10 * time.Second

	dialTimeout = 15 * time.Second
)

// WSConfig configures the market channel feed.
type WSConfig struct {
	// URL is the market channel endpoint, e.g.
	// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
	URL           string
	Depth         int
	Buffer        int
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// WSClient streams Polymarket CLOB books and trades for subscribed tokens
// as normalized market events. Market ids are CLOB token ids.
type WSClient struct {
	cfg    WSConfig
	dialer websocket.Dialer
	stream *feed.Stream
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	started bool // initial subscription sent on conn
	assets  map[string]struct{}
	writeMu sync.Mutex

	healthy atomic.Bool
	done    chan struct{}

	// Owned by the read loop.
	books map[string]*feed.Book
}

var _ feed.Venue = (*WSClient)(nil)

// NewWSClient creates a market channel feed.
func NewWSClient(cfg WSConfig, logger *slog.Logger) *WSClient {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 2 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	return &WSClient{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: dialTimeout},
		stream: feed.NewStream(cfg.Buffer),
		logger: logger.With(slog.String("component", "polymarket_ws")),
		now:    time.Now,
		assets: make(map[string]struct{}),
		done:   make(chan struct{}),
		books:  make(map[string]*feed.Book),
	}
}

func (w *WSClient) Platform() domain.Platform         { return domain.PlatformPolymarket }
func (w *WSClient) Events() <-chan domain.MarketEvent { return w.stream.Events() }
func (w *WSClient) Healthy() bool                     { return w.healthy.Load() }

// Connect dials the endpoint and starts the read loop.
func (w *WSClient) Connect(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	go w.run(conn)
	return nil
}

// Subscribe adds token ids to the subscription set.
func (w *WSClient) Subscribe(_ context.Context, markets []domain.MarketID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var added []string
	for _, m := range markets {
		if _, ok := w.assets[string(m)]; !ok {
			w.assets[string(m)] = struct{}{}
			added = append(added, string(m))
		}
	}
	if len(added) == 0 || w.conn == nil {
		return nil
	}
	if err := w.subscribeLocked(w.conn, added); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe drops token ids from the subscription set.
func (w *WSClient) Unsubscribe(_ context.Context, markets []domain.MarketID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var removed []string
	for _, m := range markets {
		if _, ok := w.assets[string(m)]; ok {
			delete(w.assets, string(m))
			removed = append(removed, string(m))
		}
	}
	if len(removed) == 0 || w.conn == nil || !w.started {
		return nil
	}
	if err := w.writeJSON(w.conn, wsOperation{Operation: "unsubscribe", AssetIDs: removed}); err != nil {
		return fmt.Errorf("polymarket/ws: unsubscribe: %w", err)
	}
	return nil
}

// Close shuts down the connection and closes the event stream.
func (w *WSClient) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	conn := w.conn
	w.mu.Unlock()

	w.healthy.Store(false)
	var err error
	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		w.writeMu.Unlock()
		err = conn.Close()
	}
	w.stream.Close()
	return err
}

// --------------------------------------------------------------------------
// Connection management
// --------------------------------------------------------------------------

func (w *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}
	w.conn = conn
	w.started = false
	assets := make([]string, 0, len(w.assets))
	for a := range w.assets {
		assets = append(assets, a)
	}
	if len(assets) > 0 {
		err = w.subscribeLocked(conn, assets)
	}
	w.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("polymarket/ws: restore subscriptions: %w", err)
	}

	w.healthy.Store(true)
	w.emitConnection(domain.ConnectionConnected, 0, "")
	w.logger.Info("connected", slog.Int("assets", len(assets)))
	return conn, nil
}

// subscribeLocked sends the initial market subscription on a fresh
// connection and incremental operations afterwards. Caller must hold w.mu.
func (w *WSClient) subscribeLocked(conn *websocket.Conn, assets []string) error {
	if !w.started {
		if err := w.writeJSON(conn, wsSubscribe{Type: "market", AssetIDs: assets}); err != nil {
			return err
		}
		w.started = true
		return nil
	}
	return w.writeJSON(conn, wsOperation{Operation: "subscribe", AssetIDs: assets})
}

// run reads from conn until it fails, then reconnects with backoff until
// the client is closed.
func (w *WSClient) run(conn *websocket.Conn) {
	backoff := feed.Backoff{Base: w.cfg.ReconnectBase, Max: w.cfg.ReconnectMax}
	for {
		err := w.read(conn)
		if w.isClosed() {
			return
		}
		w.healthy.Store(false)
		w.logger.Warn("connection lost", slog.String("error", err.Error()))

		conn = nil
		for attempt := 1; conn == nil; attempt++ {
			w.emitConnection(domain.ConnectionReconnecting, attempt, err.Error())
			select {
			case <-w.done:
				return
			case <-time.After(backoff.Next()):
			}
			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			conn, err = w.dial(ctx)
			cancel()
			if err != nil {
				if w.isClosed() {
					return
				}
				w.logger.Warn("reconnect failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			}
		}
		backoff.Reset()
	}
}

func (w *WSClient) read(conn *websocket.Conn) error {
	stop := make(chan struct{})
	go w.heartbeat(conn, stop)
	defer func() {
		close(stop)
		conn.Close()
		clear(w.books)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleMessage(message)
	}
}

// heartbeat sends "PING" text frames; the server answers "PONG".
func (w *WSClient) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, []byte("PING"))
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (w *WSClient) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WSClient) subscribed(asset string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.assets[asset]
	return ok
}

func (w *WSClient) emitConnection(state domain.ConnectionState, attempt int, reason string) {
	w.stream.Emit(domain.ConnectionEvent{
		Platform:   domain.PlatformPolymarket,
		State:      state,
		Attempt:    attempt,
		Reason:     reason,
		ObservedAt: w.now(),
	})
}

// --------------------------------------------------------------------------
// Message handling
// --------------------------------------------------------------------------

// handleMessage routes a frame. The server batches events into JSON arrays
// and answers heartbeats with a bare "PONG".
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
		return
	}
	var msgs []wsMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			w.logger.Warn("malformed frame", slog.String("error", err.Error()))
			return
		}
	} else {
		var m wsMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			w.logger.Warn("malformed frame", slog.String("error", err.Error()))
			return
		}
		msgs = []wsMessage{m}
	}

	for i := range msgs {
		if err := w.handleEvent(&msgs[i]); err != nil {
			w.logger.Warn("dropping event",
				slog.String("event_type", msgs[i].EventType),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *WSClient) handleEvent(m *wsMessage) error {
	at := parseMillis(m.Timestamp)
	if at.IsZero() {
		at = w.now()
	}

	switch m.EventType {
	case "book":
		if !w.subscribed(m.AssetID) {
			return nil
		}
		bids, err := parseLevels(m.Bids)
		if err != nil {
			return err
		}
		asks, err := parseLevels(m.Asks)
		if err != nil {
			return err
		}
		book := feed.NewBook()
		book.Replace(bids, asks)
		w.books[m.AssetID] = book
		w.emitBook(m.AssetID, book, at)

	case "price_change":
		changes := m.PriceChanges
		if len(changes) == 0 {
			changes = m.Changes
		}
		var touched []string
		for _, c := range changes {
			asset := c.AssetID
			if asset == "" {
				asset = m.AssetID
			}
			book, ok := w.books[asset]
			if !ok {
				continue
			}
			price, err := decimal.NewFromString(c.Price)
			if err != nil {
				return fmt.Errorf("price %q: %w", c.Price, err)
			}
			size, err := decimal.NewFromString(c.Size)
			if err != nil {
				return fmt.Errorf("size %q: %w", c.Size, err)
			}
			side, err := parseSide(c.Side)
			if err != nil {
				return err
			}
			book.Set(side, price, size)
			if len(touched) == 0 || touched[len(touched)-1] != asset {
				touched = append(touched, asset)
			}
		}
		for _, asset := range touched {
			w.emitBook(asset, w.books[asset], at)
		}

	case "last_trade_price":
		if !w.subscribed(m.AssetID) {
			return nil
		}
		price, err := decimal.NewFromString(m.Price)
		if err != nil {
			return fmt.Errorf("price %q: %w", m.Price, err)
		}
		size, err := decimal.NewFromString(m.Size)
		if err != nil {
			return fmt.Errorf("size %q: %w", m.Size, err)
		}
		side, err := parseSide(m.Side)
		if err != nil {
			return err
		}
		w.stream.Emit(domain.TradeEvent{
			Platform:   domain.PlatformPolymarket,
			MarketID:   domain.MarketID(m.AssetID),
			Price:      price,
			Size:       size,
			TakerSide:  side,
			ObservedAt: at,
		})

	case "market_resolved":
		ids := m.AssetIDs
		if len(ids) == 0 && m.AssetID != "" {
			ids = []string{m.AssetID}
		}
		for _, id := range ids {
			if !w.subscribed(id) {
				continue
			}
			w.stream.Emit(domain.MarketUpdate{
				Platform:   domain.PlatformPolymarket,
				MarketID:   domain.MarketID(id),
				Status:     domain.MarketStatusSettled,
				ObservedAt: at,
			})
		}
	}
	return nil
}

func (w *WSClient) emitBook(asset string, book *feed.Book, at time.Time) {
	w.stream.Emit(book.Snapshot(domain.PlatformPolymarket, domain.MarketID(asset), at, w.cfg.Depth))
}

func parseLevels(in []wsLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", l.Price, err)
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", l.Size, err)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

var errUnknownSide = errors.New("polymarket: unknown side")

func parseSide(s string) (domain.OrderSide, error) {
	switch s {
	case "BUY", "buy":
		return domain.OrderSideBuy, nil
	case "SELL", "sell":
		return domain.OrderSideSell, nil
	}
	return "", fmt.Errorf("%w %q", errUnknownSide, s)
}
