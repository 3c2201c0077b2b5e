package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/feed"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	kalshiDialTimeout = 15 * time.Second
)

var (
	bookChannels      = []string{"orderbook_delta", "trade"}
	lifecycleChannels = []string{"market_lifecycle_v2"}

	errSeqGap = errors.New("kalshi/ws: orderbook sequence gap")
)

// WSConfig configures the market-data feed.
type WSConfig struct {
	// URL is the websocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
	URL string
	// Depth is how many levels per side are attached to snapshots. Zero
	// sends best levels only.
	Depth         int
	Buffer        int
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// WSClient streams Kalshi order books, trades and lifecycle changes as
// normalized market events. It reconnects with backoff and resubscribes;
// an orderbook sequence gap forces a reconnect so books are rebuilt from
// fresh snapshots.
type WSClient struct {
	cfg      WSConfig
	signPath string
	signer   *crypto.RSASigner
	dialer   websocket.Dialer
	stream   *feed.Stream
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	tickers map[string]struct{}
	sids    []int64
	cmdID   int64
	writeMu sync.Mutex

	healthy atomic.Bool
	done    chan struct{}

	// Owned by the read loop.
	books   map[string]*feed.Book
	lastSeq map[int64]int64
}

var _ feed.Venue = (*WSClient)(nil)

// NewWSClient creates a feed. signer may be nil against endpoints that do
// not require auth.
func NewWSClient(cfg WSConfig, signer *crypto.RSASigner, logger *slog.Logger) (*WSClient, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("kalshi/ws: url: %w", err)
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 2 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	return &WSClient{
		cfg:      cfg,
		signPath: u.Path,
		signer:   signer,
		dialer:   websocket.Dialer{HandshakeTimeout: kalshiDialTimeout},
		stream:   feed.NewStream(cfg.Buffer),
		logger:   logger.With(slog.String("component", "kalshi_ws")),
		now:      time.Now,
		tickers:  make(map[string]struct{}),
		done:     make(chan struct{}),
		books:    make(map[string]*feed.Book),
		lastSeq:  make(map[int64]int64),
	}, nil
}

func (w *WSClient) Platform() domain.Platform         { return domain.PlatformKalshi }
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

// Subscribe adds tickers to the subscription set and subscribes them on
// the live connection.
func (w *WSClient) Subscribe(_ context.Context, markets []domain.MarketID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var added []string
	for _, m := range markets {
		if _, ok := w.tickers[string(m)]; !ok {
			w.tickers[string(m)] = struct{}{}
			added = append(added, string(m))
		}
	}
	if len(added) == 0 || w.conn == nil {
		return nil
	}
	if err := w.send(w.conn, w.command("subscribe", wsParams{Channels: bookChannels, Tickers: added})); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes tickers from every active orderbook subscription.
func (w *WSClient) Unsubscribe(_ context.Context, markets []domain.MarketID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var removed []string
	for _, m := range markets {
		if _, ok := w.tickers[string(m)]; ok {
			delete(w.tickers, string(m))
			removed = append(removed, string(m))
		}
	}
	if len(removed) == 0 || w.conn == nil || len(w.sids) == 0 {
		return nil
	}
	cmd := w.command("update_subscription", wsParams{SIDs: w.sids, Tickers: removed, Action: "delete_markets"})
	if err := w.send(w.conn, cmd); err != nil {
		return fmt.Errorf("kalshi/ws: unsubscribe: %w", err)
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

// dial opens a connection and restores subscriptions.
func (w *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if w.signer != nil {
		h, err := w.signer.Headers(http.MethodGet, w.signPath, w.now())
		if err != nil {
			return nil, fmt.Errorf("kalshi/ws: %w: %v", domain.ErrSigningFailed, err)
		}
		header = h
	}
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	})

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return nil, errors.New("kalshi/ws: client is closed")
	}
	w.conn = conn
	w.sids = nil
	tickers := make([]string, 0, len(w.tickers))
	for t := range w.tickers {
		tickers = append(tickers, t)
	}
	err = w.send(conn, w.command("subscribe", wsParams{Channels: lifecycleChannels}))
	if err == nil && len(tickers) > 0 {
		err = w.send(conn, w.command("subscribe", wsParams{Channels: bookChannels, Tickers: tickers}))
	}
	w.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
	}

	w.healthy.Store(true)
	w.emitConnection(domain.ConnectionConnected, 0, "")
	w.logger.Info("connected", slog.Int("tickers", len(tickers)))
	return conn, nil
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
			ctx, cancel := context.WithTimeout(context.Background(), kalshiDialTimeout)
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

// read consumes one connection. Books and sequence numbers are reset on
// return so the next connection starts from snapshots.
func (w *WSClient) read(conn *websocket.Conn) error {
	stop := make(chan struct{})
	go w.pingLoop(conn, stop)
	defer func() {
		close(stop)
		conn.Close()
		clear(w.books)
		clear(w.lastSeq)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := w.handleMessage(message); err != nil {
			return err
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// command builds the next command. Caller must hold w.mu.
func (w *WSClient) command(cmd string, p wsParams) wsCommand {
	w.cmdID++
	return wsCommand{ID: w.cmdID, Cmd: cmd, Params: p}
}

func (w *WSClient) send(conn *websocket.Conn, cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Cmd, err)
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WSClient) subscribed(ticker string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tickers[ticker]
	return ok
}

func (w *WSClient) emitConnection(state domain.ConnectionState, attempt int, reason string) {
	w.stream.Emit(domain.ConnectionEvent{
		Platform:   domain.PlatformKalshi,
		State:      state,
		Attempt:    attempt,
		Reason:     reason,
		ObservedAt: w.now(),
	})
}

// --------------------------------------------------------------------------
// Message handling
// --------------------------------------------------------------------------

// handleMessage parses a raw frame and emits the resulting events. Only a
// sequence gap is returned as an error; malformed frames are logged.
func (w *WSClient) handleMessage(raw []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		w.logger.Warn("malformed frame", slog.String("error", err.Error()))
		return nil
	}

	switch env.Type {
	case "orderbook_snapshot", "orderbook_delta":
		if last, ok := w.lastSeq[env.SID]; ok && env.Seq != last+1 {
			return fmt.Errorf("%w: sid %d got %d after %d", errSeqGap, env.SID, env.Seq, last)
		}
		w.lastSeq[env.SID] = env.Seq
		if env.Type == "orderbook_snapshot" {
			w.onSnapshot(env.Msg)
		} else {
			w.onDelta(env.Msg)
		}
	case "trade":
		w.onTrade(env.Msg)
	case "market_lifecycle_v2":
		w.onLifecycle(env.Msg)
	case "subscribed":
		var m subscribedMsg
		if err := json.Unmarshal(env.Msg, &m); err == nil && m.Channel == bookChannels[0] {
			w.mu.Lock()
			w.sids = append(w.sids, m.SID)
			w.mu.Unlock()
		}
	case "error":
		var m errorMsg
		_ = json.Unmarshal(env.Msg, &m)
		w.logger.Warn("server error", slog.Int64("cmd_id", env.ID), slog.Int("code", m.Code), slog.String("msg", m.Msg))
	}
	return nil
}

// onSnapshot rebuilds a ticker's book. NO bids at p are YES asks at 1-p.
func (w *WSClient) onSnapshot(raw json.RawMessage) {
	var m bookSnapshotMsg
	if err := json.Unmarshal(raw, &m); err != nil || m.Ticker == "" {
		w.logger.Warn("malformed orderbook snapshot")
		return
	}
	if !w.subscribed(m.Ticker) {
		return
	}
	bids := make([]domain.PriceLevel, 0, len(m.Yes))
	for _, l := range m.Yes {
		bids = append(bids, domain.PriceLevel{Price: centsToPrice(l[0]), Size: decimal.NewFromInt(l[1])})
	}
	asks := make([]domain.PriceLevel, 0, len(m.No))
	for _, l := range m.No {
		asks = append(asks, domain.PriceLevel{Price: domain.One().Sub(centsToPrice(l[0])), Size: decimal.NewFromInt(l[1])})
	}
	book := feed.NewBook()
	book.Replace(bids, asks)
	w.books[m.Ticker] = book
	w.emitBook(m.Ticker, book)
}

func (w *WSClient) onDelta(raw json.RawMessage) {
	var m bookDeltaMsg
	if err := json.Unmarshal(raw, &m); err != nil || m.Ticker == "" {
		w.logger.Warn("malformed orderbook delta")
		return
	}
	book, ok := w.books[m.Ticker]
	if !ok {
		w.logger.Debug("delta before snapshot", slog.String("ticker", m.Ticker))
		return
	}
	delta := decimal.NewFromInt(m.Delta)
	switch m.Side {
	case "yes":
		book.Add(domain.OrderSideBuy, centsToPrice(m.Price), delta)
	case "no":
		book.Add(domain.OrderSideSell, domain.One().Sub(centsToPrice(m.Price)), delta)
	default:
		w.logger.Warn("unknown delta side", slog.String("side", m.Side))
		return
	}
	w.emitBook(m.Ticker, book)
}

func (w *WSClient) emitBook(ticker string, book *feed.Book) {
	w.stream.Emit(book.Snapshot(domain.PlatformKalshi, domain.MarketID(ticker), w.now(), w.cfg.Depth))
}

func (w *WSClient) onTrade(raw json.RawMessage) {
	var m tradeMsg
	if err := json.Unmarshal(raw, &m); err != nil || !w.subscribed(m.Ticker) {
		return
	}
	side := domain.OrderSideBuy
	if m.TakerSide == "no" {
		side = domain.OrderSideSell
	}
	at := w.now()
	if m.TS > 0 {
		at = time.Unix(m.TS, 0)
	}
	w.stream.Emit(domain.TradeEvent{
		Platform:   domain.PlatformKalshi,
		MarketID:   domain.MarketID(m.Ticker),
		TradeID:    m.TradeID,
		Price:      centsToPrice(m.YesPrice),
		Size:       decimal.NewFromInt(m.Count),
		TakerSide:  side,
		ObservedAt: at,
	})
}

func (w *WSClient) onLifecycle(raw json.RawMessage) {
	var m lifecycleMsg
	if err := json.Unmarshal(raw, &m); err != nil || !w.subscribed(m.Ticker) {
		return
	}
	var status domain.MarketStatus
	switch m.EventType {
	case "activated":
		status = domain.MarketStatusActive
	case "deactivated":
		status = domain.MarketStatusClosed
	case "determined", "settled":
		status = domain.MarketStatusSettled
	default:
		return
	}
	w.stream.Emit(domain.MarketUpdate{
		Platform:   domain.PlatformKalshi,
		MarketID:   domain.MarketID(m.Ticker),
		Status:     status,
		ObservedAt: w.now(),
	})
}

func centsToPrice(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
