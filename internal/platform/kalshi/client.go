// Package kalshi adapts the Kalshi exchange: a websocket market-data feed and
// an RSA-signed REST client that places legs and reads the account.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ClientConfig configures the REST client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
	BaseURL string
	// RequestsPerSecond bounds outgoing requests. Zero means 10.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is the REST client for the Kalshi trade API.
type Client struct {
	baseURL    string
	basePath   string
	signer     *crypto.RSASigner
	limiter    *rate.Limiter
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a REST client. signer may be nil for public endpoints
// only.
func NewClient(cfg ClientConfig, signer *crypto.RSASigner) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi: base url: %w", err)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		basePath:   strings.TrimRight(u.Path, "/"),
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

// Platform implements domain.OrderPlacer.
func (c *Client) Platform() domain.Platform { return domain.PlatformKalshi }

// PlaceOrder sends one leg as an immediate-or-cancel limit order on the YES
// contract. Buys round the limit up to the cent, sells round it down.
func (c *Client) PlaceOrder(ctx context.Context, leg domain.TradeLeg) (domain.LegResult, error) {
	if leg.Platform != domain.PlatformKalshi {
		return domain.LegResult{}, fmt.Errorf("kalshi: leg for %s: %w", leg.Platform, domain.ErrInvalidOrder)
	}
	if !leg.Size.IsInteger() || !leg.Size.IsPositive() {
		return domain.LegResult{}, fmt.Errorf("kalshi: size %s is not a whole contract count: %w", leg.Size, domain.ErrInvalidOrder)
	}
	cents := leg.Price.Mul(hundred)
	if leg.Side == domain.OrderSideBuy {
		cents = cents.Ceil()
	} else {
		cents = cents.Floor()
	}
	price := cents.IntPart()
	if price < 1 || price > 99 {
		return domain.LegResult{}, fmt.Errorf("kalshi: price %s outside 1-99 cents: %w", leg.Price, domain.ErrInvalidOrder)
	}

	req := createOrderRequest{
		Ticker:        string(leg.MarketID),
		ClientOrderID: leg.ClientOrderID,
		Action:        string(leg.Side),
		Side:          "yes",
		Type:          "limit",
		Count:         leg.Size.IntPart(),
		YesPrice:      price,
		TimeInForce:   "immediate_or_cancel",
	}
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", req, &resp); err != nil {
		return domain.LegResult{}, fmt.Errorf("kalshi: place order %s: %w", leg.ClientOrderID, err)
	}

	filled := decimal.NewFromInt(resp.Order.TakerFillCount + resp.Order.MakerFillCount)
	res := domain.LegResult{
		Leg:          leg,
		FilledSize:   filled,
		VenueOrderID: resp.Order.OrderID,
	}
	switch {
	case filled.GreaterThanOrEqual(leg.Size):
		res.Status = domain.LegFilled
	case filled.IsPositive():
		res.Status = domain.LegPartiallyFilled
		res.Reason = fmt.Sprintf("filled %s of %s", filled, leg.Size)
	default:
		res.Status = domain.LegRejected
		res.Reason = "no fill: " + resp.Order.Status
	}
	return res, nil
}

// Balance returns the available cash balance in dollars.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("kalshi: balance: %w", err)
	}
	return decimal.NewFromInt(resp.Balance).Div(hundred), nil
}

// Positions returns signed YES positions keyed by ticker.
func (c *Client) Positions(ctx context.Context) (map[domain.MarketID]decimal.Decimal, error) {
	out := make(map[domain.MarketID]decimal.Decimal)
	cursor := ""
	for {
		path := "/portfolio/positions?limit=200"
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp positionsResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("kalshi: positions: %w", err)
		}
		for _, p := range resp.MarketPositions {
			if p.Position != 0 {
				out[domain.MarketID(p.Ticker)] = decimal.NewFromInt(p.Position)
			}
		}
		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// MarketStatus returns the lifecycle state of a ticker.
func (c *Client) MarketStatus(ctx context.Context, ticker domain.MarketID) (domain.MarketStatus, error) {
	var resp marketResponse
	if err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(string(ticker)), nil, &resp); err != nil {
		return "", fmt.Errorf("kalshi: market %s: %w", ticker, err)
	}
	switch resp.Market.Status {
	case "active", "open":
		return domain.MarketStatusActive, nil
	case "determined", "settled", "finalized":
		return domain.MarketStatusSettled, nil
	default:
		return domain.MarketStatusClosed, nil
	}
}

// do sends a signed request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		signPath, _, _ := strings.Cut(c.basePath+path, "?")
		h, err := c.signer.Headers(method, signPath, c.now())
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}
		for k := range h {
			req.Header.Set(k, h.Get(k))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx codes to domain errors.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRejected, msg, apiErr.Error.Code)
	default:
		return fmt.Errorf("HTTP %d: %s", code, msg)
	}
}
