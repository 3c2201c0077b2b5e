// Package polymarket adapts the Polymarket CLOB: the market channel feed,
// an EIP-712 signing order placer and Gamma lookups for market status.
package polymarket

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// amountScale converts USDC and share amounts to 1e6 base units.
var amountScale = decimal.New(1, 6)

// ClobConfig configures the CLOB client.
type ClobConfig struct {
	// BaseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
	BaseURL string
	// DataURL serves positions, e.g. "https://data-api.polymarket.com".
	DataURL           string
	RequestsPerSecond float64
	// FeeRateBps is attached to signed orders.
	FeeRateBps int64
	Timeout    time.Duration
}

// ClobClient is the REST client for the Polymarket CLOB. It places legs as
// fill-and-kill signed orders and reads balance and positions.
type ClobClient struct {
	cfg        ClobConfig
	signer     *crypto.Signer
	limiter    *rate.Limiter
	httpClient *http.Client
	now        func() time.Time

	mu   sync.RWMutex
	auth crypto.HMACAuth
}

// NewClobClient creates a client. auth may be empty; DeriveAPIKey fills it.
func NewClobClient(cfg ClobConfig, signer *crypto.Signer, auth crypto.HMACAuth) *ClobClient {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.DataURL = strings.TrimRight(cfg.DataURL, "/")
	return &ClobClient{
		cfg:        cfg,
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		auth:       auth,
	}
}

// Platform implements domain.OrderPlacer.
func (c *ClobClient) Platform() domain.Platform { return domain.PlatformPolymarket }

// PlaceOrder signs and posts one leg as a fill-and-kill order on the token
// named by the leg's market id. The salt is derived from the client order
// id so a resubmitted leg hashes to the same order.
func (c *ClobClient) PlaceOrder(ctx context.Context, leg domain.TradeLeg) (domain.LegResult, error) {
	if leg.Platform != domain.PlatformPolymarket {
		return domain.LegResult{}, fmt.Errorf("polymarket/clob: leg for %s: %w", leg.Platform, domain.ErrInvalidOrder)
	}
	if !leg.Size.IsPositive() || !leg.Price.IsPositive() || leg.Price.GreaterThanOrEqual(domain.One()) {
		return domain.LegResult{}, fmt.Errorf("polymarket/clob: price %s size %s: %w", leg.Price, leg.Size, domain.ErrInvalidOrder)
	}
	auth := c.credentials()
	if !auth.Valid() {
		return domain.LegResult{}, fmt.Errorf("polymarket/clob: no api credentials: %w", domain.ErrUnauthorized)
	}

	order, err := c.buildOrder(leg)
	if err != nil {
		return domain.LegResult{}, err
	}
	req := postOrderRequest{Order: order, Owner: auth.Key, OrderType: "FAK"}

	var resp postOrderResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL, "/order", req, &resp); err != nil {
		return domain.LegResult{}, fmt.Errorf("polymarket/clob: post order %s: %w", leg.ClientOrderID, err)
	}

	res := domain.LegResult{Leg: leg, VenueOrderID: resp.OrderID, FilledSize: decimal.Zero}
	if !resp.Success {
		res.Status = domain.LegRejected
		res.Reason = resp.ErrorMsg
		return res, nil
	}
	// Shares are taken on a buy and given on a sell.
	shares := resp.TakingAmount
	if leg.Side == domain.OrderSideSell {
		shares = resp.MakingAmount
	}
	if shares != "" {
		if filled, err := decimal.NewFromString(shares); err == nil {
			res.FilledSize = filled
		}
	}
	switch {
	case res.FilledSize.GreaterThanOrEqual(leg.Size):
		res.Status = domain.LegFilled
	case res.FilledSize.IsPositive():
		res.Status = domain.LegPartiallyFilled
		res.Reason = fmt.Sprintf("filled %s of %s", res.FilledSize, leg.Size)
	default:
		res.Status = domain.LegRejected
		res.Reason = "no fill: " + resp.Status
	}
	return res, nil
}

// buildOrder prices the leg in 1e6 base units and signs it. A buy gives
// USDC and takes shares; a sell gives shares and takes USDC.
func (c *ClobClient) buildOrder(leg domain.TradeLeg) (apiOrder, error) {
	shares := leg.Size.Mul(amountScale).Truncate(0)
	usdc := leg.Size.Mul(leg.Price).Mul(amountScale).Truncate(0)
	if !shares.IsPositive() || !usdc.IsPositive() {
		return apiOrder{}, fmt.Errorf("polymarket/clob: amounts round to zero: %w", domain.ErrInvalidOrder)
	}

	side, sideName := crypto.SideBuy, "BUY"
	maker, taker := usdc, shares
	if leg.Side == domain.OrderSideSell {
		side, sideName = crypto.SideSell, "SELL"
		maker, taker = shares, usdc
	}

	addr := c.signer.Address().Hex()
	salt := orderSalt(leg.ClientOrderID)
	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         addr,
		Signer:        addr,
		Taker:         zeroAddress,
		TokenID:       string(leg.MarketID),
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.FormatInt(c.cfg.FeeRateBps, 10),
		Side:          side,
		SignatureType: crypto.SignatureEOA,
	}
	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return apiOrder{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}
	return apiOrder{
		Salt:          salt,
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       payload.TokenID,
		MakerAmount:   payload.MakerAmount,
		TakerAmount:   payload.TakerAmount,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          sideName,
		SignatureType: payload.SignatureType,
		Signature:     sig,
	}, nil
}

// orderSalt maps a client order id to a positive 53-bit salt.
func orderSalt(clientOrderID string) int64 {
	sum := sha256.Sum256([]byte(clientOrderID))
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 11)
}

// DeriveAPIKey performs the L1 auth flow: it signs a ClobAuth message and
// exchanges it for HMAC credentials used on every later request.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	var resp apiKeyResponse
	if err := c.send(req, &resp); err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	auth := crypto.HMACAuth{Key: resp.APIKey, Secret: resp.Secret, Passphrase: resp.Passphrase}
	if !auth.Valid() {
		return fmt.Errorf("polymarket/clob: derive api key: incomplete credentials: %w", domain.ErrUnauthorized)
	}
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
	return nil
}

// Balance returns available USDC collateral.
func (c *ClobClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	path := "/balance-allowance?asset_type=COLLATERAL&signature_type=0"
	if err := c.do(ctx, http.MethodGet, c.cfg.BaseURL, path, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/clob: balance: %w", err)
	}
	raw, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket/clob: balance %q: %w", resp.Balance, err)
	}
	return raw.Div(amountScale), nil
}

// Positions returns share holdings keyed by token id.
func (c *ClobClient) Positions(ctx context.Context) (map[domain.MarketID]decimal.Decimal, error) {
	if c.cfg.DataURL == "" {
		return map[domain.MarketID]decimal.Decimal{}, nil
	}
	var resp []dataPosition
	path := "/positions?sizeThreshold=0&user=" + c.signer.Address().Hex()
	if err := c.do(ctx, http.MethodGet, c.cfg.DataURL, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: positions: %w", err)
	}
	out := make(map[domain.MarketID]decimal.Decimal, len(resp))
	for _, p := range resp {
		if p.Size != 0 {
			out[domain.MarketID(p.Asset)] = decimal.NewFromFloat(p.Size)
		}
	}
	return out, nil
}

// Address returns the trading wallet.
func (c *ClobClient) Address() common.Address { return c.signer.Address() }

func (c *ClobClient) credentials() crypto.HMACAuth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds an L2-authenticated request against base+path and decodes the
// response into out.
func (c *ClobClient) do(ctx context.Context, method, base, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var (
		body    io.Reader
		bodyStr string
	)
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.credentials(); auth.Valid() {
		signPath, _, _ := strings.Cut(path, "?")
		if err := auth.Apply(req, c.signer.Address().Hex(), signPath, bodyStr, c.now()); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}
	}
	return c.send(req, out)
}

func (c *ClobClient) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
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

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrRejected, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
