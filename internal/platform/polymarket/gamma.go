package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API. It is used
// to confirm that matched tokens still trade.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MarketStatus returns the lifecycle state of the market that lists the
// given CLOB token.
func (g *GammaClient) MarketStatus(ctx context.Context, token domain.MarketID) (domain.MarketStatus, error) {
	params := url.Values{}
	params.Set("clob_token_ids", string(token))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("polymarket/gamma: market for token %s: %w", token, err)
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return "", fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	for _, m := range markets {
		if slices.Contains(m.tokenIDs(), string(token)) {
			return m.status(), nil
		}
	}
	return "", fmt.Errorf("polymarket/gamma: token %s: %w", token, domain.ErrNotFound)
}

func (m apiMarket) status() domain.MarketStatus {
	switch {
	case m.Closed && m.UMAResolution == "resolved":
		return domain.MarketStatusSettled
	case m.Closed || m.Archived:
		return domain.MarketStatusClosed
	case bool(m.Active) && bool(m.AcceptingOrders):
		return domain.MarketStatusActive
	default:
		return domain.MarketStatusClosed
	}
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
