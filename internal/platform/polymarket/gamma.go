package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// windowLength is the duration of one UP/DOWN market. A market whose
// slug carries window-start timestamp T trades until T+windowLength.
const windowLength = 15 * time.Minute

// GammaClient is the REST client for the market-metadata API, used to
// discover the currently trading UP/DOWN market for a series.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGammaClient creates a Gamma client. baseURL is the API root, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// FindCurrentMarket returns the UP/DOWN market trading right now for a
// series like "btc-updown-15m". Slugs follow the pattern
// "<series>-<window-start-unix>" with window starts aligned to 15-minute
// boundaries. The current window's market is tried first; near a
// boundary it may already have closed, in which case the next window's
// market is the live one. Returns domain.ErrNoMarket when neither is
// open.
func (g *GammaClient) FindCurrentMarket(ctx context.Context, series string) (domain.Market, error) {
	now := g.now()
	windowStart := now.Truncate(windowLength)

	for _, start := range []time.Time{windowStart, windowStart.Add(windowLength)} {
		slug := fmt.Sprintf("%s-%d", series, start.Unix())

		market, err := g.GetMarketBySlug(ctx, slug)
		if err != nil {
			continue
		}
		if market.ExpiresAt.IsZero() {
			market.ExpiresAt = start.Add(windowLength)
		}
		if market.Expired(now) {
			continue
		}
		return market, nil
	}

	return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: series=%s", domain.ErrNoMarket, series)
}

// GetMarketBySlug looks one market up by its URL slug. Markets that are
// closed or no longer accepting orders resolve to domain.ErrNoMarket.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	raw := markets[0]
	if raw.Closed || !raw.AcceptingOrders {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s closed", domain.ErrNoMarket, slug)
	}

	market, err := raw.toMarket()
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, err)
	}
	return market, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
