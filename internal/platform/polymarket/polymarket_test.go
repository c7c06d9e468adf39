package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarquez/updownbot/internal/domain"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		venue    string
		matched  float64
		original float64
		want     domain.OrderStatus
	}{
		{"MATCHED", 5, 5, domain.OrderStatusFilled},
		{"CANCELED", 0, 5, domain.OrderStatusCanceled},
		{"CANCELLED", 2, 5, domain.OrderStatusCanceled},
		{"UNMATCHED", 0, 5, domain.OrderStatusExpired},
		{"LIVE", 0, 5, domain.OrderStatusOpen},
		{"LIVE", 2, 5, domain.OrderStatusPartiallyFilled},
		{"LIVE", 5, 5, domain.OrderStatusFilled},
		{"DELAYED", 0, 5, domain.OrderStatusOpen},
		{"SOMETHING_NEW", 0, 5, domain.OrderStatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.venue, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeStatus(tc.venue, tc.matched, tc.original))
		})
	}
}

func TestAPIOrderToOrderState(t *testing.T) {
	state := apiOrder{
		ID:           "ord-1",
		Status:       "LIVE",
		AssetID:      "tok-up",
		OriginalSize: "5",
		SizeMatched:  "2.5",
		Price:        "0.48",
	}.toOrderState()

	assert.Equal(t, "ord-1", state.Handle.ID)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, state.Status)
	assert.InDelta(t, 2.5, state.FilledSize, 1e-9)
	assert.InDelta(t, 0.48, state.AvgPrice, 1e-9)
}

func TestBuildPayloadAmounts(t *testing.T) {
	buy := buildPayload(domain.OrderTicket{
		TokenID: "123", Side: domain.OrderSideBuy, Price: 0.48, Size: 5,
	}, "0xwallet")
	// A buy makes 2.40 USDC of collateral for 5 shares.
	assert.Equal(t, "2400000", buy.MakerAmount)
	assert.Equal(t, "5000000", buy.TakerAmount)
	assert.Equal(t, 0, buy.Side)

	sell := buildPayload(domain.OrderTicket{
		TokenID: "123", Side: domain.OrderSideSell, Price: 0.46, Size: 5,
	}, "0xwallet")
	assert.Equal(t, "5000000", sell.MakerAmount)
	assert.Equal(t, "2300000", sell.TakerAmount)
	assert.Equal(t, 1, sell.Side)
}

func TestSubmitOrderRejectsInvalidTicket(t *testing.T) {
	client := NewClobClient("http://unused", nil, nil)

	_, err := client.SubmitOrder(context.Background(), domain.OrderTicket{
		TokenID: "123", Side: domain.OrderSideBuy, Price: 0, Size: 5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = client.SubmitOrder(context.Background(), domain.OrderTicket{
		TokenID: "123", Side: domain.OrderSideBuy, Price: 1.2, Size: 5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestGetBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok-up", r.URL.Query().Get("token_id"))
		fmt.Fprint(w, `{
			"market": "0xcond",
			"asset_id": "tok-up",
			"timestamp": "1756200600123",
			"bids": [{"price": "0.47", "size": "100"}],
			"asks": [{"price": "0.48", "size": "50"}]
		}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, nil)

	ev, err := client.GetBook(context.Background(), "tok-up")
	require.NoError(t, err)
	assert.Equal(t, domain.BookEventSnapshot, ev.Type)
	assert.Equal(t, "tok-up", ev.TokenID)
	assert.Equal(t, uint64(1756200600123), ev.Seq)
	require.Len(t, ev.Asks, 1)
	assert.InDelta(t, 0.48, ev.Asks[0].Price, 1e-9)
}

func gammaResponse(slug string, closed, accepting bool) string {
	return fmt.Sprintf(`[{
		"id": "1",
		"conditionId": "0xcond",
		"slug": %q,
		"clobTokenIds": "[\"111\",\"222\"]",
		"outcomes": "[\"Up\",\"Down\"]",
		"negRisk": true,
		"closed": %v,
		"acceptingOrders": %v,
		"endDate": "2026-08-26T10:15:00Z"
	}]`, slug, closed, accepting)
}

func TestFindCurrentMarket(t *testing.T) {
	// 2026-08-26 10:07 UTC sits in the window starting 10:00.
	now := time.Date(2026, 8, 26, 10, 7, 0, 0, time.UTC)
	windowStart := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC).Unix()
	wantSlug := fmt.Sprintf("btc-updown-15m-%d", windowStart)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.URL.Query().Get("slug")
		if slug == wantSlug {
			fmt.Fprint(w, gammaResponse(slug, false, true))
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	g.now = func() time.Time { return now }

	market, err := g.FindCurrentMarket(context.Background(), "btc-updown-15m")
	require.NoError(t, err)
	assert.Equal(t, wantSlug, market.Slug)
	assert.Equal(t, "0xcond", market.ID)
	assert.Equal(t, "111", market.UpToken)
	assert.Equal(t, "222", market.DownToken)
	assert.True(t, market.NegRisk)
	assert.Equal(t, time.Date(2026, 8, 26, 10, 15, 0, 0, time.UTC), market.ExpiresAt.UTC())
}

func TestFindCurrentMarketRollsToNextWindow(t *testing.T) {
	// Right at the boundary the current window's market is closed and
	// the next window's is live.
	now := time.Date(2026, 8, 26, 10, 14, 59, 0, time.UTC)
	current := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC).Unix()
	next := time.Date(2026, 8, 26, 10, 15, 0, 0, time.UTC).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("slug") {
		case fmt.Sprintf("btc-updown-15m-%d", current):
			fmt.Fprint(w, gammaResponse(r.URL.Query().Get("slug"), true, false))
		case fmt.Sprintf("btc-updown-15m-%d", next):
			fmt.Fprint(w, gammaResponse(r.URL.Query().Get("slug"), false, true))
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	g.now = func() time.Time { return now }

	market, err := g.FindCurrentMarket(context.Background(), "btc-updown-15m")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("btc-updown-15m-%d", next), market.Slug)
}

func TestFindCurrentMarketNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)

	_, err := g.FindCurrentMarket(context.Background(), "btc-updown-15m")
	assert.ErrorIs(t, err, domain.ErrNoMarket)
}

func TestGammaMarketMissingOutcome(t *testing.T) {
	m := gammaMarket{
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Yes","No"]`,
	}
	_, err := m.toMarket()
	assert.True(t, errors.Is(err, domain.ErrNoMarket))
}
