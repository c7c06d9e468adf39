// Package polymarket implements the live exchange adapters: the CLOB
// REST client for trading, and the Gamma client for market discovery.
package polymarket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// usdcScale converts human prices and sizes to the 6-decimal integer
// units the exchange contracts settle in.
const usdcScale = 1e6

// apiOrderResult is the POST /order response.
type apiOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// apiOrder is the GET /data/order response.
type apiOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	CreatedAt    int64  `json:"created_at"`
}

// toOrderState normalizes the venue's order representation. The venue
// reports sizes and prices as decimal strings and uses its own status
// vocabulary; everything downstream works with the normalized form.
func (o apiOrder) toOrderState() domain.OrderState {
	matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
	original, _ := strconv.ParseFloat(o.OriginalSize, 64)
	price, _ := strconv.ParseFloat(o.Price, 64)

	return domain.OrderState{
		Handle:     domain.OrderHandle{ID: o.ID, TokenID: o.AssetID},
		Status:     normalizeStatus(o.Status, matched, original),
		FilledSize: matched,
		AvgPrice:   price,
		UpdatedAt:  time.Unix(o.CreatedAt, 0),
	}
}

// normalizeStatus maps the venue status vocabulary onto the domain one.
func normalizeStatus(s string, matched, original float64) domain.OrderStatus {
	switch s {
	case "MATCHED":
		return domain.OrderStatusFilled
	case "CANCELED", "CANCELLED":
		return domain.OrderStatusCanceled
	case "UNMATCHED":
		// An immediate order the book could not satisfy; killed at the
		// venue without resting.
		return domain.OrderStatusExpired
	case "LIVE", "DELAYED":
		if matched > 0 && matched < original {
			return domain.OrderStatusPartiallyFilled
		}
		if original > 0 && matched >= original {
			return domain.OrderStatusFilled
		}
		return domain.OrderStatusOpen
	default:
		return domain.OrderStatusOpen
	}
}

// apiBook is the GET /book response and the book WebSocket snapshot.
type apiBook struct {
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Timestamp string     `json:"timestamp"`
	Bids      []apiLevel `json:"bids"`
	Asks      []apiLevel `json:"asks"`
}

type apiLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (b apiBook) toBookEvent() domain.BookEvent {
	seq, _ := strconv.ParseUint(b.Timestamp, 10, 64)
	return domain.BookEvent{
		Type:      domain.BookEventSnapshot,
		TokenID:   b.AssetID,
		Seq:       seq,
		Bids:      toLevels(b.Bids),
		Asks:      toLevels(b.Asks),
		Timestamp: time.UnixMilli(int64(seq)),
	}
}

func toLevels(in []apiLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// apiBalance is the GET /balance-allowance response. The balance is an
// integer string in 6-decimal collateral units.
type apiBalance struct {
	Balance string `json:"balance"`
}

func (b apiBalance) toUSD() float64 {
	raw, err := strconv.ParseFloat(b.Balance, 64)
	if err != nil {
		return 0
	}
	return raw / usdcScale
}

// gammaMarket is the Gamma /markets response element. Gamma serializes
// the token and outcome lists as JSON-encoded strings inside the JSON.
type gammaMarket struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"`
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	ClobTokenIDs    string `json:"clobTokenIds"`
	Outcomes        string `json:"outcomes"`
	NegRisk         bool   `json:"negRisk"`
	Closed          bool   `json:"closed"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	EndDate         string `json:"endDate"`
}

// toMarket unpacks the doubly-encoded token lists and pairs each token
// with its outcome label.
func (m gammaMarket) toMarket() (domain.Market, error) {
	var tokens []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
		return domain.Market{}, err
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Market{}, err
	}
	if len(tokens) != 2 || len(outcomes) != 2 {
		return domain.Market{}, domain.ErrNoMarket
	}

	market := domain.Market{
		ID:      m.ConditionID,
		Slug:    m.Slug,
		NegRisk: m.NegRisk,
	}
	if market.ID == "" {
		market.ID = m.ID
	}

	for i, outcome := range outcomes {
		switch outcome {
		case "Up":
			market.UpToken = tokens[i]
		case "Down":
			market.DownToken = tokens[i]
		}
	}
	if market.UpToken == "" || market.DownToken == "" {
		return domain.Market{}, domain.ErrNoMarket
	}

	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			market.ExpiresAt = t
		}
	}
	return market, nil
}
