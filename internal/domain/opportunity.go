package domain

import "time"

// Opportunity is a detected pair-cost arbitrage: buying both sides at the
// achievable prices costs less than the guaranteed 1.0 payout per pair.
// Opportunities are ephemeral; they are produced and consumed within one
// detection cycle and never persisted by the engine itself.
type Opportunity struct {
	MarketSlug     string
	PriceUp        float64 // worst-case fill price to buy OrderSize UP shares
	PriceDown      float64 // worst-case fill price to buy OrderSize DOWN shares
	PairCost       float64 // PriceUp + PriceDown
	ProfitPerShare float64 // 1.0 - PairCost
	OrderSize      float64
	VWAPUp         float64 // volume-weighted fill estimate, diagnostics only
	VWAPDown       float64
	DetectedAt     time.Time
}

// Notional returns the total investment for both legs at the worst-case
// prices: PairCost * OrderSize.
func (o Opportunity) Notional() float64 {
	return o.PairCost * o.OrderSize
}

// ExpectedProfit returns the guaranteed profit at settlement if both legs
// fill at the worst-case prices.
func (o Opportunity) ExpectedProfit() float64 {
	return o.ProfitPerShare * o.OrderSize
}
