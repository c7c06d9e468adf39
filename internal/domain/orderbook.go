package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookEventType distinguishes the two shapes of book updates a feed emits.
type BookEventType string

const (
	BookEventSnapshot    BookEventType = "book"
	BookEventPriceChange BookEventType = "price_change"
)

// BookEvent is one discrete, per-token orderbook update. The feed decoder
// normalizes wire payloads (single object or batched array) into a flat
// sequence of these; consumers never see the wire framing.
type BookEvent struct {
	Type    BookEventType
	TokenID string
	// Seq orders events per token. Feeds that carry a timestamp use it as
	// the sequence; events at or below a side's current version are stale.
	Seq uint64
	// Snapshot fields (Type == BookEventSnapshot).
	Bids []PriceLevel
	Asks []PriceLevel
	// Delta fields (Type == BookEventPriceChange). Size 0 removes a level.
	Side      string // "BUY" (bids) or "SELL" (asks)
	Price     float64
	Size      float64
	Timestamp time.Time
}

// BookView is a consistent point-in-time copy of one token's book, as
// handed to the pricer. Asks sorted ascending, bids descending.
type BookView struct {
	TokenID string
	Bids    []PriceLevel
	Asks    []PriceLevel
	Seq     uint64
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (v BookView) BestBid() float64 {
	if len(v.Bids) == 0 {
		return 0
	}
	return v.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (v BookView) BestAsk() float64 {
	if len(v.Asks) == 0 {
		return 0
	}
	return v.Asks[0].Price
}

// Inverted reports whether the book is crossed (best ask below best bid),
// which indicates inconsistent feed data; scans skip inverted books.
func (v BookView) Inverted() bool {
	return len(v.Bids) > 0 && len(v.Asks) > 0 && v.Asks[0].Price < v.Bids[0].Price
}
