// Package book maintains the in-memory orderbook for one UP/DOWN pair
// market and computes depth-aware fill prices against it.
package book

import (
	"sort"
	"sync"

	"github.com/dmarquez/updownbot/internal/domain"
)

// side holds one token's levels keyed by price. Zero-size levels are
// removed, never retained. seq guards against out-of-order deltas after
// a feed reconnect or duplicate delivery.
type side struct {
	bids map[float64]float64
	asks map[float64]float64
	seq  uint64
}

func newSide() *side {
	return &side{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// PairBook is the live two-sided book for a single market instance.
// Writes are serialized by the feed/poll loop (single logical writer);
// reads take a consistent point-in-time copy under the read lock, so an
// evaluation never observes a half-applied update.
type PairBook struct {
	mu     sync.RWMutex
	market domain.Market
	sides  map[domain.Outcome]*side
}

// New creates an empty PairBook for the given market.
func New(market domain.Market) *PairBook {
	return &PairBook{
		market: market,
		sides: map[domain.Outcome]*side{
			domain.OutcomeUp:   newSide(),
			domain.OutcomeDown: newSide(),
		},
	}
}

// Market returns the market this book tracks.
func (b *PairBook) Market() domain.Market {
	return b.market
}

func (b *PairBook) sideFor(tokenID string) (*side, domain.Outcome, bool) {
	o, ok := b.market.Outcome(tokenID)
	if !ok {
		return nil, "", false
	}
	return b.sides[o], o, true
}

// ApplySnapshot atomically replaces all levels for the token's side.
// Snapshots always win: the side's version advances to the snapshot
// sequence even if it is lower (a fresh snapshot after a resync is
// authoritative).
func (b *PairBook) ApplySnapshot(tokenID string, seq uint64, bids, asks []domain.PriceLevel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, _, ok := b.sideFor(tokenID)
	if !ok {
		return domain.ErrNotFound
	}

	s.bids = make(map[float64]float64, len(bids))
	for _, lvl := range bids {
		if lvl.Size > 0 {
			s.bids[lvl.Price] = lvl.Size
		}
	}
	s.asks = make(map[float64]float64, len(asks))
	for _, lvl := range asks {
		if lvl.Size > 0 {
			s.asks[lvl.Price] = lvl.Size
		}
	}
	s.seq = seq
	return nil
}

// ApplyDelta applies one (price, newSize) change to the token's bid or
// ask map. A newSize of zero removes the level. Deltas carrying a
// sequence at or below the side's current version are discarded and
// reported as domain.ErrStaleUpdate so the caller can request a fresh
// snapshot instead of guessing.
func (b *PairBook) ApplyDelta(tokenID string, seq uint64, orderSide domain.OrderSide, price, size float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, _, ok := b.sideFor(tokenID)
	if !ok {
		return domain.ErrNotFound
	}
	if seq != 0 && seq <= s.seq {
		return domain.ErrStaleUpdate
	}

	levels := s.asks
	if orderSide == domain.OrderSideBuy {
		levels = s.bids
	}
	if size <= 0 {
		delete(levels, price)
	} else {
		levels[price] = size
	}
	if seq != 0 {
		s.seq = seq
	}
	return nil
}

// Apply routes a decoded feed event to ApplySnapshot or ApplyDelta.
func (b *PairBook) Apply(ev domain.BookEvent) error {
	switch ev.Type {
	case domain.BookEventSnapshot:
		return b.ApplySnapshot(ev.TokenID, ev.Seq, ev.Bids, ev.Asks)
	case domain.BookEventPriceChange:
		orderSide := domain.OrderSideSell
		if ev.Side == string(domain.OrderSideBuy) {
			orderSide = domain.OrderSideBuy
		}
		return b.ApplyDelta(ev.TokenID, ev.Seq, orderSide, ev.Price, ev.Size)
	}
	return nil
}

// View returns a consistent snapshot of one outcome's book with asks
// sorted ascending and bids descending. Sorting happens here, at read
// time; the book never keeps a sorted copy.
func (b *PairBook) View(o domain.Outcome) domain.BookView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.sides[o]
	v := domain.BookView{
		TokenID: b.market.Token(o),
		Bids:    levelSlice(s.bids),
		Asks:    levelSlice(s.asks),
		Seq:     s.seq,
	}
	sort.Slice(v.Bids, func(i, j int) bool { return v.Bids[i].Price > v.Bids[j].Price })
	sort.Slice(v.Asks, func(i, j int) bool { return v.Asks[i].Price < v.Asks[j].Price })
	return v
}

// BestAsk returns the lowest ask for the outcome, or 0 when empty.
func (b *PairBook) BestAsk(o domain.Outcome) float64 {
	return b.View(o).BestAsk()
}

// BestBid returns the highest bid for the outcome, or 0 when empty.
func (b *PairBook) BestBid(o domain.Outcome) float64 {
	return b.View(o).BestBid()
}

// Ready reports whether both sides have received at least one ask level,
// i.e. there is buyable liquidity to evaluate.
func (b *PairBook) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sides[domain.OutcomeUp].asks) > 0 && len(b.sides[domain.OutcomeDown].asks) > 0
}

func levelSlice(m map[float64]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(m))
	for p, s := range m {
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}
