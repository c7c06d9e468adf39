package domain

import "time"

// AttemptStatus is the lifecycle state of a paired trade attempt.
type AttemptStatus string

const (
	AttemptPending      AttemptStatus = "PENDING"
	AttemptBothFilled   AttemptStatus = "BOTH_FILLED"
	AttemptPartialFill  AttemptStatus = "PARTIAL_FILLED"
	AttemptUnwound      AttemptStatus = "UNWOUND"
	AttemptUnwindFailed AttemptStatus = "UNWIND_FAILED"
	AttemptFailed       AttemptStatus = "FAILED"
)

// Terminal reports whether the attempt has reached a final outcome.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptBothFilled, AttemptUnwound, AttemptUnwindFailed, AttemptFailed:
		return true
	}
	return false
}

// Leg is one side of a paired trade attempt.
type Leg struct {
	Outcome     Outcome
	TokenID     string
	Side        OrderSide
	Price       float64
	Size        float64
	Type        OrderType
	OrderID     string
	Status      OrderStatus
	FilledSize  float64
	SubmitError string // non-empty when submission itself was rejected
}

// Filled reports whether the leg fully filled for its requested size.
func (l Leg) Filled() bool {
	return OrderState{Status: l.Status, FilledSize: l.FilledSize}.FilledFor(l.Size)
}

// TradeAttempt records one two-legged execution from submission through a
// terminal status. Owned exclusively by the executor until terminal, then
// handed to the statistics collaborator.
type TradeAttempt struct {
	ID         string // correlation id (uuid)
	MarketSlug string
	Up         Leg
	Down       Leg
	Status     AttemptStatus
	PairCost   float64
	// RealizedPnL is the guaranteed profit for BOTH_FILLED attempts, the
	// realized loss/gain from flattening for UNWOUND attempts, and 0 for
	// FAILED (no position taken).
	RealizedPnL float64
	// ResidualSize is any exposure left after a partial or failed unwind.
	// Non-zero residue means the attempt needs operator attention.
	ResidualSize float64
	ResidualSide Outcome
	StartedAt    time.Time
	ResolvedAt   time.Time
}

// Leg returns the leg for the given outcome.
func (a *TradeAttempt) Leg(o Outcome) *Leg {
	if o == OutcomeUp {
		return &a.Up
	}
	return &a.Down
}

// MarketSummary is the per-market recap emitted when a market expires.
type MarketSummary struct {
	MarketSlug     string
	Opportunities  int
	TradesExecuted int
	TotalInvested  float64
	ExpectedPayout float64
	ClosedAt       time.Time
}
