package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// Immediate reports whether the order type resolves at the venue without
// resting on the book.
func (t OrderType) Immediate() bool {
	return t == OrderTypeFOK || t == OrderTypeFAK
}

// OrderStatus is the venue-side lifecycle state of a submitted order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderTicket is a request to submit one order to the venue.
type OrderTicket struct {
	MarketID string
	TokenID  string
	Side     OrderSide
	Price    float64
	Size     float64
	Type     OrderType
	NegRisk  bool
}

// Notional returns price * size.
func (t OrderTicket) Notional() float64 {
	return t.Price * t.Size
}

// OrderHandle identifies a submitted order for status polls and cancels.
type OrderHandle struct {
	ID      string
	TokenID string
}

// OrderState is a normalized snapshot of a submitted order's progress.
// Venue payloads vary in which size fields they carry; FilledSize is the
// reconciled value.
type OrderState struct {
	Handle     OrderHandle
	Status     OrderStatus
	FilledSize float64
	AvgPrice   float64 // average fill price when known, else 0
	UpdatedAt  time.Time
}

// FilledFor reports whether the order is fully filled for the requested
// size, within a small tolerance for venue size rounding.
func (s OrderState) FilledFor(requested float64) bool {
	const eps = 1e-9
	if s.Status == OrderStatusFilled {
		return true
	}
	return requested > 0 && s.FilledSize+eps >= requested
}
