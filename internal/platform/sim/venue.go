// Package sim is the dry-run trading venue: market data still comes
// from the live feed, but orders fill instantly here at their quoted
// price against a synthetic collateral balance. It lets a configuration
// run end to end, detector through executor through statistics, with no
// keys and no capital at risk.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Venue implements executor.Venue with immediate, optimistic fills.
type Venue struct {
	logger *slog.Logger

	mu      sync.Mutex
	balance float64
	nextID  int
	orders  map[string]domain.OrderState
}

// NewVenue creates a simulator with the given starting balance in USD.
func NewVenue(startingBalance float64, logger *slog.Logger) *Venue {
	return &Venue{
		logger:  logger.With(slog.String("component", "sim")),
		balance: startingBalance,
		orders:  make(map[string]domain.OrderState),
	}
}

// SubmitOrder fills the order immediately at its limit price. Buys that
// exceed the remaining balance are rejected, mirroring how the live
// venue refuses orders over available collateral.
func (v *Venue) SubmitOrder(_ context.Context, ticket domain.OrderTicket) (domain.OrderHandle, error) {
	if ticket.Price <= 0 || ticket.Price >= 1 || ticket.Size <= 0 {
		return domain.OrderHandle{}, fmt.Errorf("sim: %w: price=%v size=%v",
			domain.ErrInvalidOrder, ticket.Price, ticket.Size)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	notional := ticket.Notional()
	if ticket.Side == domain.OrderSideBuy {
		if notional > v.balance {
			return domain.OrderHandle{}, fmt.Errorf("sim: insufficient balance: need %.2f have %.2f", notional, v.balance)
		}
		v.balance -= notional
	} else {
		v.balance += notional
	}

	v.nextID++
	id := "sim-" + strconv.Itoa(v.nextID)
	handle := domain.OrderHandle{ID: id, TokenID: ticket.TokenID}
	v.orders[id] = domain.OrderState{
		Handle:     handle,
		Status:     domain.OrderStatusFilled,
		FilledSize: ticket.Size,
		AvgPrice:   ticket.Price,
	}

	v.logger.Info("simulated fill",
		slog.String("order_id", id),
		slog.String("side", string(ticket.Side)),
		slog.Float64("price", ticket.Price),
		slog.Float64("size", ticket.Size),
		slog.Float64("balance", v.balance),
	)
	return handle, nil
}

// OrderStatus returns the recorded fill.
func (v *Venue) OrderStatus(_ context.Context, handle domain.OrderHandle) (domain.OrderState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.orders[handle.ID]
	if !ok {
		return domain.OrderState{}, fmt.Errorf("sim: %w: order %s", domain.ErrNotFound, handle.ID)
	}
	return state, nil
}

// CancelOrder is a no-op success: simulated orders never rest.
func (v *Venue) CancelOrder(context.Context, domain.OrderHandle) error {
	return nil
}

// Balance returns the synthetic collateral balance.
func (v *Venue) Balance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}
