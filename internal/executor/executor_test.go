package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarquez/updownbot/internal/domain"
)

// fakeVenue scripts per-token order outcomes and records every call.
type fakeVenue struct {
	mu sync.Mutex

	// submitErr rejects submissions for a token.
	submitErr map[string]error
	// submitSellErr rejects only sell submissions for a token.
	submitSellErr map[string]error
	// fills maps token -> filled size granted to the next order on it.
	// Absent tokens fill fully; explicit zero never fills.
	fills map[string]float64
	// avgPrice maps token -> reported average fill price (0 = order price).
	avgPrice map[string]float64
	// cancelErr makes CancelOrder fail for a token.
	cancelErr map[string]error
	// statusErrs returns errors for the first n status polls per token.
	statusErrs map[string]int
	// fillAfterPolls flips an open order on the token to fully filled
	// once that many status polls have been observed.
	fillAfterPolls map[string]int

	orders   map[string]*fakeOrder
	nextID   int
	submits  []domain.OrderTicket
	cancels  []string
	statusCt map[string]int
}

type fakeOrder struct {
	ticket domain.OrderTicket
	state  domain.OrderState
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		submitErr:      map[string]error{},
		submitSellErr:  map[string]error{},
		fills:          map[string]float64{},
		avgPrice:       map[string]float64{},
		cancelErr:      map[string]error{},
		statusErrs:     map[string]int{},
		fillAfterPolls: map[string]int{},
		orders:         map[string]*fakeOrder{},
		statusCt:       map[string]int{},
	}
}

func (v *fakeVenue) SubmitOrder(_ context.Context, t domain.OrderTicket) (domain.OrderHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submits = append(v.submits, t)
	if err := v.submitErr[t.TokenID]; err != nil {
		return domain.OrderHandle{}, err
	}
	if err := v.submitSellErr[t.TokenID]; err != nil && t.Side == domain.OrderSideSell {
		return domain.OrderHandle{}, err
	}
	v.nextID++
	id := string(rune('a' + v.nextID - 1))

	filled := t.Size
	if f, ok := v.fills[t.TokenID]; ok {
		filled = f
	}
	status := domain.OrderStatusFilled
	switch {
	case filled <= 0:
		status = domain.OrderStatusOpen
		filled = 0
	case filled < t.Size:
		status = domain.OrderStatusPartiallyFilled
	}
	price := v.avgPrice[t.TokenID]
	if price == 0 {
		price = t.Price
	}
	v.orders[id] = &fakeOrder{
		ticket: t,
		state: domain.OrderState{
			Handle:     domain.OrderHandle{ID: id, TokenID: t.TokenID},
			Status:     status,
			FilledSize: filled,
			AvgPrice:   price,
		},
	}
	return domain.OrderHandle{ID: id, TokenID: t.TokenID}, nil
}

func (v *fakeVenue) OrderStatus(_ context.Context, h domain.OrderHandle) (domain.OrderState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statusCt[h.TokenID]++
	if n := v.statusErrs[h.TokenID]; n > 0 {
		v.statusErrs[h.TokenID] = n - 1
		return domain.OrderState{}, errors.New("status unavailable")
	}
	o, ok := v.orders[h.ID]
	if !ok {
		return domain.OrderState{}, domain.ErrNotFound
	}
	if after, ok := v.fillAfterPolls[h.TokenID]; ok && v.statusCt[h.TokenID] > after && !o.state.Status.Terminal() {
		o.state.Status = domain.OrderStatusFilled
		o.state.FilledSize = o.ticket.Size
	}
	return o.state, nil
}

func (v *fakeVenue) CancelOrder(_ context.Context, h domain.OrderHandle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancels = append(v.cancels, h.ID)
	if err := v.cancelErr[h.TokenID]; err != nil {
		return err
	}
	if o, ok := v.orders[h.ID]; ok && !o.state.Status.Terminal() {
		o.state.Status = domain.OrderStatusCanceled
	}
	return nil
}

func (v *fakeVenue) Balance(context.Context) (float64, error) { return 1000, nil }

// fixedQuote always returns the same best bid.
type fixedQuote struct{ bid float64 }

func (q fixedQuote) BestBid(domain.Outcome) float64 { return q.bid }

const (
	upToken   = "tok-up"
	downToken = "tok-down"
)

func testMarket() domain.Market {
	return domain.Market{
		ID:        "0xcond",
		Slug:      "btc-updown-15m-1756200600",
		UpToken:   upToken,
		DownToken: downToken,
		NegRisk:   true,
	}
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		MarketSlug: "btc-updown-15m-1756200600",
		PriceUp:    0.48,
		PriceDown:  0.51,
		PairCost:   0.99,
		OrderSize:  5,
	}
}

func newTestExecutor(v Venue) *PairExecutor {
	e := New(v, Config{OrderType: domain.OrderTypeFOK, PollAttempts: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func TestExecuteBothFilled(t *testing.T) {
	venue := newFakeVenue()
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	assert.Equal(t, domain.AttemptBothFilled, attempt.Status)
	assert.InDelta(t, (1.0-0.99)*5, attempt.RealizedPnL, 1e-9)
	assert.Zero(t, attempt.ResidualSize)
	assert.True(t, attempt.Status.Terminal())
	require.Len(t, venue.submits, 2)
	assert.Empty(t, venue.cancels)
}

func TestExecuteSubmitsBothLegsConcurrently(t *testing.T) {
	venue := newFakeVenue()
	exec := newTestExecutor(venue)

	exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	tokens := map[string]bool{}
	for _, s := range venue.submits {
		tokens[s.TokenID] = true
		assert.Equal(t, domain.OrderSideBuy, s.Side)
		assert.Equal(t, domain.OrderTypeFOK, s.Type)
		assert.True(t, s.NegRisk)
	}
	assert.True(t, tokens[upToken])
	assert.True(t, tokens[downToken])
}

func TestExecuteForcesImmediateOrderType(t *testing.T) {
	venue := newFakeVenue()
	exec := New(venue, Config{OrderType: domain.OrderTypeGTC}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	exec.sleep = func(context.Context, time.Duration) error { return nil }

	exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	for _, s := range venue.submits {
		assert.Equal(t, domain.OrderTypeFOK, s.Type)
	}
}

func TestExecuteBothSubmissionsRejected(t *testing.T) {
	venue := newFakeVenue()
	venue.submitErr[upToken] = errors.New("insufficient balance")
	venue.submitErr[downToken] = errors.New("insufficient balance")
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	assert.Equal(t, domain.AttemptFailed, attempt.Status)
	assert.Zero(t, attempt.RealizedPnL)
	assert.Empty(t, venue.cancels)
	assert.NotEmpty(t, attempt.Up.SubmitError)
	assert.NotEmpty(t, attempt.Down.SubmitError)
}

func TestExecuteNeitherFilled(t *testing.T) {
	venue := newFakeVenue()
	venue.fills[upToken] = 0
	venue.fills[downToken] = 0
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	assert.Equal(t, domain.AttemptFailed, attempt.Status)
	assert.Zero(t, attempt.RealizedPnL)
	assert.Zero(t, attempt.ResidualSize)
	// Both unfilled legs get canceled before the attempt fails.
	assert.Len(t, venue.cancels, 2)
}

func TestExecutePollBudgetBounded(t *testing.T) {
	venue := newFakeVenue()
	venue.fills[upToken] = 0
	venue.fills[downToken] = 0
	exec := newTestExecutor(venue)

	exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	// 3 verification attempts per leg plus one re-check inside the
	// cancel path at most; never unbounded.
	assert.LessOrEqual(t, venue.statusCt[upToken], 4)
	assert.LessOrEqual(t, venue.statusCt[downToken], 4)
}

func TestExecuteStatusPollRetriesWithinBudget(t *testing.T) {
	venue := newFakeVenue()
	venue.statusErrs[upToken] = 2
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	assert.Equal(t, domain.AttemptBothFilled, attempt.Status)
}

func TestExecuteCancelToleratesAlreadyFilled(t *testing.T) {
	// The down leg looks open at first, the cancel request fails, and the
	// re-check reveals it actually filled. The attempt must account for
	// both fills rather than treating the race as an error.
	venue := newFakeVenue()
	venue.fills[downToken] = 0
	venue.cancelErr[downToken] = errors.New("order already filled")
	// Still open through the verification budget; the fill lands while
	// the cancel path is re-checking.
	venue.fillAfterPolls[downToken] = 3
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{})

	assert.Equal(t, domain.AttemptBothFilled, attempt.Status)
	assert.InDelta(t, (1.0-0.99)*5, attempt.RealizedPnL, 1e-9)
}

func TestExecutePartialGrantBeforeKillUnwound(t *testing.T) {
	// The UP FAK takes 3 of 5 shares before the remainder is killed, so
	// the leg ends canceled with a granted size. DOWN never fills. The
	// granted shares are real exposure and must be flattened, not written
	// off as a failed attempt.
	venue := newFakeVenue()
	venue.fills[upToken] = 3
	venue.fills[downToken] = 0
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{bid: 0.46})

	assert.Equal(t, domain.AttemptUnwound, attempt.Status)
	assert.Equal(t, domain.OutcomeUp, attempt.ResidualSide)
	assert.Zero(t, attempt.ResidualSize)
	assert.InDelta(t, (0.46-0.48)*3, attempt.RealizedPnL, 1e-9)

	// Exactly one sell, sized to the granted portion only.
	require.Len(t, venue.submits, 3)
	exit := venue.submits[2]
	assert.Equal(t, domain.OrderSideSell, exit.Side)
	assert.Equal(t, upToken, exit.TokenID)
	assert.InDelta(t, 3.0, exit.Size, 1e-9)
}

func TestExecuteUnequalPartialGrantsPairOff(t *testing.T) {
	// UP grants 3, DOWN grants 2. The 2 matched pairs lock in the payout;
	// only the 1 excess UP share needs flattening.
	venue := newFakeVenue()
	venue.fills[upToken] = 3
	venue.fills[downToken] = 2
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{bid: 0.40})

	assert.Equal(t, domain.AttemptUnwound, attempt.Status)
	assert.Zero(t, attempt.ResidualSize)
	wantPnL := (0.40-0.48)*1 + (1.0-0.99)*2
	assert.InDelta(t, wantPnL, attempt.RealizedPnL, 1e-9)

	require.Len(t, venue.submits, 3)
	assert.InDelta(t, 1.0, venue.submits[2].Size, 1e-9)
}

func TestExecuteEqualPartialGrantsBothFilled(t *testing.T) {
	// Both legs grant the same 2 shares: a smaller pair with the same
	// locked-in payout, so nothing needs unwinding.
	venue := newFakeVenue()
	venue.fills[upToken] = 2
	venue.fills[downToken] = 2
	exec := newTestExecutor(venue)

	attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{bid: 0.40})

	assert.Equal(t, domain.AttemptBothFilled, attempt.Status)
	assert.InDelta(t, (1.0-0.99)*2, attempt.RealizedPnL, 1e-9)
	assert.Zero(t, attempt.ResidualSize)
	// No sell was ever attempted.
	require.Len(t, venue.submits, 2)
}

func TestExecuteResolutionCompleteness(t *testing.T) {
	// Every combination of per-leg outcomes resolves to exactly one
	// terminal status.
	cases := []struct {
		name       string
		upFill     float64
		downFill   float64
		wantStatus domain.AttemptStatus
	}{
		{"both fill", 5, 5, domain.AttemptBothFilled},
		{"up only", 5, 0, domain.AttemptUnwound},
		{"down only", 0, 5, domain.AttemptUnwound},
		{"neither", 0, 0, domain.AttemptFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			venue := newFakeVenue()
			venue.fills[upToken] = tc.upFill
			venue.fills[downToken] = tc.downFill
			exec := newTestExecutor(venue)

			attempt := exec.Execute(context.Background(), testMarket(), testOpportunity(), fixedQuote{bid: 0.40})

			assert.Equal(t, tc.wantStatus, attempt.Status)
			assert.True(t, attempt.Status.Terminal())
			assert.False(t, attempt.ResolvedAt.IsZero())
		})
	}
}
