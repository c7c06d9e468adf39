// Package executor drives a detected opportunity through the paired
// two-leg execution state machine: submit both legs concurrently, verify
// fills on a bounded poll schedule, and resolve to exactly one terminal
// status, unwinding stranded single-leg fills.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Venue is the narrow order-submission interface the state machine
// drives. The live implementation signs and posts to the exchange; the
// dry-run simulator fills everything at the quoted price. Submissions
// are never retried here (a resubmitted buy could double exposure);
// status polls and cancels are idempotent and may be retried.
type Venue interface {
	SubmitOrder(ctx context.Context, ticket domain.OrderTicket) (domain.OrderHandle, error)
	OrderStatus(ctx context.Context, handle domain.OrderHandle) (domain.OrderState, error)
	CancelOrder(ctx context.Context, handle domain.OrderHandle) error
	Balance(ctx context.Context) (float64, error)
}

// Quoter supplies the current best opposite-side price for the unwind
// handler. Satisfied by *book.PairBook.
type Quoter interface {
	BestBid(o domain.Outcome) float64
}

// Config bounds the verification and cancel phases.
type Config struct {
	// OrderType from configuration. Non-immediate types (GTC) are
	// rewritten to FOK at submission: the machine's "neither filled means
	// no residual exposure" resolution is only sound when both legs
	// resolve immediately at the venue.
	OrderType     domain.OrderType
	PollInterval  time.Duration
	PollAttempts  int
	CancelRetries int
}

// phase names for logging.
const (
	phaseSubmitting = "SUBMITTING"
	phaseVerifying  = "VERIFYING"
	phaseUnwinding  = "UNWINDING"
)

// PairExecutor owns each TradeAttempt from submission until it reaches a
// terminal status.
type PairExecutor struct {
	venue  Venue
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// New creates a PairExecutor. Unset poll bounds get conservative
// defaults matching the venue's typical ack-to-fill latency.
func New(venue Venue, cfg Config, logger *slog.Logger) *PairExecutor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 12
	}
	if cfg.CancelRetries <= 0 {
		cfg.CancelRetries = 2
	}
	if !cfg.OrderType.Immediate() {
		cfg.OrderType = domain.OrderTypeFOK
	}
	return &PairExecutor{
		venue:  venue,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute runs one opportunity through the state machine and returns the
// attempt in a terminal status. quote supplies the current best bids for
// a potential unwind. Execute never returns a non-terminal attempt.
func (e *PairExecutor) Execute(ctx context.Context, market domain.Market, opp domain.Opportunity, quote Quoter) domain.TradeAttempt {
	attempt := domain.TradeAttempt{
		ID:         uuid.New().String(),
		MarketSlug: market.Slug,
		Status:     domain.AttemptPending,
		PairCost:   opp.PairCost,
		StartedAt:  e.now(),
		Up: domain.Leg{
			Outcome: domain.OutcomeUp,
			TokenID: market.UpToken,
			Side:    domain.OrderSideBuy,
			Price:   opp.PriceUp,
			Size:    opp.OrderSize,
			Type:    e.cfg.OrderType,
		},
		Down: domain.Leg{
			Outcome: domain.OutcomeDown,
			TokenID: market.DownToken,
			Side:    domain.OrderSideBuy,
			Price:   opp.PriceDown,
			Size:    opp.OrderSize,
			Type:    e.cfg.OrderType,
		},
	}

	log := e.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("market", market.Slug),
	)

	e.submitLegs(ctx, market, &attempt, log)

	// Both submissions rejected before entering the book: nothing to
	// cancel, nothing to verify.
	if attempt.Up.OrderID == "" && attempt.Down.OrderID == "" {
		attempt.Status = domain.AttemptFailed
		attempt.ResolvedAt = e.now()
		log.Warn("both submissions rejected", slog.String("phase", phaseSubmitting))
		return attempt
	}

	e.verifyLegs(ctx, &attempt, log)
	e.resolve(ctx, market, &attempt, quote, log)

	attempt.ResolvedAt = e.now()
	log.Info("attempt resolved",
		slog.String("status", string(attempt.Status)),
		slog.Float64("realized_pnl", attempt.RealizedPnL),
		slog.Float64("residual_size", attempt.ResidualSize),
	)
	return attempt
}

// submitLegs posts both legs concurrently; neither submission blocks on
// the other, minimizing the inter-leg gap.
func (e *PairExecutor) submitLegs(ctx context.Context, market domain.Market, attempt *domain.TradeAttempt, log *slog.Logger) {
	var wg sync.WaitGroup
	for _, leg := range []*domain.Leg{&attempt.Up, &attempt.Down} {
		wg.Add(1)
		go func(leg *domain.Leg) {
			defer wg.Done()
			handle, err := e.venue.SubmitOrder(ctx, domain.OrderTicket{
				MarketID: market.ID,
				TokenID:  leg.TokenID,
				Side:     leg.Side,
				Price:    leg.Price,
				Size:     leg.Size,
				Type:     leg.Type,
				NegRisk:  market.NegRisk,
			})
			if err != nil {
				leg.SubmitError = err.Error()
				leg.Status = domain.OrderStatusRejected
				log.Error("leg submission rejected",
					slog.String("phase", phaseSubmitting),
					slog.String("outcome", string(leg.Outcome)),
					slog.String("error", err.Error()),
				)
				return
			}
			leg.OrderID = handle.ID
			leg.Status = domain.OrderStatusOpen
		}(leg)
	}
	wg.Wait()
}

// verifyLegs polls both legs on a bounded schedule until each reaches a
// terminal fill state or the attempt budget is exhausted. The loop
// handles venue-side asynchronicity between submission ack and fill
// confirmation; it does not wait for slow fills.
func (e *PairExecutor) verifyLegs(ctx context.Context, attempt *domain.TradeAttempt, log *slog.Logger) {
	for i := 0; i < e.cfg.PollAttempts; i++ {
		done := true
		for _, leg := range []*domain.Leg{&attempt.Up, &attempt.Down} {
			if leg.OrderID == "" || leg.Status.Terminal() {
				continue
			}
			state, err := e.venue.OrderStatus(ctx, domain.OrderHandle{ID: leg.OrderID, TokenID: leg.TokenID})
			if err != nil {
				// Transient poll failure; the bounded loop is the retry.
				log.Warn("order status poll failed",
					slog.String("phase", phaseVerifying),
					slog.String("outcome", string(leg.Outcome)),
					slog.String("error", err.Error()),
				)
				done = false
				continue
			}
			leg.Status = state.Status
			leg.FilledSize = state.FilledSize
			if !state.Status.Terminal() && !state.FilledFor(leg.Size) {
				done = false
			}
		}
		if done {
			return
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return
		}
	}
	// Budget exhausted: resolution proceeds with the last observed state.
}

// resolve drives the verified attempt into its terminal status.
func (e *PairExecutor) resolve(ctx context.Context, market domain.Market, attempt *domain.TradeAttempt, quote Quoter, log *slog.Logger) {
	if attempt.Up.Filled() && attempt.Down.Filled() {
		attempt.Status = domain.AttemptBothFilled
		// Each filled pair pays out 1.0 at settlement regardless of the
		// outcome; the profit is locked in at execution.
		attempt.RealizedPnL = (1.0 - attempt.PairCost) * attempt.Up.Size
		return
	}

	// Cancel whatever could still be resting. A cancel may lose the race
	// to a fill; that is the good outcome, not an error.
	e.cancelLeg(ctx, &attempt.Up, log)
	e.cancelLeg(ctx, &attempt.Down, log)
	if attempt.Up.Filled() && attempt.Down.Filled() {
		attempt.Status = domain.AttemptBothFilled
		attempt.RealizedPnL = (1.0 - attempt.PairCost) * attempt.Up.Size
		return
	}

	// An immediate-or-cancel leg can take part of the book before the
	// remainder is killed, so granted size is exposure even when neither
	// leg counts as filled. Shares granted on both sides pair off into
	// the locked-in payout; only the excess on one side needs flattening.
	matched := min(attempt.Up.FilledSize, attempt.Down.FilledSize)
	excess, size := &attempt.Up, attempt.Up.FilledSize-matched
	if attempt.Down.FilledSize > attempt.Up.FilledSize {
		excess, size = &attempt.Down, attempt.Down.FilledSize-matched
	}

	switch {
	case matched == 0 && size == 0:
		// Nothing granted anywhere: the trade never happened.
		attempt.Status = domain.AttemptFailed

	case size == 0:
		// Equal partial fills: a smaller pair, same locked-in payout.
		attempt.Status = domain.AttemptBothFilled
		attempt.RealizedPnL = (1.0 - attempt.PairCost) * matched

	default:
		attempt.Status = domain.AttemptPartialFill
		e.unwind(ctx, attempt, excess, size, quote, log)
		attempt.RealizedPnL += (1.0 - attempt.PairCost) * matched
	}
}

// cancelLeg cancels a possibly-resting leg, tolerating the race where
// the venue reports it already filled or already canceled: both are
// acceptable terminal outcomes, not errors.
func (e *PairExecutor) cancelLeg(ctx context.Context, leg *domain.Leg, log *slog.Logger) {
	if leg.OrderID == "" || leg.Status.Terminal() {
		return
	}
	handle := domain.OrderHandle{ID: leg.OrderID, TokenID: leg.TokenID}

	var lastErr error
	for i := 0; i <= e.cfg.CancelRetries; i++ {
		if err := e.venue.CancelOrder(ctx, handle); err != nil {
			lastErr = err
			// The cancel may have lost the race to a fill; re-check
			// before retrying.
			if state, stErr := e.venue.OrderStatus(ctx, handle); stErr == nil && state.Status.Terminal() {
				leg.Status = state.Status
				leg.FilledSize = state.FilledSize
				return
			}
			continue
		}
		leg.Status = domain.OrderStatusCanceled
		return
	}
	log.Warn("cancel failed after retries",
		slog.String("outcome", string(leg.Outcome)),
		slog.String("order_id", leg.OrderID),
		slog.String("error", fmt.Sprintf("%v", lastErr)),
	)
}
