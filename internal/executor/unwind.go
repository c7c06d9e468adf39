package executor

import (
	"context"
	"log/slog"

	"github.com/dmarquez/updownbot/internal/domain"
)

// unwind flattens a stranded position of the given size with exactly
// one sell attempt at the current best bid for the filled outcome. One
// attempt only: chasing a falling bid with repeated sells compounds the
// loss, and a position the book won't absorb at the touch is better
// escalated to an operator than churned.
func (e *PairExecutor) unwind(ctx context.Context, attempt *domain.TradeAttempt, filled *domain.Leg, position float64, quote Quoter, log *slog.Logger) {
	attempt.ResidualSide = filled.Outcome
	attempt.ResidualSize = position

	log = log.With(
		slog.String("phase", phaseUnwinding),
		slog.String("outcome", string(filled.Outcome)),
		slog.Float64("position", position),
	)

	bid := quote.BestBid(filled.Outcome)
	if bid <= 0 {
		attempt.Status = domain.AttemptUnwindFailed
		attempt.RealizedPnL = -filled.Price * position
		log.Error("unwind impossible, no bid on book; manual intervention required")
		return
	}

	handle, err := e.venue.SubmitOrder(ctx, domain.OrderTicket{
		TokenID: filled.TokenID,
		Side:    domain.OrderSideSell,
		Price:   bid,
		Size:    position,
		Type:    domain.OrderTypeFAK,
	})
	if err != nil {
		attempt.Status = domain.AttemptUnwindFailed
		attempt.RealizedPnL = -filled.Price * position
		log.Error("unwind order rejected; manual intervention required",
			slog.String("error", err.Error()))
		return
	}

	exit := e.pollUnwind(ctx, handle, log)

	if exit.FilledFor(position) {
		attempt.Status = domain.AttemptUnwound
		exitPrice := exit.AvgPrice
		if exitPrice <= 0 {
			exitPrice = bid
		}
		attempt.RealizedPnL = (exitPrice - filled.Price) * position
		attempt.ResidualSize = 0
		log.Warn("position unwound",
			slog.Float64("entry_price", filled.Price),
			slog.Float64("exit_price", exitPrice),
			slog.Float64("realized_pnl", attempt.RealizedPnL),
		)
		return
	}

	// Partially flattened or not at all. The FAK may have taken some of
	// the bid before the rest was killed; account the sold portion at
	// its average price and flag the remainder.
	sold := exit.FilledSize
	exitPrice := exit.AvgPrice
	if exitPrice <= 0 {
		exitPrice = bid
	}
	attempt.Status = domain.AttemptUnwindFailed
	attempt.ResidualSize = position - sold
	attempt.RealizedPnL = (exitPrice-filled.Price)*sold - filled.Price*attempt.ResidualSize
	log.Error("unwind incomplete; manual intervention required",
		slog.Float64("sold", sold),
		slog.Float64("residual", attempt.ResidualSize),
	)
}

// pollUnwind polls the unwind order on the same bounded budget as leg
// verification and returns the last observed state.
func (e *PairExecutor) pollUnwind(ctx context.Context, handle domain.OrderHandle, log *slog.Logger) domain.OrderState {
	var last domain.OrderState
	last.Handle = handle
	for i := 0; i < e.cfg.PollAttempts; i++ {
		state, err := e.venue.OrderStatus(ctx, handle)
		if err != nil {
			log.Warn("unwind status poll failed", slog.String("error", err.Error()))
		} else {
			last = state
			if state.Status.Terminal() {
				return last
			}
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return last
		}
	}
	return last
}
