// Package notify delivers operator alerts over Telegram and Discord.
// Alerts are best-effort: a dead webhook must never stall the trading
// loop, so failures are logged and swallowed by callers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Event types the engine emits. Operators filter with the notify.events
// config list; unwind failures always go out regardless of the filter
// since they mean money stranded in an open position.
const (
	EventOpportunity  = "opportunity"
	EventTradeFilled  = "trade_filled"
	EventUnwound      = "unwound"
	EventUnwindFailed = "unwind_failed"
	EventRiskLimit    = "risk_limit"
	EventMarketClosed = "market_closed"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every configured sender, filtering by
// event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events named in the events list
// pass the filter; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// AlertAttempt formats and sends the alert appropriate for a terminal
// attempt. BOTH_FILLED and FAILED are routine and go through the filter;
// UNWIND_FAILED bypasses it.
func (n *Notifier) AlertAttempt(ctx context.Context, attempt domain.TradeAttempt) error {
	switch attempt.Status {
	case domain.AttemptBothFilled:
		return n.Notify(ctx, EventTradeFilled,
			"Pair filled",
			fmt.Sprintf("%s: %g shares at pair cost %.4f, locked profit %.4f",
				attempt.MarketSlug, attempt.Up.Size, attempt.PairCost, attempt.RealizedPnL))
	case domain.AttemptUnwound:
		return n.Notify(ctx, EventUnwound,
			"Single leg unwound",
			fmt.Sprintf("%s: flattened %s leg, realized %.4f",
				attempt.MarketSlug, attempt.ResidualSide, attempt.RealizedPnL))
	case domain.AttemptUnwindFailed:
		return n.dispatch(ctx,
			"UNWIND FAILED - manual intervention required",
			fmt.Sprintf("%s: %g %s shares stranded (attempt %s), written down %.4f",
				attempt.MarketSlug, attempt.ResidualSize, attempt.ResidualSide,
				attempt.ID, attempt.RealizedPnL))
	}
	return nil
}

// dispatch sends to every sender, collecting failures so one dead
// channel cannot block the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
