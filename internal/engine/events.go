package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Bus channel names. These mirror the constants in the redis cache
// package so out-of-process subscribers have one well-known namespace.
const (
	channelOpportunities = "updownbot:opportunities"
	channelAttempts      = "updownbot:attempts"
	channelAlerts        = "updownbot:alerts"
)

// busEvent is the wire envelope for every published signal.
type busEvent struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

func opportunityEvent(opp domain.Opportunity) busEvent {
	return busEvent{Kind: "opportunity", At: opp.DetectedAt, Data: opp}
}

func attemptEvent(attempt domain.TradeAttempt) busEvent {
	return busEvent{Kind: "attempt", At: attempt.ResolvedAt, Data: attempt}
}

func marketClosedEvent(summary domain.MarketSummary) busEvent {
	return busEvent{Kind: "market_closed", At: summary.ClosedAt, Data: summary}
}

// publish serializes and sends an event to the bus. Publishing is best
// effort; a bus outage must never stall or fail the trading loop.
func (e *Engine) publish(ctx context.Context, channel string, ev busEvent) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("encode bus event", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Warn("publish bus event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
