// Package stats aggregates terminal trade attempts into session and
// per-market figures for logging and the shutdown summary.
package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Totals is a snapshot of the session so far.
type Totals struct {
	Opportunities int
	Attempts      int
	BothFilled    int
	Unwound       int
	UnwindFailed  int
	Failed        int
	TotalPnL      float64
	TotalInvested float64
	StartedAt     time.Time
}

// WinRate is the share of attempts that locked in the pair.
func (t Totals) WinRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.BothFilled) / float64(t.Attempts)
}

// perMarket accumulates figures for one market's lifetime.
type perMarket struct {
	opportunities  int
	trades         int
	invested       float64
	expectedPayout float64
}

// Tracker collects terminal attempts. All methods are safe for
// concurrent use; the engine records from its evaluation loop while the
// shutdown path reads the summary.
type Tracker struct {
	logger *slog.Logger

	mu      sync.Mutex
	totals  Totals
	markets map[string]*perMarket
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		logger:  logger.With(slog.String("component", "stats")),
		totals:  Totals{StartedAt: time.Now()},
		markets: make(map[string]*perMarket),
	}
}

// RecordOpportunity counts a detection, executed or not.
func (t *Tracker) RecordOpportunity(marketSlug string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.Opportunities++
	t.market(marketSlug).opportunities++
}

// RecordAttempt folds a terminal attempt into the totals. Non-terminal
// attempts are a caller bug and are ignored with a warning.
func (t *Tracker) RecordAttempt(attempt domain.TradeAttempt) {
	if !attempt.Status.Terminal() {
		t.logger.Warn("ignoring non-terminal attempt", slog.String("attempt_id", attempt.ID))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.totals.Attempts++
	t.totals.TotalPnL += attempt.RealizedPnL

	m := t.market(attempt.MarketSlug)

	switch attempt.Status {
	case domain.AttemptBothFilled:
		t.totals.BothFilled++
		invested := attempt.PairCost * attempt.Up.Size
		t.totals.TotalInvested += invested
		m.trades++
		m.invested += invested
		m.expectedPayout += attempt.Up.Size
	case domain.AttemptUnwound:
		t.totals.Unwound++
	case domain.AttemptUnwindFailed:
		t.totals.UnwindFailed++
	case domain.AttemptFailed:
		t.totals.Failed++
	}
}

// Snapshot returns a copy of the session totals.
func (t *Tracker) Snapshot() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// CloseMarket returns the recap for a finished market and drops its
// accumulator. Called when the engine rolls to the next window.
func (t *Tracker) CloseMarket(marketSlug string) domain.MarketSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.market(marketSlug)
	delete(t.markets, marketSlug)

	return domain.MarketSummary{
		MarketSlug:     marketSlug,
		Opportunities:  m.opportunities,
		TradesExecuted: m.trades,
		TotalInvested:  m.invested,
		ExpectedPayout: m.expectedPayout,
		ClosedAt:       time.Now(),
	}
}

// LogFinal writes the end-of-session summary.
func (t *Tracker) LogFinal() {
	totals := t.Snapshot()
	t.logger.Info("session summary",
		slog.Int("opportunities", totals.Opportunities),
		slog.Int("attempts", totals.Attempts),
		slog.Int("both_filled", totals.BothFilled),
		slog.Int("unwound", totals.Unwound),
		slog.Int("unwind_failed", totals.UnwindFailed),
		slog.Int("failed", totals.Failed),
		slog.Float64("win_rate", totals.WinRate()),
		slog.Float64("total_invested", totals.TotalInvested),
		slog.Float64("total_pnl", totals.TotalPnL),
		slog.Duration("uptime", time.Since(totals.StartedAt)),
	)
}

// market returns the accumulator for a slug, creating it on first use.
// Caller must hold t.mu.
func (t *Tracker) market(slug string) *perMarket {
	m, ok := t.markets[slug]
	if !ok {
		m = &perMarket{}
		t.markets[slug] = m
	}
	return m
}
