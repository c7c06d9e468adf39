package stats

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmarquez/updownbot/internal/domain"
)

func newTestTracker() *Tracker {
	return NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func attempt(slug string, status domain.AttemptStatus, pnl float64) domain.TradeAttempt {
	return domain.TradeAttempt{
		ID:          "a-1",
		MarketSlug:  slug,
		Status:      status,
		PairCost:    0.99,
		RealizedPnL: pnl,
		Up:          domain.Leg{Size: 5},
		Down:        domain.Leg{Size: 5},
	}
}

func TestTrackerTotals(t *testing.T) {
	tr := newTestTracker()

	tr.RecordOpportunity("m1")
	tr.RecordOpportunity("m1")
	tr.RecordAttempt(attempt("m1", domain.AttemptBothFilled, 0.05))
	tr.RecordAttempt(attempt("m1", domain.AttemptUnwound, -0.10))
	tr.RecordAttempt(attempt("m1", domain.AttemptFailed, 0))

	got := tr.Snapshot()
	assert.Equal(t, 2, got.Opportunities)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 1, got.BothFilled)
	assert.Equal(t, 1, got.Unwound)
	assert.Equal(t, 1, got.Failed)
	assert.InDelta(t, -0.05, got.TotalPnL, 1e-9)
	assert.InDelta(t, 0.99*5, got.TotalInvested, 1e-9)
	assert.InDelta(t, 1.0/3.0, got.WinRate(), 1e-9)
}

func TestTrackerIgnoresNonTerminal(t *testing.T) {
	tr := newTestTracker()

	tr.RecordAttempt(attempt("m1", domain.AttemptPending, 0))

	assert.Zero(t, tr.Snapshot().Attempts)
}

func TestCloseMarketEmitsSummaryAndResets(t *testing.T) {
	tr := newTestTracker()

	tr.RecordOpportunity("m1")
	tr.RecordAttempt(attempt("m1", domain.AttemptBothFilled, 0.05))
	tr.RecordAttempt(attempt("m2", domain.AttemptBothFilled, 0.03))

	summary := tr.CloseMarket("m1")
	assert.Equal(t, "m1", summary.MarketSlug)
	assert.Equal(t, 1, summary.Opportunities)
	assert.Equal(t, 1, summary.TradesExecuted)
	assert.InDelta(t, 0.99*5, summary.TotalInvested, 1e-9)
	assert.InDelta(t, 5.0, summary.ExpectedPayout, 1e-9)

	// m1's accumulator is gone; closing again yields zeros.
	again := tr.CloseMarket("m1")
	assert.Zero(t, again.TradesExecuted)

	// Session totals are untouched by market rollover.
	assert.Equal(t, 2, tr.Snapshot().Attempts)
}

func TestWinRateEmpty(t *testing.T) {
	assert.Zero(t, Totals{}.WinRate())
}
