// Package risk enforces daily trading limits. The gate is a pure
// decision function over explicit state: authorization never mutates the
// counters, which advance only when a trade completes, so retried
// attempts are never double-counted.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Limits configures the gate. A limit of zero disables that check.
type Limits struct {
	MaxDailyLoss          float64 // cap on realized net loss per day
	MaxPositionSize       float64 // cap on per-trade notional
	MaxTradesPerDay       int     // cap on completed trades per day
	MinBalanceRequired    float64 // balance floor below which trading stops
	MaxBalanceUtilization float64 // fraction of balance usable per trade, in [0,1]
}

// Rejection reasons, enumerable so callers can report rather than
// swallow them.
var (
	ErrBelowMinBalance    = errors.New("balance below minimum required")
	ErrDailyLossReached   = errors.New("daily loss limit reached")
	ErrTradeCountReached  = errors.New("daily trade limit reached")
	ErrPositionTooLarge   = errors.New("position size exceeds per-trade cap")
	ErrUtilizationTooHigh = errors.New("position size exceeds balance utilization cap")
)

// DayState holds the per-day counters, reset at local midnight.
type DayState struct {
	Date        string // local calendar date, YYYY-MM-DD
	Trades      int
	Notional    float64
	TotalProfit float64
	TotalLoss   float64
}

// NetPnL returns profit minus loss for the day.
func (s DayState) NetPnL() float64 {
	return s.TotalProfit - s.TotalLoss
}

// Gate owns the daily risk state. Both the happy-path completion and the
// unwind path record results through it; updates are applied atomically
// under the mutex so concurrent writers never lose increments.
type Gate struct {
	limits Limits
	logger *slog.Logger

	mu    sync.Mutex
	state DayState
	now   func() time.Time
}

// NewGate creates a Gate with fresh counters for the current day.
func NewGate(limits Limits, logger *slog.Logger) *Gate {
	g := &Gate{
		limits: limits,
		logger: logger.With(slog.String("component", "risk_gate")),
		now:    time.Now,
	}
	g.state.Date = g.today()
	return g
}

func (g *Gate) today() string {
	return g.now().Local().Format("2006-01-02")
}

// resetIfNewDay clears the counters when the local calendar day has
// rolled over. Callers must hold g.mu.
func (g *Gate) resetIfNewDay() {
	today := g.today()
	if g.state.Date != today {
		g.state = DayState{Date: today}
		g.logger.Info("daily risk counters reset", slog.String("date", today))
	}
}

// Authorize decides whether a prospective trade of the given notional
// may proceed. Checks short-circuit in a fixed order; the returned error
// is the first failed check's reason, nil on approval. Authorization
// does not mutate counters.
func (g *Gate) Authorize(notional, currentBalance float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay()

	if g.limits.MinBalanceRequired > 0 && currentBalance < g.limits.MinBalanceRequired {
		return fmt.Errorf("%w: balance %.2f < %.2f",
			ErrBelowMinBalance, currentBalance, g.limits.MinBalanceRequired)
	}

	// The loss cap bounds realized loss, not prospective worst-case: a
	// trade is still allowed while the day's net loss is under the cap.
	if g.limits.MaxDailyLoss > 0 {
		if netLoss := g.state.TotalLoss - g.state.TotalProfit; netLoss >= g.limits.MaxDailyLoss {
			return fmt.Errorf("%w: net loss %.2f >= %.2f",
				ErrDailyLossReached, netLoss, g.limits.MaxDailyLoss)
		}
	}

	if g.limits.MaxTradesPerDay > 0 && g.state.Trades >= g.limits.MaxTradesPerDay {
		return fmt.Errorf("%w: %d trades today",
			ErrTradeCountReached, g.state.Trades)
	}

	if g.limits.MaxPositionSize > 0 && notional > g.limits.MaxPositionSize {
		return fmt.Errorf("%w: %.2f > %.2f",
			ErrPositionTooLarge, notional, g.limits.MaxPositionSize)
	}

	if g.limits.MaxBalanceUtilization > 0 {
		if maxNotional := currentBalance * g.limits.MaxBalanceUtilization; notional > maxNotional {
			return fmt.Errorf("%w: %.2f > %.0f%% of balance %.2f",
				ErrUtilizationTooHigh, notional, g.limits.MaxBalanceUtilization*100, currentBalance)
		}
	}

	return nil
}

// RecordResult advances the daily counters for one completed trade.
// profit is negative for losses. Called on both the success path and
// after an unwind realizes a loss, never on mere authorization.
func (g *Gate) RecordResult(notional, profit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay()

	g.state.Trades++
	g.state.Notional += notional
	if profit >= 0 {
		g.state.TotalProfit += profit
	} else {
		g.state.TotalLoss += -profit
	}
}

// DayStats returns a copy of the current day's counters.
func (g *Gate) DayStats() DayState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay()
	return g.state
}
